// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nahuelpalumbo/mesa/internal/auth"
	"github.com/nahuelpalumbo/mesa/internal/cache"
	"github.com/nahuelpalumbo/mesa/internal/clock"
	"github.com/nahuelpalumbo/mesa/internal/config"
	"github.com/nahuelpalumbo/mesa/internal/database"
	"github.com/nahuelpalumbo/mesa/internal/ledger"
	"github.com/nahuelpalumbo/mesa/internal/matchmaker"
	"github.com/nahuelpalumbo/mesa/internal/orchestrator"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
	"github.com/nahuelpalumbo/mesa/internal/ruleset/gridline"
	"github.com/nahuelpalumbo/mesa/internal/ruleset/rps"
	"github.com/nahuelpalumbo/mesa/internal/ruleset/trucomod"
	"github.com/nahuelpalumbo/mesa/internal/store"
	"github.com/nahuelpalumbo/mesa/internal/ws"
)

func main() {
	cfg := config.Load()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		lg       ledger.Ledger
		sessions store.SessionStore
		users    store.UserStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logrus.WithError(err).Fatal("database connect failed")
		}
		defer pool.Close()
		lg = ledger.NewPostgres(pool)
		sessions = store.NewPostgres(pool)
		users = store.NewPostgresUsers(pool)
	} else {
		logrus.Warn("DATABASE_URL unset, using in-memory stores")
		lg = ledger.NewMemory()
		sessions = store.NewMemory()
		users = store.NewMemoryUsers()
	}

	if cfg.RedisAddr != "" {
		if err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPass); err != nil {
			logrus.WithError(err).Warn("redis unavailable, audit trail disabled")
		}
	}

	reg := ruleset.NewRegistry(trucomod.New(), rps.New(), gridline.New())
	orch := orchestrator.New(orchestrator.Config{
		TurnTimeout:   cfg.TurnTimeout,
		GraceWindow:   cfg.GraceWindow,
		SubroundDelay: cfg.SubroundDelay,
		FeeBps:        cfg.HouseFeeBps,
	}, reg, lg, sessions, clock.NewReal())

	var srv *ws.Server
	mm := matchmaker.New(reg, func(ctx context.Context, m matchmaker.Match) {
		srv.HandleMatch(ctx, m)
	})
	srv = ws.NewServer(orch, mm, lg, users, auth.NewIssuer(cfg.JWTSecret, 24*time.Hour))
	orch.BroadcastToPlayer = srv.Hub.SendToUser

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("addr", cfg.Addr).Info("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("shutdown incomplete")
	}
}
