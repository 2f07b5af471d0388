// internal/ws/server.go
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nahuelpalumbo/mesa/internal/auth"
	"github.com/nahuelpalumbo/mesa/internal/ledger"
	"github.com/nahuelpalumbo/mesa/internal/matchmaker"
	"github.com/nahuelpalumbo/mesa/internal/models"
	"github.com/nahuelpalumbo/mesa/internal/orchestrator"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
	"github.com/nahuelpalumbo/mesa/internal/store"
)

// Server ties the transport to the lobby services.
type Server struct {
	Hub    *Hub
	orch   *orchestrator.Orchestrator
	mm     *matchmaker.Matchmaker
	ledger ledger.Ledger
	users  store.UserStore
	issuer *auth.Issuer
	log    *logrus.Entry
}

func NewServer(orch *orchestrator.Orchestrator, mm *matchmaker.Matchmaker, lg ledger.Ledger, users store.UserStore, issuer *auth.Issuer) *Server {
	return &Server{
		Hub:    NewHub(),
		orch:   orch,
		mm:     mm,
		ledger: lg,
		users:  users,
		issuer: issuer,
		log:    logrus.WithField("component", "server"),
	}
}

// HandleMatch is the matchmaker callback: it funds and starts the session,
// then binds each player's connection to it. Lock failures push an error to
// the players and dissolve the match.
func (s *Server) HandleMatch(ctx context.Context, m matchmaker.Match) {
	sess, err := s.orch.CreateSession(ctx, m.GameType, m.BetAmount, m.Players)
	if err != nil {
		s.log.WithError(err).Warn("match could not start")
		for _, p := range m.Players {
			s.Hub.SendToUser(p, errorMessage("match_failed", err))
		}
		return
	}
	for _, p := range m.Players {
		s.Hub.SetUserSession(p, sess.ID)
	}
}

// Routes returns the HTTP surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/wallet", s.withAuth(s.handleWallet))
	mux.HandleFunc("/api/wallet/deposit", s.withAuth(s.handleDeposit))
	mux.HandleFunc("/api/wallet/withdraw", s.withAuth(s.handleWithdraw))
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || len(creds.Password) < 8 {
		writeError(w, http.StatusBadRequest, "username required, password must be 8+ chars")
		return
	}
	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hashing failed")
		return
	}
	user, err := s.users.CreateUser(r.Context(), creds.Username, hash)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "username taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	user, err := s.users.GetUserByName(r.Context(), strings.TrimSpace(creds.Username))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(creds.Password, user.PasswordHash); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

// withAuth resolves the bearer token into a user ID for API handlers.
func (s *Server) withAuth(next func(http.ResponseWriter, *http.Request, uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) authenticate(r *http.Request) (uuid.UUID, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return uuid.Nil, auth.ErrInvalidToken
	}
	return s.issuer.Verify(token)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	balance, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "balance lookup failed")
		return
	}
	entries, err := s.ledger.Entries(r.Context(), userID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "entries lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance, "entries": entries})
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	s.handleWalletOp(w, r, userID, s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	s.handleWalletOp(w, r, userID, s.ledger.Withdraw)
}

func (s *Server) handleWalletOp(w http.ResponseWriter, r *http.Request, userID uuid.UUID, op func(context.Context, uuid.UUID, int64) (int64, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	balance, err := op(r.Context(), userID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, ledger.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			writeError(w, http.StatusInternalServerError, "wallet operation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// clientMessage is the inbound websocket envelope.
type clientMessage struct {
	Kind      string          `json:"kind"` // queue, cancel_queue, move, rejoin
	GameType  models.GameType `json:"gameType,omitempty"`
	Bet       int64           `json:"bet,omitempty"`
	SessionID uuid.UUID       `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func errorMessage(kind string, err error) map[string]any {
	msg := map[string]any{"type": "error", "kind": kind}
	var rv *ruleset.RuleViolation
	if errors.As(err, &rv) {
		msg["reason"] = rv.Reason
	} else {
		msg["reason"] = err.Error()
	}
	return msg
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := s.Hub.register(userID, conn)
	s.log.WithField("user_id", userID).Info("websocket connected")

	defer func() {
		conn.Close(websocket.StatusNormalClosure, "")
		if s.Hub.unregister(c) {
			if sessionID := c.session(); sessionID != uuid.Nil {
				if _, derr := s.orch.OnDisconnect(context.Background(), sessionID, userID); derr != nil {
					s.log.WithError(derr).Debug("disconnect handling skipped")
				}
			}
		}
		s.log.WithField("user_id", userID).Info("websocket closed")
	}()

	ctx := r.Context()
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		s.dispatch(ctx, c, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, msg clientMessage) {
	switch msg.Kind {
	case "queue":
		if err := s.mm.Enqueue(ctx, c.userID, msg.GameType, msg.Bet); err != nil {
			s.Hub.SendToUser(c.userID, errorMessage("queue", err))
			return
		}
		s.Hub.SendToUser(c.userID, map[string]any{"type": "queued", "gameType": msg.GameType, "bet": msg.Bet})
	case "cancel_queue":
		s.mm.Cancel(c.userID)
		s.Hub.SendToUser(c.userID, map[string]any{"type": "queue_cancelled"})
	case "move":
		err := s.orch.SubmitMove(ctx, models.Move{
			SessionID: msg.SessionID,
			ActorID:   c.userID,
			Payload:   msg.Payload,
		})
		if err != nil {
			s.Hub.SendToUser(c.userID, errorMessage("move", err))
		}
	case "rejoin":
		state, err := s.orch.OnReconnect(ctx, msg.SessionID, c.userID)
		if err != nil {
			s.Hub.SendToUser(c.userID, errorMessage("rejoin", err))
			return
		}
		c.setSession(msg.SessionID)
		s.Hub.SendToUser(c.userID, state)
	default:
		s.Hub.SendToUser(c.userID, errorMessage("dispatch", errors.New("unknown message kind")))
	}
}
