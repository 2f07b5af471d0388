// internal/config/config.go

// Package config loads server settings from the environment, with an
// optional .env file for development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the full server configuration.
type Config struct {
	Addr        string
	DatabaseURL string // empty runs the in-memory ledger and store
	RedisAddr   string // empty disables the audit trail and snapshot cache
	RedisPass   string
	JWTSecret   string

	TurnTimeout   time.Duration
	GraceWindow   time.Duration
	SubroundDelay time.Duration
	HouseFeeBps   int64

	LogLevel string
}

// Load reads .env if present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("config: loaded .env")
	}
	return Config{
		Addr:          getEnv("MESA_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPass:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
		TurnTimeout:   getDuration("TURN_TIMEOUT", 30*time.Second),
		GraceWindow:   getDuration("GRACE_WINDOW", 30*time.Second),
		SubroundDelay: getDuration("SUBROUND_DELAY", 3*time.Second),
		HouseFeeBps:   getInt64("HOUSE_FEE_BPS", 250),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("config: bad duration, using default")
		return fallback
	}
	return d
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("config: bad integer, using default")
		return fallback
	}
	return n
}
