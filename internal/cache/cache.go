// internal/cache/cache.go

// Package cache holds the Redis client used for the session audit trail and
// short-lived snapshot caching. Every helper tolerates a nil client so the
// server runs without Redis in dev and in tests.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Rdb is the process-wide Redis client, nil until Connect succeeds.
var Rdb *redis.Client

const (
	auditQueueKey    = "mesa:audit"
	snapshotKeyFmt   = "mesa:snapshot:%s:%d"
	snapshotTTL      = 30 * time.Second
	publishTimeout   = 2 * time.Second
	auditHistoryKeep = 10000
)

// Connect dials Redis and installs the shared client.
func Connect(ctx context.Context, addr, password string) error {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	Rdb = client
	logrus.WithField("addr", addr).Info("cache: redis connected")
	return nil
}

// AuditRecord is one orchestrator-level event in a session's history. The
// stream is the authoritative audit trail for disputes over settled wagers.
type AuditRecord struct {
	SessionID uuid.UUID      `json:"session_id"`
	Seq       uint64         `json:"seq"`
	ActorID   uuid.UUID      `json:"actor_id,omitempty"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"ts_ms"`
}

// PublishAudit appends rec to the audit queue. No-op when Redis is absent.
func PublishAudit(ctx context.Context, rec AuditRecord) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	pipe := Rdb.Pipeline()
	pipe.LPush(ctx, auditQueueKey, data)
	pipe.LTrim(ctx, auditQueueKey, 0, auditHistoryKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push audit record: %w", err)
	}
	return nil
}

// PublishAuditAsync fires PublishAudit on its own goroutine with a short
// timeout, logging rather than returning failures. Move handling must not
// block on the audit trail.
func PublishAuditAsync(rec AuditRecord) {
	if Rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := PublishAudit(ctx, rec); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"session_id": rec.SessionID,
				"seq":        rec.Seq,
			}).Warn("cache: audit publish failed")
		}
	}()
}

// CacheSnapshot stores a viewer-specific snapshot for quick reconnect
// catch-up. Best effort.
func CacheSnapshot(ctx context.Context, sessionID uuid.UUID, viewerIdx int, snapshot any) {
	if Rdb == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	key := fmt.Sprintf(snapshotKeyFmt, sessionID, viewerIdx)
	if err := Rdb.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		logrus.WithError(err).Debug("cache: snapshot set failed")
	}
}

// GetSnapshot returns the cached snapshot bytes for a viewer, or nil on miss.
func GetSnapshot(ctx context.Context, sessionID uuid.UUID, viewerIdx int) []byte {
	if Rdb == nil {
		return nil
	}
	key := fmt.Sprintf(snapshotKeyFmt, sessionID, viewerIdx)
	data, err := Rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	return data
}
