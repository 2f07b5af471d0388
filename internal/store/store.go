// internal/store/store.go

// Package store persists session envelopes together with their opaque rule
// state blobs. The orchestrator is the only writer; the blob is produced and
// consumed by the ruleset codec and never interpreted here.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

var ErrSessionNotFound = errors.New("store: session not found")

// SessionStore reads and writes sessions. Update replaces both the envelope
// and the rule state in one step so a crash never leaves them out of sync.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session, ruleState []byte) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, []byte, error)
	Update(ctx context.Context, s *models.Session, ruleState []byte) error
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error)
}
