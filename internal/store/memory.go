// internal/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

type memEntry struct {
	session   models.Session
	ruleState []byte
}

// Memory is the in-process SessionStore used in tests and single-node dev
// runs. Sessions are copied on the way in and out.
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]memEntry
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[uuid.UUID]memEntry)}
}

func cloneSession(s *models.Session) models.Session {
	out := *s
	out.Players = append([]uuid.UUID(nil), s.Players...)
	if s.TurnDeadline != nil {
		d := *s.TurnDeadline
		out.TurnDeadline = &d
	}
	if s.WinnerIdx != nil {
		w := *s.WinnerIdx
		out.WinnerIdx = &w
	}
	return out
}

func (m *Memory) Create(ctx context.Context, s *models.Session, ruleState []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sessions[s.ID] = memEntry{
		session:   cloneSession(s),
		ruleState: append([]byte(nil), ruleState...),
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, id uuid.UUID) (*models.Session, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	s := cloneSession(&e.session)
	return &s, append([]byte(nil), e.ruleState...), nil
}

func (m *Memory) Update(ctx context.Context, s *models.Session, ruleState []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = memEntry{
		session:   cloneSession(s),
		ruleState: append([]byte(nil), ruleState...),
	}
	return nil
}

func (m *Memory) ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Session
	for _, e := range m.sessions {
		if e.session.Status == status {
			s := cloneSession(&e.session)
			out = append(out, &s)
		}
	}
	return out, nil
}
