// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

// Postgres is the durable SessionStore.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Create(ctx context.Context, s *models.Session, ruleState []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (id, game_type, status, players, bet_amount, turn_index, turn_deadline, winner_idx, end_reason, settled, rule_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.GameType, s.Status, s.Players, s.BetAmount, s.TurnIndex, s.TurnDeadline, s.WinnerIdx, s.EndReason, s.Settled, ruleState)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*models.Session, []byte, error) {
	var (
		s    models.Session
		blob []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, game_type, status, players, bet_amount, turn_index, turn_deadline, winner_idx, end_reason, settled, rule_state, created_at, updated_at
		 FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.GameType, &s.Status, &s.Players, &s.BetAmount, &s.TurnIndex,
			&s.TurnDeadline, &s.WinnerIdx, &s.EndReason, &s.Settled, &blob, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	return &s, blob, nil
}

func (p *Postgres) Update(ctx context.Context, s *models.Session, ruleState []byte) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, turn_index = $3, turn_deadline = $4, winner_idx = $5, end_reason = $6, settled = $7, rule_state = $8, updated_at = now()
		 WHERE id = $1`,
		s.ID, s.Status, s.TurnIndex, s.TurnDeadline, s.WinnerIdx, s.EndReason, s.Settled, ruleState)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *Postgres) ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, game_type, status, players, bet_amount, turn_index, turn_deadline, winner_idx, end_reason, settled, created_at, updated_at
		 FROM sessions WHERE status = $1`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.GameType, &s.Status, &s.Players, &s.BetAmount,
			&s.TurnIndex, &s.TurnDeadline, &s.WinnerIdx, &s.EndReason, &s.Settled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
