// internal/store/users.go
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

var (
	ErrUserNotFound  = errors.New("store: user not found")
	ErrUsernameTaken = errors.New("store: username taken")
)

// UserStore manages registered accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByName(ctx context.Context, username string) (*models.User, error)
}

// MemoryUsers is the in-process UserStore.
type MemoryUsers struct {
	mu     sync.RWMutex
	byName map[string]models.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byName: make(map[string]models.User)}
}

func (m *MemoryUsers) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[username]; ok {
		return nil, ErrUsernameTaken
	}
	u := models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	m.byName[username] = u
	return &u, nil
}

func (m *MemoryUsers) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// PostgresUsers is the durable UserStore.
type PostgresUsers struct {
	pool *pgxpool.Pool
}

func NewPostgresUsers(pool *pgxpool.Pool) *PostgresUsers {
	return &PostgresUsers{pool: pool}
}

func (p *PostgresUsers) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	u := models.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)
		 RETURNING created_at`, u.ID, username, passwordHash).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresUsers) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
