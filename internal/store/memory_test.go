// internal/store/memory_test.go
package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

func sampleSession() *models.Session {
	return &models.Session{
		ID:        uuid.New(),
		GameType:  models.GameTruco,
		Status:    models.StatusActive,
		Players:   []uuid.UUID{uuid.New(), uuid.New()},
		BetAmount: 100,
	}
}

func TestCreateAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s := sampleSession()

	require.NoError(t, m.Create(ctx, s, []byte(`{"v":1}`)))
	got, blob, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Players, got.Players)
	assert.JSONEq(t, `{"v":1}`, string(blob))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetUnknown(t *testing.T) {
	m := NewMemory()
	_, _, err := m.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateReplacesEnvelopeAndBlob(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s := sampleSession()
	require.NoError(t, m.Create(ctx, s, []byte(`{"v":1}`)))

	s.Status = models.StatusFinished
	s.Settled = true
	require.NoError(t, m.Update(ctx, s, []byte(`{"v":1,"final":true}`)))

	got, blob, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.Status)
	assert.True(t, got.Settled)
	assert.JSONEq(t, `{"v":1,"final":true}`, string(blob))

	assert.ErrorIs(t, m.Update(ctx, sampleSession(), nil), ErrSessionNotFound)
}

func TestGetReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s := sampleSession()
	require.NoError(t, m.Create(ctx, s, []byte("blob")))

	got, blob, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	got.Players[0] = uuid.Nil
	blob[0] = 'x'

	again, blob2, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Players[0], again.Players[0])
	assert.Equal(t, []byte("blob"), blob2)
}

func TestListByStatus(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	active := sampleSession()
	finished := sampleSession()
	finished.Status = models.StatusFinished
	require.NoError(t, m.Create(ctx, active, nil))
	require.NoError(t, m.Create(ctx, finished, nil))

	got, err := m.ListByStatus(ctx, models.StatusActive)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}
