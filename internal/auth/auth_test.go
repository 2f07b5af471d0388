// internal/auth/auth_test.go
package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("barajas y porotos")
	require.NoError(t, err)
	assert.True(t, len(hash) > 0)

	assert.NoError(t, VerifyPassword("barajas y porotos", hash))
	assert.ErrorIs(t, VerifyPassword("wrong", hash), ErrPasswordMismatch)
}

func TestDistinctSalts(t *testing.T) {
	h1, err := HashPassword("same")
	require.NoError(t, err)
	h2, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestBadHashFormats(t *testing.T) {
	assert.ErrorIs(t, VerifyPassword("x", "not-a-hash"), ErrBadHashFormat)
	assert.ErrorIs(t, VerifyPassword("x", "$bcrypt$v=19$m=1,t=1,p=1$aa$bb"), ErrBadHashFormat)
}

func TestTokenRoundTrip(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	userID := uuid.New()

	token, err := iss.Issue(userID)
	require.NoError(t, err)
	got, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewIssuer("secret-a", time.Hour).Issue(uuid.New())
	require.NoError(t, err)
	_, err = NewIssuer("secret-b", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	iss := NewIssuer("test-secret", time.Nanosecond)
	token, err := iss.Issue(uuid.New())
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = iss.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
