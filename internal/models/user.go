// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. PasswordHash is the argon2id encoding and
// never leaves the server.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
