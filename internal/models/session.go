// internal/models/session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GameType identifies which rule module governs a session.
type GameType string

const (
	GameTruco    GameType = "truco"
	GameRPS      GameType = "rps"
	GameGridline GameType = "gridline"
	GameChess    GameType = "chess"
	GameShedding GameType = "shedding"
)

// SessionStatus is the lifecycle state of a session.
//
// WAITING: created, below the game's minimum player count.
// ACTIVE: normal play; moves are accepted.
// SUBROUND_WAIT: a hand/round ended but the match continues; scores persist
// and a fresh rule state is dealt before returning to ACTIVE.
// FINISHED: terminal; no further moves, settlement has run (or is running).
type SessionStatus string

const (
	StatusWaiting      SessionStatus = "WAITING"
	StatusActive       SessionStatus = "ACTIVE"
	StatusSubroundWait SessionStatus = "SUBROUND_WAIT"
	StatusFinished     SessionStatus = "FINISHED"
)

// Session is the common envelope the orchestrator owns for every game,
// regardless of rule module. The rule state itself is an opaque versioned
// blob interpreted only by the owning module.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	GameType     GameType      `json:"gameType"`
	Status       SessionStatus `json:"status"`
	Players      []uuid.UUID   `json:"players"` // fixed order = turn order
	BetAmount    int64         `json:"betAmount"`
	TurnIndex    int           `json:"turnIndex"`
	TurnDeadline *time.Time    `json:"turnDeadline,omitempty"`
	WinnerIdx    *int          `json:"winnerIdx,omitempty"` // set on FINISHED, nil for draws
	EndReason    string        `json:"endReason,omitempty"` // "score", "forfeit", "abandonment", "draw"
	Settled      bool          `json:"settled"`             // settlement marker, set once the ledger accepts the payout
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// PlayerIndex returns the turn-order index of userID, or -1 if the user is
// not a participant.
func (s *Session) PlayerIndex(userID uuid.UUID) int {
	for i, p := range s.Players {
		if p == userID {
			return i
		}
	}
	return -1
}

// Pot returns the total escrowed amount for the session.
func (s *Session) Pot() int64 {
	return s.BetAmount * int64(len(s.Players))
}

// Move is an inbound player action. Payload is game-specific and opaque to
// the orchestrator; only the rule module interprets it.
type Move struct {
	SessionID uuid.UUID `json:"sessionId"`
	ActorID   uuid.UUID `json:"actorId"`
	Payload   []byte    `json:"payload"`
}

// ReconnectionRecord tracks a disconnected player's grace window. Created on
// transport disconnect, deleted on rejoin; expiry forfeits the match.
type ReconnectionRecord struct {
	SessionID      uuid.UUID `json:"sessionId"`
	UserID         uuid.UUID `json:"userId"`
	DisconnectedAt time.Time `json:"disconnectedAt"`
	GraceDeadline  time.Time `json:"graceDeadline"`
}
