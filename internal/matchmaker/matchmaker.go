// internal/matchmaker/matchmaker.go

// Package matchmaker pairs players waiting for a game. Queues are keyed by
// game type and stake so only identical wagers match; within a queue the
// oldest ticket matches first.
package matchmaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nahuelpalumbo/mesa/internal/models"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
)

var ErrAlreadyQueued = errors.New("matchmaker: user already queued")

type queueKey struct {
	game models.GameType
	bet  int64
}

type ticket struct {
	userID   uuid.UUID
	joinedAt time.Time
}

// Match is a completed pairing, ready to become a session. Players are in
// join order, which becomes turn order.
type Match struct {
	GameType  models.GameType
	BetAmount int64
	Players   []uuid.UUID
}

// MatchFn receives each completed match. It runs outside the matchmaker
// lock, so it may call back into Enqueue or Cancel.
type MatchFn func(ctx context.Context, m Match)

// Matchmaker is the in-process FIFO matchmaking service.
type Matchmaker struct {
	mu      sync.Mutex
	reg     *ruleset.Registry
	queues  map[queueKey][]ticket
	members map[uuid.UUID]queueKey
	onMatch MatchFn
}

func New(reg *ruleset.Registry, onMatch MatchFn) *Matchmaker {
	return &Matchmaker{
		reg:     reg,
		queues:  make(map[queueKey][]ticket),
		members: make(map[uuid.UUID]queueKey),
		onMatch: onMatch,
	}
}

// Enqueue adds a user to the queue for (game, bet). When enough players are
// waiting, they are removed from the queue and handed to the match callback
// exactly once.
func (mm *Matchmaker) Enqueue(ctx context.Context, userID uuid.UUID, game models.GameType, bet int64) error {
	mod, err := mm.reg.Get(game)
	if err != nil {
		return err
	}

	mm.mu.Lock()
	if _, ok := mm.members[userID]; ok {
		mm.mu.Unlock()
		return ErrAlreadyQueued
	}
	key := queueKey{game: game, bet: bet}
	mm.queues[key] = append(mm.queues[key], ticket{userID: userID, joinedAt: time.Now()})
	mm.members[userID] = key

	var matched *Match
	need := mod.MinPlayers()
	if q := mm.queues[key]; len(q) >= need {
		players := make([]uuid.UUID, 0, need)
		for _, t := range q[:need] {
			players = append(players, t.userID)
			delete(mm.members, t.userID)
		}
		rest := append([]ticket(nil), q[need:]...)
		if len(rest) == 0 {
			delete(mm.queues, key)
		} else {
			mm.queues[key] = rest
		}
		matched = &Match{GameType: game, BetAmount: bet, Players: players}
	}
	mm.mu.Unlock()

	if matched != nil {
		logrus.WithFields(logrus.Fields{
			"game_type": game,
			"bet":       bet,
			"players":   len(matched.Players),
		}).Info("matchmaker: match formed")
		if mm.onMatch != nil {
			mm.onMatch(ctx, *matched)
		}
	}
	return nil
}

// Cancel removes a user from whatever queue holds them. Cancelling a user
// who already matched or never queued is a no-op, so a cancel racing a
// match never errors. Reports whether a ticket was actually removed.
func (mm *Matchmaker) Cancel(userID uuid.UUID) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	key, ok := mm.members[userID]
	if !ok {
		return false
	}
	delete(mm.members, userID)
	q := mm.queues[key]
	for i, t := range q {
		if t.userID == userID {
			mm.queues[key] = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(mm.queues[key]) == 0 {
		delete(mm.queues, key)
	}
	return true
}

// QueueDepth reports how many users wait on (game, bet).
func (mm *Matchmaker) QueueDepth(game models.GameType, bet int64) int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.queues[queueKey{game: game, bet: bet}])
}
