// internal/orchestrator/orchestrator.go

// Package orchestrator owns the session lifecycle: matchmade players get a
// funded session, moves are validated against turn ownership and delegated to
// the game's rule module, timeouts and disconnections degrade into forfeits,
// and terminal sessions settle the escrowed pot exactly once.
package orchestrator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nahuelpalumbo/mesa/internal/cache"
	"github.com/nahuelpalumbo/mesa/internal/clock"
	"github.com/nahuelpalumbo/mesa/internal/ledger"
	"github.com/nahuelpalumbo/mesa/internal/models"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
	"github.com/nahuelpalumbo/mesa/internal/store"
)

var (
	ErrBusy             = errors.New("orchestrator: session busy, retry")
	ErrSessionNotActive = errors.New("orchestrator: session not accepting moves")
	ErrNotParticipant   = errors.New("orchestrator: user is not in this session")
	ErrNotYourTurn      = errors.New("orchestrator: not your turn")
)

// Config carries the orchestrator's tunables.
type Config struct {
	TurnTimeout   time.Duration // per-turn move deadline
	GraceWindow   time.Duration // reconnect window after disconnect
	SubroundDelay time.Duration // pause between hands before the next deal
	SettleRetry   time.Duration // delay before re-attempting a failed settlement
	FeeBps        int64         // house fee in basis points of the pot
}

// DefaultConfig matches the production lobby settings.
func DefaultConfig() Config {
	return Config{
		TurnTimeout:   30 * time.Second,
		GraceWindow:   30 * time.Second,
		SubroundDelay: 3 * time.Second,
		SettleRetry:   5 * time.Second,
		FeeBps:        250,
	}
}

// BroadcastFn delivers a session-wide message (spectator view).
type BroadcastFn func(sessionID uuid.UUID, msg any)

// BroadcastToPlayerFn delivers a message to one user.
type BroadcastToPlayerFn func(userID uuid.UUID, msg any)

type graceEntry struct {
	deadline time.Time
	cancel   clock.Cancel
}

// liveSession is the in-memory wrapper around a running session. All fields
// after mu are guarded by it.
type liveSession struct {
	mu sync.Mutex

	sess *models.Session
	mod  ruleset.Module
	st   ruleset.State

	// outcome is the terminal result, kept until settlement lands so a
	// failed ledger call can be retried with the same payouts.
	outcome *ruleset.Outcome

	// turnEpoch increments on every deadline reset; a timer that fires with
	// a stale epoch lost the race to a real move and does nothing.
	turnEpoch  uint64
	cancelTurn clock.Cancel

	grace    map[uuid.UUID]graceEntry
	auditSeq uint64
}

// Orchestrator runs every live session in the process.
type Orchestrator struct {
	cfg    Config
	reg    *ruleset.Registry
	ledger ledger.Ledger
	store  store.SessionStore
	sched  clock.Scheduler
	log    *logrus.Entry

	Broadcast         BroadcastFn
	BroadcastToPlayer BroadcastToPlayerFn

	mu   sync.Mutex
	live map[uuid.UUID]*liveSession
}

func New(cfg Config, reg *ruleset.Registry, lg ledger.Ledger, st store.SessionStore, sched clock.Scheduler) *Orchestrator {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultConfig().TurnTimeout
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultConfig().GraceWindow
	}
	if cfg.SubroundDelay < 0 {
		cfg.SubroundDelay = 0
	}
	if cfg.SettleRetry <= 0 {
		cfg.SettleRetry = DefaultConfig().SettleRetry
	}
	return &Orchestrator{
		cfg:    cfg,
		reg:    reg,
		ledger: lg,
		store:  st,
		sched:  sched,
		log:    logrus.WithField("component", "orchestrator"),
		live:   make(map[uuid.UUID]*liveSession),
	}
}

// StateMessage is what clients receive after every accepted move: the
// envelope fields they need for turn tracking plus their redacted view.
type StateMessage struct {
	Type         string               `json:"type"`
	SessionID    uuid.UUID            `json:"sessionId"`
	Status       models.SessionStatus `json:"status"`
	TurnIndex    int                  `json:"turnIndex"`
	TurnDeadline *time.Time           `json:"turnDeadline,omitempty"`
	Events       []ruleset.Event      `json:"events,omitempty"`
	Snapshot     any                  `json:"snapshot"`
	Outcome      *ruleset.Outcome     `json:"outcome,omitempty"`
}

func seedFor(id uuid.UUID, now time.Time) uint64 {
	return binary.LittleEndian.Uint64(id[:8]) ^ uint64(now.UnixNano())
}

// CreateSession escrows each player's stake and starts the game. If any
// player's lock fails, the stakes already taken are refunded and the error
// is returned unchanged.
func (o *Orchestrator) CreateSession(ctx context.Context, game models.GameType, bet int64, players []uuid.UUID) (*models.Session, error) {
	mod, err := o.reg.Get(game)
	if err != nil {
		return nil, err
	}
	if len(players) < mod.MinPlayers() || len(players) > mod.MaxPlayers() {
		return nil, ruleset.ErrBadPlayerCount
	}
	if bet <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	id := uuid.New()
	for i, p := range players {
		if err := o.ledger.Lock(ctx, p, id, bet); err != nil {
			if i > 0 {
				if rerr := o.ledger.Refund(ctx, id); rerr != nil {
					o.log.WithError(rerr).WithField("session_id", id).Error("compensating refund failed")
				}
			}
			return nil, fmt.Errorf("lock stake for %s: %w", p, err)
		}
	}

	st, err := mod.NewState(seedFor(id, o.sched.Now()), len(players))
	if err != nil {
		if rerr := o.ledger.Refund(ctx, id); rerr != nil {
			o.log.WithError(rerr).WithField("session_id", id).Error("compensating refund failed")
		}
		return nil, err
	}

	sess := &models.Session{
		ID:        id,
		GameType:  game,
		Status:    models.StatusActive,
		Players:   append([]uuid.UUID(nil), players...),
		BetAmount: bet,
		TurnIndex: st.NextActor(),
	}

	ls := &liveSession{
		sess:  sess,
		mod:   mod,
		st:    st,
		grace: make(map[uuid.UUID]graceEntry),
	}
	o.mu.Lock()
	o.live[id] = ls
	o.mu.Unlock()

	ls.mu.Lock()
	o.resetTurnTimer(ls)
	blob, err := ruleset.EncodeBlob(mod, st)
	if err == nil {
		err = o.store.Create(ctx, sess, blob)
	}
	if err != nil {
		o.stopTimers(ls)
		ls.mu.Unlock()
		o.mu.Lock()
		delete(o.live, id)
		o.mu.Unlock()
		if rerr := o.ledger.Refund(ctx, id); rerr != nil {
			o.log.WithError(rerr).WithField("session_id", id).Error("compensating refund failed")
		}
		return nil, err
	}
	o.audit(ls, uuid.Nil, "session_created", map[string]any{
		"game_type": game,
		"bet":       bet,
		"players":   len(players),
	})
	o.broadcastState(ls, nil, nil)
	out := *sess
	ls.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"session_id": id,
		"game_type":  game,
		"bet":        bet,
	}).Info("session created")
	return &out, nil
}

// SubmitMove validates and applies one player move. A session already
// processing a move returns ErrBusy rather than queueing.
func (o *Orchestrator) SubmitMove(ctx context.Context, mv models.Move) error {
	ls, err := o.lookup(ctx, mv.SessionID)
	if err != nil {
		return err
	}
	if !ls.mu.TryLock() {
		return ErrBusy
	}
	defer ls.mu.Unlock()

	if ls.sess.Status != models.StatusActive {
		return ErrSessionNotActive
	}
	actorIdx := ls.sess.PlayerIndex(mv.ActorID)
	if actorIdx < 0 {
		return ErrNotParticipant
	}
	if actorIdx != ls.st.NextActor() && !ls.mod.OutOfTurn(mv.Payload) {
		return ErrNotYourTurn
	}

	res, err := ls.mod.Apply(ls.st, actorIdx, mv.Payload)
	if err != nil {
		return err
	}
	o.audit(ls, mv.ActorID, "move_applied", map[string]any{"actor_idx": actorIdx})
	o.applyResult(ctx, ls, res)
	return nil
}

// Snapshot renders the session as seen by userID; unknown users get the
// spectator view.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID, userID uuid.UUID) (*StateMessage, error) {
	ls, err := o.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	msg := o.stateMessage(ls, ls.sess.PlayerIndex(userID), nil, nil)
	return &msg, nil
}

// lookup returns the live wrapper for a session, hydrating it from the store
// when this process has not seen it yet (restart recovery).
func (o *Orchestrator) lookup(ctx context.Context, id uuid.UUID) (*liveSession, error) {
	o.mu.Lock()
	if ls, ok := o.live[id]; ok {
		o.mu.Unlock()
		return ls, nil
	}
	o.mu.Unlock()

	sess, blob, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mod, st, err := ruleset.DecodeBlob(o.reg, blob)
	if err != nil {
		return nil, err
	}
	ls := &liveSession{sess: sess, mod: mod, st: st, grace: make(map[uuid.UUID]graceEntry)}
	if sess.Status == models.StatusFinished && !sess.Settled {
		out := &ruleset.Outcome{WinnerIdx: -1, Draw: sess.WinnerIdx == nil, Reason: sess.EndReason}
		if sess.WinnerIdx != nil {
			out.WinnerIdx = *sess.WinnerIdx
		}
		ls.outcome = out
	}

	o.mu.Lock()
	if existing, ok := o.live[id]; ok {
		o.mu.Unlock()
		return existing, nil
	}
	o.live[id] = ls
	o.mu.Unlock()

	ls.mu.Lock()
	switch {
	case ls.sess.Status == models.StatusActive:
		o.resetTurnTimer(ls)
	case ls.sess.Status == models.StatusSubroundWait:
		o.scheduleSubroundAdvance(ls)
	case ls.outcome != nil && !ls.sess.Settled:
		// A crash between FINISHED and the ledger call leaves the pot in
		// escrow; settle it on first contact.
		o.finalize(ctx, ls)
		if ls.sess.Settled {
			o.persist(ctx, ls)
		}
	}
	ls.mu.Unlock()
	return ls, nil
}

// applyResult advances the session after a successful Apply/Forfeit/
// AdvanceSubround. Caller holds ls.mu.
func (o *Orchestrator) applyResult(ctx context.Context, ls *liveSession, res ruleset.Result) {
	for _, ev := range res.Events {
		o.audit(ls, uuid.Nil, ev.Type, ev.Payload)
	}

	switch res.Phase {
	case ruleset.PhaseContinue:
		ls.sess.Status = models.StatusActive
		ls.sess.TurnIndex = res.NextActor
		o.resetTurnTimer(ls)
	case ruleset.PhaseSubround:
		ls.sess.Status = models.StatusSubroundWait
		ls.sess.TurnIndex = -1
		ls.sess.TurnDeadline = nil
		o.stopTurnTimer(ls)
		o.scheduleSubroundAdvance(ls)
	case ruleset.PhaseTerminal:
		ls.sess.Status = models.StatusFinished
		ls.sess.TurnIndex = -1
		ls.sess.TurnDeadline = nil
		o.stopTimers(ls)
		if res.Outcome != nil {
			ls.outcome = res.Outcome
			ls.sess.EndReason = res.Outcome.Reason
			if !res.Outcome.Draw {
				idx := res.Outcome.WinnerIdx
				ls.sess.WinnerIdx = &idx
			}
		}
		o.finalize(ctx, ls)
	}

	o.persist(ctx, ls)
	o.broadcastState(ls, res.Events, res.Outcome)
}

// persist writes the envelope and rule state back. Storage failures are
// logged, not fatal: the in-memory session stays authoritative.
func (o *Orchestrator) persist(ctx context.Context, ls *liveSession) {
	blob, err := ruleset.EncodeBlob(ls.mod, ls.st)
	if err == nil {
		err = o.store.Update(ctx, ls.sess, blob)
	}
	if err != nil {
		o.log.WithError(err).WithField("session_id", ls.sess.ID).Error("persist session failed")
	}
}

func (o *Orchestrator) stateMessage(ls *liveSession, viewerIdx int, events []ruleset.Event, outcome *ruleset.Outcome) StateMessage {
	return StateMessage{
		Type:         "session_state",
		SessionID:    ls.sess.ID,
		Status:       ls.sess.Status,
		TurnIndex:    ls.sess.TurnIndex,
		TurnDeadline: ls.sess.TurnDeadline,
		Events:       events,
		Snapshot:     ls.st.Snapshot(viewerIdx),
		Outcome:      outcome,
	}
}

// broadcastState pushes each participant their redacted view and spectators
// the public view. Caller holds ls.mu.
func (o *Orchestrator) broadcastState(ls *liveSession, events []ruleset.Event, outcome *ruleset.Outcome) {
	if o.BroadcastToPlayer != nil {
		for i, p := range ls.sess.Players {
			msg := o.stateMessage(ls, i, events, outcome)
			o.BroadcastToPlayer(p, msg)
			cache.CacheSnapshot(context.Background(), ls.sess.ID, i, msg)
		}
	}
	if o.Broadcast != nil {
		o.Broadcast(ls.sess.ID, o.stateMessage(ls, -1, events, outcome))
	}
}

// audit appends one record to the session's Redis-backed trail. Caller holds
// ls.mu.
func (o *Orchestrator) audit(ls *liveSession, actor uuid.UUID, eventType string, payload map[string]any) {
	ls.auditSeq++
	cache.PublishAuditAsync(cache.AuditRecord{
		SessionID: ls.sess.ID,
		Seq:       ls.auditSeq,
		ActorID:   actor,
		EventType: eventType,
		Payload:   payload,
		Timestamp: o.sched.Now().UnixMilli(),
	})
}
