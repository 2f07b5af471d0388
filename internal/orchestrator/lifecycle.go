// internal/orchestrator/lifecycle.go
package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nahuelpalumbo/mesa/internal/ledger"
	"github.com/nahuelpalumbo/mesa/internal/models"
)

// resetTurnTimer arms the move deadline for the current turn. Caller holds
// ls.mu.
func (o *Orchestrator) resetTurnTimer(ls *liveSession) {
	o.stopTurnTimer(ls)
	if ls.sess.TurnIndex < 0 {
		ls.sess.TurnDeadline = nil
		return
	}
	ls.turnEpoch++
	epoch := ls.turnEpoch
	id := ls.sess.ID
	deadline := o.sched.Now().Add(o.cfg.TurnTimeout)
	ls.sess.TurnDeadline = &deadline
	ls.cancelTurn = o.sched.AfterFunc(o.cfg.TurnTimeout, func() {
		o.onTurnTimeout(id, epoch)
	})
}

func (o *Orchestrator) stopTurnTimer(ls *liveSession) {
	if ls.cancelTurn != nil {
		ls.cancelTurn()
		ls.cancelTurn = nil
	}
}

// stopTimers cancels the turn timer and every grace timer. Caller holds
// ls.mu.
func (o *Orchestrator) stopTimers(ls *liveSession) {
	o.stopTurnTimer(ls)
	for uid, g := range ls.grace {
		g.cancel()
		delete(ls.grace, uid)
	}
}

// onTurnTimeout fires when a turn deadline passes. The epoch guard discards
// firings that lost a race with a real move.
func (o *Orchestrator) onTurnTimeout(sessionID uuid.UUID, epoch uint64) {
	o.mu.Lock()
	ls, ok := o.live[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if epoch != ls.turnEpoch || ls.sess.Status != models.StatusActive {
		return
	}
	idx := ls.sess.TurnIndex
	if idx < 0 {
		return
	}

	res, err := ls.mod.Forfeit(ls.st, idx, false)
	if err != nil {
		o.log.WithError(err).WithField("session_id", sessionID).Error("timeout forfeit failed")
		return
	}
	o.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"actor_idx":  idx,
	}).Info("turn timed out, forfeit applied")
	o.audit(ls, ls.sess.Players[idx], "turn_timeout", map[string]any{"actor_idx": idx})
	o.applyResult(context.Background(), ls, res)
}

// scheduleSubroundAdvance deals the next hand after the inter-hand pause.
// Caller holds ls.mu.
func (o *Orchestrator) scheduleSubroundAdvance(ls *liveSession) {
	id := ls.sess.ID
	o.sched.AfterFunc(o.cfg.SubroundDelay, func() {
		o.advanceSubround(id)
	})
}

func (o *Orchestrator) advanceSubround(sessionID uuid.UUID) {
	o.mu.Lock()
	ls, ok := o.live[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.sess.Status != models.StatusSubroundWait {
		return
	}
	res, err := ls.mod.AdvanceSubround(ls.st)
	if err != nil {
		o.log.WithError(err).WithField("session_id", sessionID).Error("subround advance failed")
		return
	}
	o.applyResult(context.Background(), ls, res)
}

// OnDisconnect opens the reconnect grace window for a participant. Expiry
// forfeits the whole match. Repeat disconnects while a window is open keep
// the original deadline.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sessionID, userID uuid.UUID) (*models.ReconnectionRecord, error) {
	ls, err := o.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	idx := ls.sess.PlayerIndex(userID)
	if idx < 0 {
		return nil, ErrNotParticipant
	}
	if ls.sess.Status == models.StatusFinished {
		return nil, ErrSessionNotActive
	}
	if g, ok := ls.grace[userID]; ok {
		return &models.ReconnectionRecord{
			SessionID:     sessionID,
			UserID:        userID,
			GraceDeadline: g.deadline,
		}, nil
	}

	now := o.sched.Now()
	deadline := now.Add(o.cfg.GraceWindow)
	cancel := o.sched.AfterFunc(o.cfg.GraceWindow, func() {
		o.onGraceExpired(sessionID, userID)
	})
	ls.grace[userID] = graceEntry{deadline: deadline, cancel: cancel}
	o.audit(ls, userID, "player_disconnected", map[string]any{"grace_deadline": deadline})
	o.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    userID,
	}).Info("grace window opened")

	return &models.ReconnectionRecord{
		SessionID:      sessionID,
		UserID:         userID,
		DisconnectedAt: now,
		GraceDeadline:  deadline,
	}, nil
}

// OnReconnect closes the grace window and returns the player's current view
// for catch-up.
func (o *Orchestrator) OnReconnect(ctx context.Context, sessionID, userID uuid.UUID) (*StateMessage, error) {
	ls, err := o.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	idx := ls.sess.PlayerIndex(userID)
	if idx < 0 {
		return nil, ErrNotParticipant
	}
	if g, ok := ls.grace[userID]; ok {
		g.cancel()
		delete(ls.grace, userID)
		o.audit(ls, userID, "player_reconnected", nil)
		o.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"user_id":    userID,
		}).Info("player reconnected within grace")
	}
	msg := o.stateMessage(ls, idx, nil, nil)
	return &msg, nil
}

// onGraceExpired fires when a disconnected player's window closes without a
// rejoin. The absent player forfeits the match.
func (o *Orchestrator) onGraceExpired(sessionID, userID uuid.UUID) {
	o.mu.Lock()
	ls, ok := o.live[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, open := ls.grace[userID]; !open {
		return
	}
	delete(ls.grace, userID)
	if ls.sess.Status == models.StatusFinished {
		return
	}
	idx := ls.sess.PlayerIndex(userID)
	if idx < 0 {
		return
	}

	res, err := ls.mod.Forfeit(ls.st, idx, true)
	if err != nil {
		o.log.WithError(err).WithField("session_id", sessionID).Error("abandonment forfeit failed")
		return
	}
	o.audit(ls, userID, "match_abandoned", map[string]any{"actor_idx": idx})
	o.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    userID,
	}).Info("grace window expired, match forfeited")
	o.applyResult(context.Background(), ls, res)
}

// finalize settles the escrowed pot for a terminal session. The ledger's
// settlement marker makes a repeat call a no-op, so a crash between persist
// and settle cannot double-pay; a failed ledger call re-arms itself on the
// scheduler until it lands. Caller holds ls.mu.
func (o *Orchestrator) finalize(ctx context.Context, ls *liveSession) {
	if ls.sess.Settled {
		return
	}
	outcome := ls.outcome
	if outcome == nil {
		o.log.WithField("session_id", ls.sess.ID).Error("terminal result without outcome")
		return
	}
	pot := ls.sess.Pot()
	var payouts []models.Payout
	var fee int64
	if outcome.Draw {
		// Draws return every stake whole; the house takes nothing.
		for _, p := range ls.sess.Players {
			payouts = append(payouts, models.Payout{UserID: p, Amount: ls.sess.BetAmount})
		}
	} else {
		fee = ledger.HouseFee(pot, o.cfg.FeeBps)
		payouts = []models.Payout{{
			UserID: ls.sess.Players[outcome.WinnerIdx],
			Amount: pot - fee,
		}}
	}

	res, err := o.ledger.Settle(ctx, ls.sess.ID, payouts)
	if err != nil {
		id := ls.sess.ID
		o.log.WithError(err).WithField("session_id", id).Error("settlement failed, retry scheduled")
		o.sched.AfterFunc(o.cfg.SettleRetry, func() {
			o.retrySettle(id)
		})
		return
	}
	ls.sess.Settled = true
	o.audit(ls, uuid.Nil, "session_settled", map[string]any{
		"pot":       pot,
		"house_fee": res.HouseFee,
		"reason":    outcome.Reason,
		"replayed":  res.AlreadySettled,
	})
	o.log.WithFields(logrus.Fields{
		"session_id": ls.sess.ID,
		"pot":        pot,
		"house_fee":  res.HouseFee,
		"reason":     outcome.Reason,
	}).Info("session settled")
}

// retrySettle re-runs settlement for a finished session whose ledger call
// failed. finalize re-arms on every failure, so the pot is never stranded
// while the process lives; a restart re-settles through lookup instead.
func (o *Orchestrator) retrySettle(sessionID uuid.UUID) {
	o.mu.Lock()
	ls, ok := o.live[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.sess.Settled {
		return
	}
	o.finalize(context.Background(), ls)
	if ls.sess.Settled {
		o.persist(context.Background(), ls)
	}
}
