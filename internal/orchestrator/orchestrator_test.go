// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahuelpalumbo/mesa/internal/clock"
	"github.com/nahuelpalumbo/mesa/internal/ledger"
	"github.com/nahuelpalumbo/mesa/internal/models"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
	"github.com/nahuelpalumbo/mesa/internal/ruleset/gridline"
	"github.com/nahuelpalumbo/mesa/internal/ruleset/trucomod"
	"github.com/nahuelpalumbo/mesa/internal/store"
)

type fixture struct {
	o    *Orchestrator
	lg   *ledger.Memory
	clk  *clock.Fake
	a, b uuid.UUID
	msgs map[uuid.UUID][]StateMessage
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		lg:   ledger.NewMemory(),
		clk:  clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		a:    uuid.New(),
		b:    uuid.New(),
		msgs: make(map[uuid.UUID][]StateMessage),
	}
	reg := ruleset.NewRegistry(trucomod.New(), gridline.New())
	f.o = New(cfg, reg, f.lg, store.NewMemory(), f.clk)
	f.o.BroadcastToPlayer = func(userID uuid.UUID, msg any) {
		if sm, ok := msg.(StateMessage); ok {
			f.msgs[userID] = append(f.msgs[userID], sm)
		}
	}
	ctx := context.Background()
	_, err := f.lg.Deposit(ctx, f.a, 500)
	require.NoError(t, err)
	_, err = f.lg.Deposit(ctx, f.b, 500)
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, game models.GameType) *models.Session {
	t.Helper()
	sess, err := f.o.CreateSession(context.Background(), game, 100, []uuid.UUID{f.a, f.b})
	require.NoError(t, err)
	return sess
}

func drop(col int) []byte {
	b, _ := json.Marshal(map[string]any{"kind": "drop", "col": col})
	return b
}

func (f *fixture) move(sess *models.Session, user uuid.UUID, payload []byte) error {
	return f.o.SubmitMove(context.Background(), models.Move{
		SessionID: sess.ID,
		ActorID:   user,
		Payload:   payload,
	})
}

func (f *fixture) balance(t *testing.T, user uuid.UUID) int64 {
	t.Helper()
	bal, err := f.lg.Balance(context.Background(), user)
	require.NoError(t, err)
	return bal
}

func TestCreateSessionEscrowsStakes(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)

	assert.Equal(t, models.StatusActive, sess.Status)
	assert.Equal(t, 0, sess.TurnIndex)
	require.NotNil(t, sess.TurnDeadline)
	assert.Equal(t, f.clk.Now().Add(30*time.Second), *sess.TurnDeadline)
	assert.Equal(t, int64(400), f.balance(t, f.a))
	assert.Equal(t, int64(400), f.balance(t, f.b))
}

func TestCreateSessionInsufficientFundsRefundsLocked(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	broke := uuid.New()

	_, err := f.o.CreateSession(ctx, models.GameGridline, 100, []uuid.UUID{f.a, broke})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, int64(500), f.balance(t, f.a))
}

func TestCreateSessionRejectsBadPlayerCount(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.o.CreateSession(context.Background(), models.GameGridline, 100, []uuid.UUID{f.a})
	assert.ErrorIs(t, err, ruleset.ErrBadPlayerCount)
}

// playGridlineWin drives player a to a vertical four in column 0.
func playGridlineWin(t *testing.T, f *fixture, sess *models.Session) {
	t.Helper()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.move(sess, f.a, drop(0)))
		require.NoError(t, f.move(sess, f.b, drop(1)))
	}
	require.NoError(t, f.move(sess, f.a, drop(0)))
}

func TestWinSettlesPotMinusFee(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)
	playGridlineWin(t, f, sess)

	// Pot 200, fee 2.5% = 5, winner receives 195.
	assert.Equal(t, int64(595), f.balance(t, f.a))
	assert.Equal(t, int64(400), f.balance(t, f.b))

	msgs := f.msgs[f.a]
	final := msgs[len(msgs)-1]
	assert.Equal(t, models.StatusFinished, final.Status)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, 0, final.Outcome.WinnerIdx)
	assert.Equal(t, "score", final.Outcome.Reason)
}

// flakyLedger fails the first n Settle calls, then delegates.
type flakyLedger struct {
	ledger.Ledger
	failures int
	settles  int
}

func (fl *flakyLedger) Settle(ctx context.Context, sessionID uuid.UUID, payouts []models.Payout) (ledger.SettleResult, error) {
	fl.settles++
	if fl.failures > 0 {
		fl.failures--
		return ledger.SettleResult{}, errors.New("ledger unavailable")
	}
	return fl.Ledger.Settle(ctx, sessionID, payouts)
}

func TestSettleRetriesAfterLedgerFailure(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	fl := &flakyLedger{Ledger: f.lg, failures: 2}
	f.o.ledger = fl
	sess := f.create(t, models.GameGridline)
	playGridlineWin(t, f, sess)

	// The first attempt failed; the pot is still in escrow.
	assert.Equal(t, int64(400), f.balance(t, f.a))

	// The first retry fails too and re-arms itself.
	f.clk.Advance(5 * time.Second)
	assert.Equal(t, int64(400), f.balance(t, f.a))
	assert.Equal(t, 2, fl.settles)

	f.clk.Advance(5 * time.Second)
	assert.Equal(t, int64(595), f.balance(t, f.a))
	assert.Equal(t, int64(400), f.balance(t, f.b))
	assert.Equal(t, 3, fl.settles)

	// Settled now; a further retry tick would find nothing to do.
	f.clk.Advance(5 * time.Second)
	assert.Equal(t, int64(595), f.balance(t, f.a))
	assert.Equal(t, 3, fl.settles)
}

func TestRestartSettlesUnsettledFinishedSession(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	fl := &flakyLedger{Ledger: f.lg, failures: 100}
	f.o.ledger = fl
	sess := f.create(t, models.GameGridline)
	playGridlineWin(t, f, sess)
	assert.Equal(t, int64(400), f.balance(t, f.a))

	// A fresh process over the same store finds the finished, unsettled
	// session and settles it on first contact.
	reg := ruleset.NewRegistry(trucomod.New(), gridline.New())
	o2 := New(DefaultConfig(), reg, f.lg, f.o.store, f.clk)
	msg, err := o2.Snapshot(context.Background(), sess.ID, f.a)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, msg.Status)
	assert.Equal(t, int64(595), f.balance(t, f.a))
	assert.Equal(t, int64(400), f.balance(t, f.b))
}

func TestMoveAfterFinishRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)
	playGridlineWin(t, f, sess)

	err := f.move(sess, f.b, drop(2))
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestTurnOwnershipEnforced(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)

	assert.ErrorIs(t, f.move(sess, f.b, drop(0)), ErrNotYourTurn)
	assert.ErrorIs(t, f.move(sess, uuid.New(), drop(0)), ErrNotParticipant)

	require.NoError(t, f.move(sess, f.a, drop(0)))
	assert.ErrorIs(t, f.move(sess, f.a, drop(0)), ErrNotYourTurn)
}

func TestRuleViolationLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)

	err := f.move(sess, f.a, drop(99))
	var rv *ruleset.RuleViolation
	require.ErrorAs(t, err, &rv)

	// The turn did not advance and no money moved.
	require.NoError(t, f.move(sess, f.a, drop(0)))
	assert.Equal(t, int64(400), f.balance(t, f.a))
}

func TestTurnTimeoutForfeits(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.create(t, models.GameGridline)

	f.clk.Advance(31 * time.Second)

	// Gridline has no smaller unit than the match: the timeout concedes it.
	assert.Equal(t, int64(400), f.balance(t, f.a))
	assert.Equal(t, int64(595), f.balance(t, f.b))
	msgs := f.msgs[f.b]
	final := msgs[len(msgs)-1]
	require.NotNil(t, final.Outcome)
	assert.Equal(t, "forfeit", final.Outcome.Reason)
}

func TestMoveResetsTurnDeadline(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)

	f.clk.Advance(29 * time.Second)
	require.NoError(t, f.move(sess, f.a, drop(0)))

	// The original deadline passes with no effect; the new one holds.
	f.clk.Advance(2 * time.Second)
	require.NoError(t, f.move(sess, f.b, drop(1)))
	assert.Equal(t, int64(400), f.balance(t, f.a))
}

func graceConfig() Config {
	cfg := DefaultConfig()
	cfg.TurnTimeout = 5 * time.Minute
	return cfg
}

func TestReconnectWithinGrace(t *testing.T) {
	f := newFixture(t, graceConfig())
	sess := f.create(t, models.GameGridline)
	ctx := context.Background()

	rec, err := f.o.OnDisconnect(ctx, sess.ID, f.b)
	require.NoError(t, err)
	assert.Equal(t, f.clk.Now().Add(30*time.Second), rec.GraceDeadline)

	f.clk.Advance(25 * time.Second)
	msg, err := f.o.OnReconnect(ctx, sess.ID, f.b)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, msg.Status)

	// The old grace deadline passes harmlessly.
	f.clk.Advance(10 * time.Second)
	require.NoError(t, f.move(sess, f.a, drop(0)))
	assert.Equal(t, int64(400), f.balance(t, f.b))
}

func TestGraceExpiryForfeitsMatch(t *testing.T) {
	f := newFixture(t, graceConfig())
	sess := f.create(t, models.GameGridline)
	ctx := context.Background()

	_, err := f.o.OnDisconnect(ctx, sess.ID, f.b)
	require.NoError(t, err)
	f.clk.Advance(31 * time.Second)

	assert.Equal(t, int64(595), f.balance(t, f.a))
	assert.Equal(t, int64(400), f.balance(t, f.b))
	msgs := f.msgs[f.a]
	final := msgs[len(msgs)-1]
	require.NotNil(t, final.Outcome)
	assert.Equal(t, "abandonment", final.Outcome.Reason)

	// A move from the absent player is now rejected.
	assert.ErrorIs(t, f.move(sess, f.b, drop(0)), ErrSessionNotActive)
}

func TestRepeatDisconnectKeepsDeadline(t *testing.T) {
	f := newFixture(t, graceConfig())
	sess := f.create(t, models.GameGridline)
	ctx := context.Background()

	rec1, err := f.o.OnDisconnect(ctx, sess.ID, f.b)
	require.NoError(t, err)
	f.clk.Advance(20 * time.Second)
	rec2, err := f.o.OnDisconnect(ctx, sess.ID, f.b)
	require.NoError(t, err)
	assert.Equal(t, rec1.GraceDeadline, rec2.GraceDeadline)
}

func foldPayload() []byte {
	b, _ := json.Marshal(map[string]any{"kind": "fold"})
	return b
}

func TestSubroundWaitBetweenHands(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameTruco)

	// The opening actor folds the first hand; the match continues.
	opener := sess.Players[sess.TurnIndex]
	require.NoError(t, f.move(sess, opener, foldPayload()))

	msgs := f.msgs[f.a]
	parked := msgs[len(msgs)-1]
	assert.Equal(t, models.StatusSubroundWait, parked.Status)

	// Moves are rejected while the next hand is pending.
	assert.ErrorIs(t, f.move(sess, f.a, foldPayload()), ErrSessionNotActive)

	f.clk.Advance(3 * time.Second)
	msgs = f.msgs[f.a]
	dealt := msgs[len(msgs)-1]
	assert.Equal(t, models.StatusActive, dealt.Status)
	require.NotNil(t, dealt.TurnDeadline)

	// No settlement happened: the stakes stay escrowed.
	assert.Equal(t, int64(400), f.balance(t, f.a))
	assert.Equal(t, int64(400), f.balance(t, f.b))
}

func TestSnapshotRedactsOpponentHand(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameTruco)
	ctx := context.Background()

	mine, err := f.o.Snapshot(ctx, sess.ID, f.a)
	require.NoError(t, err)
	spect, err := f.o.Snapshot(ctx, sess.ID, uuid.New())
	require.NoError(t, err)

	// Crude but format-independent: my view carries card faces, the
	// spectator's carries none beyond the table.
	own, _ := json.Marshal(mine.Snapshot)
	other, _ := json.Marshal(spect.Snapshot)
	assert.Contains(t, string(own), `"hand"`)
	assert.NotContains(t, string(other), `"hand"`)
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)
	require.NoError(t, f.move(sess, f.a, drop(3)))

	// A second orchestrator over the same store picks the session up.
	reg := ruleset.NewRegistry(trucomod.New(), gridline.New())
	o2 := New(DefaultConfig(), reg, f.lg, f.o.store, f.clk)
	msg, err := o2.Snapshot(context.Background(), sess.ID, f.b)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, msg.Status)
	assert.Equal(t, 1, msg.TurnIndex)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	err := f.move(&models.Session{ID: uuid.New()}, f.a, drop(0))
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestConcurrentMoveGetsBusy(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sess := f.create(t, models.GameGridline)

	ls, err := f.o.lookup(context.Background(), sess.ID)
	require.NoError(t, err)
	ls.mu.Lock()
	err = f.move(sess, f.a, drop(0))
	ls.mu.Unlock()
	assert.ErrorIs(t, err, ErrBusy)
}

func TestDistinctSeedsPerSession(t *testing.T) {
	seen := make(map[uint64]bool)
	now := time.Now()
	for i := 0; i < 100; i++ {
		s := seedFor(uuid.New(), now)
		assert.False(t, seen[s], fmt.Sprintf("duplicate seed on draw %d", i))
		seen[s] = true
	}
}
