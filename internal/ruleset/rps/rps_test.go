// internal/ruleset/rps/rps_test.go
package rps

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahuelpalumbo/mesa/internal/ruleset"
)

func throw(hand string) []byte {
	b, _ := json.Marshal(map[string]string{"kind": "throw", "hand": hand})
	return b
}

func newState(t *testing.T, m *Module) ruleset.State {
	t.Helper()
	st, err := m.NewState(1, 2)
	require.NoError(t, err)
	return st
}

func TestRoundResolution(t *testing.T) {
	m := New()
	st := newState(t, m)

	_, err := m.Apply(st, 0, throw("rock"))
	require.NoError(t, err)
	res, err := m.Apply(st, 1, throw("scissors"))
	require.NoError(t, err)

	s := st.(*state)
	assert.Equal(t, [2]int{1, 0}, s.Wins)
	assert.Equal(t, 1, s.RoundNum)
	assert.Equal(t, ruleset.PhaseContinue, res.Phase)
	// Round 1 opens with player 1.
	assert.Equal(t, 1, res.NextActor)
}

func TestTieScoresNothing(t *testing.T) {
	m := New()
	st := newState(t, m)

	_, err := m.Apply(st, 0, throw("paper"))
	require.NoError(t, err)
	res, err := m.Apply(st, 1, throw("paper"))
	require.NoError(t, err)

	s := st.(*state)
	assert.Equal(t, [2]int{0, 0}, s.Wins)
	assert.Equal(t, 1, s.RoundNum)
	require.NotEmpty(t, res.Events)
	last := res.Events[len(res.Events)-1]
	assert.Equal(t, "round_resolved", last.Type)
	assert.Equal(t, -1, last.Payload["winner"])
}

func TestBestOfFiveTerminates(t *testing.T) {
	m := New()
	st := newState(t, m)

	hands := [2]string{"rock", "scissors"}
	var res ruleset.Result
	for i := 0; i < 3; i++ {
		first := st.NextActor()
		_, err := m.Apply(st, first, throw(hands[first]))
		require.NoError(t, err)
		var aerr error
		res, aerr = m.Apply(st, 1-first, throw(hands[1-first]))
		require.NoError(t, aerr)
	}

	assert.Equal(t, ruleset.PhaseTerminal, res.Phase)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, "score", res.Outcome.Reason)
	assert.Equal(t, -1, res.NextActor)
}

func TestDoubleCommitRejected(t *testing.T) {
	m := New()
	st := newState(t, m)

	_, err := m.Apply(st, 0, throw("rock"))
	require.NoError(t, err)
	_, err = m.Apply(st, 0, throw("paper"))
	var rv *ruleset.RuleViolation
	assert.ErrorAs(t, err, &rv)
}

func TestIllegalThrowRejected(t *testing.T) {
	m := New()
	st := newState(t, m)

	_, err := m.Apply(st, 0, throw("lizard"))
	var rv *ruleset.RuleViolation
	assert.ErrorAs(t, err, &rv)

	_, err = m.Apply(st, 0, []byte(`{"kind":"fold"}`))
	assert.ErrorIs(t, err, ruleset.ErrMalformedPayload)
}

func TestSnapshotHidesUncommittedThrow(t *testing.T) {
	m := New()
	st := newState(t, m)
	_, err := m.Apply(st, 0, throw("rock"))
	require.NoError(t, err)

	mine := st.Snapshot(0).(snapshotView)
	theirs := st.Snapshot(1).(snapshotView)
	assert.Equal(t, "rock", mine.YourThrow)
	assert.Empty(t, theirs.YourThrow)
	assert.Equal(t, [2]bool{true, false}, theirs.Committed)
}

func TestTimeoutForfeitsRound(t *testing.T) {
	m := New()
	st := newState(t, m)

	res, err := m.Forfeit(st, 0, false)
	require.NoError(t, err)
	s := st.(*state)
	assert.Equal(t, [2]int{0, 1}, s.Wins)
	assert.Equal(t, ruleset.PhaseContinue, res.Phase)

	// Repeated timeouts run the score out.
	_, err = m.Forfeit(st, 0, false)
	require.NoError(t, err)
	res, err = m.Forfeit(st, 0, false)
	require.NoError(t, err)
	assert.Equal(t, ruleset.PhaseTerminal, res.Phase)
	assert.Equal(t, "forfeit", res.Outcome.Reason)
	assert.Equal(t, 1, res.Outcome.WinnerIdx)
}

func TestAbandonmentConcedesMatch(t *testing.T) {
	m := New()
	st := newState(t, m)

	res, err := m.Forfeit(st, 1, true)
	require.NoError(t, err)
	assert.Equal(t, ruleset.PhaseTerminal, res.Phase)
	assert.Equal(t, "abandonment", res.Outcome.Reason)
	assert.Equal(t, 0, res.Outcome.WinnerIdx)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New()
	st := newState(t, m)
	_, err := m.Apply(st, 0, throw("rock"))
	require.NoError(t, err)

	blob, err := m.Encode(st)
	require.NoError(t, err)
	restored, err := m.Decode(m.Version(), blob)
	require.NoError(t, err)
	assert.Equal(t, st.(*state), restored.(*state))

	_, err = m.Decode(99, blob)
	assert.ErrorIs(t, err, ruleset.ErrStaleStateBlob)
}
