// internal/ruleset/trucomod/trucomod_test.go
package trucomod

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahuelpalumbo/mesa/internal/ruleset"
	"github.com/nahuelpalumbo/mesa/internal/truco"
)

func payload(kind string, extra map[string]any) []byte {
	m := map[string]any{"kind": kind}
	for k, v := range extra {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}

func newState(t *testing.T) (*Module, ruleset.State) {
	t.Helper()
	m := New()
	st, err := m.NewState(7, 2)
	require.NoError(t, err)
	return m, st
}

func TestBadPlayerCount(t *testing.T) {
	m := New()
	_, err := m.NewState(1, 3)
	assert.ErrorIs(t, err, ruleset.ErrBadPlayerCount)
}

func TestOutOfTurnClassification(t *testing.T) {
	m := New()
	assert.True(t, m.OutOfTurn(payload("accept", nil)))
	assert.True(t, m.OutOfTurn(payload("reject", nil)))
	assert.True(t, m.OutOfTurn(payload("call_truco", nil)))
	assert.True(t, m.OutOfTurn(payload("call_envido", nil)))
	assert.True(t, m.OutOfTurn(payload("call_flor", nil)))
	assert.False(t, m.OutOfTurn(payload("play_card", nil)))
	assert.False(t, m.OutOfTurn(payload("fold", nil)))
	assert.False(t, m.OutOfTurn([]byte("not json")))
}

func TestMalformedPayloads(t *testing.T) {
	m, st := newState(t)
	actor := st.NextActor()

	_, err := m.Apply(st, actor, payload("play_card", nil))
	assert.ErrorIs(t, err, ruleset.ErrMalformedPayload)
	_, err = m.Apply(st, actor, payload("call_envido", map[string]any{"level": "contraflor"}))
	assert.ErrorIs(t, err, ruleset.ErrMalformedPayload)
	_, err = m.Apply(st, actor, payload("dance", nil))
	assert.ErrorIs(t, err, ruleset.ErrMalformedPayload)
}

func TestEngineErrorsSurfaceAsViolations(t *testing.T) {
	m, st := newState(t)
	actor := st.NextActor()

	_, err := m.Apply(st, 1-actor, payload("play_card", map[string]any{"card": 0}))
	var rv *ruleset.RuleViolation
	require.ErrorAs(t, err, &rv)
	assert.ErrorIs(t, err, truco.ErrOutOfTurn)
}

func TestPlayCardAdvancesTurn(t *testing.T) {
	m, st := newState(t)
	actor := st.NextActor()

	res, err := m.Apply(st, actor, payload("play_card", map[string]any{"card": 0}))
	require.NoError(t, err)
	assert.Equal(t, ruleset.PhaseContinue, res.Phase)
	assert.Equal(t, 1-actor, res.NextActor)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, string(truco.EventCardPlayed), res.Events[0].Type)
	ev, ok := res.Events[0].Payload["card"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, ev, "suit")
}

func TestFoldParksForNextHand(t *testing.T) {
	m, st := newState(t)
	actor := st.NextActor()

	res, err := m.Apply(st, actor, payload("fold", nil))
	require.NoError(t, err)
	assert.Equal(t, ruleset.PhaseSubround, res.Phase)
	assert.Nil(t, res.Outcome)
}

func TestAdvanceSubroundDealsNextHand(t *testing.T) {
	m, st := newState(t)
	_, err := m.Apply(st, st.NextActor(), payload("fold", nil))
	require.NoError(t, err)

	res, err := m.AdvanceSubround(st)
	require.NoError(t, err)
	assert.Equal(t, ruleset.PhaseContinue, res.Phase)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "hand_dealt", res.Events[0].Type)
	assert.EqualValues(t, 2, res.Events[0].Payload["handNum"])

	// Advancing mid-hand is rejected.
	_, err = m.AdvanceSubround(st)
	var rv *ruleset.RuleViolation
	assert.ErrorAs(t, err, &rv)
}

func TestForfeitTimeoutConcedesHandOnly(t *testing.T) {
	m, st := newState(t)
	actor := st.NextActor()

	res, err := m.Forfeit(st, actor, false)
	require.NoError(t, err)
	assert.Equal(t, ruleset.PhaseSubround, res.Phase)
	assert.Nil(t, res.Outcome)
}

func TestForfeitMatchConcedes(t *testing.T) {
	m, st := newState(t)

	res, err := m.Forfeit(st, 0, true)
	require.NoError(t, err)
	assert.Equal(t, ruleset.PhaseTerminal, res.Phase)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, 1, res.Outcome.WinnerIdx)
	assert.Equal(t, "abandonment", res.Outcome.Reason)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m, st := newState(t)
	_, err := m.Apply(st, st.NextActor(), payload("play_card", map[string]any{"card": 1}))
	require.NoError(t, err)

	blob, err := m.Encode(st)
	require.NoError(t, err)
	restored, err := m.Decode(m.Version(), blob)
	require.NoError(t, err)
	assert.Equal(t, st.(*state).s, restored.(*state).s)

	_, err = m.Decode(0, blob)
	assert.ErrorIs(t, err, ruleset.ErrStaleStateBlob)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	m, st := newState(t)
	reg := ruleset.NewRegistry(m)

	blob, err := ruleset.EncodeBlob(m, st)
	require.NoError(t, err)
	mod, restored, err := ruleset.DecodeBlob(reg, blob)
	require.NoError(t, err)
	assert.Equal(t, m.Type(), mod.Type())
	assert.Equal(t, st.NextActor(), restored.NextActor())
}
