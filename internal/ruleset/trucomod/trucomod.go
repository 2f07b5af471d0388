// Package trucomod adapts the truco engine to the ruleset contract. It is
// the reference rule module: the pattern every other game module follows.
package trucomod

import (
	"encoding/json"
	"fmt"

	"github.com/nahuelpalumbo/mesa/internal/models"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
	"github.com/nahuelpalumbo/mesa/internal/truco"
)

const stateVersion = 1

// Module implements ruleset.Module for the escalating-stakes card game.
type Module struct {
	Rules truco.MatchRules
}

// New returns the module with default match rules.
func New() *Module {
	return &Module{Rules: truco.DefaultMatchRules()}
}

func (m *Module) Type() models.GameType { return models.GameTruco }
func (m *Module) MinPlayers() int       { return truco.NumPlayers }
func (m *Module) MaxPlayers() int       { return truco.NumPlayers }
func (m *Module) Version() int          { return stateVersion }

// state wraps the engine state behind the ruleset.State interface.
type state struct {
	s *truco.State
}

func (st *state) NextActor() int { return int(st.s.NextActor()) }

func (st *state) Snapshot(viewerIdx int) any {
	v := int8(-1)
	if viewerIdx >= 0 && viewerIdx < truco.NumPlayers {
		v = int8(viewerIdx)
	}
	return st.s.Snapshot(v)
}

func (m *Module) NewState(seed uint64, numPlayers int) (ruleset.State, error) {
	if numPlayers != truco.NumPlayers {
		return nil, fmt.Errorf("%w: truco requires exactly %d players, got %d",
			ruleset.ErrBadPlayerCount, truco.NumPlayers, numPlayers)
	}
	return &state{s: truco.NewMatch(seed, m.Rules)}, nil
}

// Move kinds accepted in the payload envelope.
const (
	kindPlayCard   = "play_card"
	kindCallTruco  = "call_truco"
	kindCallEnvido = "call_envido"
	kindCallFlor   = "call_flor"
	kindAccept     = "accept"
	kindReject     = "reject"
	kindFold       = "fold"
)

type movePayload struct {
	Kind  string `json:"kind"`
	Card  *uint8 `json:"card,omitempty"`  // hand slot for play_card
	Level string `json:"level,omitempty"` // envido ladder: "envido", "real", "falta"
}

// OutOfTurn marks challenge responses and ladder raises, which the pending
// challenge's responder submits while the turn index rests elsewhere. The
// engine enforces exact entitlement.
func (m *Module) OutOfTurn(payload []byte) bool {
	var mv movePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return false
	}
	switch mv.Kind {
	case kindAccept, kindReject, kindCallTruco, kindCallEnvido, kindCallFlor:
		return true
	}
	return false
}

func envidoLevel(s string) (uint8, error) {
	switch s {
	case "", "envido":
		return truco.EnvidoPlain, nil
	case "real":
		return truco.EnvidoReal, nil
	case "falta":
		return truco.EnvidoFalta, nil
	}
	return 0, fmt.Errorf("%w: envido level %q", ruleset.ErrMalformedPayload, s)
}

func (m *Module) Apply(st ruleset.State, actorIdx int, payload []byte) (ruleset.Result, error) {
	ts, ok := st.(*state)
	if !ok {
		return ruleset.Result{}, fmt.Errorf("trucomod: foreign state %T", st)
	}
	var mv movePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return ruleset.Result{}, fmt.Errorf("%w: %v", ruleset.ErrMalformedPayload, err)
	}
	actor := int8(actorIdx)

	var (
		evs []truco.Event
		err error
	)
	switch mv.Kind {
	case kindPlayCard:
		if mv.Card == nil {
			return ruleset.Result{}, fmt.Errorf("%w: play_card requires card", ruleset.ErrMalformedPayload)
		}
		evs, err = ts.s.PlayCard(actor, *mv.Card)
	case kindCallTruco:
		evs, err = ts.s.CallTruco(actor)
	case kindCallEnvido:
		var lvl uint8
		if lvl, err = envidoLevel(mv.Level); err != nil {
			return ruleset.Result{}, err
		}
		evs, err = ts.s.CallEnvido(actor, lvl)
	case kindCallFlor:
		evs, err = ts.s.CallFlor(actor)
	case kindAccept:
		evs, err = ts.s.Accept(actor)
	case kindReject:
		evs, err = ts.s.Reject(actor)
	case kindFold:
		evs, err = ts.s.Fold(actor)
	default:
		return ruleset.Result{}, fmt.Errorf("%w: unknown kind %q", ruleset.ErrMalformedPayload, mv.Kind)
	}
	if err != nil {
		return ruleset.Result{}, ruleset.Violation(err.Error(), err)
	}
	return ts.result(evs, "score"), nil
}

// Forfeit folds the current hand on a turn timeout, or concedes the whole
// match when the reconnection grace window expires.
func (m *Module) Forfeit(st ruleset.State, actorIdx int, match bool) (ruleset.Result, error) {
	ts, ok := st.(*state)
	if !ok {
		return ruleset.Result{}, fmt.Errorf("trucomod: foreign state %T", st)
	}
	actor := int8(actorIdx)
	if match {
		evs, err := ts.s.Concede(actor)
		if err != nil {
			return ruleset.Result{}, ruleset.Violation(err.Error(), err)
		}
		return ts.result(evs, "abandonment"), nil
	}
	evs, err := ts.s.Fold(actor)
	if err != nil {
		return ruleset.Result{}, ruleset.Violation(err.Error(), err)
	}
	return ts.result(evs, "forfeit"), nil
}

// AdvanceSubround deals the next hand after a SUBROUND_WAIT.
func (m *Module) AdvanceSubround(st ruleset.State) (ruleset.Result, error) {
	ts, ok := st.(*state)
	if !ok {
		return ruleset.Result{}, fmt.Errorf("trucomod: foreign state %T", st)
	}
	if err := ts.s.DealNextHand(); err != nil {
		return ruleset.Result{}, ruleset.Violation(err.Error(), err)
	}
	return ruleset.Result{
		NextActor: ts.NextActor(),
		Phase:     ruleset.PhaseContinue,
		Events:    []ruleset.Event{{Type: "hand_dealt", Payload: map[string]any{"handNum": ts.s.HandNum}}},
	}, nil
}

// result maps engine events onto the orchestration contract.
func (ts *state) result(evs []truco.Event, terminalReason string) ruleset.Result {
	res := ruleset.Result{NextActor: ts.NextActor(), Phase: ruleset.PhaseContinue}
	for _, ev := range evs {
		res.Events = append(res.Events, toEvent(ev))
	}
	s := ts.s
	switch {
	case s.Finished:
		res.Phase = ruleset.PhaseTerminal
		res.Outcome = &ruleset.Outcome{
			WinnerIdx: int(s.Winner),
			Reason:    terminalReason,
			Scores:    []int{int(s.Scores[0]), int(s.Scores[1])},
		}
	case s.HandOver:
		res.Phase = ruleset.PhaseSubround
	}
	return res
}

func toEvent(ev truco.Event) ruleset.Event {
	p := map[string]any{"actor": ev.Actor}
	if ev.Type == truco.EventCardPlayed {
		p["card"] = map[string]any{"suit": ev.Card.Suit(), "face": ev.Card.Face()}
	}
	if ev.Type == truco.EventRoundResolved {
		p["round"] = ev.Round
		p["winner"] = ev.Winner
	}
	if ev.Points > 0 {
		p["points"] = ev.Points
	}
	if ev.Kind != truco.ChallengeNone {
		p["kind"] = ev.Kind
		p["level"] = ev.Level
	}
	if ev.Type == truco.EventHandEnded || ev.Type == truco.EventMatchEnded {
		p["winner"] = ev.Winner
	}
	return ruleset.Event{Type: string(ev.Type), Payload: p}
}

func (m *Module) Encode(st ruleset.State) ([]byte, error) {
	ts, ok := st.(*state)
	if !ok {
		return nil, fmt.Errorf("trucomod: foreign state %T", st)
	}
	return json.Marshal(ts.s)
}

func (m *Module) Decode(version int, blob []byte) (ruleset.State, error) {
	if version != stateVersion {
		return nil, fmt.Errorf("%w: truco blob v%d, support v%d", ruleset.ErrStaleStateBlob, version, stateVersion)
	}
	var s truco.State
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode truco state: %w", err)
	}
	return &state{s: &s}, nil
}
