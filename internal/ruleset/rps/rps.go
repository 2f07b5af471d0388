// Package rps implements a best-of-N rock-paper-scissors rule module.
// Throws are committed one player at a time and redacted from the opponent
// until the round resolves, which exercises the snapshot redaction hook.
package rps

import (
	"encoding/json"
	"fmt"

	"github.com/nahuelpalumbo/mesa/internal/models"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
)

const stateVersion = 1

// Module implements ruleset.Module for rock-paper-scissors.
type Module struct {
	TargetWins int
}

func New() *Module { return &Module{TargetWins: 3} }

func (m *Module) Type() models.GameType { return models.GameRPS }
func (m *Module) MinPlayers() int       { return 2 }
func (m *Module) MaxPlayers() int       { return 2 }
func (m *Module) Version() int          { return stateVersion }

var beats = map[string]string{"rock": "scissors", "paper": "rock", "scissors": "paper"}

type state struct {
	Target   int       `json:"target"`
	Wins     [2]int    `json:"wins"`
	Throws   [2]string `json:"throws"` // empty until committed this round
	RoundNum int       `json:"roundNum"`
	Finished bool      `json:"finished"`
	Winner   int       `json:"winner"`
}

// NextActor is whichever player has not committed a throw; the round's
// opener alternates.
func (s *state) NextActor() int {
	if s.Finished {
		return -1
	}
	first := s.RoundNum % 2
	if s.Throws[first] == "" {
		return first
	}
	if s.Throws[1-first] == "" {
		return 1 - first
	}
	return -1
}

// snapshotView hides the opponent's uncommitted throw.
type snapshotView struct {
	Target    int    `json:"target"`
	Wins      [2]int `json:"wins"`
	RoundNum  int    `json:"roundNum"`
	YourThrow string `json:"yourThrow,omitempty"`
	Committed [2]bool `json:"committed"`
	Finished  bool   `json:"finished"`
	Winner    int    `json:"winner"`
}

func (s *state) Snapshot(viewerIdx int) any {
	v := snapshotView{
		Target:    s.Target,
		Wins:      s.Wins,
		RoundNum:  s.RoundNum,
		Committed: [2]bool{s.Throws[0] != "", s.Throws[1] != ""},
		Finished:  s.Finished,
		Winner:    s.Winner,
	}
	if viewerIdx >= 0 && viewerIdx < 2 {
		v.YourThrow = s.Throws[viewerIdx]
	}
	return v
}

func (m *Module) NewState(seed uint64, numPlayers int) (ruleset.State, error) {
	if numPlayers != 2 {
		return nil, fmt.Errorf("%w: rps requires 2 players, got %d", ruleset.ErrBadPlayerCount, numPlayers)
	}
	target := m.TargetWins
	if target <= 0 {
		target = 3
	}
	return &state{Target: target, Winner: -1}, nil
}

type movePayload struct {
	Kind string `json:"kind"`
	Hand string `json:"hand,omitempty"`
}

func (m *Module) OutOfTurn(payload []byte) bool { return false }

func (m *Module) Apply(st ruleset.State, actorIdx int, payload []byte) (ruleset.Result, error) {
	s, ok := st.(*state)
	if !ok {
		return ruleset.Result{}, fmt.Errorf("rps: foreign state %T", st)
	}
	var mv movePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return ruleset.Result{}, fmt.Errorf("%w: %v", ruleset.ErrMalformedPayload, err)
	}
	if mv.Kind != "throw" {
		return ruleset.Result{}, fmt.Errorf("%w: unknown kind %q", ruleset.ErrMalformedPayload, mv.Kind)
	}
	if s.Finished {
		return ruleset.Result{}, ruleset.Violation("match is over", nil)
	}
	if _, legal := beats[mv.Hand]; !legal {
		return ruleset.Result{}, ruleset.Violation(fmt.Sprintf("unknown throw %q", mv.Hand), nil)
	}
	if s.NextActor() != actorIdx {
		return ruleset.Result{}, ruleset.Violation("throw already committed", nil)
	}

	s.Throws[actorIdx] = mv.Hand
	res := ruleset.Result{Phase: ruleset.PhaseContinue}
	res.Events = append(res.Events, ruleset.Event{Type: "throw_committed", Payload: map[string]any{"actor": actorIdx}})

	if s.Throws[0] != "" && s.Throws[1] != "" {
		res.Events = append(res.Events, s.resolveRound()...)
	}
	res.NextActor = s.NextActor()
	if s.Finished {
		res.Phase = ruleset.PhaseTerminal
		res.Outcome = &ruleset.Outcome{
			WinnerIdx: s.Winner,
			Reason:    "score",
			Scores:    []int{s.Wins[0], s.Wins[1]},
		}
	}
	return res, nil
}

func (s *state) resolveRound() []ruleset.Event {
	t0, t1 := s.Throws[0], s.Throws[1]
	winner := -1
	switch {
	case beats[t0] == t1:
		winner = 0
	case beats[t1] == t0:
		winner = 1
	}
	evs := []ruleset.Event{{
		Type:    "round_resolved",
		Payload: map[string]any{"throws": []string{t0, t1}, "winner": winner},
	}}
	if winner >= 0 {
		s.Wins[winner]++
		if s.Wins[winner] >= s.Target {
			s.Finished = true
			s.Winner = winner
		}
	}
	s.Throws = [2]string{}
	s.RoundNum++
	return evs
}

// Forfeit concedes a round on turn timeout, the match on grace expiry.
func (m *Module) Forfeit(st ruleset.State, actorIdx int, match bool) (ruleset.Result, error) {
	s, ok := st.(*state)
	if !ok {
		return ruleset.Result{}, fmt.Errorf("rps: foreign state %T", st)
	}
	if s.Finished {
		return ruleset.Result{}, ruleset.Violation("match is over", nil)
	}
	opp := 1 - actorIdx
	res := ruleset.Result{Phase: ruleset.PhaseContinue}
	if match {
		s.Finished = true
		s.Winner = opp
		res.Events = append(res.Events, ruleset.Event{Type: "match_conceded", Payload: map[string]any{"actor": actorIdx}})
	} else {
		s.Wins[opp]++
		s.Throws = [2]string{}
		s.RoundNum++
		res.Events = append(res.Events, ruleset.Event{Type: "round_forfeited", Payload: map[string]any{"actor": actorIdx}})
		if s.Wins[opp] >= s.Target {
			s.Finished = true
			s.Winner = opp
		}
	}
	res.NextActor = s.NextActor()
	if s.Finished {
		res.Phase = ruleset.PhaseTerminal
		reason := "forfeit"
		if match {
			reason = "abandonment"
		}
		res.Outcome = &ruleset.Outcome{WinnerIdx: s.Winner, Reason: reason, Scores: []int{s.Wins[0], s.Wins[1]}}
	}
	return res, nil
}

// AdvanceSubround is a no-op: rounds resolve inline.
func (m *Module) AdvanceSubround(st ruleset.State) (ruleset.Result, error) {
	return ruleset.Result{NextActor: st.NextActor(), Phase: ruleset.PhaseContinue}, nil
}

func (m *Module) Encode(st ruleset.State) ([]byte, error) {
	s, ok := st.(*state)
	if !ok {
		return nil, fmt.Errorf("rps: foreign state %T", st)
	}
	return json.Marshal(s)
}

func (m *Module) Decode(version int, blob []byte) (ruleset.State, error) {
	if version != stateVersion {
		return nil, fmt.Errorf("%w: rps blob v%d, support v%d", ruleset.ErrStaleStateBlob, version, stateVersion)
	}
	var s state
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode rps state: %w", err)
	}
	return &s, nil
}
