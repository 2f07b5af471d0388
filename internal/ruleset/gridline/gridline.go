// Package gridline implements the grid game rule module: drop pieces into a
// 7×6 grid, connect four in any direction to win, full board draws.
package gridline

import (
	"encoding/json"
	"fmt"

	"github.com/nahuelpalumbo/mesa/internal/models"
	"github.com/nahuelpalumbo/mesa/internal/ruleset"
)

const (
	stateVersion = 1
	Cols         = 7
	Rows         = 6
	winLength    = 4
)

// Module implements ruleset.Module for the grid game.
type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Type() models.GameType { return models.GameGridline }
func (m *Module) MinPlayers() int       { return 2 }
func (m *Module) MaxPlayers() int       { return 2 }
func (m *Module) Version() int          { return stateVersion }

// state: Grid[col][row], row 0 at the bottom. Cells hold -1 (empty) or the
// owning player index.
type state struct {
	Grid     [Cols][Rows]int8 `json:"grid"`
	Heights  [Cols]uint8      `json:"heights"`
	Turn     int              `json:"turn"`
	Moves    int              `json:"moves"`
	Finished bool             `json:"finished"`
	Winner   int              `json:"winner"` // -1 draw or in progress
}

func (s *state) NextActor() int {
	if s.Finished {
		return -1
	}
	return s.Turn
}

// Snapshot is identical for every viewer: the board is perfect information.
func (s *state) Snapshot(viewerIdx int) any { return *s }

func (m *Module) NewState(seed uint64, numPlayers int) (ruleset.State, error) {
	if numPlayers != 2 {
		return nil, fmt.Errorf("%w: gridline requires 2 players, got %d", ruleset.ErrBadPlayerCount, numPlayers)
	}
	s := &state{Winner: -1}
	for c := 0; c < Cols; c++ {
		for r := 0; r < Rows; r++ {
			s.Grid[c][r] = -1
		}
	}
	return s, nil
}

type movePayload struct {
	Kind string `json:"kind"`
	Col  *int   `json:"col,omitempty"`
}

func (m *Module) OutOfTurn(payload []byte) bool { return false }

func (m *Module) Apply(st ruleset.State, actorIdx int, payload []byte) (ruleset.Result, error) {
	s, ok := st.(*state)
	if !ok {
		return ruleset.Result{}, fmt.Errorf("gridline: foreign state %T", st)
	}
	var mv movePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return ruleset.Result{}, fmt.Errorf("%w: %v", ruleset.ErrMalformedPayload, err)
	}
	if mv.Kind != "drop" || mv.Col == nil {
		return ruleset.Result{}, fmt.Errorf("%w: expected drop with col", ruleset.ErrMalformedPayload)
	}
	if s.Finished {
		return ruleset.Result{}, ruleset.Violation("match is over", nil)
	}
	col := *mv.Col
	if col < 0 || col >= Cols {
		return ruleset.Result{}, ruleset.Violation(fmt.Sprintf("column %d out of range", col), nil)
	}
	if s.Heights[col] >= Rows {
		return ruleset.Result{}, ruleset.Violation(fmt.Sprintf("column %d is full", col), nil)
	}

	row := int(s.Heights[col])
	s.Grid[col][row] = int8(actorIdx)
	s.Heights[col]++
	s.Moves++

	res := ruleset.Result{Phase: ruleset.PhaseContinue}
	res.Events = append(res.Events, ruleset.Event{
		Type:    "piece_dropped",
		Payload: map[string]any{"actor": actorIdx, "col": col, "row": row},
	})

	switch {
	case s.connects(col, row, int8(actorIdx)):
		s.Finished = true
		s.Winner = actorIdx
		res.Phase = ruleset.PhaseTerminal
		res.Outcome = &ruleset.Outcome{WinnerIdx: actorIdx, Reason: "score"}
	case s.Moves == Cols*Rows:
		s.Finished = true
		res.Phase = ruleset.PhaseTerminal
		res.Outcome = &ruleset.Outcome{WinnerIdx: -1, Draw: true, Reason: "draw"}
	default:
		s.Turn = 1 - actorIdx
	}
	res.NextActor = s.NextActor()
	return res, nil
}

// connects reports whether the piece just placed at (col, row) completes a
// run of four.
func (s *state) connects(col, row int, p int8) bool {
	dirs := [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		run := 1
		for _, sign := range [2]int{1, -1} {
			c, r := col+d[0]*sign, row+d[1]*sign
			for c >= 0 && c < Cols && r >= 0 && r < Rows && s.Grid[c][r] == p {
				run++
				c += d[0] * sign
				r += d[1] * sign
			}
		}
		if run >= winLength {
			return true
		}
	}
	return false
}

// Forfeit concedes the match; there is no smaller unit to concede on a grid.
func (m *Module) Forfeit(st ruleset.State, actorIdx int, match bool) (ruleset.Result, error) {
	s, ok := st.(*state)
	if !ok {
		return ruleset.Result{}, fmt.Errorf("gridline: foreign state %T", st)
	}
	if s.Finished {
		return ruleset.Result{}, ruleset.Violation("match is over", nil)
	}
	s.Finished = true
	s.Winner = 1 - actorIdx
	reason := "forfeit"
	if match {
		reason = "abandonment"
	}
	return ruleset.Result{
		NextActor: -1,
		Phase:     ruleset.PhaseTerminal,
		Outcome:   &ruleset.Outcome{WinnerIdx: s.Winner, Reason: reason},
		Events:    []ruleset.Event{{Type: "match_conceded", Payload: map[string]any{"actor": actorIdx}}},
	}, nil
}

// AdvanceSubround is a no-op: the grid game has no sub-rounds.
func (m *Module) AdvanceSubround(st ruleset.State) (ruleset.Result, error) {
	return ruleset.Result{NextActor: st.NextActor(), Phase: ruleset.PhaseContinue}, nil
}

func (m *Module) Encode(st ruleset.State) ([]byte, error) {
	s, ok := st.(*state)
	if !ok {
		return nil, fmt.Errorf("gridline: foreign state %T", st)
	}
	return json.Marshal(s)
}

func (m *Module) Decode(version int, blob []byte) (ruleset.State, error) {
	if version != stateVersion {
		return nil, fmt.Errorf("%w: gridline blob v%d, support v%d", ruleset.ErrStaleStateBlob, version, stateVersion)
	}
	var s state
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode gridline state: %w", err)
	}
	return &s, nil
}
