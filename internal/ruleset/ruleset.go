// Package ruleset defines the contract every game module satisfies so the
// session orchestrator can run it: pure state transitions over an opaque,
// versioned state blob, a next-actor hint after every move, and a
// redact-for-viewer snapshot hook.
package ruleset

import (
	"errors"
	"fmt"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

// Phase tells the orchestrator what a move did to the session lifecycle.
type Phase int

const (
	// PhaseContinue: play proceeds within the current hand/round.
	PhaseContinue Phase = iota
	// PhaseSubround: a hand/round ended but the match continues; the
	// orchestrator parks the session in SUBROUND_WAIT and calls
	// AdvanceSubround to deal the next hand.
	PhaseSubround
	// PhaseTerminal: the match is over; the orchestrator finalizes.
	PhaseTerminal
)

// Outcome describes a terminal result.
type Outcome struct {
	WinnerIdx int    `json:"winnerIdx"` // -1 on a draw
	Draw      bool   `json:"draw"`
	Reason    string `json:"reason"` // "score", "forfeit", "abandonment", "draw"
	Scores    []int  `json:"scores,omitempty"`
}

// Event is one observable consequence of a move, forwarded to clients
// alongside the snapshot.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Result is returned by Apply/Forfeit: the next-actor hint, the lifecycle
// phase, events to broadcast, and the outcome when terminal.
type Result struct {
	NextActor int // turn-order index of the player expected to act; -1 if none
	Phase     Phase
	Outcome   *Outcome
	Events    []Event
}

// State is a module's live game state. Implementations are owned entirely by
// their module; the orchestrator only snapshots and serializes them.
type State interface {
	// Snapshot renders the state visible to the player at viewerIdx,
	// redacting hidden information. A negative index is a spectator.
	Snapshot(viewerIdx int) any
	// NextActor returns the turn-order index expected to act, -1 if none.
	NextActor() int
}

// Module is one game type's rule implementation.
type Module interface {
	Type() models.GameType
	MinPlayers() int
	MaxPlayers() int

	// NewState creates the initial state for a fresh session.
	NewState(seed uint64, numPlayers int) (State, error)

	// Apply interprets the opaque move payload for the given actor. On any
	// error the state is unchanged.
	Apply(st State, actorIdx int, payload []byte) (Result, error)

	// Forfeit synthesizes the deterministic fallback move for an actor who
	// timed out or abandoned the session. match=true concedes the whole
	// match (disconnect grace expiry), match=false concedes the minimum
	// unit the rules allow (turn timeout).
	Forfeit(st State, actorIdx int, match bool) (Result, error)

	// AdvanceSubround deals the next hand/round after PhaseSubround.
	AdvanceSubround(st State) (Result, error)

	// OutOfTurn reports whether the payload describes a move any eligible
	// non-turn actor may submit (e.g. responding to a pending challenge).
	OutOfTurn(payload []byte) bool

	// Version and Encode/Decode define the persisted blob format. Decode
	// must reject versions it does not understand.
	Version() int
	Encode(st State) ([]byte, error)
	Decode(version int, blob []byte) (State, error)
}

// RuleViolation is a module-specific illegal move, carrying a reason safe to
// surface to the offending player. The session and ledger are unchanged.
type RuleViolation struct {
	Reason string
	Err    error
}

func (e *RuleViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule violation: %s: %v", e.Reason, e.Err)
	}
	return "rule violation: " + e.Reason
}

func (e *RuleViolation) Unwrap() error { return e.Err }

// Violation wraps a module error as a RuleViolation.
func Violation(reason string, err error) error {
	return &RuleViolation{Reason: reason, Err: err}
}

var (
	ErrUnknownGameType  = errors.New("ruleset: unknown game type")
	ErrBadPlayerCount   = errors.New("ruleset: player count out of bounds")
	ErrStaleStateBlob   = errors.New("ruleset: unsupported state blob version")
	ErrMalformedPayload = errors.New("ruleset: malformed move payload")
)

// Registry maps game types to their modules.
type Registry struct {
	modules map[models.GameType]Module
}

func NewRegistry(mods ...Module) *Registry {
	r := &Registry{modules: make(map[models.GameType]Module)}
	for _, m := range mods {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a module.
func (r *Registry) Register(m Module) {
	r.modules[m.Type()] = m
}

// Get returns the module for a game type.
func (r *Registry) Get(gt models.GameType) (Module, error) {
	m, ok := r.modules[gt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, gt)
	}
	return m, nil
}
