// internal/truco/errors.go
package truco

import "errors"

var (
	ErrMatchOver          = errors.New("truco: match is over")
	ErrHandOver           = errors.New("truco: hand is over, awaiting deal")
	ErrHandInProgress     = errors.New("truco: hand still in progress")
	ErrOutOfTurn          = errors.New("truco: not this player's turn to act")
	ErrChallengePending   = errors.New("truco: a challenge is pending")
	ErrNothingPending     = errors.New("truco: no challenge to respond to")
	ErrCardUnavailable    = errors.New("truco: card index invalid or already played")
	ErrNotEntitled        = errors.New("truco: only the opposing party may raise")
	ErrLadderExhausted    = errors.New("truco: no further escalation available")
	ErrEscalationBlocked  = errors.New("truco: escalation frozen for this hand")
	ErrEnvidoClosed       = errors.New("truco: envido window is closed")
	ErrNoFlor             = errors.New("truco: hand does not satisfy flor")
	ErrFlorDisabled       = errors.New("truco: flor is disabled by match rules")
)
