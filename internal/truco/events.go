// internal/truco/events.go
package truco

// EventType labels a state transition produced by applying a move.
type EventType string

const (
	EventCardPlayed        EventType = "card_played"
	EventRoundResolved     EventType = "round_resolved"
	EventChallengeCalled   EventType = "challenge_called"
	EventChallengeAccepted EventType = "challenge_accepted"
	EventChallengeRejected EventType = "challenge_rejected"
	EventEnvidoResolved    EventType = "envido_resolved"
	EventFlorShown         EventType = "flor_shown"
	EventFold              EventType = "fold"
	EventHandEnded         EventType = "hand_ended"
	EventMatchEnded        EventType = "match_ended"
)

// Event is one observable consequence of a move. Fields are populated where
// meaningful for the type; zero values elsewhere.
type Event struct {
	Type   EventType     `json:"type"`
	Actor  int8          `json:"actor"`
	Card   Card          `json:"card,omitempty"`
	Round  uint8         `json:"round,omitempty"`
	Winner int8          `json:"winner,omitempty"` // RoundParda for tied rounds
	Points uint8         `json:"points,omitempty"`
	Kind   ChallengeKind `json:"kind,omitempty"`
	Level  uint8         `json:"level,omitempty"`
}
