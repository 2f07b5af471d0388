// internal/truco/rules.go
package truco

// MatchRules holds configurable match settings.
type MatchRules struct {
	TargetScore uint8 `json:"targetScore"` // match ends when a player reaches this
	FlorPoints  uint8 `json:"florPoints"`  // points awarded for an unanswered flor
	AllowFlor   bool  `json:"allowFlor"`
}

// DefaultMatchRules returns the standard match configuration: race to 15
// with flor enabled.
func DefaultMatchRules() MatchRules {
	return MatchRules{
		TargetScore: 15,
		FlorPoints:  3,
		AllowFlor:   true,
	}
}

func (r MatchRules) targetScore() uint8 {
	if r.TargetScore == 0 {
		return 15
	}
	return r.TargetScore
}

func (r MatchRules) florPoints() uint8 {
	if r.FlorPoints == 0 {
		return 3
	}
	return r.FlorPoints
}
