// internal/truco/state.go
package truco

// ChallengeKind discriminates the two escalation ladders.
type ChallengeKind uint8

const (
	ChallengeNone   ChallengeKind = iota
	ChallengeTruco                // value ladder: truco / retruco / vale cuatro
	ChallengeEnvido               // side-bet ladder: envido / real envido / falta envido
)

// Challenge is an outstanding call suspending normal play until the opposing
// party accepts, rejects, or counter-raises.
type Challenge struct {
	Kind   ChallengeKind `json:"kind"`
	Level  uint8         `json:"level"`  // truco: proposed ladder level 1-3; envido: ladder position
	Caller int8          `json:"caller"` // player index of the party that raised last
}

// Round result markers for RoundWins.
const (
	RoundOpen  int8 = -2 // not yet resolved
	RoundParda int8 = -1 // tie
)

// Envido ladder positions.
const (
	EnvidoNone  uint8 = 0
	EnvidoPlain uint8 = 1 // envido (2)
	EnvidoReal  uint8 = 2 // real envido (+3)
	EnvidoFalta uint8 = 3 // falta envido (to the match target)
)

// Truco ladder levels. TrucoLevel n means the hand is worth n+1 points.
const (
	LevelTruco      uint8 = 1
	LevelRetruco    uint8 = 2
	LevelValeCuatro uint8 = 3
)

// State holds the complete, self-contained state of one match: the current
// hand's cards and table, both escalation ladders, and the running score.
// It is flat and JSON-serializable for persistence as an opaque blob.
type State struct {
	Rules   MatchRules `json:"rules"`
	RNG     uint64     `json:"rng"`
	HandNum uint16     `json:"handNum"`
	Dealer  uint8      `json:"dealer"` // mano (first to act) is the other player
	Scores  [2]uint8   `json:"scores"`

	Hands [2][HandSize]Card  `json:"hands"`
	Used  [2][HandSize]bool  `json:"used"`
	Table [NumRounds][2]Card `json:"table"` // card per round per player, EmptyCard if unplayed

	Round     uint8             `json:"round"`  // 0-2 within the hand
	Lead      uint8             `json:"lead"`   // leads the current round
	ToPlay    uint8             `json:"toPlay"` // next to place a card
	RoundWins [NumRounds]int8   `json:"roundWins"`

	TrucoLevel  uint8     `json:"trucoLevel"`  // accepted level; hand value = level+1
	TrucoCaller int8      `json:"trucoCaller"` // caller of the accepted level; -1 = open
	Pending     Challenge `json:"pending"`

	EnvidoLadder   uint8 `json:"envidoLadder"`   // highest position called
	EnvidoOffer    uint8 `json:"envidoOffer"`    // value at stake if accepted
	EnvidoFallback uint8 `json:"envidoFallback"` // value owed to caller on reject
	EnvidoClosed   bool  `json:"envidoClosed"`

	HandOver   bool  `json:"handOver"` // awaiting re-deal
	HandWinner int8  `json:"handWinner"`
	HandValue  uint8 `json:"handValue"`

	Finished bool `json:"finished"`
	Winner   int8 `json:"winner"` // -1 while in progress
}

// NewMatch initializes a match, deals the first hand, and returns the state.
// seed drives the deterministic shuffle RNG.
func NewMatch(seed uint64, rules MatchRules) *State {
	s := &State{
		Rules:  rules,
		RNG:    seed,
		Dealer: 1, // player 0 is mano of the first hand
		Winner: -1,
	}
	if s.RNG == 0 {
		s.RNG = 1 // xorshift can't start at 0
	}
	s.dealHand()
	return s
}

// nextRand is an inline xorshift64 step.
func (s *State) nextRand() uint64 {
	x := s.RNG
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.RNG = x
	return x
}

func (s *State) randN(n uint64) uint64 {
	return s.nextRand() % n
}

// dealHand shuffles a fresh deck and deals three cards to each player,
// resetting all per-hand fields. Scores and the RNG stream persist across
// hands.
func (s *State) dealHand() {
	var deck [DeckSize]Card
	idx := 0
	for suit := uint8(0); suit < 4; suit++ {
		for _, f := range faces {
			deck[idx] = NewCard(suit, f)
			idx++
		}
	}
	// Fisher-Yates.
	for i := DeckSize - 1; i > 0; i-- {
		j := int(s.randN(uint64(i + 1)))
		deck[i], deck[j] = deck[j], deck[i]
	}

	for p := 0; p < NumPlayers; p++ {
		for c := 0; c < HandSize; c++ {
			s.Hands[p][c] = deck[p*HandSize+c]
			s.Used[p][c] = false
		}
	}
	for r := 0; r < NumRounds; r++ {
		s.Table[r][0] = EmptyCard
		s.Table[r][1] = EmptyCard
		s.RoundWins[r] = RoundOpen
	}

	s.HandNum++
	mano := 1 - s.Dealer
	s.Round = 0
	s.Lead = mano
	s.ToPlay = mano
	s.TrucoLevel = 0
	s.TrucoCaller = -1
	s.Pending = Challenge{}
	s.EnvidoLadder = EnvidoNone
	s.EnvidoOffer = 0
	s.EnvidoFallback = 0
	s.EnvidoClosed = false
	s.HandOver = false
	s.HandWinner = -1
	s.HandValue = 0
}

// DealNextHand rotates the dealer and starts the following hand. Legal only
// between hands (HandOver set, match not finished).
func (s *State) DealNextHand() error {
	if s.Finished {
		return ErrMatchOver
	}
	if !s.HandOver {
		return ErrHandInProgress
	}
	s.Dealer = 1 - s.Dealer
	s.dealHand()
	return nil
}

// Mano returns the index of the hand's first player (the dealer's opponent).
// Mano wins envido ties.
func (s *State) Mano() uint8 { return 1 - s.Dealer }

// NextActor returns the player expected to act: the responder of a pending
// challenge, otherwise the player due to place a card. Returns -1 when the
// hand or match is over.
func (s *State) NextActor() int8 {
	if s.Finished || s.HandOver {
		return -1
	}
	if s.Pending.Kind != ChallengeNone {
		return 1 - s.Pending.Caller
	}
	return int8(s.ToPlay)
}

// HandPointValue is the number of match points the current hand is worth at
// its accepted escalation level.
func (s *State) HandPointValue() uint8 { return s.TrucoLevel + 1 }

// cardPlayedThisHand reports whether any card has hit the table, which
// closes the envido/flor window.
func (s *State) cardPlayedThisHand() bool {
	return s.Table[0][0] != EmptyCard || s.Table[0][1] != EmptyCard
}

// decidingRound reports whether the round in progress will decide the hand:
// the third round, or the second after an opening tie.
func (s *State) decidingRound() bool {
	if s.Round >= 2 {
		return true
	}
	return s.Round == 1 && s.RoundWins[0] == RoundParda
}

// aceOfEspadasOnTable reports whether the top card of the deck has been
// played in any round of this hand.
func (s *State) aceOfEspadasOnTable() bool {
	ace := NewCard(SuitEspada, 1)
	for r := 0; r < NumRounds; r++ {
		if s.Table[r][0] == ace || s.Table[r][1] == ace {
			return true
		}
	}
	return false
}

// Concede ends the match immediately in the opponent's favor. Used for
// match-level forfeits (abandonment); scores are left as they stand.
func (s *State) Concede(actor int8) ([]Event, error) {
	if s.Finished {
		return nil, ErrMatchOver
	}
	s.Finished = true
	s.Winner = 1 - actor
	s.HandOver = true
	s.Pending = Challenge{}
	return []Event{
		{Type: EventFold, Actor: actor},
		{Type: EventMatchEnded, Actor: s.Winner, Winner: s.Winner},
	}, nil
}

// addPoints credits points to a player and ends the match if the target is
// reached. Scores cap at the target.
func (s *State) addPoints(player int8, pts uint8) {
	target := s.Rules.targetScore()
	score := s.Scores[player] + pts
	if score >= target {
		score = target
		s.Finished = true
		s.Winner = player
	}
	s.Scores[player] = score
}
