// internal/truco/snapshot.go
package truco

// Per-viewer state snapshots. Unplayed cards in the opponent's hand are
// never revealed; everything on the table is public.

var suitNames = [4]string{"espada", "basto", "oro", "copa"}

// CardView is the wire representation of a revealed card. Idx is the hand
// slot for cards still held by the viewer.
type CardView struct {
	Suit string `json:"suit"`
	Face uint8  `json:"face"`
	Idx  *int   `json:"idx,omitempty"`
}

func viewOf(c Card) *CardView {
	if c == EmptyCard {
		return nil
	}
	return &CardView{Suit: suitNames[c.Suit()], Face: c.Face()}
}

// PlayerView is one player's visible state within a snapshot.
type PlayerView struct {
	Score    uint8      `json:"score"`
	HandSize int        `json:"handSize"`
	IsMano   bool       `json:"isMano"`
	ToAct    bool       `json:"toAct"`
	Hand     []CardView `json:"hand,omitempty"` // populated only for the viewer
}

// Snapshot is the full state visible to one player.
type Snapshot struct {
	HandNum     uint16                  `json:"handNum"`
	Round       uint8                   `json:"round"`
	Table       [NumRounds][2]*CardView `json:"table"`
	RoundWins   [NumRounds]int8         `json:"roundWins"`
	Players     [2]PlayerView           `json:"players"`
	TrucoLevel  uint8                   `json:"trucoLevel"`
	HandValue   uint8                   `json:"handValue"`
	Pending     *Challenge              `json:"pending,omitempty"`
	EnvidoOffer uint8                   `json:"envidoOffer,omitempty"`
	EnvidoOpen  bool                    `json:"envidoOpen"`
	HandOver    bool                    `json:"handOver"`
	Finished    bool                    `json:"finished"`
	Winner      int8                    `json:"winner"`
}

// Snapshot renders the state as seen by viewer. A negative viewer index
// yields the spectator view (no hands revealed).
func (s *State) Snapshot(viewer int8) Snapshot {
	snap := Snapshot{
		HandNum:    s.HandNum,
		Round:      s.Round,
		RoundWins:  s.RoundWins,
		TrucoLevel: s.TrucoLevel,
		HandValue:  s.HandPointValue(),
		EnvidoOpen: !s.EnvidoClosed && !s.cardPlayedThisHand() && !s.HandOver,
		HandOver:   s.HandOver,
		Finished:   s.Finished,
		Winner:     s.Winner,
	}
	if s.Pending.Kind != ChallengeNone {
		p := s.Pending
		snap.Pending = &p
		if p.Kind == ChallengeEnvido {
			snap.EnvidoOffer = s.EnvidoOffer
		}
	}

	for r := 0; r < NumRounds; r++ {
		snap.Table[r][0] = viewOf(s.Table[r][0])
		snap.Table[r][1] = viewOf(s.Table[r][1])
	}

	next := s.NextActor()
	for p := int8(0); p < NumPlayers; p++ {
		pv := PlayerView{
			Score:  s.Scores[p],
			IsMano: uint8(p) == s.Mano(),
			ToAct:  p == next,
		}
		for c := 0; c < HandSize; c++ {
			if !s.Used[p][c] {
				pv.HandSize++
				if p == viewer {
					cv := *viewOf(s.Hands[p][c])
					idx := c
					cv.Idx = &idx
					pv.Hand = append(pv.Hand, cv)
				}
			}
		}
		snap.Players[p] = pv
	}
	return snap
}
