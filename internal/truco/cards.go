// Package truco implements the rules of the escalating-stakes card game:
// three-round hands over a 40-card Spanish deck, the truco/retruco/vale-cuatro
// point ladder, the envido side-bet ladder, flor, and match scoring to a
// fixed target.
//
// The package is pure: no I/O, no clocks, no logging. All state lives in a
// flat, serializable State value so the service layer can persist it as an
// opaque blob and replay it deterministically.
package truco

// Suit constants, packed into the upper 4 bits of Card.
const (
	SuitEspada uint8 = 0
	SuitBasto  uint8 = 1
	SuitOro    uint8 = 2
	SuitCopa   uint8 = 3
)

// faces lists the card faces of the Spanish deck in deal order. Eights and
// nines are not part of the deck.
var faces = [10]uint8{1, 2, 3, 4, 5, 6, 7, 10, 11, 12}

const (
	NumPlayers = 2
	HandSize   = 3
	NumRounds  = 3
	DeckSize   = 40
)

// Card is a packed uint8: upper 4 bits = suit, lower 4 bits = face index
// into faces.
type Card uint8

// EmptyCard represents the absence of a card.
const EmptyCard Card = 0xFF

// NewCard constructs a Card from a suit and a face value (1-7, 10-12).
func NewCard(suit, face uint8) Card {
	for i, f := range faces {
		if f == face {
			return Card((suit << 4) | uint8(i))
		}
	}
	return EmptyCard
}

// Suit returns the suit bits (upper 4).
func (c Card) Suit() uint8 { return uint8(c) >> 4 }

// Face returns the printed face value (1-7, 10-12).
func (c Card) Face() uint8 {
	if c == EmptyCard {
		return 0
	}
	return faces[uint8(c)&0x0F]
}

// Power returns the card's strength in round comparison. Higher wins.
// The ordering is the canonical one, not numeric face order:
//
//	14 ace of espadas    8 ace of oros / copas
//	13 ace of bastos     7 twelves
//	12 seven of espadas  6 elevens
//	11 seven of oros     5 tens
//	10 threes            4 seven of copas / bastos
//	 9 twos              3 sixes, 2 fives, 1 fours
func (c Card) Power() uint8 {
	f, s := c.Face(), c.Suit()
	switch {
	case f == 1 && s == SuitEspada:
		return 14
	case f == 1 && s == SuitBasto:
		return 13
	case f == 7 && s == SuitEspada:
		return 12
	case f == 7 && s == SuitOro:
		return 11
	}
	switch f {
	case 3:
		return 10
	case 2:
		return 9
	case 1:
		return 8
	case 12:
		return 7
	case 11:
		return 6
	case 10:
		return 5
	case 7:
		return 4
	case 6:
		return 3
	case 5:
		return 2
	case 4:
		return 1
	}
	return 0
}

// EnvidoValue returns the card's contribution to an envido count: face value
// for 1-7, zero for the figures.
func (c Card) EnvidoValue() uint8 {
	f := c.Face()
	if f >= 10 {
		return 0
	}
	return f
}

// envidoPoints computes the envido count of a three-card hand: with two or
// more cards of one suit, 20 plus the two highest values of that suit;
// otherwise the single highest card value.
func envidoPoints(hand [HandSize]Card) uint8 {
	best := uint8(0)
	for s := uint8(0); s < 4; s++ {
		var vals []uint8
		for _, c := range hand {
			if c.Suit() == s {
				vals = append(vals, c.EnvidoValue())
			}
		}
		var pts uint8
		switch len(vals) {
		case 0:
			continue
		case 1:
			pts = vals[0]
		default:
			// Two highest of the suit plus the 20 base.
			hi, second := uint8(0), uint8(0)
			for _, v := range vals {
				if v > hi {
					second = hi
					hi = v
				} else if v > second {
					second = v
				}
			}
			pts = 20 + hi + second
		}
		if pts > best {
			best = pts
		}
	}
	return best
}

// hasFlor reports whether all three cards share one suit.
func hasFlor(hand [HandSize]Card) bool {
	return hand[0].Suit() == hand[1].Suit() && hand[1].Suit() == hand[2].Suit()
}

// florPoints is 20 plus the sum of all three envido values.
func florPoints(hand [HandSize]Card) uint8 {
	return 20 + hand[0].EnvidoValue() + hand[1].EnvidoValue() + hand[2].EnvidoValue()
}
