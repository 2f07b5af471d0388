package truco

import "testing"

// TestPowerOrdering verifies the canonical strength order of the deck's
// notable cards.
func TestPowerOrdering(t *testing.T) {
	order := []Card{
		NewCard(SuitEspada, 1),
		NewCard(SuitBasto, 1),
		NewCard(SuitEspada, 7),
		NewCard(SuitOro, 7),
		NewCard(SuitCopa, 3),
		NewCard(SuitBasto, 2),
		NewCard(SuitOro, 1),
		NewCard(SuitCopa, 12),
		NewCard(SuitEspada, 11),
		NewCard(SuitBasto, 10),
		NewCard(SuitCopa, 7),
		NewCard(SuitOro, 6),
		NewCard(SuitEspada, 5),
		NewCard(SuitBasto, 4),
	}
	for i := 1; i < len(order); i++ {
		hi, lo := order[i-1], order[i]
		if hi.Power() <= lo.Power() {
			t.Errorf("Power(%d/%d)=%d should exceed Power(%d/%d)=%d",
				hi.Face(), hi.Suit(), hi.Power(), lo.Face(), lo.Suit(), lo.Power())
		}
	}
}

// TestFalseAcesAndSevens verifies the off-suit aces and sevens rank as
// ordinary cards.
func TestFalseAcesAndSevens(t *testing.T) {
	if NewCard(SuitOro, 1).Power() != NewCard(SuitCopa, 1).Power() {
		t.Error("false aces should rank equal")
	}
	if NewCard(SuitCopa, 7).Power() != NewCard(SuitBasto, 7).Power() {
		t.Error("false sevens should rank equal")
	}
	if NewCard(SuitOro, 1).Power() <= NewCard(SuitCopa, 12).Power() {
		t.Error("false ace should beat a twelve")
	}
}

// TestEnvidoValue verifies figures count zero and pips count face value.
func TestEnvidoValue(t *testing.T) {
	cases := []struct {
		face uint8
		want uint8
	}{
		{1, 1}, {7, 7}, {10, 0}, {11, 0}, {12, 0},
	}
	for _, c := range cases {
		card := NewCard(SuitOro, c.face)
		if got := card.EnvidoValue(); got != c.want {
			t.Errorf("EnvidoValue(face %d) = %d, want %d", c.face, got, c.want)
		}
	}
}

// TestEnvidoPoints verifies the 20-base pair count and the fallback single
// card count.
func TestEnvidoPoints(t *testing.T) {
	cases := []struct {
		name string
		hand [HandSize]Card
		want uint8
	}{
		{
			"seven and six same suit",
			[HandSize]Card{NewCard(SuitOro, 7), NewCard(SuitOro, 6), NewCard(SuitBasto, 2)},
			33,
		},
		{
			"figure pairs with pip",
			[HandSize]Card{NewCard(SuitCopa, 12), NewCard(SuitCopa, 5), NewCard(SuitEspada, 1)},
			25,
		},
		{
			"no pair takes highest pip",
			[HandSize]Card{NewCard(SuitOro, 7), NewCard(SuitBasto, 4), NewCard(SuitEspada, 2)},
			7,
		},
		{
			"three of a suit uses two highest",
			[HandSize]Card{NewCard(SuitOro, 7), NewCard(SuitOro, 6), NewCard(SuitOro, 2)},
			33,
		},
	}
	for _, c := range cases {
		if got := envidoPoints(c.hand); got != c.want {
			t.Errorf("%s: envidoPoints = %d, want %d", c.name, got, c.want)
		}
	}
}

// TestFlorPredicate verifies the same-suit predicate and the flor count.
func TestFlorPredicate(t *testing.T) {
	flor := [HandSize]Card{NewCard(SuitCopa, 7), NewCard(SuitCopa, 6), NewCard(SuitCopa, 12)}
	if !hasFlor(flor) {
		t.Error("three copas should be flor")
	}
	if got := florPoints(flor); got != 33 {
		t.Errorf("florPoints = %d, want 33", got)
	}
	noFlor := [HandSize]Card{NewCard(SuitCopa, 7), NewCard(SuitOro, 6), NewCard(SuitCopa, 12)}
	if hasFlor(noFlor) {
		t.Error("mixed suits should not be flor")
	}
}

// TestDeckComposition verifies a fresh hand deals from a 40-card deck with
// no duplicates across hands.
func TestDeckComposition(t *testing.T) {
	s := NewMatch(42, DefaultMatchRules())
	seen := make(map[Card]bool)
	for p := 0; p < NumPlayers; p++ {
		for c := 0; c < HandSize; c++ {
			card := s.Hands[p][c]
			if card == EmptyCard {
				t.Fatalf("player %d dealt EmptyCard at %d", p, c)
			}
			if card.Face() == 8 || card.Face() == 9 {
				t.Errorf("dealt face %d, not part of the deck", card.Face())
			}
			if seen[card] {
				t.Errorf("duplicate card dealt: suit=%d face=%d", card.Suit(), card.Face())
			}
			seen[card] = true
		}
	}
}

// TestSeedZeroCorrected verifies that seed 0 is corrected for xorshift.
func TestSeedZeroCorrected(t *testing.T) {
	s := NewMatch(0, DefaultMatchRules())
	if s.RNG == 0 {
		t.Error("RNG must not be 0")
	}
}

// TestDeterministicDeal verifies equal seeds produce equal hands.
func TestDeterministicDeal(t *testing.T) {
	a := NewMatch(7, DefaultMatchRules())
	b := NewMatch(7, DefaultMatchRules())
	if a.Hands != b.Hands {
		t.Error("equal seeds should deal equal hands")
	}
}
