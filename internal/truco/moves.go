// internal/truco/moves.go
package truco

// Move application. Every exported method validates fully before mutating:
// an error return means the state is unchanged.

// guard rejects moves outside an in-progress hand.
func (s *State) guard() error {
	if s.Finished {
		return ErrMatchOver
	}
	if s.HandOver {
		return ErrHandOver
	}
	return nil
}

// PlayCard places the actor's hand card at cardIdx on the table for the
// current round. Legal only with no pending challenge, on the actor's turn,
// with a card not yet played.
func (s *State) PlayCard(actor int8, cardIdx uint8) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.Pending.Kind != ChallengeNone {
		return nil, ErrChallengePending
	}
	if actor != int8(s.ToPlay) {
		return nil, ErrOutOfTurn
	}
	if cardIdx >= HandSize || s.Used[actor][cardIdx] {
		return nil, ErrCardUnavailable
	}

	card := s.Hands[actor][cardIdx]
	s.Used[actor][cardIdx] = true
	s.Table[s.Round][actor] = card

	events := []Event{{Type: EventCardPlayed, Actor: actor, Card: card, Round: s.Round}}

	if s.Table[s.Round][0] != EmptyCard && s.Table[s.Round][1] != EmptyCard {
		events = s.resolveRound(events)
	} else {
		s.ToPlay = uint8(1 - actor)
	}
	return events, nil
}

// resolveRound compares the two cards on the table, records the result,
// and either ends the hand or opens the next round.
func (s *State) resolveRound(events []Event) []Event {
	p0, p1 := s.Table[s.Round][0].Power(), s.Table[s.Round][1].Power()
	result := RoundParda
	switch {
	case p0 > p1:
		result = 0
	case p1 > p0:
		result = 1
	}
	s.RoundWins[s.Round] = result
	events = append(events, Event{Type: EventRoundResolved, Actor: result, Round: s.Round, Winner: result})

	if w := s.handDecision(); w >= 0 {
		return s.endHand(w, s.HandPointValue(), events)
	}

	// Winner of the round leads the next; a parda keeps the prior leader.
	if result != RoundParda {
		s.Lead = uint8(result)
	}
	s.Round++
	s.ToPlay = s.Lead
	return events
}

// handDecision inspects resolved rounds and returns the hand winner, or -1
// while the hand is undecided. Parda rules: a tied opening round is decided
// by the second; a tie after a won round goes to that round's winner; three
// ties go to the mano.
func (s *State) handDecision() int8 {
	var resolved []int8
	for r := 0; r < NumRounds; r++ {
		if s.RoundWins[r] == RoundOpen {
			break
		}
		resolved = append(resolved, s.RoundWins[r])
	}

	var wins [2]uint8
	for _, w := range resolved {
		if w >= 0 {
			wins[w]++
		}
	}
	if wins[0] >= 2 {
		return 0
	}
	if wins[1] >= 2 {
		return 1
	}

	n := len(resolved)
	if n >= 2 {
		if resolved[0] == RoundParda && resolved[1] >= 0 {
			return resolved[1]
		}
		if resolved[0] >= 0 && resolved[1] == RoundParda {
			return resolved[0]
		}
	}
	if n == 3 {
		if resolved[2] >= 0 {
			return resolved[2]
		}
		// Third round tied: first won round decides, else mano.
		if resolved[0] >= 0 {
			return resolved[0]
		}
		if resolved[1] >= 0 {
			return resolved[1]
		}
		return int8(s.Mano())
	}
	return -1
}

// endHand awards pts to winner and closes the hand. Appends hand-ended and,
// when the target is reached, match-ended events.
func (s *State) endHand(winner int8, pts uint8, events []Event) []Event {
	s.addPoints(winner, pts)
	s.HandOver = true
	s.HandWinner = winner
	s.HandValue = pts
	s.Pending = Challenge{}
	events = append(events, Event{Type: EventHandEnded, Actor: winner, Winner: winner, Points: pts})
	if s.Finished {
		events = append(events, Event{Type: EventMatchEnded, Actor: s.Winner, Winner: s.Winner})
	}
	return events
}

// CallTruco escalates the value ladder one level. With no pending challenge
// it opens the ladder on the caller's turn; with a truco challenge pending
// it counter-raises (which implicitly accepts the prior level). Each level
// may only be raised by the party that did not make the previous call, and
// the ladder freezes once the ace of espadas is on the table in the deciding
// round.
func (s *State) CallTruco(actor int8) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var level uint8
	switch s.Pending.Kind {
	case ChallengeNone:
		if actor != int8(s.ToPlay) {
			return nil, ErrOutOfTurn
		}
		if s.TrucoCaller == actor {
			return nil, ErrNotEntitled
		}
		level = s.TrucoLevel + 1
	case ChallengeTruco:
		if actor != 1-s.Pending.Caller {
			return nil, ErrNotEntitled
		}
		level = s.Pending.Level + 1
	default:
		return nil, ErrChallengePending
	}

	if level > LevelValeCuatro {
		return nil, ErrLadderExhausted
	}
	if s.decidingRound() && s.aceOfEspadasOnTable() {
		return nil, ErrEscalationBlocked
	}

	// A counter-raise commits the previously proposed level.
	if s.Pending.Kind == ChallengeTruco {
		s.TrucoLevel = s.Pending.Level
		s.TrucoCaller = s.Pending.Caller
	}
	s.Pending = Challenge{Kind: ChallengeTruco, Level: level, Caller: actor}
	return []Event{{Type: EventChallengeCalled, Actor: actor, Kind: ChallengeTruco, Level: level}}, nil
}

// envidoStake returns the incremental value of an envido ladder position.
func envidoStake(pos uint8) uint8 {
	switch pos {
	case EnvidoPlain:
		return 2
	case EnvidoReal:
		return 3
	}
	return 0 // falta is computed at resolution
}

// CallEnvido opens or raises the side-bet ladder at position pos
// (EnvidoPlain, EnvidoReal, or EnvidoFalta). The window closes as soon as
// any card of the hand has been played or the ladder has been resolved.
// Raises must ascend the ladder and alternate parties.
func (s *State) CallEnvido(actor int8, pos uint8) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if pos < EnvidoPlain || pos > EnvidoFalta {
		return nil, ErrLadderExhausted
	}
	if s.EnvidoClosed || s.cardPlayedThisHand() {
		return nil, ErrEnvidoClosed
	}

	switch s.Pending.Kind {
	case ChallengeNone:
		if actor != int8(s.ToPlay) {
			return nil, ErrOutOfTurn
		}
		s.EnvidoOffer = envidoStake(pos)
		s.EnvidoFallback = 1
	case ChallengeEnvido:
		if actor != 1-s.Pending.Caller {
			return nil, ErrNotEntitled
		}
		if pos <= s.Pending.Level {
			return nil, ErrLadderExhausted
		}
		s.EnvidoFallback = s.EnvidoOffer
		s.EnvidoOffer += envidoStake(pos)
	default:
		return nil, ErrChallengePending
	}

	s.EnvidoLadder = pos
	s.Pending = Challenge{Kind: ChallengeEnvido, Level: pos, Caller: actor}
	return []Event{{Type: EventChallengeCalled, Actor: actor, Kind: ChallengeEnvido, Level: pos}}, nil
}

// CallFlor short-circuits the envido ladder: legal only while the envido
// window is open and only when all three of the caller's dealt cards share a
// suit. Any pending envido challenge is superseded without penalty. Against
// a lone flor the caller takes the points outright; when both players hold
// flor the counted values decide, mano winning ties.
func (s *State) CallFlor(actor int8) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if !s.Rules.AllowFlor {
		return nil, ErrFlorDisabled
	}
	if s.EnvidoClosed || s.cardPlayedThisHand() {
		return nil, ErrEnvidoClosed
	}
	if s.Pending.Kind == ChallengeTruco {
		return nil, ErrChallengePending
	}
	if !hasFlor(s.Hands[actor]) {
		return nil, ErrNoFlor
	}

	s.Pending = Challenge{}
	s.EnvidoClosed = true
	pts := s.Rules.florPoints()

	winner := actor
	if other := 1 - actor; hasFlor(s.Hands[other]) {
		ca, co := florPoints(s.Hands[actor]), florPoints(s.Hands[other])
		winner = int8(s.Mano())
		switch {
		case ca > co:
			winner = actor
		case co > ca:
			winner = other
		}
	}
	s.addPoints(winner, pts)

	events := []Event{{Type: EventFlorShown, Actor: actor, Winner: winner, Points: pts}}
	if s.Finished {
		s.HandOver = true
		s.HandWinner = winner
		events = append(events, Event{Type: EventMatchEnded, Actor: s.Winner, Winner: s.Winner})
	}
	return events, nil
}

// Accept commits the pending challenge. For the value ladder, play resumes
// at the raised stake; for the envido ladder, counts are compared on the
// spot (mano wins ties) and the points credited immediately.
func (s *State) Accept(actor int8) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.Pending.Kind == ChallengeNone {
		return nil, ErrNothingPending
	}
	if actor != 1-s.Pending.Caller {
		return nil, ErrNotEntitled
	}

	events := []Event{{Type: EventChallengeAccepted, Actor: actor, Kind: s.Pending.Kind, Level: s.Pending.Level}}

	switch s.Pending.Kind {
	case ChallengeTruco:
		s.TrucoLevel = s.Pending.Level
		s.TrucoCaller = s.Pending.Caller
		s.Pending = Challenge{}
	case ChallengeEnvido:
		events = s.resolveEnvido(events)
	}
	return events, nil
}

// resolveEnvido compares counts and credits the stake. Falta envido plays
// for the points the match leader still needs.
func (s *State) resolveEnvido(events []Event) []Event {
	pts := s.EnvidoOffer
	if s.EnvidoLadder == EnvidoFalta {
		lead := s.Scores[0]
		if s.Scores[1] > lead {
			lead = s.Scores[1]
		}
		pts = s.Rules.targetScore() - lead
		if pts == 0 {
			pts = 1
		}
	}

	c0, c1 := envidoPoints(s.Hands[0]), envidoPoints(s.Hands[1])
	winner := int8(s.Mano())
	switch {
	case c0 > c1:
		winner = 0
	case c1 > c0:
		winner = 1
	}

	s.Pending = Challenge{}
	s.EnvidoClosed = true
	s.addPoints(winner, pts)

	events = append(events, Event{Type: EventEnvidoResolved, Actor: winner, Winner: winner, Points: pts})
	if s.Finished {
		s.HandOver = true
		s.HandWinner = winner
		events = append(events, Event{Type: EventMatchEnded, Actor: s.Winner, Winner: s.Winner})
	}
	return events
}

// Reject declines the pending challenge. Declining the value ladder ends the
// hand at the pre-raise value in the caller's favor; declining the side-bet
// ladder concedes the fallback value and play resumes.
func (s *State) Reject(actor int8) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.Pending.Kind == ChallengeNone {
		return nil, ErrNothingPending
	}
	if actor != 1-s.Pending.Caller {
		return nil, ErrNotEntitled
	}

	caller := s.Pending.Caller
	events := []Event{{Type: EventChallengeRejected, Actor: actor, Kind: s.Pending.Kind, Level: s.Pending.Level}}

	switch s.Pending.Kind {
	case ChallengeTruco:
		return s.endHand(caller, s.Pending.Level, events), nil
	case ChallengeEnvido:
		pts := s.EnvidoFallback
		s.Pending = Challenge{}
		s.EnvidoClosed = true
		s.addPoints(caller, pts)
		events = append(events, Event{Type: EventEnvidoResolved, Actor: caller, Winner: caller, Points: pts})
		if s.Finished {
			s.HandOver = true
			s.HandWinner = caller
			events = append(events, Event{Type: EventMatchEnded, Actor: s.Winner, Winner: s.Winner})
		}
	}
	return events, nil
}

// Fold concedes the hand at its current committed value. Only the player
// expected to act may fold; it doubles as the synthesized move for turn
// timeouts. Folding on a pending value raise is equivalent to rejecting it;
// folding on a pending side bet concedes the fallback as well as the hand.
func (s *State) Fold(actor int8) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.NextActor() != actor {
		return nil, ErrOutOfTurn
	}

	opp := 1 - actor
	events := []Event{{Type: EventFold, Actor: actor}}

	if s.Pending.Kind == ChallengeTruco {
		return s.endHand(opp, s.Pending.Level, events), nil
	}

	if s.Pending.Kind == ChallengeEnvido {
		caller := s.Pending.Caller
		pts := s.EnvidoFallback
		s.Pending = Challenge{}
		s.EnvidoClosed = true
		s.addPoints(caller, pts)
		events = append(events, Event{Type: EventEnvidoResolved, Actor: caller, Winner: caller, Points: pts})
		if s.Finished {
			s.HandOver = true
			s.HandWinner = caller
			return append(events, Event{Type: EventMatchEnded, Actor: s.Winner, Winner: s.Winner}), nil
		}
	}

	return s.endHand(opp, s.HandPointValue(), events), nil
}
