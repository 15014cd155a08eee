package engine

// The legality oracle answers "what could this seat do" by running the same
// plan functions the executor uses, on hypothetical copies of the table when
// a split needs its first leg applied. The executor and the oracle therefore
// cannot disagree about a rule.

// Destination is one reachable landing for a marble.
type Destination struct {
	Marble   MarbleRef
	Spaces   uint8      // 0 for enter and joker
	Home     HomeChoice // choice that selects this landing on a forward move
	Backward bool
	To       Marble
	Target   MarbleRef // joker victim, NoMarble otherwise
}

// Candidate is a complete legal use of one card in hand.
type Candidate struct {
	CardIndex uint8
	Card      Card
	Play      Play
}

// forwardOptions lists the distinct landings of a forward move of n. A move
// that reaches the home entry yields up to two, one per explicit choice.
func (g *GameState) forwardOptions(ref MarbleRef, n uint8) []Destination {
	m := g.Marble(ref)
	if m.Loc == LocTrack {
		if _, crossing := reachesHomeEntry(ref.Owner, m.Pos, n); crossing {
			var out []Destination
			for _, c := range [2]HomeChoice{HomeEnter, HomePass} {
				if to, err := g.planForward(ref, n, c); err == nil {
					out = append(out, Destination{Marble: ref, Spaces: n, Home: c, To: to, Target: NoMarble})
				}
			}
			return out
		}
	}
	to, err := g.planForward(ref, n, HomePass)
	if err != nil {
		return nil
	}
	return []Destination{{Marble: ref, Spaces: n, Home: HomeAuto, To: to, Target: NoMarble}}
}

// HomeOptions reports which of the two landings a forward move of n would
// have: entering home and staying on the track. A move that never reaches the
// home entry reports only the track option.
func (g *GameState) HomeOptions(ref MarbleRef, n uint8) (enter, pass bool) {
	if !ref.Valid() {
		return false, false
	}
	for _, d := range g.forwardOptions(ref, n) {
		switch {
		case d.To.Loc == LocHome:
			enter = true
		default:
			pass = true
		}
	}
	return enter, pass
}

// jokerTargets lists every marble source may jump onto.
func (g *GameState) jokerTargets(source MarbleRef) []Destination {
	var out []Destination
	for cell := uint8(0); cell < TrackLen; cell++ {
		target := g.Track[cell]
		if target.IsEmpty() {
			continue
		}
		if to, err := g.planJoker(source, target); err == nil {
			out = append(out, Destination{Marble: source, To: to, Target: target})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Play enumeration
// ---------------------------------------------------------------------------

// eachPlay calls yield for every legal play of card by seat until yield
// returns false. It reports whether enumeration ran to the end.
func (g *GameState) eachPlay(seat Seat, card Card, yield func(Play) bool) bool {
	refs := g.Controllable(seat)
	switch card.Kind() {
	case KindEnter:
		for _, ref := range refs {
			if _, err := g.planEnter(ref); err == nil {
				if !yield(Play{Action: ActionEnter, Marble: ref, Target: NoMarble}) {
					return false
				}
			}
		}
		return g.eachForward(refs, card.Spaces(), yield)

	case KindForward:
		return g.eachForward(refs, card.Spaces(), yield)

	case KindBackward:
		for _, ref := range refs {
			if _, err := g.planBackward(ref, card.Spaces()); err == nil {
				if !yield(Play{Action: ActionMove, Marble: ref, Target: NoMarble}) {
					return false
				}
			}
		}

	case KindSeven:
		if !g.eachForward(refs, sevenTotal, yield) {
			return false
		}
		return g.eachSplit(seat, KindSeven, yield)

	case KindNine:
		return g.eachSplit(seat, KindNine, yield)

	case KindJoker:
		for _, ref := range refs {
			for _, d := range g.jokerTargets(ref) {
				if !yield(Play{Action: ActionJoker, Marble: ref, Target: d.Target}) {
					return false
				}
			}
		}
	}
	return true
}

func (g *GameState) eachForward(refs []MarbleRef, n uint8, yield func(Play) bool) bool {
	for _, ref := range refs {
		for _, d := range g.forwardOptions(ref, n) {
			if !yield(Play{Action: ActionMove, Marble: ref, Target: NoMarble, Home: d.Home}) {
				return false
			}
		}
	}
	return true
}

// eachSplit enumerates two-leg plays of a 7 or 9. The first leg is applied to a
// copy of the table so the second leg sees its captures and any control over
// the teammate's marbles that finishing the seat unlocks. A first leg that
// wins the game outright is yielded on its own.
func (g *GameState) eachSplit(seat Seat, kind CardKind, yield func(Play) bool) bool {
	total := uint8(sevenTotal)
	if kind == KindNine {
		total = nineTotal
	}
	for _, a := range g.Controllable(seat) {
		for k := uint8(1); k < total; k++ {
			for _, d1 := range g.forwardOptions(a, k) {
				first := SubMove{Marble: a, Spaces: k, Home: d1.Home}
				sim := *g
				sim.apply(a, d1.To)
				if sim.checkWin() {
					if !yield(Play{Action: ActionSplit, Target: NoMarble, Moves: []SubMove{first}}) {
						return false
					}
					continue
				}
				rest := total - k
				for _, b := range sim.Controllable(seat) {
					if b == a {
						continue
					}
					if kind == KindNine {
						if _, err := sim.planBackward(b, rest); err == nil {
							second := SubMove{Marble: b, Spaces: rest}
							if !yield(Play{Action: ActionSplit, Target: NoMarble, Moves: []SubMove{first, second}}) {
								return false
							}
						}
						continue
					}
					for _, d2 := range sim.forwardOptions(b, rest) {
						second := SubMove{Marble: b, Spaces: rest, Home: d2.Home}
						if !yield(Play{Action: ActionSplit, Target: NoMarble, Moves: []SubMove{first, second}}) {
							return false
						}
					}
				}
			}
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Public oracle
// ---------------------------------------------------------------------------

// CardPlayable reports whether seat could use card for any legal play.
func (g *GameState) CardPlayable(seat Seat, card Card) bool {
	if !seat.Valid() {
		return false
	}
	found := false
	g.eachPlay(seat, card, func(Play) bool {
		found = true
		return false
	})
	return found
}

// HasLegalPlay reports whether seat can complete its pending split or use any
// other card in hand. Discarding is only allowed when this is false.
func (g *GameState) HasLegalPlay(seat Seat) bool {
	if !seat.Valid() {
		return false
	}
	if g.HasPendingSplit(seat) && g.hasSecondLeg(seat, g.Pending.Kind, g.Pending.First.Marble, g.Pending.Remaining) {
		return true
	}
	p := &g.Players[seat]
	for i := uint8(0); i < p.HandLen; i++ {
		if !g.cardSpent(seat, i) && g.CardPlayable(seat, p.Hand[i]) {
			return true
		}
	}
	return false
}

// LegalPlays enumerates every legal whole play for every card in seat's hand
// (allocates). A card that already played a split leg this turn is skipped.
func (g *GameState) LegalPlays(seat Seat) []Candidate {
	if !seat.Valid() {
		return nil
	}
	var out []Candidate
	p := &g.Players[seat]
	for i := uint8(0); i < p.HandLen; i++ {
		if g.cardSpent(seat, i) {
			continue
		}
		card := p.Hand[i]
		g.eachPlay(seat, card, func(pl Play) bool {
			out = append(out, Candidate{CardIndex: i, Card: card, Play: pl})
			return true
		})
	}
	return out
}

// LegalDestinations returns every landing reachable by ref when card is played
// with ref as the only or first marble. For a 7 or 9 a first leg is listed
// only if some second leg could follow it.
func (g *GameState) LegalDestinations(seat Seat, card Card, ref MarbleRef) []Destination {
	if !seat.Valid() || !ref.Valid() || !g.CanControl(seat, ref.Owner) {
		return nil
	}
	switch kind := card.Kind(); kind {
	case KindEnter:
		var out []Destination
		if to, err := g.planEnter(ref); err == nil {
			out = append(out, Destination{Marble: ref, To: to, Target: NoMarble})
		}
		return append(out, g.forwardOptions(ref, card.Spaces())...)

	case KindForward:
		return g.forwardOptions(ref, card.Spaces())

	case KindBackward:
		if to, err := g.planBackward(ref, card.Spaces()); err == nil {
			return []Destination{{Marble: ref, Spaces: card.Spaces(), Backward: true, To: to, Target: NoMarble}}
		}

	case KindSeven, KindNine:
		total := uint8(sevenTotal)
		if kind == KindNine {
			total = nineTotal
		}
		var out []Destination
		for k := uint8(1); k <= total; k++ {
			for _, d := range g.forwardOptions(ref, k) {
				if k == total {
					if kind == KindSeven {
						out = append(out, d)
					}
					continue
				}
				sim := *g
				sim.apply(ref, d.To)
				if sim.checkWin() || sim.hasSecondLeg(seat, kind, ref, total-k) {
					out = append(out, d)
				}
			}
		}
		return out

	case KindJoker:
		return g.jokerTargets(ref)
	}
	return nil
}

// CompletionDestinations returns the landings ref could reach as the second
// leg of seat's pending split.
func (g *GameState) CompletionDestinations(seat Seat, ref MarbleRef) []Destination {
	p := g.Pending
	if !p.Active || p.Seat != seat || !ref.Valid() || ref == p.First.Marble || !g.CanControl(seat, ref.Owner) {
		return nil
	}
	if p.Kind == KindNine {
		if to, err := g.planBackward(ref, p.Remaining); err == nil {
			return []Destination{{Marble: ref, Spaces: p.Remaining, Backward: true, To: to, Target: NoMarble}}
		}
		return nil
	}
	return g.forwardOptions(ref, p.Remaining)
}

// ApplyCandidate executes a play produced by LegalPlays. Splits run through
// the two-phase protocol unless the seat already started a split this turn,
// in which case the whole split is played at once.
func (g *GameState) ApplyCandidate(seat Seat, c Candidate) (Outcome, error) {
	startedSplit := g.Pending.Spent && g.Pending.Seat == seat
	if c.Play.Action != ActionSplit || len(c.Play.Moves) == 0 || startedSplit {
		return g.PlayCard(seat, c.CardIndex, c.Play)
	}
	out, err := g.BeginPartialMove(seat, c.CardIndex, c.Play.Moves[0])
	if err != nil || out.Completed || out.GameOver || len(c.Play.Moves) < 2 {
		return out, err
	}
	second, err := g.CompletePartialMove(seat, c.Play.Moves[1])
	if err != nil {
		return out, err
	}
	second.Effects = append(out.Effects, second.Effects...)
	return second, nil
}
