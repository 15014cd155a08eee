package engine

import "fmt"

const (
	sevenTotal = 7
	nineTotal  = 9
)

// SplitSeven applies one or two forward sub-moves totalling exactly 7. The
// second sub-move sees the board, and the control rights, left by the first.
// If any sub-move fails the table is restored.
func (g *GameState) SplitSeven(seat Seat, moves []SubMove) ([]Effect, error) {
	if len(moves) == 0 || len(moves) > 2 {
		return nil, fmt.Errorf("%w: a 7 takes one or two sub-moves, got %d", ErrIllegalSplit, len(moves))
	}
	total := 0
	for _, mv := range moves {
		if mv.Spaces == 0 {
			return nil, fmt.Errorf("%w: empty sub-move", ErrIllegalSplit)
		}
		total += int(mv.Spaces)
	}
	if total != sevenTotal {
		return nil, fmt.Errorf("%w: sub-moves total %d, need 7", ErrIllegalSplit, total)
	}
	if len(moves) == 2 && moves[0].Marble == moves[1].Marble {
		return nil, fmt.Errorf("%w: both sub-moves use %s", ErrIllegalSplit, moves[0].Marble)
	}

	snap := g.Save()
	var effects []Effect
	for _, mv := range moves {
		eff, err := g.MoveForward(seat, mv.Marble, mv.Spaces, mv.Home)
		if err != nil {
			g.Restore(snap)
			return nil, err
		}
		effects = append(effects, eff...)
	}
	return effects, nil
}

// SplitNine moves one marble forward 1–8 and then a different track marble
// backward by the remainder of 9. If either leg fails the table is restored.
func (g *GameState) SplitNine(seat Seat, forward, backward SubMove) ([]Effect, error) {
	if forward.Spaces == 0 || forward.Spaces >= nineTotal {
		return nil, fmt.Errorf("%w: forward leg of a 9 must be 1-8, got %d", ErrIllegalSplit, forward.Spaces)
	}
	if int(forward.Spaces)+int(backward.Spaces) != nineTotal {
		return nil, fmt.Errorf("%w: legs total %d, need 9", ErrIllegalSplit, int(forward.Spaces)+int(backward.Spaces))
	}
	if forward.Marble == backward.Marble {
		return nil, fmt.Errorf("%w: both legs use %s", ErrIllegalSplit, forward.Marble)
	}

	snap := g.Save()
	effects, err := g.MoveForward(seat, forward.Marble, forward.Spaces, forward.Home)
	if err != nil {
		return nil, err
	}
	back, err := g.MoveBackward(seat, backward.Marble, backward.Spaces)
	if err != nil {
		g.Restore(snap)
		return nil, err
	}
	return append(effects, back...), nil
}

// winningLeg plays a lone first leg shorter than the card's total. It is only
// allowed when it finishes the seat's team, which ends the game mid-card.
func (g *GameState) winningLeg(seat Seat, total uint8, mv SubMove) ([]Effect, error) {
	if mv.Spaces == 0 || mv.Spaces >= total {
		return nil, fmt.Errorf("%w: first leg must be 1-%d, got %d", ErrIllegalSplit, total-1, mv.Spaces)
	}
	snap := g.Save()
	effects, err := g.MoveForward(seat, mv.Marble, mv.Spaces, mv.Home)
	if err != nil {
		return nil, err
	}
	seats := seat.Team().Seats()
	if !g.IsFinished(seats[0]) || !g.IsFinished(seats[1]) {
		g.Restore(snap)
		return nil, fmt.Errorf("%w: legs total %d, need %d", ErrIllegalSplit, mv.Spaces, total)
	}
	return effects, nil
}

// ---------------------------------------------------------------------------
// Two-phase split: Idle -> AwaitingSecondMove -> Idle
// ---------------------------------------------------------------------------

// BeginPartialMove plays the first leg of a 7 or 9 held at cardIndex. The
// board is mutated immediately and the card stays in hand until the second
// leg. A first leg after which no second leg could be completed is refused.
// A 7 that uses all seven spaces on one marble finishes the card at once.
// While a split is pending the seat must complete it, or end the turn with
// another whole card or a discard. Only one split may be started per turn.
func (g *GameState) BeginPartialMove(seat Seat, cardIndex uint8, first SubMove) (Outcome, error) {
	card, err := g.checkTurn(seat, cardIndex)
	if err != nil {
		return Outcome{}, err
	}
	if g.HasPendingSplit(seat) {
		return Outcome{}, fmt.Errorf("%w: %s has a split waiting for its second leg", ErrIllegalSplit, seat)
	}
	if g.Pending.Spent && g.Pending.Seat == seat {
		return Outcome{}, fmt.Errorf("%w: %s already started a split this turn", ErrIllegalSplit, seat)
	}
	kind := card.Kind()
	total := uint8(sevenTotal)
	switch kind {
	case KindSeven:
		if first.Spaces == 0 || first.Spaces > sevenTotal {
			return Outcome{}, fmt.Errorf("%w: first leg of a 7 must be 1-7, got %d", ErrIllegalSplit, first.Spaces)
		}
	case KindNine:
		total = nineTotal
		if first.Spaces == 0 || first.Spaces >= nineTotal {
			return Outcome{}, fmt.Errorf("%w: forward leg of a 9 must be 1-8, got %d", ErrIllegalSplit, first.Spaces)
		}
	default:
		return Outcome{}, fmt.Errorf("%w: %s cannot be split", ErrCardMismatch, card)
	}

	snap := g.Save()
	effects, err := g.MoveForward(seat, first.Marble, first.Spaces, first.Home)
	if err != nil {
		g.Restore(snap)
		return Outcome{}, err
	}

	if kind == KindSeven && first.Spaces == sevenTotal {
		return g.finishCard(seat, cardIndex, effects), nil
	}

	remaining := total - first.Spaces
	out := Outcome{
		Effects:      effects,
		Remaining:    remaining,
		SeatFinished: g.IsFinished(seat),
		Winner:       NoTeam,
	}
	if g.checkWin() {
		out.GameOver, out.Winner = true, g.Winner
		return out, nil
	}
	if !g.hasSecondLeg(seat, kind, first.Marble, remaining) {
		g.Restore(snap)
		return Outcome{}, fmt.Errorf("%w: no marble can take the remaining %d", ErrIllegalSplit, remaining)
	}

	g.Pending = PendingSplit{
		Active:    true,
		Spent:     true,
		Seat:      seat,
		CardIndex: cardIndex,
		Kind:      kind,
		First:     first,
		Remaining: remaining,
	}
	return out, nil
}

// CompletePartialMove plays the second leg of the pending split. On failure the
// pending record stays so the seat can try another second leg.
func (g *GameState) CompletePartialMove(seat Seat, second SubMove) (Outcome, error) {
	p := g.Pending
	if !p.Active || p.Seat != seat {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNoPendingSplit, seat)
	}
	if _, err := g.checkTurn(seat, p.CardIndex); err != nil {
		return Outcome{}, err
	}
	if second.Spaces == 0 {
		second.Spaces = p.Remaining
	}
	if second.Spaces != p.Remaining {
		return Outcome{}, fmt.Errorf("%w: second leg must use %d spaces, got %d", ErrIllegalSplit, p.Remaining, second.Spaces)
	}
	if second.Marble == p.First.Marble {
		return Outcome{}, fmt.Errorf("%w: second leg reuses %s", ErrIllegalSplit, second.Marble)
	}

	var effects []Effect
	var err error
	if p.Kind == KindNine {
		effects, err = g.MoveBackward(seat, second.Marble, second.Spaces)
	} else {
		effects, err = g.MoveForward(seat, second.Marble, second.Spaces, second.Home)
	}
	if err != nil {
		return Outcome{}, err
	}

	g.clearPending()
	return g.finishCard(seat, p.CardIndex, effects), nil
}

// AbandonPartialMove drops seat's pending split without undoing the first leg.
// The card stays in hand but cannot be played again this turn. It reports
// whether anything was pending.
func (g *GameState) AbandonPartialMove(seat Seat) bool {
	if !g.Pending.Active || g.Pending.Seat != seat {
		return false
	}
	g.Pending = PendingSplit{Spent: true, Seat: seat, CardIndex: g.Pending.CardIndex}
	return true
}

// HasPendingSplit reports whether seat is between the two legs of a split.
func (g *GameState) HasPendingSplit(seat Seat) bool {
	return g.Pending.Active && g.Pending.Seat == seat
}

func (g *GameState) clearPending() { g.Pending = PendingSplit{} }

// cardSpent reports whether the card at cardIndex already played a split leg
// this turn.
func (g *GameState) cardSpent(seat Seat, cardIndex uint8) bool {
	return g.Pending.Spent && g.Pending.Seat == seat && g.Pending.CardIndex == cardIndex
}

// hasSecondLeg reports whether some controllable marble other than used can
// complete a split with the remaining spaces on the current board.
func (g *GameState) hasSecondLeg(seat Seat, kind CardKind, used MarbleRef, remaining uint8) bool {
	for _, ref := range g.Controllable(seat) {
		if ref == used {
			continue
		}
		if kind == KindNine {
			if _, err := g.planBackward(ref, remaining); err == nil {
				return true
			}
			continue
		}
		if len(g.forwardOptions(ref, remaining)) > 0 {
			return true
		}
	}
	return false
}
