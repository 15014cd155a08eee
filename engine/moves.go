package engine

import "fmt"

// ---------------------------------------------------------------------------
// Reference and control checks
// ---------------------------------------------------------------------------

func checkSeat(seat Seat) error {
	if !seat.Valid() {
		return fmt.Errorf("%w: seat %d", ErrInvalidReference, seat)
	}
	return nil
}

// checkControl validates ref and that seat may move it.
func (g *GameState) checkControl(seat Seat, ref MarbleRef) error {
	if err := checkSeat(seat); err != nil {
		return err
	}
	if !ref.Valid() {
		return fmt.Errorf("%w: marble %s", ErrInvalidReference, ref)
	}
	if !g.CanControl(seat, ref.Owner) {
		return fmt.Errorf("%w: %s cannot move %s", ErrNotController, seat, ref)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Planning: compute a destination without touching the board
// ---------------------------------------------------------------------------

// planEnter returns the track entry cell for a marble leaving start.
func (g *GameState) planEnter(ref MarbleRef) (Marble, error) {
	m := g.Marble(ref)
	if m.Loc != LocStart {
		return Marble{}, fmt.Errorf("%w: %s is on %s, not in start", ErrInvalidMarbleState, ref, m.Loc)
	}
	cell := ref.Owner.TrackEntry()
	if g.ownAt(ref.Owner, cell) {
		return Marble{}, fmt.Errorf("%w: own marble on entry cell %d", ErrDestinationOccupied, cell)
	}
	return Marble{Loc: LocTrack, Pos: cell}, nil
}

// reachesHomeEntry reports whether a forward move of n from a track cell
// starts on or passes over the owner's home entry, and how many steps
// remain after the entry cell.
func reachesHomeEntry(owner Seat, from, n uint8) (into uint8, ok bool) {
	d := distanceForward(from, owner.HomeEntry())
	if d > n {
		return 0, false
	}
	return n - d, true
}

// planForward computes where a forward move of n lands, honouring choice when
// the move reaches the home entry. HomeAuto enters home when both options are
// open unless the table requires an explicit choice.
func (g *GameState) planForward(ref MarbleRef, n uint8, choice HomeChoice) (Marble, error) {
	if n == 0 {
		return Marble{}, fmt.Errorf("%w: zero spaces", ErrInvalidReference)
	}
	m := g.Marble(ref)
	switch m.Loc {
	case LocHome:
		return g.planHomeForward(ref.Owner, m.Pos, n)
	case LocTrack:
	default:
		return Marble{}, fmt.Errorf("%w: %s is in start", ErrInvalidMarbleState, ref)
	}

	into, crossing := reachesHomeEntry(ref.Owner, m.Pos, n)
	if !crossing {
		return g.planTrack(ref.Owner, m.Pos, n, false)
	}

	enter, enterErr := g.planHomeEntry(ref.Owner, m.Pos, n-into, into)
	pass, passErr := g.planTrack(ref.Owner, m.Pos, n, false)

	switch choice {
	case HomeEnter:
		return enter, enterErr
	case HomePass:
		return pass, passErr
	}

	switch {
	case enterErr == nil && passErr == nil:
		if g.Rules.RequireHomeChoice {
			return Marble{}, fmt.Errorf("%w: %s can enter home or pass", ErrHomeChoiceRequired, ref)
		}
		return enter, nil
	case enterErr == nil:
		return enter, nil
	case passErr == nil:
		return pass, nil
	}
	return Marble{}, enterErr
}

// planHomeEntry checks entering home into steps past the entry cell, which is
// d steps ahead of from. The track cells up to and including the entry cell
// must be free of the owner's marbles.
func (g *GameState) planHomeEntry(owner Seat, from, d, into uint8) (Marble, error) {
	if into == 0 || into > HomeLen {
		return Marble{}, fmt.Errorf("%w: %d spaces into home", ErrInvalidMarbleState, into)
	}
	for i := uint8(1); i <= d; i++ {
		if g.ownAt(owner, stepForward(from, i)) {
			return Marble{}, fmt.Errorf("%w: own marble before home entry", ErrPathBlocked)
		}
	}
	idx := into - 1
	if g.homePathBlocked(owner, 0, idx) {
		return Marble{}, fmt.Errorf("%w: own marble inside home before cell %d", ErrPathBlocked, idx)
	}
	if g.HomeOccupied(owner, idx) {
		return Marble{}, fmt.Errorf("%w: home cell %d", ErrDestinationOccupied, idx)
	}
	return Marble{Loc: LocHome, Pos: idx}, nil
}

// planHomeForward advances inside the home zone.
func (g *GameState) planHomeForward(owner Seat, cur, n uint8) (Marble, error) {
	to := uint16(cur) + uint16(n)
	if to >= HomeLen {
		return Marble{}, fmt.Errorf("%w: move exceeds home zone", ErrInvalidMarbleState)
	}
	if g.homePathBlocked(owner, cur+1, uint8(to)) {
		return Marble{}, fmt.Errorf("%w: own marble inside home", ErrPathBlocked)
	}
	if g.HomeOccupied(owner, uint8(to)) {
		return Marble{}, fmt.Errorf("%w: home cell %d", ErrDestinationOccupied, to)
	}
	return Marble{Loc: LocHome, Pos: uint8(to)}, nil
}

// planTrack checks a plain track move of n cells in either direction.
func (g *GameState) planTrack(owner Seat, from, n uint8, back bool) (Marble, error) {
	if g.trackPathBlocked(owner, from, n, back) {
		return Marble{}, fmt.Errorf("%w: own marble between %d and destination", ErrPathBlocked, from)
	}
	dest := stepForward(from, n)
	if back {
		dest = stepBackward(from, n)
	}
	if g.ownAt(owner, dest) {
		return Marble{}, fmt.Errorf("%w: own marble on cell %d", ErrDestinationOccupied, dest)
	}
	return Marble{Loc: LocTrack, Pos: dest}, nil
}

// planBackward computes a backward move; home is never entered backwards.
func (g *GameState) planBackward(ref MarbleRef, n uint8) (Marble, error) {
	if n == 0 {
		return Marble{}, fmt.Errorf("%w: zero spaces", ErrInvalidReference)
	}
	m := g.Marble(ref)
	if m.Loc != LocTrack {
		return Marble{}, fmt.Errorf("%w: %s is in %s, backward needs the track", ErrInvalidMarbleState, ref, m.Loc)
	}
	return g.planTrack(ref.Owner, m.Pos, n, true)
}

// planJoker validates a joker jump from source onto target's cell.
func (g *GameState) planJoker(source, target MarbleRef) (Marble, error) {
	if !target.Valid() {
		return Marble{}, fmt.Errorf("%w: target %s", ErrInvalidReference, target)
	}
	if src := g.Marble(source); src.Loc == LocHome {
		return Marble{}, fmt.Errorf("%w: %s is home", ErrInvalidMarbleState, source)
	}
	t := g.Marble(target)
	if t.Loc != LocTrack {
		return Marble{}, fmt.Errorf("%w: target %s is in %s", ErrInvalidMarbleState, target, t.Loc)
	}
	if target.Owner == source.Owner {
		return Marble{}, fmt.Errorf("%w: cannot jump onto own marble", ErrDestinationOccupied)
	}
	return Marble{Loc: LocTrack, Pos: t.Pos}, nil
}

// ---------------------------------------------------------------------------
// Applying a planned move
// ---------------------------------------------------------------------------

// apply moves ref to a destination produced by one of the plan functions and
// resolves any capture on the landing cell.
func (g *GameState) apply(ref MarbleRef, to Marble) []Effect {
	from := g.Marble(ref)
	occ := NoMarble
	if to.Loc == LocTrack {
		occ = g.Track[to.Pos]
	}
	g.relocate(ref, to)
	effects := []Effect{{Kind: EffectMove, Marble: ref, From: from, To: to, By: ref.Owner}}
	if !occ.IsEmpty() && occ != ref {
		effects = g.resolveLanding(ref.Owner, occ, effects)
	}
	return effects
}

// ---------------------------------------------------------------------------
// Executor operations
//
// These check control and board rules only; turn order and card ownership are
// the turn controller's job. A failed call leaves the table unchanged.
// ---------------------------------------------------------------------------

// Enter brings a marble from start onto its seat's track entry.
func (g *GameState) Enter(seat Seat, ref MarbleRef) ([]Effect, error) {
	if err := g.checkControl(seat, ref); err != nil {
		return nil, err
	}
	to, err := g.planEnter(ref)
	if err != nil {
		return nil, err
	}
	return g.apply(ref, to), nil
}

// MoveForward advances a marble n cells on the track or inside home.
func (g *GameState) MoveForward(seat Seat, ref MarbleRef, n uint8, choice HomeChoice) ([]Effect, error) {
	if err := g.checkControl(seat, ref); err != nil {
		return nil, err
	}
	to, err := g.planForward(ref, n, choice)
	if err != nil {
		return nil, err
	}
	return g.apply(ref, to), nil
}

// MoveBackward walks a track marble n cells backwards.
func (g *GameState) MoveBackward(seat Seat, ref MarbleRef, n uint8) ([]Effect, error) {
	if err := g.checkControl(seat, ref); err != nil {
		return nil, err
	}
	to, err := g.planBackward(ref, n)
	if err != nil {
		return nil, err
	}
	return g.apply(ref, to), nil
}

// JokerCapture places source directly on target's cell and resolves target.
func (g *GameState) JokerCapture(seat Seat, source, target MarbleRef) ([]Effect, error) {
	if err := g.checkControl(seat, source); err != nil {
		return nil, err
	}
	to, err := g.planJoker(source, target)
	if err != nil {
		return nil, err
	}
	return g.apply(source, to), nil
}
