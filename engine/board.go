package engine

// ---------------------------------------------------------------------------
// Cell arithmetic on the circular track
// ---------------------------------------------------------------------------

// stepForward returns the cell n steps ahead of cell.
func stepForward(cell, n uint8) uint8 {
	return uint8((uint16(cell) + uint16(n)) % TrackLen)
}

// stepBackward returns the cell n steps behind cell.
func stepBackward(cell, n uint8) uint8 {
	return uint8((uint16(cell) + TrackLen - uint16(n%TrackLen)) % TrackLen)
}

// distanceForward is the number of forward steps from a to b (0 if a == b).
func distanceForward(a, b uint8) uint8 {
	return uint8((uint16(b) + TrackLen - uint16(a)) % TrackLen)
}

// ---------------------------------------------------------------------------
// Occupancy queries
// ---------------------------------------------------------------------------

// OccupantAt returns the marble on track cell, or NoMarble.
func (g *GameState) OccupantAt(cell uint8) MarbleRef {
	if cell >= TrackLen {
		return NoMarble
	}
	return g.Track[cell]
}

// HomeOccupied reports whether home cell idx of seat holds one of seat's marbles.
func (g *GameState) HomeOccupied(seat Seat, idx uint8) bool {
	for _, m := range g.Players[seat].Marbles {
		if m.Loc == LocHome && m.Pos == idx {
			return true
		}
	}
	return false
}

// ownAt reports whether track cell holds a marble of owner.
func (g *GameState) ownAt(owner Seat, cell uint8) bool {
	occ := g.Track[cell]
	return !occ.IsEmpty() && occ.Owner == owner
}

// trackPathBlocked reports whether any cell strictly between from and the
// destination n steps away (walking forward, or backward if back is set)
// holds a marble of owner. Other seats' marbles never block.
func (g *GameState) trackPathBlocked(owner Seat, from, n uint8, back bool) bool {
	for i := uint8(1); i < n; i++ {
		cell := stepForward(from, i)
		if back {
			cell = stepBackward(from, i)
		}
		if g.ownAt(owner, cell) {
			return true
		}
	}
	return false
}

// homePathBlocked reports whether any home cell in [lo, hi) of owner is taken.
func (g *GameState) homePathBlocked(owner Seat, lo, hi uint8) bool {
	for i := lo; i < hi; i++ {
		if g.HomeOccupied(owner, i) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Relocation
// ---------------------------------------------------------------------------

// relocate moves ref to to, keeping the track index in sync. It overwrites
// whatever the index holds at the destination; the capture resolver is
// responsible for moving the previous occupant afterwards.
func (g *GameState) relocate(ref MarbleRef, to Marble) {
	m := &g.Players[ref.Owner].Marbles[ref.ID]
	if m.Loc == LocTrack && g.Track[m.Pos] == ref {
		g.Track[m.Pos] = NoMarble
	}
	*m = to
	if to.Loc == LocTrack {
		g.Track[to.Pos] = ref
	}
}

// PlaceMarble puts a marble directly at a location, bypassing every rule
// except slot uniqueness. It exists for table setup in tests and tooling;
// an occupied destination is left untouched and reported as false.
func (g *GameState) PlaceMarble(ref MarbleRef, to Marble) bool {
	if !ref.Valid() {
		return false
	}
	switch to.Loc {
	case LocStart:
		if to.Pos != ref.ID {
			return false
		}
	case LocHome:
		if to.Pos >= HomeLen {
			return false
		}
		cur := g.Marble(ref)
		if g.HomeOccupied(ref.Owner, to.Pos) && cur != to {
			return false
		}
	case LocTrack:
		if to.Pos >= TrackLen {
			return false
		}
		if occ := g.Track[to.Pos]; !occ.IsEmpty() && occ != ref {
			return false
		}
	default:
		return false
	}
	g.relocate(ref, to)
	return true
}
