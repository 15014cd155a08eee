package engine

// ---------------------------------------------------------------------------
// GameStateHash
// ---------------------------------------------------------------------------

// GameStateHash returns a 64-bit FNV-1a hash of everything that affects play:
// marble positions, hands, the draw pile, the pending split and the turn.
// Identical tables always hash identically.
func (g *GameState) GameStateHash() uint64 {
	h := uint64(14695981039346656037) // FNV-1a offset basis
	const prime = uint64(1099511628211)

	mix := func(v uint64) {
		h ^= v
		h *= prime
	}

	for s := range g.Players {
		p := &g.Players[s]
		for _, m := range p.Marbles {
			mix(uint64(m.Loc)<<8 | uint64(m.Pos))
		}
		for i := uint8(0); i < p.HandLen; i++ {
			mix(uint64(p.Hand[i]))
		}
		mix(uint64(p.HandLen)<<8 | uint64(p.DiscardLen)<<16)
	}
	for i := uint8(0); i < g.StockLen; i++ {
		mix(uint64(g.Stockpile[i]))
	}
	if g.Pending.Active {
		pm := g.Pending.First.Marble
		mix(1<<40 | uint64(g.Pending.Seat)<<32 | uint64(g.Pending.Kind)<<24 | uint64(pm.Owner)<<16 | uint64(pm.ID)<<8 | uint64(g.Pending.Remaining))
	}
	if g.Pending.Spent {
		mix(1<<41 | uint64(g.Pending.Seat)<<8 | uint64(g.Pending.CardIndex))
	}
	mix(uint64(g.TurnNumber)<<32 | uint64(g.CurrentIdx)<<16 | uint64(g.Flags))
	return h
}

// ---------------------------------------------------------------------------
// EvalLinear
// ---------------------------------------------------------------------------

// EvalLinear scores the table from team's point of view in [-1, 1] by the
// difference in team progress. A finished game returns the exact utility.
func (g *GameState) EvalLinear(team Team) float32 {
	if g.IsGameOver() {
		return g.GetUtility()[team]
	}
	const maxDiff = float32(2 * MarblesPerSeat * MaxMarbleProgress)
	diff := float32(g.TeamProgress(team) - g.TeamProgress(1-team))
	return diff / maxDiff
}
