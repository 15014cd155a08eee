package engine

// resolveLanding relocates victim, which was just displaced from a track cell
// by a marble owned by lander, and follows any chain of teammate boosts.
//
// An opponent goes back to its start slot. A teammate goes to its own home
// entry; if that cell is occupied the occupant is resolved next, with the
// boosted marble's owner as the new lander. A boost onto a cell held by a
// marble of the boosted marble's own seat sends the boosted marble to start
// instead. Every step leaves one more marble settled, so the loop is bounded
// by the number of marbles on the table.
func (g *GameState) resolveLanding(lander Seat, victim MarbleRef, effects []Effect) []Effect {
	for hop := 0; hop < TotalMarbles; hop++ {
		from := g.Marble(victim)

		if victim.Owner != lander.Teammate() {
			return g.bump(lander, victim, from, effects)
		}

		door := victim.Owner.HomeEntry()
		next := g.Track[door]
		if !next.IsEmpty() && next != victim && next.Owner == victim.Owner {
			return g.bump(lander, victim, from, effects)
		}

		to := Marble{Loc: LocTrack, Pos: door}
		g.relocate(victim, to)
		effects = append(effects, Effect{Kind: EffectBoost, Marble: victim, From: from, To: to, By: lander})

		if next.IsEmpty() || next == victim {
			return effects
		}
		lander, victim = victim.Owner, next
	}

	// Unreachable with 20 marbles; settle the last one safely.
	return g.bump(lander, victim, g.Marble(victim), effects)
}

// bump sends victim to its own start slot.
func (g *GameState) bump(lander Seat, victim MarbleRef, from Marble, effects []Effect) []Effect {
	to := Marble{Loc: LocStart, Pos: victim.ID}
	g.relocate(victim, to)
	return append(effects, Effect{Kind: EffectBump, Marble: victim, From: from, To: to, By: lander})
}
