package engine

// homeProgressBase is the progress of a marble on home cell 0: one more than
// the furthest track cell a marble can stand on relative to its entry.
const homeProgressBase = TrackLen + 1

// MaxMarbleProgress is the progress of a marble on the last home cell.
const MaxMarbleProgress = homeProgressBase + HomeLen - 1

// MarbleProgress measures how far a marble of owner has come: 0 in start,
// 1..72 on the track counted from the owner's entry cell, and above that in home.
func MarbleProgress(owner Seat, m Marble) int {
	switch m.Loc {
	case LocTrack:
		return int(distanceForward(owner.TrackEntry(), m.Pos)) + 1
	case LocHome:
		return homeProgressBase + int(m.Pos)
	}
	return 0
}

// SeatProgress sums the progress of a seat's marbles.
func (g *GameState) SeatProgress(seat Seat) int {
	total := 0
	for _, m := range g.Players[seat].Marbles {
		total += MarbleProgress(seat, m)
	}
	return total
}

// TeamProgress sums the progress of both seats of a team.
func (g *GameState) TeamProgress(t Team) int {
	s := t.Seats()
	return g.SeatProgress(s[0]) + g.SeatProgress(s[1])
}

// GetUtility returns the outcome per team: +1 for the winner, -1 for the
// loser. Returns [0, 0] while the game is running.
func (g *GameState) GetUtility() [2]float32 {
	if !g.IsGameOver() || g.Winner == NoTeam {
		return [2]float32{0, 0}
	}
	var u [2]float32
	u[g.Winner] = 1
	u[1-g.Winner] = -1
	return u
}
