// Package agent chooses plays for a seat: it scores every play the legality
// oracle enumerates by simulating it on a copy of the table.
package agent

import (
	"math"

	engine "github.com/jason-s-yu/marbles/engine"
)

// Agent picks plays for one seat. It is a flat value type, so it can be
// copied with = and kept per seat without allocation.
type Agent struct {
	Seat    engine.Seat
	Weights Weights
}

// NewAgent returns an agent for seat using DefaultWeights.
func NewAgent(seat engine.Seat) Agent {
	return Agent{Seat: seat, Weights: DefaultWeights()}
}

// Score evaluates g from the agent's seat. A finished game scores plus or
// minus infinity for the agent's team.
func (a *Agent) Score(g *engine.GameState) float32 {
	if g.IsGameOver() {
		if g.Winner == a.Seat.Team() {
			return float32(math.Inf(1))
		}
		return float32(math.Inf(-1))
	}
	var features [InputDim]float32
	Encode(g, a.Seat, &features)
	return a.Weights.Dot(&features)
}

// Choose returns the best legal play for the agent's seat, or false when no
// candidate applies and the seat must discard. Ties keep the first candidate
// in oracle order, so the choice is deterministic for a given table.
func (a *Agent) Choose(g *engine.GameState) (engine.Candidate, bool) {
	var (
		best      engine.Candidate
		bestScore = float32(math.Inf(-1))
		found     bool
	)
	for _, c := range g.LegalPlays(a.Seat) {
		sim := g.Clone()
		if _, err := sim.ApplyCandidate(a.Seat, c); err != nil {
			continue
		}
		// The replacement draw is hidden information; score the board only.
		if s := a.Score(sim); !found || s > bestScore {
			best, bestScore, found = c, s, true
		}
	}
	return best, found
}

// DiscardIndex picks the hand card to throw away when nothing is playable:
// the card that is usually least valuable later.
func (a *Agent) DiscardIndex(g *engine.GameState) uint8 {
	hand := g.Hand(a.Seat)
	idx, worst := uint8(0), math.MaxInt
	for i, c := range hand {
		if v := cardKeepValue(CardToBucket(c)); v < worst {
			idx, worst = uint8(i), v
		}
	}
	return idx
}

// cardKeepValue ranks buckets by how much they are worth holding on to.
func cardKeepValue(b CardBucket) int {
	switch b {
	case BucketJoker:
		return 7
	case BucketEnter:
		return 6
	case BucketSeven:
		return 5
	case BucketNine:
		return 4
	case BucketEight:
		return 3
	case BucketTen:
		return 2
	case BucketMid:
		return 1
	}
	return 0
}

// ChooseCompletion picks the best second leg for the agent's pending split.
func (a *Agent) ChooseCompletion(g *engine.GameState) (engine.SubMove, bool) {
	if !g.HasPendingSplit(a.Seat) {
		return engine.SubMove{}, false
	}
	var (
		best      engine.SubMove
		bestScore = float32(math.Inf(-1))
		found     bool
	)
	for _, ref := range g.Controllable(a.Seat) {
		for _, d := range g.CompletionDestinations(a.Seat, ref) {
			leg := engine.SubMove{Marble: ref, Spaces: d.Spaces, Home: d.Home}
			sim := g.Clone()
			if _, err := sim.CompletePartialMove(a.Seat, leg); err != nil {
				continue
			}
			if s := a.Score(sim); !found || s > bestScore {
				best, bestScore, found = leg, s, true
			}
		}
	}
	return best, found
}

// Act plays the chosen candidate for the agent's seat, or discards when the
// seat has no legal play. A pending split is completed first when it can be.
// The seat must be the one to move.
func (a *Agent) Act(g *engine.GameState) (engine.Outcome, engine.Candidate, error) {
	if g.HasPendingSplit(a.Seat) {
		p := g.Pending
		card := g.Players[a.Seat].Hand[p.CardIndex]
		if leg, ok := a.ChooseCompletion(g); ok {
			out, err := g.CompletePartialMove(a.Seat, leg)
			return out, engine.Candidate{
				CardIndex: p.CardIndex,
				Card:      card,
				Play:      engine.Play{Action: engine.ActionSplit, Marble: leg.Marble, Target: engine.NoMarble, Moves: []engine.SubMove{p.First, leg}},
			}, err
		}
		g.AbandonPartialMove(a.Seat)
	}
	if c, ok := a.Choose(g); ok {
		out, err := g.ApplyCandidate(a.Seat, c)
		return out, c, err
	}
	idx := a.DiscardIndex(g)
	out, err := g.Discard(a.Seat, idx)
	return out, engine.Candidate{CardIndex: idx, Card: engine.EmptyCard}, err
}
