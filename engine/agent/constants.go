package agent

import engine "github.com/jason-s-yu/marbles/engine"

// CardBucket groups cards by what they can do on the board.
type CardBucket uint8

const (
	BucketEnter    CardBucket = iota // 0: Ace, J, Q, K
	BucketShort                      // 1: 2-4
	BucketMid                        // 2: 5-6
	BucketTen                        // 3: 10
	BucketSeven                      // 4: 7 (splittable)
	BucketEight                      // 5: 8 (backward)
	BucketNine                       // 6: 9 (forward + backward)
	BucketJoker                      // 7: Joker
	BucketUnknown                    // 8: empty slot or unknown card
)

// NumCardBuckets counts the buckets a real card can fall into.
const NumCardBuckets = int(BucketUnknown)

// ProgressBucket places a marble along its own lap.
type ProgressBucket uint8

const (
	ProgressStart  ProgressBucket = iota // 0: in start
	ProgressEarly                        // 1: first third of the lap
	ProgressMid                          // 2: second third
	ProgressLate                         // 3: last third, outside the door zone
	ProgressDoor                         // 4: within one card of the home entry
	ProgressHome                         // 5: in home
)

// NumProgressBuckets is the number of ProgressBucket values.
const NumProgressBuckets = int(ProgressHome) + 1

// doorZone is how many cells before the home entry count as ProgressDoor.
const doorZone = 10

// GamePhase is the coarse stage of the race from one team's point of view.
type GamePhase uint8

const (
	PhaseOpening  GamePhase = iota // 0: most marbles still in start
	PhaseRace                      // 1: marbles circulating
	PhaseEndgame                   // 2: some seat of the table has 3+ marbles home
	PhaseTerminal                  // 3: game over
)

// NumPhases is the number of GamePhase values.
const NumPhases = int(PhaseTerminal) + 1

// StockpileEstimate buckets the draw pile size.
type StockpileEstimate uint8

const (
	StockHigh   StockpileEstimate = iota // 0: >= 60 cards
	StockMedium                          // 1: 20-59 cards
	StockLow                             // 2: 1-19 cards
	StockEmpty                           // 3: 0 cards, next draw recombines discards
)

// CardToBucket maps a Card to its CardBucket.
func CardToBucket(c engine.Card) CardBucket {
	if c == engine.EmptyCard {
		return BucketUnknown
	}
	switch c.Kind() {
	case engine.KindEnter:
		return BucketEnter
	case engine.KindSeven:
		return BucketSeven
	case engine.KindBackward:
		return BucketEight
	case engine.KindNine:
		return BucketNine
	case engine.KindJoker:
		return BucketJoker
	case engine.KindForward:
		switch n := c.Spaces(); {
		case n == 10:
			return BucketTen
		case n >= 5:
			return BucketMid
		default:
			return BucketShort
		}
	}
	return BucketUnknown
}

// ProgressToBucket maps a marble of owner to its ProgressBucket.
func ProgressToBucket(owner engine.Seat, m engine.Marble) ProgressBucket {
	switch m.Loc {
	case engine.LocStart:
		return ProgressStart
	case engine.LocHome:
		return ProgressHome
	}
	// Progress 1 is the entry cell; the home entry sits at TrackLen-HomeEntryOffset+1.
	p := engine.MarbleProgress(owner, m)
	door := engine.TrackLen - engine.HomeEntryOffset + 1
	switch {
	case p > door-doorZone && p <= door:
		return ProgressDoor
	case p <= engine.TrackLen/3:
		return ProgressEarly
	case p <= 2*engine.TrackLen/3:
		return ProgressMid
	}
	return ProgressLate
}

// StockEstimateFromSize converts a draw pile count to a StockpileEstimate.
func StockEstimateFromSize(stockLen uint8) StockpileEstimate {
	switch {
	case stockLen >= 60:
		return StockHigh
	case stockLen >= 20:
		return StockMedium
	case stockLen > 0:
		return StockLow
	default:
		return StockEmpty
	}
}

// GamePhaseFromState derives the GamePhase from marble placement.
// Priority: game over > endgame > opening > race.
func GamePhaseFromState(g *engine.GameState) GamePhase {
	if g.IsGameOver() {
		return PhaseTerminal
	}
	inStart := 0
	for s := engine.Seat(0); s < engine.NumSeats; s++ {
		if g.CountIn(s, engine.LocHome) >= 3 {
			return PhaseEndgame
		}
		inStart += g.CountIn(s, engine.LocStart)
	}
	if inStart > engine.TotalMarbles*3/4 {
		return PhaseOpening
	}
	return PhaseRace
}
