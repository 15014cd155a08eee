package agent

import engine "github.com/jason-s-yu/marbles/engine"

// Feature layout, all relative to the encoding seat. Relative seat 0 is the
// seat itself, 1 the next opponent, 2 the teammate, 3 the previous opponent.
const (
	seatBlock      = NumProgressBuckets + 1 // bucket counts + normalized progress
	offSeats       = 0
	offHand        = offSeats + engine.NumSeats*seatBlock
	offPhase       = offHand + NumCardBuckets
	offStock       = offPhase + NumPhases
	offPending     = offStock + 4
	offExposed     = offPending + 1
	offControlMate = offExposed + 1

	// InputDim is the length of the feature vector produced by Encode.
	InputDim = offControlMate + 1
)

// threatReach is the furthest a single card carries an opponent forward.
const threatReach = 10

// relativeSeat returns the seat k places after self in turn order.
func relativeSeat(self engine.Seat, k int) engine.Seat {
	return engine.Seat((int(self) + k) % engine.NumSeats)
}

// Encode writes the feature vector of g as seen by seat into out.
// out is zeroed internally before writing. Every entry lies in [0, 1].
func Encode(g *engine.GameState, seat engine.Seat, out *[InputDim]float32) {
	*out = [InputDim]float32{}

	// Marbles: per relative seat, bucket counts / 5 then progress / max.
	for k := 0; k < engine.NumSeats; k++ {
		s := relativeSeat(seat, k)
		base := offSeats + k*seatBlock
		for _, m := range g.Players[s].Marbles {
			out[base+int(ProgressToBucket(s, m))] += 1.0 / engine.MarblesPerSeat
		}
		out[base+NumProgressBuckets] = float32(g.SeatProgress(s)) / float32(engine.MarblesPerSeat*engine.MaxMarbleProgress)
	}

	// Own hand: bucket counts / hand size.
	for _, c := range g.Hand(seat) {
		if b := CardToBucket(c); b != BucketUnknown {
			out[offHand+int(b)] += 1.0 / engine.MaxHandSize
		}
	}

	out[offPhase+int(GamePhaseFromState(g))] = 1.0
	out[offStock+int(StockEstimateFromSize(g.StockLen))] = 1.0

	if g.HasPendingSplit(seat) {
		out[offPending] = 1.0
	}

	out[offExposed] = float32(exposedMarbles(g, seat.Team())) / (2 * engine.MarblesPerSeat)

	if g.IsFinished(seat) {
		out[offControlMate] = 1.0
	}
}

// exposedMarbles counts team's track marbles that some opponent marble could
// land on with one plain forward card.
func exposedMarbles(g *engine.GameState, team engine.Team) int {
	n := 0
	for cell := uint8(0); cell < engine.TrackLen; cell++ {
		ref := g.OccupantAt(cell)
		if ref.IsEmpty() || ref.Owner.Team() != team {
			continue
		}
		for back := uint8(1); back <= threatReach; back++ {
			behind := g.OccupantAt((cell + engine.TrackLen - back) % engine.TrackLen)
			if !behind.IsEmpty() && behind.Owner.Team() != team {
				n++
				break
			}
		}
	}
	return n
}

// Weights scores an encoded table with a dot product.
type Weights [InputDim]float32

// DefaultWeights favours own and teammate progress, marbles reaching home
// and keeping marbles out of reach of opponents.
func DefaultWeights() Weights {
	var w Weights
	perSeat := [engine.NumSeats]float32{1.0, -0.9, 0.9, -0.9}
	for k, sign := range perSeat {
		base := offSeats + k*seatBlock
		w[base+NumProgressBuckets] = 4 * sign
		w[base+int(ProgressStart)] = -0.5 * sign
		w[base+int(ProgressDoor)] = 0.2 * sign
		w[base+int(ProgressHome)] = 1.0 * sign
	}
	w[offExposed] = -0.6
	return w
}

// Dot returns the weighted sum of features.
func (w *Weights) Dot(features *[InputDim]float32) float32 {
	var sum float32
	for i := range w {
		sum += w[i] * features[i]
	}
	return sum
}
