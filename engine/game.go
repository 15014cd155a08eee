// Package engine implements the Joker Marbles table rules.
//
// The whole table is one flat value type (no pointers, no slices), so a
// GameState can be copied for undo and for hypothetical evaluation by the
// legality oracle without any deep-copy logic. Callers must serialize
// mutations per table; the engine itself never suspends mid-mutation.
package engine

import "fmt"

const (
	NumSeats        = 4
	MarblesPerSeat  = 5
	TotalMarbles    = NumSeats * MarblesPerSeat
	TrackLen        = 72
	SeatSpacing     = 18
	HomeEntryOffset = 5
	HomeLen         = 5
	MaxHandSize     = 5
	DeckSize        = 108
)

// PlayerState holds one seat's marbles, hand and personal discard pile.
type PlayerState struct {
	Marbles    [MarblesPerSeat]Marble
	Hand       [MaxHandSize]Card
	HandLen    uint8
	Discards   [DeckSize]Card
	DiscardLen uint8
}

// PendingSplit is the transient record between the two legs of a 7 or 9.
// Spent marks the card at CardIndex as having played its first leg; it
// outlives abandonment until the turn ends so the card cannot be used again.
type PendingSplit struct {
	Active    bool
	Spent     bool
	Seat      Seat
	CardIndex uint8
	Kind      CardKind // KindSeven or KindNine
	First     SubMove
	Remaining uint8
}

// GameState holds the complete, self-contained state of one table.
type GameState struct {
	Players    [NumSeats]PlayerState
	Track      [TrackLen]MarbleRef // occupant of every track cell, NoMarble if empty
	Stockpile  [DeckSize]Card
	StockLen   uint8
	Order      [NumSeats]Seat
	CurrentIdx uint8
	TurnNumber uint16
	Flags      uint16
	Pending    PendingSplit
	Winner     Team
	RNG        uint64
	Rules      HouseRules
}

// ---------------------------------------------------------------------------
// Flags bitfield
// ---------------------------------------------------------------------------

const (
	FlagGameOver    uint16 = 1 << 0
	FlagGameStarted uint16 = 1 << 1
)

func (g *GameState) IsGameOver() bool { return g.Flags&FlagGameOver != 0 }
func (g *GameState) IsStarted() bool { return g.Flags&FlagGameStarted != 0 }

// ---------------------------------------------------------------------------
// xorshift64 RNG: inline, no interface
// ---------------------------------------------------------------------------

func (g *GameState) nextRand() uint64 {
	x := g.RNG
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	g.RNG = x
	return x
}

// randN returns a random number in [0, n).
func (g *GameState) randN(n uint64) uint64 {
	return g.nextRand() % n
}

// ---------------------------------------------------------------------------
// NewGame and Deal
// ---------------------------------------------------------------------------

// NewGame initializes a table with every marble in its start zone and the
// 108-card double deck in the stockpile. The deck is not shuffled yet.
func NewGame(seed uint64, rules HouseRules) GameState {
	var g GameState
	g.RNG = seed
	if g.RNG == 0 {
		g.RNG = 1 // xorshift can't start at 0
	}
	g.Rules = rules
	g.Winner = NoTeam

	for i := range g.Track {
		g.Track[i] = NoMarble
	}
	for s := Seat(0); s < NumSeats; s++ {
		g.Order[s] = s
		for id := uint8(0); id < MarblesPerSeat; id++ {
			g.Players[s].Marbles[id] = Marble{Loc: LocStart, Pos: id}
		}
		for i := range g.Players[s].Hand {
			g.Players[s].Hand[i] = EmptyCard
		}
	}

	// Two standard decks, each with a red and a black joker.
	idx := 0
	for deck := 0; deck < 2; deck++ {
		for suit := uint8(0); suit < 4; suit++ {
			for rank := uint8(0); rank <= RankKing; rank++ {
				g.Stockpile[idx] = NewCard(suit, rank)
				idx++
			}
		}
		g.Stockpile[idx] = NewCard(SuitRedJoker, RankJoker)
		g.Stockpile[idx+1] = NewCard(SuitBlackJoker, RankJoker)
		idx += 2
	}
	g.StockLen = uint8(idx)

	return g
}

// Deal shuffles the deck, deals a full hand to every seat and picks the
// starting seat.
func (g *GameState) Deal() {
	g.shuffleStock()

	n := g.Rules.handSize()
	for c := uint8(0); c < n; c++ {
		for _, s := range g.Order {
			g.draw(s)
		}
	}

	if g.Rules.StartingSeat >= 0 && g.Rules.StartingSeat < NumSeats {
		g.SetStartingSeat(Seat(g.Rules.StartingSeat))
	} else {
		g.CurrentIdx = uint8(g.randN(NumSeats))
	}
	g.Flags |= FlagGameStarted
}

// SetStartingSeat makes seat the current turn holder.
func (g *GameState) SetStartingSeat(seat Seat) {
	for i, s := range g.Order {
		if s == seat {
			g.CurrentIdx = uint8(i)
			return
		}
	}
}

// shuffleStock runs Fisher-Yates over the stockpile.
func (g *GameState) shuffleStock() {
	for i := int(g.StockLen) - 1; i > 0; i-- {
		j := int(g.randN(uint64(i + 1)))
		g.Stockpile[i], g.Stockpile[j] = g.Stockpile[j], g.Stockpile[i]
	}
}

// draw pops one card into seat's hand, recombining every discard pile into
// the stockpile first if it is empty. Returns false if no card is left anywhere.
func (g *GameState) draw(seat Seat) bool {
	p := &g.Players[seat]
	if p.HandLen >= MaxHandSize {
		return false
	}
	if g.StockLen == 0 {
		g.recombineDiscards()
	}
	if g.StockLen == 0 {
		return false
	}
	g.StockLen--
	p.Hand[p.HandLen] = g.Stockpile[g.StockLen]
	g.Stockpile[g.StockLen] = EmptyCard
	p.HandLen++
	return true
}

// recombineDiscards moves all per-seat discard piles into the stockpile and shuffles.
func (g *GameState) recombineDiscards() {
	for s := range g.Players {
		p := &g.Players[s]
		for i := uint8(0); i < p.DiscardLen; i++ {
			g.Stockpile[g.StockLen] = p.Discards[i]
			g.StockLen++
			p.Discards[i] = EmptyCard
		}
		p.DiscardLen = 0
	}
	g.shuffleStock()
}

// discardFromHand removes hand[idx] (keeping order) onto the seat's discard pile.
func (g *GameState) discardFromHand(seat Seat, idx uint8) Card {
	p := &g.Players[seat]
	c := p.Hand[idx]
	copy(p.Hand[idx:p.HandLen], p.Hand[idx+1:p.HandLen])
	p.HandLen--
	p.Hand[p.HandLen] = EmptyCard
	p.Discards[p.DiscardLen] = c
	p.DiscardLen++
	return c
}

// ---------------------------------------------------------------------------
// Query methods
// ---------------------------------------------------------------------------

// CurrentSeat returns the seat whose turn it is.
func (g *GameState) CurrentSeat() Seat { return g.Order[g.CurrentIdx] }

// Marble returns the marble named by ref. ref must be valid.
func (g *GameState) Marble(ref MarbleRef) Marble {
	return g.Players[ref.Owner].Marbles[ref.ID]
}

// Hand returns a copy of seat's hand (allocates).
func (g *GameState) Hand(seat Seat) []Card {
	p := &g.Players[seat]
	out := make([]Card, p.HandLen)
	copy(out, p.Hand[:p.HandLen])
	return out
}

// HandLen returns the number of cards in seat's hand.
func (g *GameState) HandLen(seat Seat) uint8 { return g.Players[seat].HandLen }

// DiscardTop returns the last card seat discarded, or EmptyCard.
func (g *GameState) DiscardTop(seat Seat) Card {
	p := &g.Players[seat]
	if p.DiscardLen == 0 {
		return EmptyCard
	}
	return p.Discards[p.DiscardLen-1]
}

// CountIn returns how many of seat's marbles are in loc.
func (g *GameState) CountIn(seat Seat, loc Location) int {
	n := 0
	for _, m := range g.Players[seat].Marbles {
		if m.Loc == loc {
			n++
		}
	}
	return n
}

// IsFinished reports whether all of seat's marbles are home.
func (g *GameState) IsFinished(seat Seat) bool {
	return g.CountIn(seat, LocHome) == MarblesPerSeat
}

// CanControl reports whether actor may move marbles owned by owner: its own,
// or its teammate's once actor has finished. Never an opponent's.
func (g *GameState) CanControl(actor, owner Seat) bool {
	if actor == owner {
		return true
	}
	return owner == actor.Teammate() && g.IsFinished(actor)
}

// Controllable returns every marble actor may currently move, own first.
func (g *GameState) Controllable(actor Seat) []MarbleRef {
	owners := []Seat{actor}
	if g.IsFinished(actor) {
		owners = append(owners, actor.Teammate())
	}
	refs := make([]MarbleRef, 0, MarblesPerSeat*len(owners))
	for _, o := range owners {
		for id := uint8(0); id < MarblesPerSeat; id++ {
			refs = append(refs, MarbleRef{Owner: o, ID: id})
		}
	}
	return refs
}

// ---------------------------------------------------------------------------
// Snapshot Undo (Save / Restore)
// ---------------------------------------------------------------------------

// Snapshot is a complete value-copy of GameState for undo support.
type Snapshot GameState

// Save returns a snapshot of the current game state.
func (g *GameState) Save() Snapshot { return Snapshot(*g) }

// Restore replaces the game state with the given snapshot.
func (g *GameState) Restore(s Snapshot) { *g = GameState(s) }

// Clone returns an independent copy of the table.
func (g *GameState) Clone() *GameState {
	c := *g
	return &c
}

// Validate checks the structural invariants of the table: every marble sits in
// a legal slot, no two marbles of one seat share a start, track or home slot,
// and the track occupancy index agrees with the marble records.
func (g *GameState) Validate() error {
	var seen [TrackLen]bool
	for s := Seat(0); s < NumSeats; s++ {
		var start, home [MarblesPerSeat]bool
		for id, m := range g.Players[s].Marbles {
			ref := MarbleRef{Owner: s, ID: uint8(id)}
			switch m.Loc {
			case LocStart:
				if m.Pos != uint8(id) || start[m.Pos] {
					return fmt.Errorf("%s: bad start slot %d", ref, m.Pos)
				}
				start[m.Pos] = true
			case LocHome:
				if m.Pos >= HomeLen || home[m.Pos] {
					return fmt.Errorf("%s: bad home slot %d", ref, m.Pos)
				}
				home[m.Pos] = true
			case LocTrack:
				if m.Pos >= TrackLen || seen[m.Pos] {
					return fmt.Errorf("%s: bad or shared track cell %d", ref, m.Pos)
				}
				seen[m.Pos] = true
				if g.Track[m.Pos] != ref {
					return fmt.Errorf("%s: track index at %d holds %s", ref, m.Pos, g.Track[m.Pos])
				}
			default:
				return fmt.Errorf("%s: unknown location %d", ref, m.Loc)
			}
		}
	}
	for cell, occ := range g.Track {
		if !occ.IsEmpty() && !seen[cell] {
			return fmt.Errorf("track index at %d holds stale %s", cell, occ)
		}
	}
	return nil
}
