package engine

import "fmt"

// Suit constants, packed into upper 4 bits of Card.
const (
	SuitHearts     uint8 = 0
	SuitDiamonds   uint8 = 1
	SuitClubs      uint8 = 2
	SuitSpades     uint8 = 3
	SuitRedJoker   uint8 = 4
	SuitBlackJoker uint8 = 5
)

// Rank constants, packed into lower 4 bits of Card.
const (
	RankAce   uint8 = 0
	RankTwo   uint8 = 1
	RankThree uint8 = 2
	RankFour  uint8 = 3
	RankFive  uint8 = 4
	RankSix   uint8 = 5
	RankSeven uint8 = 6
	RankEight uint8 = 7
	RankNine  uint8 = 8
	RankTen   uint8 = 9
	RankJack  uint8 = 10
	RankQueen uint8 = 11
	RankKing  uint8 = 12
	RankJoker uint8 = 13
)

// Card is a packed uint8: upper 4 bits = suit, lower 4 bits = rank.
type Card uint8

// EmptyCard represents the absence of a card.
const EmptyCard Card = 0xFF

// NewCard constructs a Card from suit and rank.
func NewCard(suit, rank uint8) Card {
	return Card((suit << 4) | (rank & 0x0F))
}

// Suit returns the suit bits (upper 4).
func (c Card) Suit() uint8 { return uint8(c) >> 4 }

// Rank returns the rank bits (lower 4).
func (c Card) Rank() uint8 { return uint8(c) & 0x0F }

// CardKind classifies what a card lets its holder do on the board.
type CardKind uint8

const (
	KindInvalid  CardKind = iota // 0
	KindForward                  // 1: 2..6, 10
	KindEnter                    // 2: Ace, Jack, Queen, King: enter or forward
	KindSeven                    // 3: forward 7, splittable
	KindBackward                 // 4: Eight
	KindNine                     // 5: forward k + backward 9-k
	KindJoker                    // 6
)

// Kind returns the play family of the card. This is the single card table used by
// both the executor and the legality oracle.
func (c Card) Kind() CardKind {
	if c == EmptyCard {
		return KindInvalid
	}
	switch r := c.Rank(); {
	case r == RankJoker:
		return KindJoker
	case r == RankAce, r == RankJack, r == RankQueen, r == RankKing:
		return KindEnter
	case r == RankSeven:
		return KindSeven
	case r == RankEight:
		return KindBackward
	case r == RankNine:
		return KindNine
	case r <= RankTen:
		return KindForward
	}
	return KindInvalid
}

// Spaces returns the distance a card moves a single marble.
//   - Ace → 1
//   - Two–Ten → face value (Eight moves backward)
//   - Jack, Queen, King → 10
//   - Joker → 0 (distance is irrelevant)
func (c Card) Spaces() uint8 {
	r := c.Rank()
	switch {
	case c == EmptyCard, r == RankJoker:
		return 0
	case r == RankAce:
		return 1
	case r <= RankTen:
		return r + 1
	case r <= RankKing:
		return 10
	}
	return 0
}

func (c Card) String() string {
	if c == EmptyCard {
		return "--"
	}
	if c.Rank() == RankJoker {
		if c.Suit() == SuitRedJoker {
			return "JokerR"
		}
		return "JokerB"
	}
	return rankString(c.Rank()) + suitString(c.Suit())
}

func rankString(r uint8) string {
	switch r {
	case RankAce:
		return "A"
	case RankTen:
		return "10"
	case RankJack:
		return "J"
	case RankQueen:
		return "Q"
	case RankKing:
		return "K"
	}
	return fmt.Sprintf("%d", r+1)
}

func suitString(s uint8) string {
	switch s {
	case SuitHearts:
		return "h"
	case SuitDiamonds:
		return "d"
	case SuitClubs:
		return "c"
	case SuitSpades:
		return "s"
	}
	return "?"
}

// ---------------------------------------------------------------------------
// Seats and teams
// ---------------------------------------------------------------------------

// Seat identifies one of the four fixed seats. Seat1 and Seat3 form team 0,
// Seat2 and Seat4 form team 1.
type Seat uint8

const (
	Seat1 Seat = 0
	Seat2 Seat = 1
	Seat3 Seat = 2
	Seat4 Seat = 3
)

// Team is 0 ({Seat1,Seat3}) or 1 ({Seat2,Seat4}).
type Team uint8

// NoTeam marks the absence of a winner.
const NoTeam Team = 0xFF

func (s Seat) Valid() bool { return s < NumSeats }

// Team returns the team the seat plays for.
func (s Seat) Team() Team { return Team(s % 2) }

// Teammate returns the partner seat across the table.
func (s Seat) Teammate() Seat { return (s + 2) % NumSeats }

// TrackEntry is the cell where this seat's marbles join the track.
func (s Seat) TrackEntry() uint8 { return uint8(s) * SeatSpacing }

// HomeEntry is the doorway cell into this seat's home zone.
func (s Seat) HomeEntry() uint8 {
	return (s.TrackEntry() + TrackLen - HomeEntryOffset) % TrackLen
}

func (s Seat) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Seat?(%d)", uint8(s))
	}
	return fmt.Sprintf("Seat%d", uint8(s)+1)
}

// Seats returns the members of a team.
func (t Team) Seats() [2]Seat {
	return [2]Seat{Seat(t), Seat(t) + 2}
}

func (t Team) String() string {
	switch t {
	case 0:
		return "team1"
	case 1:
		return "team2"
	}
	return "none"
}

// ---------------------------------------------------------------------------
// Marbles
// ---------------------------------------------------------------------------

// Location is the zone a marble currently occupies.
type Location uint8

const (
	LocStart Location = iota // 0
	LocTrack                 // 1
	LocHome                  // 2
)

func (l Location) String() string {
	switch l {
	case LocStart:
		return "start"
	case LocTrack:
		return "track"
	case LocHome:
		return "home"
	}
	return "unknown"
}

// Marble is a single marble's position. Pos is a slot index 0–4 in start/home,
// or an absolute cell 0–71 on the track.
type Marble struct {
	Loc Location
	Pos uint8
}

// MarbleRef names a marble by owner and per-seat id (0–4). A marble's start
// slot always equals its id.
type MarbleRef struct {
	Owner Seat
	ID    uint8
}

// NoMarble is the empty occupant of a track cell.
var NoMarble = MarbleRef{Owner: 0xFF, ID: 0xFF}

func (r MarbleRef) Valid() bool { return r.Owner.Valid() && r.ID < MarblesPerSeat }

// IsEmpty reports whether r is the empty-cell sentinel.
func (r MarbleRef) IsEmpty() bool { return r == NoMarble }

func (r MarbleRef) String() string {
	if r.IsEmpty() {
		return "empty"
	}
	return fmt.Sprintf("%s/marble%d", r.Owner, r.ID)
}

// HomeChoice is the tri-state enterHome flag on forward moves.
type HomeChoice uint8

const (
	HomeAuto  HomeChoice = iota // 0: engine decides
	HomeEnter                   // 1
	HomePass                    // 2
)

// SubMove is one leg of a split card or a single forward/backward move.
type SubMove struct {
	Marble MarbleRef
	Spaces uint8
	Home   HomeChoice
}

// ---------------------------------------------------------------------------
// Effects: the observable activity log of an action.
// ---------------------------------------------------------------------------

// EffectKind describes one relocation caused by an action.
type EffectKind uint8

const (
	EffectMove  EffectKind = iota // 0: the moved marble itself
	EffectBump                    // 1: opponent sent back to its start slot
	EffectBoost                   // 2: teammate pushed to its own home entry
)

func (k EffectKind) String() string {
	switch k {
	case EffectMove:
		return "move"
	case EffectBump:
		return "bump"
	case EffectBoost:
		return "boost"
	}
	return "unknown"
}

// Effect records one marble relocation. By is the owner of the marble whose
// landing caused a bump/boost (the mover's owner for EffectMove).
type Effect struct {
	Kind   EffectKind
	Marble MarbleRef
	From   Marble
	To     Marble
	By     Seat
}

// IsLanding reports whether the effect is a capture-side effect.
func (e Effect) IsLanding() bool { return e.Kind == EffectBump || e.Kind == EffectBoost }
