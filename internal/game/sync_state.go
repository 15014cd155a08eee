// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
	engine "github.com/jason-s-yu/marbles/engine"
)

// ObfCard is a card as shown to a client.
type ObfCard struct {
	Idx   int    `json:"idx"`
	Label string `json:"label"` // e.g. "7h", "10s", "JokerR"
	Rank  string `json:"rank"`
	Suit  string `json:"suit,omitempty"`
	Kind  string `json:"kind"`
}

// ObfMarble is one marble's position. Pos is the start or home slot, or the
// absolute track cell.
type ObfMarble struct {
	Seat int    `json:"seat"`
	ID   int    `json:"id"`
	Loc  string `json:"loc"`
	Pos  int    `json:"pos"`
}

// ObfPending is the public view of a split waiting for its second leg.
type ObfPending struct {
	Seat      int       `json:"seat"`
	CardIndex int       `json:"cardIndex"`
	Kind      string    `json:"kind"`
	First     ObfMarble `json:"first"`
	Spaces    int       `json:"spaces"`
	Remaining int       `json:"remaining"`
}

// ObfPlayerState is one seat as seen by a specific observer. Board and
// discard piles are public; only the observer's own hand is revealed.
type ObfPlayerState struct {
	PlayerID      uuid.UUID   `json:"playerId"`
	Username      string      `json:"username"`
	Seat          int         `json:"seat"`
	Team          int         `json:"team"`
	Connected     bool        `json:"connected"`
	IsCurrentTurn bool        `json:"isCurrentTurn"`
	Finished      bool        `json:"finished"`
	HandSize      int         `json:"handSize"`
	DiscardSize   int         `json:"discardSize"`
	DiscardTop    *ObfCard    `json:"discardTop,omitempty"`
	Marbles       []ObfMarble `json:"marbles"`
	Progress      int         `json:"progress"`
	RevealedHand  []ObfCard   `json:"revealedHand,omitempty"`
}

// ObfGameState is the table as seen by a specific observer.
type ObfGameState struct {
	GameID          uuid.UUID        `json:"gameId"`
	Started         bool             `json:"started"`
	GameOver        bool             `json:"gameOver"`
	Winner          *int             `json:"winner,omitempty"`
	CurrentSeat     int              `json:"currentSeat"`
	CurrentPlayerID uuid.UUID        `json:"currentPlayerId"`
	TurnID          int              `json:"turnId"`
	StockpileSize   int              `json:"stockpileSize"`
	Pending         *ObfPending      `json:"pending,omitempty"`
	Players         []ObfPlayerState `json:"players"`
	HouseRules      HouseRules       `json:"houseRules"`
}

// GetCurrentObfuscatedGameState builds the table as forUser may see it.
// uuid.Nil yields the spectator view with no hand revealed.
// Assumes lock is held by caller.
func (g *MarblesGame) GetCurrentObfuscatedGameState(forUser uuid.UUID) ObfGameState {
	e := &g.Engine
	obf := ObfGameState{
		GameID:        g.ID,
		Started:       g.Started,
		GameOver:      e.IsGameOver(),
		CurrentSeat:   int(e.CurrentSeat()),
		TurnID:        int(e.TurnNumber),
		StockpileSize: int(e.StockLen),
		HouseRules:    g.HouseRules,
	}
	if p := g.Seats[e.CurrentSeat()]; p != nil {
		obf.CurrentPlayerID = p.ID
	}
	if obf.GameOver {
		w := int(e.Winner)
		obf.Winner = &w
	}
	if e.Pending.Active {
		first := e.Pending.First
		obf.Pending = &ObfPending{
			Seat:      int(e.Pending.Seat),
			CardIndex: int(e.Pending.CardIndex),
			Kind:      kindString(e.Pending.Kind),
			First:     marbleView(e, first.Marble),
			Spaces:    int(first.Spaces),
			Remaining: int(e.Pending.Remaining),
		}
	}

	obf.Players = make([]ObfPlayerState, 0, engine.NumSeats)
	for s := engine.Seat(0); s < engine.NumSeats; s++ {
		ps := ObfPlayerState{
			Seat:          int(s),
			Team:          int(s.Team()),
			IsCurrentTurn: g.Started && !obf.GameOver && e.CurrentSeat() == s,
			Finished:      e.IsFinished(s),
			HandSize:      int(e.HandLen(s)),
			DiscardSize:   int(e.Players[s].DiscardLen),
			Marbles:       make([]ObfMarble, 0, engine.MarblesPerSeat),
			Progress:      e.SeatProgress(s),
		}
		if p := g.Seats[s]; p != nil {
			ps.PlayerID = p.ID
			ps.Connected = p.Connected
			if p.User != nil {
				ps.Username = p.User.Username
			}
		}
		if top := e.DiscardTop(s); top != engine.EmptyCard {
			c := cardView(top, int(e.Players[s].DiscardLen)-1)
			ps.DiscardTop = &c
		}
		for id := uint8(0); id < engine.MarblesPerSeat; id++ {
			ps.Marbles = append(ps.Marbles, marbleView(e, engine.MarbleRef{Owner: s, ID: id}))
		}
		if forUser != uuid.Nil && ps.PlayerID == forUser {
			hand := e.Hand(s)
			ps.RevealedHand = make([]ObfCard, len(hand))
			for i, c := range hand {
				ps.RevealedHand[i] = cardView(c, i)
			}
		}
		obf.Players = append(obf.Players, ps)
	}
	return obf
}

// publicSnapshot is the spectator view, as stored by the historian and the
// game record.
// Assumes lock is held by caller.
func (g *MarblesGame) publicSnapshot() ObfGameState {
	return g.GetCurrentObfuscatedGameState(uuid.Nil)
}
