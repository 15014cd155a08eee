package engine

import "fmt"

// PlayAction names what a card is being used for.
type PlayAction uint8

const (
	ActionEnter PlayAction = iota // bring a marble out of start
	ActionMove                    // single forward or backward move by the card's value
	ActionSplit                   // 7 split across up to two marbles, or 9 forward+backward
	ActionJoker                   // jump onto another seat's marble
)

func (a PlayAction) String() string {
	switch a {
	case ActionEnter:
		return "enter"
	case ActionMove:
		return "move"
	case ActionSplit:
		return "split"
	case ActionJoker:
		return "joker"
	}
	return "unknown"
}

// Play is a complete use of one card.
type Play struct {
	Action PlayAction
	Marble MarbleRef  // moved marble (enter, move) or joker source
	Target MarbleRef  // joker target
	Home   HomeChoice // for ActionMove on forward cards
	Moves  []SubMove  // ActionSplit: 7 takes 1-2 forward legs, 9 takes [forward, backward]
}

// Outcome reports the result of a turn-level operation.
type Outcome struct {
	Effects      []Effect
	Completed    bool  // the card was discarded and the turn advanced (or the game ended)
	Remaining    uint8 // spaces left for the second leg of a pending split
	SeatFinished bool  // the acting seat has all marbles home
	GameOver     bool
	Winner       Team
}

// Landings returns only the bump and boost effects.
func (o Outcome) Landings() []Effect {
	var out []Effect
	for _, e := range o.Effects {
		if e.IsLanding() {
			out = append(out, e)
		}
	}
	return out
}

// checkTurn validates that seat may act now with the card at cardIndex.
func (g *GameState) checkTurn(seat Seat, cardIndex uint8) (Card, error) {
	if err := checkSeat(seat); err != nil {
		return EmptyCard, err
	}
	if !g.IsStarted() {
		return EmptyCard, ErrGameNotStarted
	}
	if g.IsGameOver() {
		return EmptyCard, ErrGameOver
	}
	if g.CurrentSeat() != seat {
		return EmptyCard, fmt.Errorf("%w: %s to play, not %s", ErrNotYourTurn, g.CurrentSeat(), seat)
	}
	if cardIndex >= g.Players[seat].HandLen {
		return EmptyCard, fmt.Errorf("%w: card index %d", ErrInvalidReference, cardIndex)
	}
	return g.Players[seat].Hand[cardIndex], nil
}

// PlayCard uses the card at cardIndex for a whole play, then discards it,
// draws a replacement, checks for a win and passes the turn. Any pending split
// of the seat is dropped without undoing its first leg, but the split card
// itself is refused. On error nothing changes.
func (g *GameState) PlayCard(seat Seat, cardIndex uint8, play Play) (Outcome, error) {
	card, err := g.checkTurn(seat, cardIndex)
	if err != nil {
		return Outcome{}, err
	}
	if g.cardSpent(seat, cardIndex) {
		return Outcome{}, fmt.Errorf("%w: %s already played a leg this turn", ErrIllegalSplit, card)
	}

	snap := g.Save()
	g.clearPending()
	effects, err := g.execute(seat, card, play)
	if err != nil {
		g.Restore(snap)
		return Outcome{}, err
	}
	return g.finishCard(seat, cardIndex, effects), nil
}

// execute dispatches play through the single card table in Card.Kind.
func (g *GameState) execute(seat Seat, card Card, play Play) ([]Effect, error) {
	kind := card.Kind()
	switch {
	case play.Action == ActionEnter && kind == KindEnter:
		return g.Enter(seat, play.Marble)

	case play.Action == ActionMove && (kind == KindEnter || kind == KindForward || kind == KindSeven):
		return g.MoveForward(seat, play.Marble, card.Spaces(), play.Home)

	case play.Action == ActionMove && kind == KindBackward:
		return g.MoveBackward(seat, play.Marble, card.Spaces())

	case play.Action == ActionSplit && kind == KindSeven:
		if len(play.Moves) == 1 && play.Moves[0].Spaces < sevenTotal {
			return g.winningLeg(seat, sevenTotal, play.Moves[0])
		}
		return g.SplitSeven(seat, play.Moves)

	case play.Action == ActionSplit && kind == KindNine:
		if len(play.Moves) == 1 {
			return g.winningLeg(seat, nineTotal, play.Moves[0])
		}
		if len(play.Moves) != 2 {
			return nil, fmt.Errorf("%w: a 9 needs a forward and a backward leg", ErrIllegalSplit)
		}
		return g.SplitNine(seat, play.Moves[0], play.Moves[1])

	case play.Action == ActionMove && kind == KindNine:
		return nil, fmt.Errorf("%w: a 9 needs a forward and a backward leg", ErrIllegalSplit)

	case play.Action == ActionJoker && kind == KindJoker:
		return g.JokerCapture(seat, play.Marble, play.Target)
	}
	return nil, fmt.Errorf("%w: %s cannot %s", ErrCardMismatch, card, play.Action)
}

// Discard throws away a card without moving. It is refused while the seat has
// any legal play in hand.
func (g *GameState) Discard(seat Seat, cardIndex uint8) (Outcome, error) {
	if _, err := g.checkTurn(seat, cardIndex); err != nil {
		return Outcome{}, err
	}
	if g.HasLegalPlay(seat) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNoLegalDiscard, seat)
	}
	g.clearPending()
	return g.finishCard(seat, cardIndex, nil), nil
}

// finishCard discards the used card, refills the hand, checks for a win and
// advances the turn if the game goes on.
func (g *GameState) finishCard(seat Seat, cardIndex uint8, effects []Effect) Outcome {
	g.discardFromHand(seat, cardIndex)
	g.draw(seat)

	out := Outcome{
		Effects:      effects,
		Completed:    true,
		SeatFinished: g.IsFinished(seat),
		Winner:       NoTeam,
	}
	if g.checkWin() {
		out.GameOver, out.Winner = true, g.Winner
		return out
	}
	g.advance()
	return out
}

// advance passes the turn to the next seat and drops any pending split.
func (g *GameState) advance() {
	g.clearPending()
	g.CurrentIdx = (g.CurrentIdx + 1) % NumSeats
	g.TurnNumber++
}

// checkWin ends the game as soon as both seats of a team are finished.
func (g *GameState) checkWin() bool {
	if g.IsGameOver() {
		return true
	}
	for t := Team(0); t < 2; t++ {
		seats := t.Seats()
		if g.IsFinished(seats[0]) && g.IsFinished(seats[1]) {
			g.Flags |= FlagGameOver
			g.Winner = t
			g.clearPending()
			return true
		}
	}
	return false
}
