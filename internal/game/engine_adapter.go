// internal/game/engine_adapter.go
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	engine "github.com/jason-s-yu/marbles/engine"
	"github.com/jason-s-yu/marbles/engine/agent"
	"github.com/sirupsen/logrus"
)

// Position is a marble location inside an event.
type Position struct {
	Loc string `json:"loc"`
	Pos int    `json:"pos"`
}

// EventEffect is one marble relocation caused by an action.
type EventEffect struct {
	Kind string   `json:"kind"` // move, bump or boost
	Seat int      `json:"seat"`
	ID   int      `json:"id"`
	From Position `json:"from"`
	To   Position `json:"to"`
	By   int      `json:"by"`
}

// EventDestination is one landing reported by private_destinations.
type EventDestination struct {
	Marble    ObfMarble  `json:"marble"`
	Spaces    int        `json:"spaces"`
	EnterHome *bool      `json:"enterHome,omitempty"`
	Backward  bool       `json:"backward,omitempty"`
	To        Position   `json:"to"`
	Target    *ObfMarble `json:"target,omitempty"`
}

func rankString(r uint8) string {
	switch r {
	case engine.RankAce:
		return "A"
	case engine.RankJack:
		return "J"
	case engine.RankQueen:
		return "Q"
	case engine.RankKing:
		return "K"
	case engine.RankJoker:
		return "Joker"
	}
	return fmt.Sprintf("%d", r+1)
}

func suitString(s uint8) string {
	switch s {
	case engine.SuitHearts:
		return "hearts"
	case engine.SuitDiamonds:
		return "diamonds"
	case engine.SuitClubs:
		return "clubs"
	case engine.SuitSpades:
		return "spades"
	case engine.SuitRedJoker:
		return "red"
	case engine.SuitBlackJoker:
		return "black"
	}
	return ""
}

func kindString(k engine.CardKind) string {
	switch k {
	case engine.KindEnter:
		return "enter"
	case engine.KindForward:
		return "forward"
	case engine.KindSeven:
		return "seven"
	case engine.KindBackward:
		return "backward"
	case engine.KindNine:
		return "nine"
	case engine.KindJoker:
		return "joker"
	}
	return "invalid"
}

func cardView(c engine.Card, idx int) ObfCard {
	return ObfCard{
		Idx:   idx,
		Label: c.String(),
		Rank:  rankString(c.Rank()),
		Suit:  suitString(c.Suit()),
		Kind:  kindString(c.Kind()),
	}
}

func positionView(m engine.Marble) Position {
	return Position{Loc: m.Loc.String(), Pos: int(m.Pos)}
}

func marbleView(e *engine.GameState, ref engine.MarbleRef) ObfMarble {
	m := e.Marble(ref)
	return ObfMarble{Seat: int(ref.Owner), ID: int(ref.ID), Loc: m.Loc.String(), Pos: int(m.Pos)}
}

func effectViews(effects []engine.Effect) []EventEffect {
	out := make([]EventEffect, 0, len(effects))
	for _, e := range effects {
		out = append(out, EventEffect{
			Kind: e.Kind.String(),
			Seat: int(e.Marble.Owner),
			ID:   int(e.Marble.ID),
			From: positionView(e.From),
			To:   positionView(e.To),
			By:   int(e.By),
		})
	}
	return out
}

func destinationViews(e *engine.GameState, dests []engine.Destination) []EventDestination {
	out := make([]EventDestination, 0, len(dests))
	for _, d := range dests {
		v := EventDestination{
			Marble:   marbleView(e, d.Marble),
			Spaces:   int(d.Spaces),
			Backward: d.Backward,
			To:       positionView(d.To),
		}
		switch d.Home {
		case engine.HomeEnter, engine.HomePass:
			enter := d.Home == engine.HomeEnter
			v.EnterHome = &enter
		}
		if !d.Target.IsEmpty() {
			t := marbleView(e, d.Target)
			v.Target = &t
		}
		out = append(out, v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Payload parsing. Clients send JSON numbers, so every integer arrives as
// float64. Malformed payloads are reported as engine.ErrInvalidReference.
// ---------------------------------------------------------------------------

func parseUint8(data map[string]interface{}, key string) (uint8, bool) {
	f, ok := data[key].(float64)
	if !ok || f < 0 || f > 255 || f != float64(int(f)) {
		return 0, false
	}
	return uint8(f), true
}

func parseCardIndex(data map[string]interface{}) (uint8, error) {
	idx, ok := parseUint8(data, "cardIndex")
	if !ok {
		return 0, fmt.Errorf("%w: missing or bad cardIndex", engine.ErrInvalidReference)
	}
	return idx, nil
}

// parseMarbleRef reads {"seat": n, "id": n} under key. seat defaults to the
// acting seat.
func parseMarbleRef(data map[string]interface{}, key string, actor engine.Seat) (engine.MarbleRef, error) {
	m, ok := data[key].(map[string]interface{})
	if !ok {
		return engine.NoMarble, fmt.Errorf("%w: missing %s", engine.ErrInvalidReference, key)
	}
	id, ok := parseUint8(m, "id")
	if !ok {
		return engine.NoMarble, fmt.Errorf("%w: bad %s.id", engine.ErrInvalidReference, key)
	}
	ref := engine.MarbleRef{Owner: actor, ID: id}
	if _, present := m["seat"]; present {
		seat, ok := parseUint8(m, "seat")
		if !ok {
			return engine.NoMarble, fmt.Errorf("%w: bad %s.seat", engine.ErrInvalidReference, key)
		}
		ref.Owner = engine.Seat(seat)
	}
	if !ref.Valid() {
		return engine.NoMarble, fmt.Errorf("%w: %s", engine.ErrInvalidReference, ref)
	}
	return ref, nil
}

// parseHomeChoice maps the optional enterHome flag.
func parseHomeChoice(data map[string]interface{}) engine.HomeChoice {
	enter, ok := data["enterHome"].(bool)
	switch {
	case !ok:
		return engine.HomeAuto
	case enter:
		return engine.HomeEnter
	}
	return engine.HomePass
}

// parseSubMove reads one leg: {"marble": {...}, "spaces": n, "enterHome": b}.
// spaces may be omitted when the caller fills it in.
func parseSubMove(data map[string]interface{}, actor engine.Seat) (engine.SubMove, error) {
	ref, err := parseMarbleRef(data, "marble", actor)
	if err != nil {
		return engine.SubMove{}, err
	}
	leg := engine.SubMove{Marble: ref, Home: parseHomeChoice(data)}
	if _, present := data["spaces"]; present {
		n, ok := parseUint8(data, "spaces")
		if !ok {
			return engine.SubMove{}, fmt.Errorf("%w: bad spaces", engine.ErrInvalidReference)
		}
		leg.Spaces = n
	}
	return leg, nil
}

func parseAction(s string) (engine.PlayAction, bool) {
	for _, a := range []engine.PlayAction{engine.ActionEnter, engine.ActionMove, engine.ActionSplit, engine.ActionJoker} {
		if a.String() == s {
			return a, true
		}
	}
	return 0, false
}

// parsePlay reads a whole-card play:
//
//	{"cardIndex": n, "action": "enter|move|split|joker", "marble": {...},
//	 "target": {...}, "enterHome": b, "moves": [{leg}, {leg}]}
func parsePlay(data map[string]interface{}, actor engine.Seat) (uint8, engine.Play, error) {
	idx, err := parseCardIndex(data)
	if err != nil {
		return 0, engine.Play{}, err
	}
	name, _ := data["action"].(string)
	action, ok := parseAction(name)
	if !ok {
		return 0, engine.Play{}, fmt.Errorf("%w: unknown play action %q", engine.ErrInvalidReference, name)
	}

	play := engine.Play{Action: action, Marble: engine.NoMarble, Target: engine.NoMarble, Home: parseHomeChoice(data)}
	switch action {
	case engine.ActionSplit:
		raw, ok := data["moves"].([]interface{})
		if !ok || len(raw) == 0 {
			return 0, engine.Play{}, fmt.Errorf("%w: split needs moves", engine.ErrInvalidReference)
		}
		for i, r := range raw {
			m, ok := r.(map[string]interface{})
			if !ok {
				return 0, engine.Play{}, fmt.Errorf("%w: move %d", engine.ErrInvalidReference, i)
			}
			leg, err := parseSubMove(m, actor)
			if err != nil {
				return 0, engine.Play{}, err
			}
			play.Moves = append(play.Moves, leg)
		}
	case engine.ActionJoker:
		if play.Marble, err = parseMarbleRef(data, "marble", actor); err != nil {
			return 0, engine.Play{}, err
		}
		if play.Target, err = parseMarbleRef(data, "target", actor); err != nil {
			return 0, engine.Play{}, err
		}
	default:
		if play.Marble, err = parseMarbleRef(data, "marble", actor); err != nil {
			return 0, engine.Play{}, err
		}
	}
	return idx, play, nil
}

// ---------------------------------------------------------------------------
// Action handlers. Each runs one engine operation; on error the engine state
// is unchanged and only the actor hears about it.
// ---------------------------------------------------------------------------

// heldCard returns the card at idx in seat's hand, or EmptyCard.
func (g *MarblesGame) heldCard(seat engine.Seat, idx uint8) engine.Card {
	hand := g.Engine.Hand(seat)
	if int(idx) >= len(hand) {
		return engine.EmptyCard
	}
	return hand[idx]
}

func (g *MarblesGame) handlePlay(playerID uuid.UUID, seat engine.Seat, payload map[string]interface{}) {
	idx, play, err := parsePlay(payload, seat)
	if err != nil {
		g.failAction(playerID, "action_play", err)
		return
	}
	card := g.heldCard(seat, idx)
	out, err := g.Engine.PlayCard(seat, idx, play)
	if err != nil {
		g.failAction(playerID, "action_play", err)
		return
	}
	g.announcePlay(playerID, seat, EventPlayerPlay, card, int(idx), play.Action, out, false)
	g.applyOutcome(out)
}

func (g *MarblesGame) handlePartialMove(playerID uuid.UUID, seat engine.Seat, payload map[string]interface{}) {
	idx, err := parseCardIndex(payload)
	if err != nil {
		g.failAction(playerID, "action_partial_move", err)
		return
	}
	leg, err := parseSubMove(payload, seat)
	if err != nil {
		g.failAction(playerID, "action_partial_move", err)
		return
	}
	card := g.heldCard(seat, idx)
	out, err := g.Engine.BeginPartialMove(seat, idx, leg)
	if err != nil {
		g.failAction(playerID, "action_partial_move", err)
		return
	}

	evType := EventPlayerPartialMove
	if out.Completed {
		// A 7 that used all seven spaces finishes the card.
		evType = EventPlayerPlay
	}
	g.announcePlay(playerID, seat, evType, card, int(idx), engine.ActionSplit, out, false)
	g.applyOutcome(out)
}

func (g *MarblesGame) handleCompleteSplit(playerID uuid.UUID, seat engine.Seat, payload map[string]interface{}) {
	leg, err := parseSubMove(payload, seat)
	if err != nil {
		g.failAction(playerID, "action_complete_split", err)
		return
	}
	idx := int(g.Engine.Pending.CardIndex)
	card := g.heldCard(seat, g.Engine.Pending.CardIndex)
	out, err := g.Engine.CompletePartialMove(seat, leg)
	if err != nil {
		g.failAction(playerID, "action_complete_split", err)
		return
	}
	g.announcePlay(playerID, seat, EventPlayerSplitComplete, card, idx, engine.ActionSplit, out, false)
	g.applyOutcome(out)
}

func (g *MarblesGame) handleDiscard(playerID uuid.UUID, seat engine.Seat, payload map[string]interface{}) {
	idx, err := parseCardIndex(payload)
	if err != nil {
		g.failAction(playerID, "action_discard", err)
		return
	}
	card := g.heldCard(seat, idx)
	out, err := g.Engine.Discard(seat, idx)
	if err != nil {
		g.failAction(playerID, "action_discard", err)
		return
	}
	g.announceDiscard(playerID, seat, card, int(idx), false)
	g.applyOutcome(out)
}

// handleLegalDestinations answers where one marble could go. With a
// cardIndex it lists the card's landings; without one it lists second-leg
// landings for the seat's pending split.
func (g *MarblesGame) handleLegalDestinations(playerID uuid.UUID, seat engine.Seat, payload map[string]interface{}) {
	ref, err := parseMarbleRef(payload, "marble", seat)
	if err != nil {
		g.failAction(playerID, "action_legal_destinations", err)
		return
	}

	var dests []engine.Destination
	resp := map[string]interface{}{"marble": marbleView(&g.Engine, ref)}
	if _, present := payload["cardIndex"]; present {
		idx, err := parseCardIndex(payload)
		if err != nil {
			g.failAction(playerID, "action_legal_destinations", err)
			return
		}
		card := g.heldCard(seat, idx)
		if card == engine.EmptyCard {
			g.failAction(playerID, "action_legal_destinations", fmt.Errorf("%w: card index %d", engine.ErrInvalidReference, idx))
			return
		}
		dests = g.Engine.LegalDestinations(seat, card, ref)
		resp["cardIndex"] = int(idx)
	} else {
		if !g.Engine.HasPendingSplit(seat) {
			g.failAction(playerID, "action_legal_destinations", engine.ErrNoPendingSplit)
			return
		}
		dests = g.Engine.CompletionDestinations(seat, ref)
		resp["remaining"] = int(g.Engine.Pending.Remaining)
	}
	resp["destinations"] = destinationViews(&g.Engine, dests)
	g.fireEventToPlayer(playerID, GameEvent{Type: EventPrivateDestinations, Payload: resp})
}

// announcePlay broadcasts a play and each bump or boost it caused.
func (g *MarblesGame) announcePlay(playerID uuid.UUID, seat engine.Seat, evType GameEventType, card engine.Card, idx int, action engine.PlayAction, out engine.Outcome, auto bool) {
	c := cardView(card, idx)
	payload := map[string]interface{}{
		"seat":         int(seat),
		"action":       action.String(),
		"completed":    out.Completed,
		"seatFinished": out.SeatFinished,
	}
	if !out.Completed && !out.GameOver {
		payload["remaining"] = int(out.Remaining)
	}
	if auto {
		payload["auto"] = true
	}
	g.fireEvent(GameEvent{
		Type:    evType,
		User:    &EventUser{ID: playerID},
		Card:    &c,
		Effects: effectViews(out.Effects),
		Payload: payload,
	})
	g.logAction(playerID, string(evType), map[string]interface{}{"seat": int(seat), "card": c.Label, "action": action.String(), "effects": len(out.Effects)})

	for _, e := range out.Landings() {
		ev := effectViews([]engine.Effect{e})[0]
		g.fireEvent(GameEvent{Type: EventMarbleLanding, Effects: []EventEffect{ev}, Payload: map[string]interface{}{
			"kind": ev.Kind,
			"seat": ev.Seat,
			"id":   ev.ID,
			"by":   ev.By,
		}})
		g.logAction(g.playerAt(e.By), string(EventMarbleLanding), map[string]interface{}{"kind": ev.Kind, "seat": ev.Seat, "id": ev.ID})
	}
}

func (g *MarblesGame) announceDiscard(playerID uuid.UUID, seat engine.Seat, card engine.Card, idx int, auto bool) {
	c := cardView(card, idx)
	payload := map[string]interface{}{"seat": int(seat)}
	if auto {
		payload["auto"] = true
	}
	g.fireEvent(GameEvent{Type: EventPlayerDiscard, User: &EventUser{ID: playerID}, Card: &c, Payload: payload})
	g.logAction(playerID, string(EventPlayerDiscard), map[string]interface{}{"seat": int(seat), "card": c.Label})
}

// applyOutcome syncs every client and moves the table on.
func (g *MarblesGame) applyOutcome(out engine.Outcome) {
	g.broadcastSyncStateToAll()
	g.publishSnapshot()
	switch {
	case out.GameOver:
		g.EndGame()
	case out.Completed:
		g.onTurnAdvanced()
	}
}

// ---------------------------------------------------------------------------
// Turn flow
// ---------------------------------------------------------------------------

// onTurnAdvanced starts the next seat's turn.
func (g *MarblesGame) onTurnAdvanced() {
	g.TurnID++
	if g.GameOver || g.Engine.IsGameOver() {
		return
	}
	g.scheduleNextTurnTimer()
	g.broadcastPlayerTurn()
}

// broadcastPlayerTurn notifies all players of the seat to move.
func (g *MarblesGame) broadcastPlayerTurn() {
	if g.GameOver || !g.Started {
		return
	}
	seat := g.Engine.CurrentSeat()
	playerID := g.playerAt(seat)
	g.log.WithFields(logrus.Fields{"turn": g.TurnID, "seat": seat}).Debug("turn start")
	g.fireEvent(GameEvent{
		Type: EventGamePlayerTurn,
		User: &EventUser{ID: playerID},
		Payload: map[string]interface{}{
			"turn":         g.TurnID,
			"seat":         int(seat),
			"hasLegalPlay": g.Engine.HasLegalPlay(seat),
		},
	})
	g.logAction(playerID, string(EventGamePlayerTurn), map[string]interface{}{"turn": g.TurnID, "seat": int(seat)})
}

func (g *MarblesGame) stopTurnTimer() {
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
}

// scheduleNextTurnTimer arms auto-play for the current turn. A disconnected
// seat waits DisconnectDelay instead of the full turn. Nothing is armed while
// no player is connected.
func (g *MarblesGame) scheduleNextTurnTimer() {
	g.stopTurnTimer()
	if g.GameOver || !g.Started || g.Engine.IsGameOver() {
		return
	}
	seat := g.Engine.CurrentSeat()
	p := g.Seats[seat]
	wait := g.TurnDuration
	if p == nil || !p.Connected {
		if g.countConnectedPlayers() == 0 {
			return
		}
		wait = g.DisconnectDelay
	}
	if wait <= 0 {
		return
	}

	expected := g.TurnID
	g.turnTimer = time.AfterFunc(wait, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.GameOver || !g.Started || g.TurnID != expected {
			return
		}
		g.handleTimeout(seat)
	})
}

// handleTimeout plays the current seat's turn for it: the pending split is
// finished if possible, otherwise the agent's best play, otherwise a discard.
func (g *MarblesGame) handleTimeout(seat engine.Seat) {
	playerID := g.playerAt(seat)
	g.log.WithFields(logrus.Fields{"turn": g.TurnID, "seat": seat}).Info("turn timed out, auto-playing")
	g.logAction(playerID, "player_timeout", map[string]interface{}{"turn": g.TurnID, "seat": int(seat)})

	var hand [engine.MaxHandSize]engine.Card
	copy(hand[:], g.Engine.Hand(seat))
	pending, first := g.Engine.HasPendingSplit(seat), g.Engine.Pending.First

	play := g.autoPlay
	if play == nil {
		play = agentPlay
	}
	out, c, err := play(&g.Engine, seat)
	if err != nil {
		g.log.WithError(err).WithField("seat", seat).Error("auto-play failed, discarding instead")
		out, c, err = g.fallbackDiscard(seat)
	}
	if err != nil {
		// Retried when the re-armed timer fires.
		g.log.WithError(err).WithField("seat", seat).Error("auto-play discard failed")
		g.scheduleNextTurnTimer()
		return
	}
	switch {
	case c.Card == engine.EmptyCard:
		g.announceDiscard(playerID, seat, hand[c.CardIndex], int(c.CardIndex), true)
	case pending && c.Play.Action == engine.ActionSplit && len(c.Play.Moves) == 2 && c.Play.Moves[0] == first:
		g.announcePlay(playerID, seat, EventPlayerSplitComplete, c.Card, int(c.CardIndex), c.Play.Action, out, true)
	default:
		g.announcePlay(playerID, seat, EventPlayerPlay, c.Card, int(c.CardIndex), c.Play.Action, out, true)
	}
	g.applyOutcome(out)
}

func agentPlay(e *engine.GameState, seat engine.Seat) (engine.Outcome, engine.Candidate, error) {
	a := agent.NewAgent(seat)
	return a.Act(e)
}

// fallbackDiscard drops seat's pending split and throws away the agent's least
// useful card, then any card the engine accepts.
func (g *MarblesGame) fallbackDiscard(seat engine.Seat) (engine.Outcome, engine.Candidate, error) {
	if g.Engine.AbandonPartialMove(seat) {
		playerID := g.playerAt(seat)
		g.logAction(playerID, string(EventPlayerSplitAbandon), map[string]interface{}{"seat": int(seat)})
		g.fireEvent(GameEvent{Type: EventPlayerSplitAbandon, User: &EventUser{ID: playerID}, Payload: map[string]interface{}{"seat": int(seat)}})
	}
	a := agent.NewAgent(seat)
	first := a.DiscardIndex(&g.Engine)
	out, err := g.Engine.Discard(seat, first)
	if err == nil {
		return out, engine.Candidate{CardIndex: first, Card: engine.EmptyCard}, nil
	}
	for i := uint8(0); i < g.Engine.HandLen(seat); i++ {
		if i == first {
			continue
		}
		if out, err2 := g.Engine.Discard(seat, i); err2 == nil {
			return out, engine.Candidate{CardIndex: i, Card: engine.EmptyCard}, nil
		}
	}
	return engine.Outcome{}, engine.Candidate{}, err
}
