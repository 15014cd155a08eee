// internal/game/game_test.go
package game

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	engine "github.com/jason-s-yu/marbles/engine"
	"github.com/jason-s-yu/marbles/engine/agent"
	"github.com/jason-s-yu/marbles/internal/cache"
	"github.com/jason-s-yu/marbles/internal/database"
	"github.com/jason-s-yu/marbles/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster captures game events for testing assertions.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []GameEvent
	playerEvents map[uuid.UUID][]GameEvent
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{playerEvents: make(map[uuid.UUID][]GameEvent)}
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = nil
	mb.playerEvents = make(map[uuid.UUID][]GameEvent)
}

func (mb *mockBroadcaster) findEventByType(eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == eventType {
			ev := mb.allEvents[i]
			return &ev
		}
	}
	return nil
}

func (mb *mockBroadcaster) eventsOfType(eventType GameEventType) []GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []GameEvent
	for _, ev := range mb.allEvents {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (mb *mockBroadcaster) findPlayerEventByType(playerID uuid.UUID, eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[playerID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			ev := events[i]
			return &ev
		}
	}
	return nil
}

// fakeHistorian records what a table publishes.
type fakeHistorian struct {
	mu        sync.Mutex
	actions   []cache.GameActionRecord
	snapshots [][]byte
}

func (h *fakeHistorian) PublishGameAction(_ context.Context, rec cache.GameActionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, rec)
	return nil
}

func (h *fakeHistorian) PublishSnapshot(_ context.Context, _ uuid.UUID, snapshot []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, snapshot)
	return nil
}

// fakeRecorder records game starts and results.
type fakeRecorder struct {
	mu      sync.Mutex
	starts  []database.GameStart
	results []database.GameResult
}

func (r *fakeRecorder) RecordGameStart(_ context.Context, s database.GameStart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, s)
	return nil
}

func (r *fakeRecorder) RecordGameResult(_ context.Context, res database.GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

type testTable struct {
	g       *MarblesGame
	players []*models.Player
	mb      *mockBroadcaster
	hist    *fakeHistorian
	rec     *fakeRecorder
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newPlayers(n int) []*models.Player {
	players := make([]*models.Player, n)
	for i := range players {
		players[i] = &models.Player{
			ID:   uuid.New(),
			Seat: -1,
			User: &models.User{ID: uuid.New(), Username: "Player" + string(rune('A'+i))},
		}
	}
	return players
}

// setupTestGame seats four players and deals with Seat1 to move and the turn
// timer disabled.
func setupTestGame(t *testing.T) *testTable {
	t.Helper()
	g := NewMarblesGame(quietLogger())
	mb := newMockBroadcaster()
	hist := &fakeHistorian{}
	rec := &fakeRecorder{}
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn
	g.Historian = hist
	g.Recorder = rec
	g.Seed = 42
	g.HouseRules.StartingSeat = 0
	g.HouseRules.TurnTimerSec = 0

	players := newPlayers(engine.NumSeats)
	for _, p := range players {
		require.NoError(t, g.AddPlayer(p, -1))
	}
	require.NoError(t, g.Start())
	require.True(t, g.Started)
	require.Equal(t, engine.Seat1, g.Engine.CurrentSeat())
	t.Cleanup(g.Drain)
	return &testTable{g: g, players: players, mb: mb, hist: hist, rec: rec}
}

// setHand replaces seat's hand.
func setHand(g *MarblesGame, seat engine.Seat, cards ...engine.Card) {
	p := &g.Engine.Players[seat]
	for i := range p.Hand {
		p.Hand[i] = engine.EmptyCard
	}
	copy(p.Hand[:], cards)
	p.HandLen = uint8(len(cards))
}

func place(t *testing.T, g *MarblesGame, owner engine.Seat, id uint8, m engine.Marble) {
	t.Helper()
	require.True(t, g.Engine.PlaceMarble(engine.MarbleRef{Owner: owner, ID: id}, m), "PlaceMarble %s/%d", owner, id)
}

func onTrack(pos uint8) engine.Marble { return engine.Marble{Loc: engine.LocTrack, Pos: pos} }
func inHome(idx uint8) engine.Marble  { return engine.Marble{Loc: engine.LocHome, Pos: idx} }

func refPayload(seat engine.Seat, id uint8) map[string]interface{} {
	return map[string]interface{}{"seat": float64(seat), "id": float64(id)}
}

func legPayload(m engine.SubMove) map[string]interface{} {
	p := map[string]interface{}{"marble": refPayload(m.Marble.Owner, m.Marble.ID), "spaces": float64(m.Spaces)}
	switch m.Home {
	case engine.HomeEnter:
		p["enterHome"] = true
	case engine.HomePass:
		p["enterHome"] = false
	}
	return p
}

// playPayload encodes a candidate the way a client would send it.
func playPayload(c engine.Candidate) map[string]interface{} {
	p := map[string]interface{}{"cardIndex": float64(c.CardIndex), "action": c.Play.Action.String()}
	switch c.Play.Action {
	case engine.ActionSplit:
		moves := make([]interface{}, 0, len(c.Play.Moves))
		for _, m := range c.Play.Moves {
			moves = append(moves, legPayload(m))
		}
		p["moves"] = moves
	case engine.ActionJoker:
		p["marble"] = refPayload(c.Play.Marble.Owner, c.Play.Marble.ID)
		p["target"] = refPayload(c.Play.Target.Owner, c.Play.Target.ID)
	default:
		p["marble"] = refPayload(c.Play.Marble.Owner, c.Play.Marble.ID)
		switch c.Play.Home {
		case engine.HomeEnter:
			p["enterHome"] = true
		case engine.HomePass:
			p["enterHome"] = false
		}
	}
	return p
}

func act(g *MarblesGame, p *models.Player, actionType string, payload map[string]interface{}) {
	g.HandlePlayerAction(p.ID, models.GameAction{ActionType: actionType, Payload: payload})
}

func failCode(t *testing.T, mb *mockBroadcaster, p *models.Player) string {
	t.Helper()
	ev := mb.findPlayerEventByType(p.ID, EventPrivateActionFail)
	require.NotNil(t, ev, "expected private_action_fail")
	code, _ := ev.Payload["code"].(string)
	return code
}

var (
	cardAce   = engine.NewCard(engine.SuitHearts, engine.RankAce)
	cardTwo   = engine.NewCard(engine.SuitHearts, engine.RankTwo)
	cardThree = engine.NewCard(engine.SuitClubs, engine.RankThree)
	cardFive  = engine.NewCard(engine.SuitDiamonds, engine.RankFive)
	cardSeven = engine.NewCard(engine.SuitSpades, engine.RankSeven)
	cardJoker = engine.NewCard(engine.SuitRedJoker, engine.RankJoker)
)

// ---------------------------------------------------------------------------
// Seating and start
// ---------------------------------------------------------------------------

func TestAddPlayerSeating(t *testing.T) {
	g := NewMarblesGame(quietLogger())
	players := newPlayers(5)

	require.NoError(t, g.AddPlayer(players[0], 2))
	assert.Equal(t, int8(2), players[0].Seat)
	assert.ErrorIs(t, g.AddPlayer(players[1], 2), ErrSeatTaken)
	assert.ErrorIs(t, g.AddPlayer(players[1], 4), engine.ErrInvalidReference)

	require.NoError(t, g.AddPlayer(players[1], -1))
	assert.Equal(t, int8(0), players[1].Seat)
	require.NoError(t, g.AddPlayer(players[2], -1))
	require.NoError(t, g.AddPlayer(players[3], -1))
	assert.Equal(t, int8(3), players[3].Seat)
	assert.ErrorIs(t, g.AddPlayer(players[4], -1), ErrTableFull)

	// Seating the same player again is a reconnect, not a second seat.
	require.NoError(t, g.AddPlayer(players[0], -1))
	assert.Equal(t, int8(2), players[0].Seat)
	assert.Equal(t, 4, g.countConnectedPlayers())
}

func TestStartRequiresFullTable(t *testing.T) {
	g := NewMarblesGame(quietLogger())
	for _, p := range newPlayers(3) {
		require.NoError(t, g.AddPlayer(p, -1))
	}
	assert.ErrorIs(t, g.Start(), ErrTableNotFull)
	assert.False(t, g.Started)
}

func TestStartDealsAndAnnounces(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb

	assert.ErrorIs(t, g.AddPlayer(newPlayers(1)[0], -1), ErrGameInProgress)
	assert.ErrorIs(t, g.Start(), ErrGameInProgress)

	start := mb.findEventByType(EventGameStart)
	require.NotNil(t, start)
	assert.Equal(t, 0, start.Payload["firstSeat"])

	turn := mb.findEventByType(EventGamePlayerTurn)
	require.NotNil(t, turn)
	assert.Equal(t, tt.players[0].ID, turn.User.ID)
	assert.Equal(t, 0, turn.Payload["seat"])

	for s := engine.Seat(0); s < engine.NumSeats; s++ {
		assert.Equal(t, uint8(engine.MaxHandSize), g.Engine.HandLen(s))
	}

	g.Drain()
	tt.rec.mu.Lock()
	require.Len(t, tt.rec.starts, 1)
	assert.Equal(t, uint64(42), tt.rec.starts[0].Seed)
	assert.Len(t, tt.rec.starts[0].Seats, engine.NumSeats)
	tt.rec.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Obfuscated state
// ---------------------------------------------------------------------------

func TestSyncStateRevealsOnlyOwnHand(t *testing.T) {
	tt := setupTestGame(t)
	for i, p := range tt.players {
		ev := tt.mb.findPlayerEventByType(p.ID, EventPrivateSyncState)
		require.NotNil(t, ev, "player %d got no sync state", i)
		require.NotNil(t, ev.State)
		require.Len(t, ev.State.Players, engine.NumSeats)
		for _, ps := range ev.State.Players {
			if ps.Seat == i {
				assert.Len(t, ps.RevealedHand, engine.MaxHandSize)
			} else {
				assert.Empty(t, ps.RevealedHand, "seat %d saw seat %d's hand", i, ps.Seat)
			}
			assert.Len(t, ps.Marbles, engine.MarblesPerSeat)
			assert.Equal(t, ps.Seat%2, ps.Team)
		}
	}

	spectator := tt.g.GetCurrentObfuscatedGameState(uuid.Nil)
	for _, ps := range spectator.Players {
		assert.Empty(t, ps.RevealedHand)
	}
	assert.True(t, spectator.Players[0].IsCurrentTurn)
	assert.Nil(t, spectator.Winner)
	assert.Nil(t, spectator.Pending)
}

// ---------------------------------------------------------------------------
// Plays
// ---------------------------------------------------------------------------

func TestPlayEnter(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb
	setHand(g, engine.Seat1, cardAce, cardTwo)
	mb.clear()

	act(g, tt.players[0], "action_play", map[string]interface{}{
		"cardIndex": float64(0), "action": "enter", "marble": map[string]interface{}{"id": float64(0)},
	})

	ev := mb.findEventByType(EventPlayerPlay)
	require.NotNil(t, ev)
	assert.Equal(t, "Ah", ev.Card.Label)
	assert.Equal(t, "enter", ev.Card.Kind)
	require.Len(t, ev.Effects, 1)
	assert.Equal(t, "move", ev.Effects[0].Kind)
	assert.Equal(t, Position{Loc: "start", Pos: 0}, ev.Effects[0].From)
	assert.Equal(t, Position{Loc: "track", Pos: 0}, ev.Effects[0].To)
	assert.Equal(t, true, ev.Payload["completed"])

	assert.Equal(t, engine.Seat2, g.Engine.CurrentSeat())
	assert.Equal(t, 2, g.TurnID)
	turn := mb.findEventByType(EventGamePlayerTurn)
	require.NotNil(t, turn)
	assert.Equal(t, tt.players[1].ID, turn.User.ID)
	assert.Equal(t, cardAce, g.Engine.DiscardTop(engine.Seat1))
}

func TestPlayCaptureEmitsLanding(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb
	place(t, g, engine.Seat2, 0, onTrack(engine.Seat1.TrackEntry()))
	setHand(g, engine.Seat1, cardAce)
	mb.clear()

	act(g, tt.players[0], "action_play", map[string]interface{}{
		"cardIndex": float64(0), "action": "enter", "marble": refPayload(engine.Seat1, 0),
	})

	landings := mb.eventsOfType(EventMarbleLanding)
	require.Len(t, landings, 1)
	assert.Equal(t, "bump", landings[0].Payload["kind"])
	assert.Equal(t, 1, landings[0].Payload["seat"])
	assert.Equal(t, 0, landings[0].Payload["by"])
	assert.Equal(t, engine.Marble{Loc: engine.LocStart, Pos: 0}, g.Engine.Marble(engine.MarbleRef{Owner: engine.Seat2, ID: 0}))
}

func TestPlayNotYourTurn(t *testing.T) {
	tt := setupTestGame(t)
	act(tt.g, tt.players[2], "action_play", map[string]interface{}{
		"cardIndex": float64(0), "action": "enter", "marble": map[string]interface{}{"id": float64(0)},
	})
	assert.Equal(t, "not_your_turn", failCode(t, tt.mb, tt.players[2]))
	assert.Equal(t, engine.Seat1, tt.g.Engine.CurrentSeat())
}

func TestPlayRejectionLeavesStateUnchanged(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]interface{}
		code    string
	}{
		{"missing card index", map[string]interface{}{"action": "move", "marble": refPayload(engine.Seat1, 0)}, "invalid_reference"},
		{"unknown action", map[string]interface{}{"cardIndex": float64(0), "action": "fly", "marble": refPayload(engine.Seat1, 0)}, "invalid_reference"},
		{"bad marble", map[string]interface{}{"cardIndex": float64(0), "action": "move", "marble": refPayload(engine.Seat1, 7)}, "invalid_reference"},
		{"fractional index", map[string]interface{}{"cardIndex": 0.5, "action": "move", "marble": refPayload(engine.Seat1, 0)}, "invalid_reference"},
		{"marble in start", map[string]interface{}{"cardIndex": float64(0), "action": "move", "marble": refPayload(engine.Seat1, 0)}, "invalid_marble_state"},
		{"card mismatch", map[string]interface{}{"cardIndex": float64(0), "action": "joker", "marble": refPayload(engine.Seat1, 0), "target": refPayload(engine.Seat2, 0)}, "card_mismatch"},
		{"other seat's marble", map[string]interface{}{"cardIndex": float64(0), "action": "move", "marble": refPayload(engine.Seat2, 0)}, "not_controller"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tt := setupTestGame(t)
			setHand(tt.g, engine.Seat1, cardTwo)
			before := tt.g.Engine.GameStateHash()

			act(tt.g, tt.players[0], "action_play", tc.payload)
			assert.Equal(t, tc.code, failCode(t, tt.mb, tt.players[0]))
			assert.Equal(t, before, tt.g.Engine.GameStateHash())
		})
	}
}

func TestUnknownActionType(t *testing.T) {
	tt := setupTestGame(t)
	act(tt.g, tt.players[0], "action_snap", nil)
	assert.Equal(t, "unknown_action", failCode(t, tt.mb, tt.players[0]))
}

// ---------------------------------------------------------------------------
// Splits
// ---------------------------------------------------------------------------

func TestPartialMoveThenComplete(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb
	place(t, g, engine.Seat1, 0, onTrack(10))
	place(t, g, engine.Seat1, 1, onTrack(30))
	setHand(g, engine.Seat1, cardSeven, cardTwo)
	mb.clear()

	act(g, tt.players[0], "action_partial_move", map[string]interface{}{
		"cardIndex": float64(0), "marble": refPayload(engine.Seat1, 0), "spaces": float64(3),
	})
	ev := mb.findEventByType(EventPlayerPartialMove)
	require.NotNil(t, ev)
	assert.Equal(t, 4, ev.Payload["remaining"])
	assert.Equal(t, false, ev.Payload["completed"])
	assert.Equal(t, engine.Seat1, g.Engine.CurrentSeat())
	assert.Equal(t, 1, g.TurnID)

	// Everyone sees the pending split.
	sync := mb.findPlayerEventByType(tt.players[1].ID, EventPrivateSyncState)
	require.NotNil(t, sync)
	require.NotNil(t, sync.State.Pending)
	assert.Equal(t, 4, sync.State.Pending.Remaining)
	assert.Equal(t, "seven", sync.State.Pending.Kind)

	// Second-leg destinations for the other marble.
	act(g, tt.players[0], "action_legal_destinations", map[string]interface{}{"marble": refPayload(engine.Seat1, 1)})
	dest := mb.findPlayerEventByType(tt.players[0].ID, EventPrivateDestinations)
	require.NotNil(t, dest)
	dests, ok := dest.Payload["destinations"].([]EventDestination)
	require.True(t, ok)
	require.Len(t, dests, 1)
	assert.Equal(t, Position{Loc: "track", Pos: 34}, dests[0].To)

	// Reusing the first marble is refused and the split stays pending.
	act(g, tt.players[0], "action_complete_split", map[string]interface{}{"marble": refPayload(engine.Seat1, 0)})
	assert.Equal(t, "illegal_split", failCode(t, mb, tt.players[0]))
	assert.True(t, g.Engine.HasPendingSplit(engine.Seat1))

	act(g, tt.players[0], "action_complete_split", map[string]interface{}{"marble": refPayload(engine.Seat1, 1)})
	done := mb.findEventByType(EventPlayerSplitComplete)
	require.NotNil(t, done)
	assert.Equal(t, "7s", done.Card.Label)
	assert.Equal(t, true, done.Payload["completed"])
	assert.False(t, g.Engine.HasPendingSplit(engine.Seat1))
	assert.Equal(t, engine.Seat2, g.Engine.CurrentSeat())
	assert.Equal(t, onTrack(34), g.Engine.Marble(engine.MarbleRef{Owner: engine.Seat1, ID: 1}))
}

func TestPartialMoveCardCannotBeReplayed(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb
	place(t, g, engine.Seat1, 0, onTrack(10))
	place(t, g, engine.Seat1, 1, onTrack(30))
	setHand(g, engine.Seat1, cardSeven, cardTwo)

	first := map[string]interface{}{
		"cardIndex": float64(0), "marble": refPayload(engine.Seat1, 0), "spaces": float64(3),
	}
	act(g, tt.players[0], "action_partial_move", first)
	require.True(t, g.Engine.HasPendingSplit(engine.Seat1))
	before := g.Engine.GameStateHash()

	mb.clear()
	act(g, tt.players[0], "action_partial_move", first)
	assert.Equal(t, "illegal_split", failCode(t, mb, tt.players[0]))

	mb.clear()
	act(g, tt.players[0], "action_play", playPayload(engine.Candidate{
		CardIndex: 0,
		Play: engine.Play{Action: engine.ActionSplit, Moves: []engine.SubMove{
			{Marble: engine.MarbleRef{Owner: engine.Seat1, ID: 1}, Spaces: 7},
		}},
	}))
	assert.Equal(t, "illegal_split", failCode(t, mb, tt.players[0]))

	assert.Equal(t, before, g.Engine.GameStateHash())
	assert.Equal(t, onTrack(13), g.Engine.Marble(engine.MarbleRef{Owner: engine.Seat1, ID: 0}))
	assert.Equal(t, onTrack(30), g.Engine.Marble(engine.MarbleRef{Owner: engine.Seat1, ID: 1}))
	assert.Equal(t, engine.Seat1, g.Engine.CurrentSeat())
}

func TestLegalDestinationsForCard(t *testing.T) {
	tt := setupTestGame(t)
	g := tt.g
	place(t, g, engine.Seat1, 0, onTrack(64))
	setHand(g, engine.Seat1, cardFive, cardTwo)

	act(g, tt.players[0], "action_legal_destinations", map[string]interface{}{
		"cardIndex": float64(0), "marble": refPayload(engine.Seat1, 0),
	})
	dest := tt.mb.findPlayerEventByType(tt.players[0].ID, EventPrivateDestinations)
	require.NotNil(t, dest)
	dests := dest.Payload["destinations"].([]EventDestination)
	require.Len(t, dests, 2)
	var home, pass bool
	for _, d := range dests {
		require.NotNil(t, d.EnterHome)
		if *d.EnterHome {
			home = d.To == Position{Loc: "home", Pos: 1}
		} else {
			pass = d.To == Position{Loc: "track", Pos: 69}
		}
	}
	assert.True(t, home, "home landing missing: %+v", dests)
	assert.True(t, pass, "track landing missing: %+v", dests)

	act(g, tt.players[0], "action_legal_destinations", map[string]interface{}{"marble": refPayload(engine.Seat1, 0)})
	assert.Equal(t, "no_pending_split", failCode(t, tt.mb, tt.players[0]))
}

func TestDisconnectAbandonsSplit(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb
	g.DisconnectDelay = time.Hour
	place(t, g, engine.Seat1, 0, onTrack(10))
	place(t, g, engine.Seat1, 1, onTrack(30))
	setHand(g, engine.Seat1, cardSeven, cardTwo)

	act(g, tt.players[0], "action_partial_move", map[string]interface{}{
		"cardIndex": float64(0), "marble": refPayload(engine.Seat1, 0), "spaces": float64(3),
	})
	require.True(t, g.Engine.HasPendingSplit(engine.Seat1))

	g.HandleDisconnect(tt.players[0].ID)
	g.stopTurnTimer()

	assert.False(t, tt.players[0].Connected)
	assert.False(t, g.Engine.HasPendingSplit(engine.Seat1))
	assert.NotNil(t, mb.findEventByType(EventPlayerSplitAbandon))
	// The first leg stays, the card stays and the turn stays.
	assert.Equal(t, onTrack(13), g.Engine.Marble(engine.MarbleRef{Owner: engine.Seat1, ID: 0}))
	assert.Equal(t, cardSeven, g.Engine.Hand(engine.Seat1)[0])
	assert.Equal(t, engine.Seat1, g.Engine.CurrentSeat())

	g.HandleReconnect(tt.players[0].ID, nil)
	g.stopTurnTimer()
	assert.True(t, tt.players[0].Connected)
	sync := mb.findPlayerEventByType(tt.players[0].ID, EventPrivateSyncState)
	require.NotNil(t, sync)
	assert.Nil(t, sync.State.Pending)

	// The half-used seven cannot be played again after reconnecting.
	act(g, tt.players[0], "action_play", map[string]interface{}{
		"cardIndex": float64(0), "action": "move", "marble": refPayload(engine.Seat1, 1),
	})
	assert.Equal(t, "illegal_split", failCode(t, mb, tt.players[0]))
	assert.Equal(t, onTrack(30), g.Engine.Marble(engine.MarbleRef{Owner: engine.Seat1, ID: 1}))
}

// ---------------------------------------------------------------------------
// Discard, win and auto-play
// ---------------------------------------------------------------------------

func TestDiscardGate(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb

	setHand(g, engine.Seat1, cardAce, cardTwo)
	act(g, tt.players[0], "action_discard", map[string]interface{}{"cardIndex": float64(1)})
	assert.Equal(t, "no_legal_discard", failCode(t, mb, tt.players[0]))
	assert.Equal(t, engine.Seat1, g.Engine.CurrentSeat())

	setHand(g, engine.Seat1, cardTwo, cardThree)
	act(g, tt.players[0], "action_discard", map[string]interface{}{"cardIndex": float64(1)})
	ev := mb.findEventByType(EventPlayerDiscard)
	require.NotNil(t, ev)
	assert.Equal(t, "3c", ev.Card.Label)
	assert.Equal(t, engine.Seat2, g.Engine.CurrentSeat())
}

func TestWinEndsGame(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb
	var ended []uuid.UUID
	var endedTeam engine.Team
	g.OnGameEnd = func(_ uuid.UUID, winner engine.Team, players []uuid.UUID) {
		endedTeam, ended = winner, players
	}

	for id := uint8(0); id < engine.MarblesPerSeat; id++ {
		place(t, g, engine.Seat1, id, inHome(id))
	}
	for id := uint8(1); id < engine.MarblesPerSeat; id++ {
		place(t, g, engine.Seat3, id, inHome(id))
	}
	place(t, g, engine.Seat3, 0, onTrack(engine.Seat3.HomeEntry()))
	setHand(g, engine.Seat1, cardAce, cardJoker)

	act(g, tt.players[0], "action_play", map[string]interface{}{
		"cardIndex": float64(0), "action": "move", "marble": refPayload(engine.Seat3, 0),
	})

	won := mb.findEventByType(EventGameWon)
	require.NotNil(t, won)
	assert.Equal(t, 0, won.Payload["team"])
	assert.Equal(t, []uuid.UUID{tt.players[0].ID, tt.players[2].ID}, won.Payload["winners"])
	assert.True(t, g.GameOver)
	assert.Equal(t, engine.Team(0), endedTeam)
	assert.Len(t, ended, engine.NumSeats)

	act(g, tt.players[1], "action_discard", map[string]interface{}{"cardIndex": float64(0)})
	assert.Equal(t, "game_over", failCode(t, mb, tt.players[1]))

	g.Drain()
	tt.rec.mu.Lock()
	require.Len(t, tt.rec.results, 1)
	assert.Equal(t, int8(0), tt.rec.results[0].WinningTeam)
	var final ObfGameState
	require.NoError(t, json.Unmarshal(tt.rec.results[0].FinalState, &final))
	require.NotNil(t, final.Winner)
	assert.Equal(t, 0, *final.Winner)
	tt.rec.mu.Unlock()
}

func TestTurnTimerAutoPlays(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb

	g.Mu.Lock()
	g.TurnDuration = 20 * time.Millisecond
	g.scheduleNextTurnTimer()
	g.Mu.Unlock()

	assert.Eventually(t, func() bool {
		for _, typ := range []GameEventType{EventPlayerPlay, EventPlayerDiscard} {
			if ev := mb.findEventByType(typ); ev != nil && ev.Payload["auto"] == true {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	g.Mu.Lock()
	g.TurnDuration = 0
	g.stopTurnTimer()
	assert.GreaterOrEqual(t, g.TurnID, 2)
	g.Mu.Unlock()
}

func TestTimeoutFallsBackWhenAutoPlayFails(t *testing.T) {
	failing := func(*engine.GameState, engine.Seat) (engine.Outcome, engine.Candidate, error) {
		return engine.Outcome{}, engine.Candidate{}, engine.ErrIllegalSplit
	}

	t.Run("discards when nothing is playable", func(t *testing.T) {
		tt := setupTestGame(t)
		g, mb := tt.g, tt.mb
		g.autoPlay = failing
		setHand(g, engine.Seat1, cardTwo, cardThree)

		g.Mu.Lock()
		g.handleTimeout(engine.Seat1)
		g.Mu.Unlock()

		ev := mb.findEventByType(EventPlayerDiscard)
		require.NotNil(t, ev)
		assert.Equal(t, true, ev.Payload["auto"])
		assert.Equal(t, engine.Seat2, g.Engine.CurrentSeat())
	})

	t.Run("re-arms the timer when the discard is refused", func(t *testing.T) {
		tt := setupTestGame(t)
		g, mb := tt.g, tt.mb
		g.autoPlay = failing
		setHand(g, engine.Seat1, cardAce)
		turn := g.TurnID

		g.Mu.Lock()
		g.TurnDuration = time.Hour
		g.handleTimeout(engine.Seat1)
		armed := g.turnTimer != nil
		g.stopTurnTimer()
		g.Mu.Unlock()

		assert.True(t, armed, "timer not re-armed")
		assert.Equal(t, engine.Seat1, g.Engine.CurrentSeat())
		assert.Equal(t, turn, g.TurnID)
		assert.Nil(t, mb.findEventByType(EventPlayerDiscard))
	})
}

func TestDisconnectedSeatIsAutoPlayed(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb

	g.Mu.Lock()
	g.DisconnectDelay = 10 * time.Millisecond
	g.HandleDisconnect(tt.players[0].ID)
	g.Mu.Unlock()

	assert.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.Engine.CurrentSeat() == engine.Seat2
	}, 2*time.Second, 10*time.Millisecond)

	turn := mb.findEventByType(EventGamePlayerTurn)
	require.NotNil(t, turn)
	assert.Equal(t, tt.players[1].ID, turn.User.ID)
}

// TestFullGameThroughActions drives a whole game with every seat choosing
// plays through the same payloads a client sends.
func TestFullGameThroughActions(t *testing.T) {
	tt := setupTestGame(t)
	g, mb := tt.g, tt.mb

	for step := 0; step < 6000 && !g.GameOver; step++ {
		seat := g.Engine.CurrentSeat()
		p := tt.players[seat]
		a := agent.NewAgent(seat)
		if c, ok := a.Choose(&g.Engine); ok {
			act(g, p, "action_play", playPayload(c))
		} else {
			act(g, p, "action_discard", map[string]interface{}{"cardIndex": float64(a.DiscardIndex(&g.Engine))})
		}
		if step%50 == 0 {
			mb.clear()
		}
		require.Nil(t, mb.findPlayerEventByType(p.ID, EventPrivateActionFail), "step %d: action refused", step)
	}
	if g.GameOver {
		assert.NotNil(t, mb.findEventByType(EventGameWon))
	} else {
		t.Logf("no winner after 6000 turns")
	}
}

func TestHistorianReceivesActionLog(t *testing.T) {
	tt := setupTestGame(t)
	setHand(tt.g, engine.Seat1, cardAce)
	act(tt.g, tt.players[0], "action_play", map[string]interface{}{
		"cardIndex": float64(0), "action": "enter", "marble": refPayload(engine.Seat1, 0),
	})
	tt.g.Drain()

	tt.hist.mu.Lock()
	defer tt.hist.mu.Unlock()
	require.NotEmpty(t, tt.hist.actions)
	seen := map[int]bool{}
	types := map[string]bool{}
	for _, rec := range tt.hist.actions {
		assert.Equal(t, tt.g.ID, rec.GameID)
		assert.False(t, seen[rec.ActionIndex], "duplicate action index %d", rec.ActionIndex)
		seen[rec.ActionIndex] = true
		types[rec.ActionType] = true
	}
	for _, want := range []string{"player_add", "game_start", "game_player_turn", "player_play"} {
		assert.True(t, types[want], "missing %s record", want)
	}

	require.NotEmpty(t, tt.hist.snapshots)
	var snap ObfGameState
	require.NoError(t, json.Unmarshal(tt.hist.snapshots[len(tt.hist.snapshots)-1], &snap))
	assert.Equal(t, tt.g.ID, snap.GameID)
	for _, ps := range snap.Players {
		assert.Empty(t, ps.RevealedHand)
	}
}

// slowFirstHistorian makes earlier writes slower than later ones, so writes
// that overlap land out of order.
type slowFirstHistorian struct {
	fakeHistorian
	calls callCounter
}

type callCounter struct {
	mu sync.Mutex
	n  int
}

func (c *callCounter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (h *slowFirstHistorian) delay() {
	if n := h.calls.next(); n < 10 {
		time.Sleep(time.Duration(10-n) * 3 * time.Millisecond)
	}
}

func (h *slowFirstHistorian) PublishGameAction(ctx context.Context, rec cache.GameActionRecord) error {
	h.delay()
	return h.fakeHistorian.PublishGameAction(ctx, rec)
}

func (h *slowFirstHistorian) PublishSnapshot(ctx context.Context, id uuid.UUID, snapshot []byte) error {
	h.delay()
	return h.fakeHistorian.PublishSnapshot(ctx, id, snapshot)
}

func TestHistorianWritesInOrder(t *testing.T) {
	tt := setupTestGame(t)
	g := tt.g
	g.Drain()
	hist := &slowFirstHistorian{}
	g.Historian = hist

	for step := 0; step < 8; step++ {
		seat := g.Engine.CurrentSeat()
		a := agent.NewAgent(seat)
		if c, ok := a.Choose(&g.Engine); ok {
			act(g, tt.players[seat], "action_play", playPayload(c))
		} else {
			act(g, tt.players[seat], "action_discard", map[string]interface{}{"cardIndex": float64(a.DiscardIndex(&g.Engine))})
		}
	}
	want, err := json.Marshal(g.publicSnapshot())
	require.NoError(t, err)
	g.Drain()

	hist.mu.Lock()
	defer hist.mu.Unlock()
	require.NotEmpty(t, hist.actions)
	for i := 1; i < len(hist.actions); i++ {
		assert.Less(t, hist.actions[i-1].ActionIndex, hist.actions[i].ActionIndex, "record %d out of order", i)
	}
	require.NotEmpty(t, hist.snapshots)
	assert.JSONEq(t, string(want), string(hist.snapshots[len(hist.snapshots)-1]))
}
