// internal/game/game.go
package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	engine "github.com/jason-s-yu/marbles/engine"
	"github.com/jason-s-yu/marbles/internal/cache"
	"github.com/jason-s-yu/marbles/internal/database"
	"github.com/jason-s-yu/marbles/internal/models"
	"github.com/sirupsen/logrus"
)

// Seating failures returned by AddPlayer and Start.
var (
	ErrSeatTaken      = errors.New("seat already taken")
	ErrTableFull      = errors.New("table is full")
	ErrGameInProgress = errors.New("game already in progress")
	ErrTableNotFull   = errors.New("all four seats must be filled")
)

// persistTimeout bounds every historian and recorder call.
const persistTimeout = 2 * time.Second

// OnGameEndFunc is called once when a team wins. players lists the occupant
// of each seat in seat order.
type OnGameEndFunc func(gameID uuid.UUID, winner engine.Team, players []uuid.UUID)

// GameEventType represents the type of a game-related event broadcast via WebSockets.
type GameEventType string

const (
	EventGameStart           GameEventType = "game_start"            // Public: seats are fixed and cards dealt.
	EventGamePlayerTurn      GameEventType = "game_player_turn"      // Public: the seat to move.
	EventPlayerPlay          GameEventType = "player_play"           // Public: a whole card was played.
	EventPlayerPartialMove   GameEventType = "player_partial_move"   // Public: first leg of a 7 or 9.
	EventPlayerSplitComplete GameEventType = "player_split_complete" // Public: second leg of a 7 or 9.
	EventPlayerSplitAbandon  GameEventType = "player_split_abandon"  // Public: a pending split was dropped.
	EventPlayerDiscard       GameEventType = "player_discard"        // Public: a card thrown away without moving.
	EventMarbleLanding       GameEventType = "marble_landing"        // Public: one bump or boost.
	EventGameWon             GameEventType = "game_won"              // Public: a team has all ten marbles home.
	EventPrivateActionFail   GameEventType = "private_action_fail"   // Private: the request was refused.
	EventPrivateSyncState    GameEventType = "private_sync_state"    // Private: full table for one observer.
	EventPrivateDestinations GameEventType = "private_destinations"  // Private: reachable landings for one marble.
)

// EventUser identifies a user within a GameEvent payload.
type EventUser struct {
	ID uuid.UUID `json:"id"`
}

// GameEvent is the standard structure for broadcasting game state changes and actions.
type GameEvent struct {
	Type    GameEventType `json:"type"`
	User    *EventUser    `json:"user,omitempty"`
	Card    *ObfCard      `json:"card,omitempty"`
	Effects []EventEffect `json:"effects,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`

	State *ObfGameState `json:"state,omitempty"`
}

// HouseRules are the per-table settings chosen before the deal.
type HouseRules struct {
	HandSize          int  `json:"handSize"`
	StartingSeat      int  `json:"startingSeat"` // -1 picks one from the seed
	RequireHomeChoice bool `json:"requireHomeChoice"`
	TurnTimerSec      int  `json:"turnTimerSec"` // 0 disables auto-play
}

// DefaultHouseRules returns the standard table settings.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		HandSize:     engine.MaxHandSize,
		StartingSeat: -1,
		TurnTimerSec: 30,
	}
}

// MarblesGame is one table: the authoritative engine state plus the players
// seated at it. Every exported method assumes Mu is held by the caller.
type MarblesGame struct {
	ID   uuid.UUID
	Seed uint64 // 0 draws one from the clock at Start

	HouseRules HouseRules
	Seats      [engine.NumSeats]*models.Player
	Engine     engine.GameState

	TurnID          int
	TurnDuration    time.Duration
	DisconnectDelay time.Duration // how long a disconnected seat's turn waits before auto-play
	turnTimer       *time.Timer
	actionIndex     int

	// autoPlay picks and applies a timed-out seat's move; nil uses the agent.
	autoPlay func(e *engine.GameState, seat engine.Seat) (engine.Outcome, engine.Candidate, error)

	Started  bool
	GameOver bool

	Historian cache.Historian   // optional
	Recorder  database.Recorder // optional
	log       *logrus.Entry

	// Historian and recorder writes run in submission order on one goroutine.
	persistMu sync.Mutex
	persistQ  []persistJob
	writing   bool
	inflight  sync.WaitGroup

	Mu sync.Mutex

	BroadcastFn         func(ev GameEvent)
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent)
	OnGameEnd           OnGameEndFunc
}

// NewMarblesGame creates an empty table. A nil logger uses the logrus
// standard logger.
func NewMarblesGame(logger *logrus.Logger) *MarblesGame {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := uuid.New()
	rules := DefaultHouseRules()
	return &MarblesGame{
		ID:              id,
		HouseRules:      rules,
		TurnDuration:    time.Duration(rules.TurnTimerSec) * time.Second,
		DisconnectDelay: time.Second,
		log:             logger.WithField("game_id", id),
	}
}

// engineRules maps the table settings onto engine rules.
func (g *MarblesGame) engineRules() engine.HouseRules {
	r := engine.DefaultHouseRules()
	if g.HouseRules.HandSize > 0 && g.HouseRules.HandSize <= engine.MaxHandSize {
		r.HandSize = uint8(g.HouseRules.HandSize)
	}
	if g.HouseRules.StartingSeat >= 0 && g.HouseRules.StartingSeat < engine.NumSeats {
		r.StartingSeat = int8(g.HouseRules.StartingSeat)
	}
	r.RequireHomeChoice = g.HouseRules.RequireHomeChoice
	return r
}

// AddPlayer seats p. seat -1 takes the first free seat. A player already
// seated is treated as reconnecting.
func (g *MarblesGame) AddPlayer(p *models.Player, seat int) error {
	if s, ok := g.seatOf(p.ID); ok {
		g.HandleReconnect(p.ID, p.Conn)
		p.Seat = int8(s)
		return nil
	}
	if g.Started || g.GameOver {
		return ErrGameInProgress
	}
	if seat < 0 {
		for s, occupant := range g.Seats {
			if occupant == nil {
				seat = s
				break
			}
		}
		if seat < 0 {
			return ErrTableFull
		}
	}
	if seat >= engine.NumSeats {
		return engine.ErrInvalidReference
	}
	if g.Seats[seat] != nil {
		return ErrSeatTaken
	}

	p.Seat = int8(seat)
	p.Connected = true
	g.Seats[seat] = p
	g.log.WithFields(logrus.Fields{"player_id": p.ID, "seat": seat}).Info("player seated")
	g.logAction(p.ID, "player_add", map[string]interface{}{"seat": seat, "username": username(p)})
	return nil
}

// Start deals and begins the first turn. Every seat must be filled.
func (g *MarblesGame) Start() error {
	if g.Started || g.GameOver {
		return ErrGameInProgress
	}
	for _, p := range g.Seats {
		if p == nil {
			return ErrTableNotFull
		}
	}
	if g.Seed == 0 {
		g.Seed = uint64(time.Now().UnixNano())
	}
	if g.HouseRules.TurnTimerSec > 0 {
		g.TurnDuration = time.Duration(g.HouseRules.TurnTimerSec) * time.Second
	} else {
		g.TurnDuration = 0
	}

	g.Engine = engine.NewGame(g.Seed, g.engineRules())
	g.Engine.Deal()
	g.Started = true
	g.TurnID = 1

	first := g.Engine.CurrentSeat()
	g.log.WithFields(logrus.Fields{"seed": g.Seed, "first_seat": first}).Info("game started")
	g.logAction(uuid.Nil, string(EventGameStart), map[string]interface{}{"seed": g.Seed, "firstSeat": int(first)})
	g.persistGameStart()

	seats := make([]map[string]interface{}, 0, engine.NumSeats)
	for s, p := range g.Seats {
		seats = append(seats, map[string]interface{}{"seat": s, "team": int(engine.Seat(s).Team()), "playerId": p.ID, "username": username(p)})
	}
	g.fireEvent(GameEvent{Type: EventGameStart, Payload: map[string]interface{}{"seats": seats, "firstSeat": int(first)}})
	g.broadcastSyncStateToAll()
	g.publishSnapshot()

	g.scheduleNextTurnTimer()
	g.broadcastPlayerTurn()
	return nil
}

// HandlePlayerAction routes a client request to the matching handler.
func (g *MarblesGame) HandlePlayerAction(playerID uuid.UUID, action models.GameAction) {
	seat, ok := g.seatOf(playerID)
	if !ok {
		g.log.WithFields(logrus.Fields{"player_id": playerID, "action": action.ActionType}).Warn("action from unseated player ignored")
		return
	}
	if !g.Started {
		g.failAction(playerID, action.ActionType, engine.ErrGameNotStarted)
		return
	}
	if g.GameOver {
		g.failAction(playerID, action.ActionType, engine.ErrGameOver)
		return
	}

	// Destinations are a read-only query and may be asked at any time.
	if action.ActionType == "action_legal_destinations" {
		g.handleLegalDestinations(playerID, seat, action.Payload)
		return
	}
	if cur := g.Engine.CurrentSeat(); cur != seat {
		g.failAction(playerID, action.ActionType, engine.ErrNotYourTurn)
		return
	}

	switch action.ActionType {
	case "action_play":
		g.handlePlay(playerID, seat, action.Payload)
	case "action_partial_move":
		g.handlePartialMove(playerID, seat, action.Payload)
	case "action_complete_split":
		g.handleCompleteSplit(playerID, seat, action.Payload)
	case "action_discard":
		g.handleDiscard(playerID, seat, action.Payload)
	default:
		g.log.WithFields(logrus.Fields{"player_id": playerID, "action": action.ActionType}).Warn("unknown action type")
		g.fireEventToPlayer(playerID, GameEvent{
			Type:    EventPrivateActionFail,
			Payload: map[string]interface{}{"action": action.ActionType, "code": "unknown_action", "message": "Unknown action type."},
		})
	}
}

// HandleDisconnect marks a player as disconnected. A split the player left
// half-done is dropped without undoing its first leg, and the seat's turn is
// auto-played after DisconnectDelay.
func (g *MarblesGame) HandleDisconnect(playerID uuid.UUID) {
	seat, ok := g.seatOf(playerID)
	if !ok {
		g.log.WithField("player_id", playerID).Warn("disconnected player not seated")
		return
	}
	p := g.Seats[seat]
	if !p.Connected {
		return
	}
	p.Connected = false
	p.Conn = nil
	g.log.WithFields(logrus.Fields{"player_id": playerID, "seat": seat}).Info("player disconnected")
	g.logAction(playerID, "player_disconnect", nil)

	if !g.Started || g.GameOver {
		return
	}
	if g.Engine.AbandonPartialMove(seat) {
		g.log.WithField("seat", seat).Info("pending split abandoned on disconnect")
		g.logAction(playerID, string(EventPlayerSplitAbandon), map[string]interface{}{"seat": int(seat)})
		g.fireEvent(GameEvent{Type: EventPlayerSplitAbandon, User: &EventUser{ID: playerID}, Payload: map[string]interface{}{"seat": int(seat)}})
		g.publishSnapshot()
	}
	g.broadcastSyncStateToAll()
	if g.Engine.CurrentSeat() == seat {
		g.scheduleNextTurnTimer()
	}
}

// HandleReconnect marks a player as connected and sends them the table.
func (g *MarblesGame) HandleReconnect(playerID uuid.UUID, conn *websocket.Conn) {
	seat, ok := g.seatOf(playerID)
	if !ok {
		g.log.WithField("player_id", playerID).Warn("reconnecting player not seated")
		if conn != nil {
			conn.Close(websocket.StatusPolicyViolation, "You are not seated at this table.")
		}
		return
	}
	p := g.Seats[seat]
	p.Connected = true
	p.Conn = conn
	g.log.WithFields(logrus.Fields{"player_id": playerID, "seat": seat}).Info("player reconnected")
	g.logAction(playerID, "player_reconnect", map[string]interface{}{"username": username(p)})

	g.broadcastSyncStateToAll()
	if g.Started && !g.GameOver && g.Engine.CurrentSeat() == seat {
		g.scheduleNextTurnTimer()
	}
}

// EndGame stops the clock, announces the winning team and stores the result.
func (g *MarblesGame) EndGame() {
	if g.GameOver {
		return
	}
	g.GameOver = true
	g.stopTurnTimer()

	winner := g.Engine.Winner
	players := make([]uuid.UUID, engine.NumSeats)
	for s, p := range g.Seats {
		if p != nil {
			players[s] = p.ID
		}
	}
	var winners []uuid.UUID
	for _, s := range winner.Seats() {
		winners = append(winners, players[s])
	}

	g.log.WithFields(logrus.Fields{"winner": winner, "turns": g.Engine.TurnNumber}).Info("game over")
	g.logAction(uuid.Nil, string(EventGameWon), map[string]interface{}{"team": int(winner), "turns": int(g.Engine.TurnNumber)})
	g.fireEvent(GameEvent{
		Type: EventGameWon,
		Payload: map[string]interface{}{
			"team":    int(winner),
			"seats":   []int{int(winner.Seats()[0]), int(winner.Seats()[1])},
			"winners": winners,
			"turns":   int(g.Engine.TurnNumber),
		},
	})
	g.broadcastSyncStateToAll()
	g.publishSnapshot()
	g.persistFinalGameState()

	if g.OnGameEnd != nil {
		g.OnGameEnd(g.ID, winner, players)
	}
}

// Drain waits for outstanding historian and recorder writes.
func (g *MarblesGame) Drain() { g.inflight.Wait() }

// seatOf finds the seat a player occupies.
func (g *MarblesGame) seatOf(playerID uuid.UUID) (engine.Seat, bool) {
	for s, p := range g.Seats {
		if p != nil && p.ID == playerID {
			return engine.Seat(s), true
		}
	}
	return 0, false
}

// playerAt returns the occupant of seat, or uuid.Nil.
func (g *MarblesGame) playerAt(seat engine.Seat) uuid.UUID {
	if !seat.Valid() || g.Seats[seat] == nil {
		return uuid.Nil
	}
	return g.Seats[seat].ID
}

func username(p *models.Player) string {
	if p.User == nil {
		return ""
	}
	return p.User.Username
}

// fireEvent broadcasts an event to all connected players via the BroadcastFn callback.
func (g *MarblesGame) fireEvent(ev GameEvent) {
	if g.BroadcastFn == nil {
		g.log.WithField("event", ev.Type).Warn("BroadcastFn is nil, event dropped")
		return
	}
	g.BroadcastFn(ev)
}

// fireEventToPlayer sends an event to one connected player.
func (g *MarblesGame) fireEventToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn == nil {
		g.log.WithField("event", ev.Type).Warn("BroadcastToPlayerFn is nil, event dropped")
		return
	}
	if seat, ok := g.seatOf(playerID); ok && g.Seats[seat].Connected {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// failAction tells the acting player why the request was refused.
func (g *MarblesGame) failAction(playerID uuid.UUID, action string, err error) {
	code := engine.ErrorCode(err)
	g.log.WithFields(logrus.Fields{"player_id": playerID, "action": action, "code": code}).Debug(err)
	g.fireEventToPlayer(playerID, GameEvent{
		Type:    EventPrivateActionFail,
		Payload: map[string]interface{}{"action": action, "code": code, "message": err.Error()},
	})
	g.logAction(playerID, string(EventPrivateActionFail), map[string]interface{}{"action": action, "code": code})
}

// sendSyncState sends the table to a single player.
func (g *MarblesGame) sendSyncState(playerID uuid.UUID) {
	state := g.GetCurrentObfuscatedGameState(playerID)
	g.fireEventToPlayer(playerID, GameEvent{Type: EventPrivateSyncState, State: &state})
}

// broadcastSyncStateToAll sends every connected player their own view.
func (g *MarblesGame) broadcastSyncStateToAll() {
	for _, p := range g.Seats {
		if p != nil && p.Connected {
			g.sendSyncState(p.ID)
		}
	}
}

// countConnectedPlayers returns the number of seated players currently connected.
func (g *MarblesGame) countConnectedPlayers() int {
	n := 0
	for _, p := range g.Seats {
		if p != nil && p.Connected {
			n++
		}
	}
	return n
}

type persistJob struct {
	what string
	fn   func(ctx context.Context) error
}

// async queues fn behind every earlier write of the table and starts the
// writer if it is idle. Drain waits for the queue to empty.
func (g *MarblesGame) async(what string, fn func(ctx context.Context) error) {
	g.persistMu.Lock()
	g.persistQ = append(g.persistQ, persistJob{what: what, fn: fn})
	if g.writing {
		g.persistMu.Unlock()
		return
	}
	g.writing = true
	g.inflight.Add(1)
	g.persistMu.Unlock()
	go g.runPersist()
}

// runPersist drains the write queue one job at a time.
func (g *MarblesGame) runPersist() {
	defer g.inflight.Done()
	for {
		g.persistMu.Lock()
		if len(g.persistQ) == 0 {
			g.writing = false
			g.persistMu.Unlock()
			return
		}
		job := g.persistQ[0]
		g.persistQ[0] = persistJob{}
		g.persistQ = g.persistQ[1:]
		g.persistMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := job.fn(ctx); err != nil {
			g.log.WithError(err).Errorf("%s failed", job.what)
		}
		cancel()
	}
}

// logAction appends an entry to the table's activity log on the historian.
func (g *MarblesGame) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if g.Historian == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	rec := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	h := g.Historian
	g.async("publish action "+actionType, func(ctx context.Context) error {
		return h.PublishGameAction(ctx, rec)
	})
}

// publishSnapshot hands the spectator view of the board to the historian.
func (g *MarblesGame) publishSnapshot() {
	if g.Historian == nil {
		return
	}
	data, err := json.Marshal(g.publicSnapshot())
	if err != nil {
		g.log.WithError(err).Error("encoding snapshot")
		return
	}
	h, id := g.Historian, g.ID
	g.async("publish snapshot", func(ctx context.Context) error {
		return h.PublishSnapshot(ctx, id, data)
	})
}

// persistGameStart records the seats and seed.
func (g *MarblesGame) persistGameStart() {
	if g.Recorder == nil {
		return
	}
	start := database.GameStart{
		GameID:       g.ID,
		Seed:         g.Seed,
		StartingSeat: int8(g.Engine.CurrentSeat()),
		HandSize:     g.engineRules().HandSize,
	}
	for s, p := range g.Seats {
		start.Seats = append(start.Seats, database.SeatRecord{Seat: int8(s), PlayerID: p.ID, Username: username(p)})
	}
	r := g.Recorder
	g.async("record game start", func(ctx context.Context) error {
		return r.RecordGameStart(ctx, start)
	})
}

// persistFinalGameState records the winner and the final board.
func (g *MarblesGame) persistFinalGameState() {
	if g.Recorder == nil {
		return
	}
	data, err := json.Marshal(g.publicSnapshot())
	if err != nil {
		g.log.WithError(err).Error("encoding final state")
		return
	}
	res := database.GameResult{
		GameID:      g.ID,
		WinningTeam: int8(g.Engine.Winner),
		Turns:       int(g.Engine.TurnNumber),
		FinalState:  data,
	}
	r := g.Recorder
	g.async("record game result", func(ctx context.Context) error {
		return r.RecordGameResult(ctx, res)
	})
}
