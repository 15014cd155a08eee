// internal/handlers/lobby.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	engine "github.com/jason-s-yu/marbles/engine"
	"github.com/jason-s-yu/marbles/internal/cache"
	"github.com/jason-s-yu/marbles/internal/database"
	"github.com/jason-s-yu/marbles/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// GameReader looks up recorded games.
type GameReader interface {
	GetGame(ctx context.Context, id uuid.UUID) (database.GameSummary, error)
}

// SnapshotReader returns the last published spectator board of a table.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, gameID uuid.UUID) ([]byte, error)
}

// Options configures a Lobby. Every store is optional.
type Options struct {
	Logger       *logrus.Logger
	Rules        game.HouseRules
	Historian    cache.Historian
	Recorder     database.Recorder
	Games        GameReader
	Snapshots    SnapshotReader
	AllowOrigins []string
}

// Lobby owns the live tables and the sockets attached to them.
type Lobby struct {
	log          *logrus.Logger
	rules        game.HouseRules
	historian    cache.Historian
	recorder     database.Recorder
	games        GameReader
	snapshots    SnapshotReader
	allowOrigins map[string]bool

	mu     sync.RWMutex
	tables map[uuid.UUID]*table
}

// NewLobby creates an empty lobby.
func NewLobby(opts Options) *Lobby {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Rules.HandSize == 0 {
		opts.Rules = game.DefaultHouseRules()
	}
	allow := map[string]bool{}
	for _, o := range opts.AllowOrigins {
		if o != "" {
			allow[o] = true
		}
	}
	return &Lobby{
		log:          opts.Logger,
		rules:        opts.Rules,
		historian:    opts.Historian,
		recorder:     opts.Recorder,
		games:        opts.Games,
		snapshots:    opts.Snapshots,
		allowOrigins: allow,
		tables:       make(map[uuid.UUID]*table),
	}
}

// Routes mounts the lobby endpoints. The caller mounts it under /games.
func (l *Lobby) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", l.listGames)
	r.Post("/", l.createGame)
	r.Get("/{gameID}", l.getGame)
	r.Get("/{gameID}/snapshot", l.getSnapshot)
	r.Get("/{gameID}/ws", l.ServeWS)
	return r
}

// CreateGame opens a new table with rules.
func (l *Lobby) CreateGame(rules game.HouseRules) *game.MarblesGame {
	g := game.NewMarblesGame(l.log)
	g.HouseRules = rules
	if l.historian != nil {
		g.Historian = l.historian
	}
	if l.recorder != nil {
		g.Recorder = l.recorder
	}

	t := &table{game: g, clients: make(map[uuid.UUID]*client)}
	g.BroadcastFn = t.broadcast
	g.BroadcastToPlayerFn = t.sendTo
	g.OnGameEnd = func(gameID uuid.UUID, winner engine.Team, _ []uuid.UUID) {
		l.log.WithFields(logrus.Fields{"game_id": gameID, "winner": winner}).Info("table finished")
	}

	l.mu.Lock()
	l.tables[g.ID] = t
	l.mu.Unlock()
	l.log.WithField("game_id", g.ID).Info("table created")
	return g
}

func (l *Lobby) table(id uuid.UUID) *table {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tables[id]
}

// release drops a finished table once its last socket is gone.
func (l *Lobby) release(id uuid.UUID, t *table) {
	if t.clientCount() > 0 {
		return
	}
	t.game.Mu.Lock()
	over := t.game.GameOver
	t.game.Mu.Unlock()
	if !over {
		return
	}
	t.game.Drain()
	l.mu.Lock()
	delete(l.tables, id)
	l.mu.Unlock()
	l.log.WithField("game_id", id).Info("table released")
}

type tableInfo struct {
	ID       uuid.UUID       `json:"id"`
	Seated   int             `json:"seated"`
	Started  bool            `json:"started"`
	GameOver bool            `json:"gameOver"`
	Rules    game.HouseRules `json:"houseRules"`
}

func (l *Lobby) listGames(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	tables := make([]*table, 0, len(l.tables))
	for _, t := range l.tables {
		tables = append(tables, t)
	}
	l.mu.RUnlock()

	out := make([]tableInfo, 0, len(tables))
	for _, t := range tables {
		g := t.game
		g.Mu.Lock()
		info := tableInfo{ID: g.ID, Started: g.Started, GameOver: g.GameOver, Rules: g.HouseRules}
		for _, p := range g.Seats {
			if p != nil {
				info.Seated++
			}
		}
		g.Mu.Unlock()
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// createGame accepts an optional JSON body overriding the default rules.
func (l *Lobby) createGame(w http.ResponseWriter, r *http.Request) {
	rules := l.rules
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
			http.Error(w, "bad house rules: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if rules.HandSize < 1 || rules.HandSize > engine.MaxHandSize {
		http.Error(w, "handSize must be 1-5", http.StatusBadRequest)
		return
	}
	if rules.StartingSeat < -1 || rules.StartingSeat >= engine.NumSeats {
		http.Error(w, "startingSeat must be -1-3", http.StatusBadRequest)
		return
	}
	if rules.TurnTimerSec < 0 {
		http.Error(w, "turnTimerSec must not be negative", http.StatusBadRequest)
		return
	}
	g := l.CreateGame(rules)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": g.ID, "houseRules": rules})
}

func (l *Lobby) getGame(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	if l.games == nil {
		http.Error(w, "game records are disabled", http.StatusServiceUnavailable)
		return
	}
	summary, err := l.games.GetGame(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		l.log.WithError(err).WithField("game_id", id).Error("loading game record")
		http.Error(w, "loading game record failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

// getSnapshot serves a live table's spectator view, falling back to the
// historian's last snapshot for tables no longer in memory.
func (l *Lobby) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	if t := l.table(id); t != nil {
		t.game.Mu.Lock()
		state := t.game.GetCurrentObfuscatedGameState(uuid.Nil)
		t.game.Mu.Unlock()
		writeJSON(w, http.StatusOK, state)
		return
	}
	if l.snapshots == nil {
		http.Error(w, "no such table", http.StatusNotFound)
		return
	}
	data, err := l.snapshots.LatestSnapshot(r.Context(), id)
	switch {
	case errors.Is(err, redis.Nil):
		http.Error(w, "no such table", http.StatusNotFound)
	case err != nil:
		l.log.WithError(err).WithField("game_id", id).Error("loading snapshot")
		http.Error(w, "loading snapshot failed", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func gameID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "gameID"))
	if err != nil {
		http.Error(w, "bad game id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
