// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/marbles/internal/game"
	"github.com/jason-s-yu/marbles/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	sendQueueLen  = 64
	pingInterval  = 15 * time.Second
	writeTimeout  = 5 * time.Second
	maxFrameBytes = 16 << 10
)

// EventSessionJoined tells a socket which player and seat it was given.
const EventSessionJoined game.GameEventType = "session_joined"

// client is one socket attached to a table.
type client struct {
	playerID uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
}

// enqueue never blocks: a slow socket loses frames and catches up on the next
// private_sync_state.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// table pairs a game with its sockets. mu guards clients only and is always
// taken after game.Mu, never before.
type table struct {
	game    *game.MarblesGame
	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

// attach registers c and returns the socket it replaced, if any.
func (t *table) attach(c *client) *client {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.clients[c.playerID]
	t.clients[c.playerID] = c
	return old
}

// detach removes c and reports whether it was still the player's socket.
func (t *table) detach(c *client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clients[c.playerID] != c {
		return false
	}
	delete(t.clients, c.playerID)
	return true
}

func (t *table) clientCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (t *table) broadcast(ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).WithField("event", ev.Type).Error("encoding event")
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		c.enqueue(msg)
	}
}

func (t *table) sendTo(playerID uuid.UUID, ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).WithField("event", ev.Type).Error("encoding event")
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[playerID]; ok {
		c.enqueue(msg)
	}
}

func (l *Lobby) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || len(l.allowOrigins) == 0 || l.allowOrigins[origin]
}

// ServeWS seats a player at a table over a websocket. Query parameters:
// playerId (reconnects an existing seat), username, seat (0-3). The table
// starts when its fourth seat fills.
func (l *Lobby) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	t := l.table(id)
	if t == nil {
		http.Error(w, "no such table", http.StatusNotFound)
		return
	}
	if !l.originAllowed(r) {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	playerID := uuid.New()
	if v := q.Get("playerId"); v != "" {
		var err error
		if playerID, err = uuid.Parse(v); err != nil {
			http.Error(w, "bad playerId", http.StatusBadRequest)
			return
		}
	}
	seat := -1
	if v := q.Get("seat"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad seat", http.StatusBadRequest)
			return
		}
		seat = n
	}
	username := q.Get("username")
	if username == "" {
		username = "player-" + playerID.String()[:8]
	}

	// An allowlist replaces the library's same-host check.
	opts := &websocket.AcceptOptions{InsecureSkipVerify: len(l.allowOrigins) > 0}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		l.log.WithError(err).WithField("game_id", id).Warn("websocket accept failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	log := l.log.WithFields(logrus.Fields{"game_id": id, "player_id": playerID})

	c := &client{playerID: playerID, conn: conn, send: make(chan []byte, sendQueueLen)}
	if old := t.attach(c); old != nil {
		old.conn.Close(websocket.StatusPolicyViolation, "replaced by a new connection")
	}

	g := t.game
	p := &models.Player{
		ID:   playerID,
		User: &models.User{ID: playerID, Username: username},
		Seat: -1,
		Conn: conn,
	}
	g.Mu.Lock()
	err = g.AddPlayer(p, seat)
	if err == nil {
		joined, _ := json.Marshal(game.GameEvent{
			Type:    EventSessionJoined,
			User:    &game.EventUser{ID: playerID},
			Payload: map[string]interface{}{"gameId": g.ID, "seat": int(p.Seat), "username": username},
		})
		c.enqueue(joined)
		if startErr := g.Start(); startErr != nil && !errors.Is(startErr, game.ErrTableNotFull) && !errors.Is(startErr, game.ErrGameInProgress) {
			log.WithError(startErr).Error("starting table")
		}
	}
	g.Mu.Unlock()
	if err != nil {
		t.detach(c)
		log.WithError(err).Info("seat refused")
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	log.WithField("seat", p.Seat).Info("socket attached")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go writeLoop(ctx, c)
	l.readLoop(ctx, t, c, log)

	if t.detach(c) {
		g.Mu.Lock()
		g.HandleDisconnect(playerID)
		g.Mu.Unlock()
	}
	cancel()
	conn.Close(websocket.StatusNormalClosure, "")
	log.Info("socket detached")
	l.release(id, t)
}

// readLoop feeds client frames to the table until the socket fails.
func (l *Lobby) readLoop(ctx context.Context, t *table, c *client, log *logrus.Entry) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.WithError(err).Debug("read ended")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var action models.GameAction
		if err := json.Unmarshal(data, &action); err != nil || action.ActionType == "" {
			fail, _ := json.Marshal(game.GameEvent{
				Type:    game.EventPrivateActionFail,
				Payload: map[string]interface{}{"code": "bad_frame", "message": "Frames must be {\"type\": ..., \"payload\": {...}}."},
			})
			c.enqueue(fail)
			continue
		}
		t.game.Mu.Lock()
		t.game.HandlePlayerAction(c.playerID, action)
		t.game.Mu.Unlock()
	}
}

// writeLoop drains the send queue and keeps the socket alive.
func writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
