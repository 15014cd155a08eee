// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// HistorianQueue is the Redis list every table pushes its action records onto.
const HistorianQueue = "marbles:historian:actions"

// snapshotTTL bounds how long an abandoned table's last board stays readable.
const snapshotTTL = 24 * time.Hour

// GameActionRecord is one entry of a table's activity log.
type GameActionRecord struct {
	GameID        uuid.UUID              `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorUserID   uuid.UUID              `json:"actor_user_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// Historian receives a table's activity log and its latest public board.
type Historian interface {
	PublishGameAction(ctx context.Context, rec GameActionRecord) error
	PublishSnapshot(ctx context.Context, gameID uuid.UUID, snapshot []byte) error
}

// RedisHistorian implements Historian on a go-redis client.
type RedisHistorian struct {
	rdb *redis.Client
}

// Connect opens a client and verifies the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*RedisHistorian, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisHistorian{rdb: rdb}, nil
}

// NewRedisHistorian wraps an existing client.
func NewRedisHistorian(rdb *redis.Client) *RedisHistorian {
	return &RedisHistorian{rdb: rdb}
}

// Close releases the client.
func (h *RedisHistorian) Close() error { return h.rdb.Close() }

// ActionsKey is the per-table list of action records.
func ActionsKey(gameID uuid.UUID) string { return "marbles:game:" + gameID.String() + ":actions" }

// SnapshotKey holds a table's latest public board.
func SnapshotKey(gameID uuid.UUID) string { return "marbles:game:" + gameID.String() + ":snapshot" }

// SnapshotChannel is the pub/sub channel announcing new boards for a table.
func SnapshotChannel(gameID uuid.UUID) string { return "marbles:game:" + gameID.String() }

// PublishGameAction appends rec to the table's log and the shared historian queue.
func (h *RedisHistorian) PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding action %d: %w", rec.ActionIndex, err)
	}
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, ActionsKey(rec.GameID), data)
	pipe.Expire(ctx, ActionsKey(rec.GameID), snapshotTTL)
	pipe.LPush(ctx, HistorianQueue, data)
	_, err = pipe.Exec(ctx)
	return err
}

// PublishSnapshot stores snapshot as the table's latest board and announces it.
func (h *RedisHistorian) PublishSnapshot(ctx context.Context, gameID uuid.UUID, snapshot []byte) error {
	pipe := h.rdb.TxPipeline()
	pipe.Set(ctx, SnapshotKey(gameID), snapshot, snapshotTTL)
	pipe.Publish(ctx, SnapshotChannel(gameID), snapshot)
	_, err := pipe.Exec(ctx)
	return err
}

// LatestSnapshot returns the table's last published board, or redis.Nil.
func (h *RedisHistorian) LatestSnapshot(ctx context.Context, gameID uuid.UUID) ([]byte, error) {
	return h.rdb.Get(ctx, SnapshotKey(gameID)).Bytes()
}

// Actions returns the table's action records ordered by ActionIndex.
func (h *RedisHistorian) Actions(ctx context.Context, gameID uuid.UUID) ([]GameActionRecord, error) {
	raw, err := h.rdb.LRange(ctx, ActionsKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]GameActionRecord, 0, len(raw))
	for i, s := range raw {
		var rec GameActionRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decoding action %d: %w", i, err)
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ActionIndex < out[j].ActionIndex })
	return out, nil
}
