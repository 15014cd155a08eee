// internal/database/database.go
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

// ErrNotFound is returned when no game has the requested id.
var ErrNotFound = errors.New("game not found")

// SeatRecord names who sat where.
type SeatRecord struct {
	Seat     int8      `json:"seat"`
	PlayerID uuid.UUID `json:"playerId"`
	Username string    `json:"username"`
}

// GameStart is written once when a table deals.
type GameStart struct {
	GameID       uuid.UUID
	Seed         uint64
	StartingSeat int8
	HandSize     uint8
	Seats        []SeatRecord
}

// GameResult is written once when a team wins.
type GameResult struct {
	GameID      uuid.UUID
	WinningTeam int8
	Turns       int
	FinalState  []byte // JSON public board
}

// GameSummary is the stored record of one game.
type GameSummary struct {
	ID           uuid.UUID    `json:"id"`
	Seed         uint64       `json:"seed"`
	StartingSeat int8         `json:"startingSeat"`
	HandSize     uint8        `json:"handSize"`
	StartedAt    time.Time    `json:"startedAt"`
	EndedAt      *time.Time   `json:"endedAt,omitempty"`
	WinningTeam  *int8        `json:"winningTeam,omitempty"`
	Turns        *int         `json:"turns,omitempty"`
	Seats        []SeatRecord `json:"seats"`
}

// Recorder stores game starts and results.
type Recorder interface {
	RecordGameStart(ctx context.Context, start GameStart) error
	RecordGameResult(ctx context.Context, res GameResult) error
}

// DB is a pgx pool with the game queries.
type DB struct{ *pgxpool.Pool }

// Open connects to dsn.
func Open(ctx context.Context, dsn string) (*DB, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &DB{p}, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// RecordGameStart inserts the game and its seats in one transaction.
func (db *DB) RecordGameStart(ctx context.Context, start GameStart) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO games(id, seed, starting_seat, hand_size)
			VALUES ($1, $2, $3, $4)
		`, start.GameID, int64(start.Seed), start.StartingSeat, int16(start.HandSize)); err != nil {
			return fmt.Errorf("insert game %s: %w", start.GameID, err)
		}

		batch := &pgx.Batch{}
		for _, s := range start.Seats {
			batch.Queue(`INSERT INTO game_seats(game_id, seat, player_id, username) VALUES ($1, $2, $3, $4)`,
				start.GameID, s.Seat, s.PlayerID, s.Username)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// RecordGameResult stamps the winner and final board onto an existing game.
func (db *DB) RecordGameResult(ctx context.Context, res GameResult) error {
	tag, err := db.Exec(ctx, `
		UPDATE games
		   SET ended_at = now(),
		       winning_team = $2,
		       turns = $3,
		       final_state = $4
		 WHERE id = $1
	`, res.GameID, res.WinningTeam, res.Turns, res.FinalState)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, res.GameID)
	}
	return nil
}

// GetGame loads a game and its seats.
func (db *DB) GetGame(ctx context.Context, id uuid.UUID) (GameSummary, error) {
	var (
		g    GameSummary
		seed int64
		hand int16
	)
	err := db.QueryRow(ctx, `
		SELECT id, seed, starting_seat, hand_size, started_at, ended_at, winning_team, turns
		  FROM games WHERE id = $1
	`, id).Scan(&g.ID, &seed, &g.StartingSeat, &hand, &g.StartedAt, &g.EndedAt, &g.WinningTeam, &g.Turns)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameSummary{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return GameSummary{}, err
	}
	g.Seed, g.HandSize = uint64(seed), uint8(hand)

	rows, err := db.Query(ctx, `
		SELECT seat, player_id, username FROM game_seats WHERE game_id = $1 ORDER BY seat
	`, id)
	if err != nil {
		return GameSummary{}, err
	}
	g.Seats, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (SeatRecord, error) {
		var s SeatRecord
		err := row.Scan(&s.Seat, &s.PlayerID, &s.Username)
		return s, err
	})
	return g, err
}
