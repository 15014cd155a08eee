package database

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaEmbedded(t *testing.T) {
	data, err := schema.ReadFile("schema.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS games")
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS game_seats")
}

// openTestDB connects to the database named by DATABASE_TEST_URL.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_TEST_URL")
	if dsn == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestRecordGameLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := uuid.New()
	seats := []SeatRecord{
		{Seat: 0, PlayerID: uuid.New(), Username: "ada"},
		{Seat: 1, PlayerID: uuid.New(), Username: "bo"},
		{Seat: 2, PlayerID: uuid.New(), Username: "cy"},
		{Seat: 3, PlayerID: uuid.New(), Username: "di"},
	}
	require.NoError(t, db.RecordGameStart(ctx, GameStart{
		GameID: id, Seed: 1<<63 + 5, StartingSeat: 2, HandSize: 5, Seats: seats,
	}))

	g, err := db.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63+5), g.Seed)
	assert.Equal(t, int8(2), g.StartingSeat)
	assert.Nil(t, g.EndedAt)
	assert.Equal(t, seats, g.Seats)

	require.NoError(t, db.RecordGameResult(ctx, GameResult{
		GameID: id, WinningTeam: 1, Turns: 212, FinalState: []byte(`{"winner":1}`),
	}))
	g, err = db.GetGame(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, g.WinningTeam)
	assert.Equal(t, int8(1), *g.WinningTeam)
	require.NotNil(t, g.Turns)
	assert.Equal(t, 212, *g.Turns)
	assert.NotNil(t, g.EndedAt)
}

func TestMissingGame(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetGame(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.RecordGameResult(ctx, GameResult{GameID: uuid.New(), FinalState: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrNotFound)
}
