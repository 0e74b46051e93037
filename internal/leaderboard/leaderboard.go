// Package leaderboard keeps one live score per session.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tatianab/b40-life-sim/internal/models"
)

// Entry is a session's row on the board.
type Entry struct {
	SessionID      string           `db:"session_id" json:"session_id"`
	PlayerName     string           `db:"player_name" json:"player_name"`
	PersonaID      models.PersonaID `db:"persona_id" json:"persona_id"`
	Score          int              `db:"score" json:"score"`
	WeeksCompleted int              `db:"weeks_completed" json:"weeks_completed"`
	UpdatedAt      int64            `db:"updated_at" json:"updated_at"` // unix millis
}

// EntryFor scores a session: money on hand, never below zero.
func EntryFor(s models.GameSession, now time.Time) Entry {
	return Entry{
		SessionID:      s.ID,
		PlayerName:     s.PlayerName,
		PersonaID:      s.PersonaID,
		Score:          max(0, s.Money),
		WeeksCompleted: s.WeeksCompleted(),
		UpdatedAt:      now.UnixMilli(),
	}
}

// Board accepts live-score updates and serves the top of the table.
type Board interface {
	UpsertLiveScore(ctx context.Context, e Entry) error
	Top(ctx context.Context, n int) ([]Entry, error)
}

// SQLiteBoard is a Board stored in a SQLite table.
type SQLiteBoard struct {
	db *sqlx.DB
}

// NewSQLiteBoard creates the leaderboard table on db if needed.
func NewSQLiteBoard(db *sqlx.DB) (*SQLiteBoard, error) {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS leaderboard (
		session_id TEXT PRIMARY KEY,
		player_name TEXT NOT NULL,
		persona_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		weeks_completed INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC);
	`)
	if err != nil {
		return nil, fmt.Errorf("create leaderboard table: %w", err)
	}
	return &SQLiteBoard{db: db}, nil
}

// UpsertLiveScore writes the session's row, replacing any earlier one.
func (b *SQLiteBoard) UpsertLiveScore(ctx context.Context, e Entry) error {
	_, err := b.db.NamedExecContext(ctx, `INSERT INTO leaderboard
		(session_id, player_name, persona_id, score, weeks_completed, updated_at)
		VALUES (:session_id, :player_name, :persona_id, :score, :weeks_completed, :updated_at)
		ON CONFLICT(session_id) DO UPDATE SET
		 player_name = excluded.player_name,
		 score = excluded.score,
		 weeks_completed = excluded.weeks_completed,
		 updated_at = excluded.updated_at`, e)
	if err != nil {
		return fmt.Errorf("upsert score %s: %w", e.SessionID, err)
	}
	return nil
}

// Top returns the n best scores, ties broken by weeks completed.
func (b *SQLiteBoard) Top(ctx context.Context, n int) ([]Entry, error) {
	var out []Entry
	err := b.db.SelectContext(ctx, &out,
		"SELECT * FROM leaderboard ORDER BY score DESC, weeks_completed DESC, updated_at LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return out, nil
}
