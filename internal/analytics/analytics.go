// Package analytics mirrors gameplay into a warehouse of completed games,
// weekly snapshots and individual decisions. Writes are one-way: the game
// never reads them back, and a failed write never affects play.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tatianab/b40-life-sim/internal/models"
)

// CompletedGame is the final record of a finished session.
type CompletedGame struct {
	SessionID      string           `db:"session_id" json:"session_id"`
	PlayerName     string           `db:"player_name" json:"player_name"`
	PersonaID      models.PersonaID `db:"persona_id" json:"persona_id"`
	Ending         models.Ending    `db:"ending" json:"ending"`
	FailureReason  string           `db:"failure_reason" json:"failure_reason,omitempty"`
	Money          int              `db:"money" json:"money"`
	Debt           int              `db:"debt" json:"debt"`
	CreditScore    int              `db:"credit_score" json:"credit_score"`
	Health         int              `db:"health" json:"health"`
	Stress         int              `db:"stress" json:"stress"`
	WeeksCompleted int              `db:"weeks_completed" json:"weeks_completed"`
	DecisionCount  int              `db:"decision_count" json:"decision_count"`
	FinishedAt     int64            `db:"finished_at" json:"finished_at"` // unix millis
}

// NewCompletedGame summarises a finished session.
func NewCompletedGame(s models.GameSession, decisions int, now time.Time) CompletedGame {
	return CompletedGame{
		SessionID:      s.ID,
		PlayerName:     s.PlayerName,
		PersonaID:      s.PersonaID,
		Ending:         s.Ending,
		FailureReason:  s.FailureReason,
		Money:          s.Money,
		Debt:           s.Debt,
		CreditScore:    s.CreditScore,
		Health:         s.Health,
		Stress:         s.Stress,
		WeeksCompleted: s.WeeksCompleted(),
		DecisionCount:  decisions,
		FinishedAt:     now.UnixMilli(),
	}
}

// Sink receives analytics records.
type Sink interface {
	RecordCompletedGame(ctx context.Context, g CompletedGame) error
	UpsertWeeklySnapshot(ctx context.Context, snap models.WeeklySnapshot) error
	RecordDecision(ctx context.Context, d models.Decision) error
}

// Warehouse is a Sink backed by SQLite tables.
type Warehouse struct {
	db *sqlx.DB
}

// NewWarehouse creates the warehouse tables on db if needed.
func NewWarehouse(db *sqlx.DB) (*Warehouse, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS completed_games (
		session_id TEXT PRIMARY KEY,
		player_name TEXT NOT NULL,
		persona_id TEXT NOT NULL,
		ending TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		money INTEGER NOT NULL,
		debt INTEGER NOT NULL,
		credit_score INTEGER NOT NULL,
		health INTEGER NOT NULL,
		stress INTEGER NOT NULL,
		weeks_completed INTEGER NOT NULL,
		decision_count INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weekly_snapshots (
		session_id TEXT NOT NULL,
		week INTEGER NOT NULL,
		money INTEGER NOT NULL,
		debt INTEGER NOT NULL,
		credit_score INTEGER NOT NULL,
		health INTEGER NOT NULL,
		stress INTEGER NOT NULL,
		energy_remaining INTEGER NOT NULL,
		work_days_completed INTEGER NOT NULL,
		bought_groceries INTEGER NOT NULL,
		filled_petrol INTEGER NOT NULL,
		paid_debt INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL,
		UNIQUE(session_id, week)
	);

	CREATE TABLE IF NOT EXISTS player_decisions (
		session_id TEXT NOT NULL,
		scenario_id TEXT NOT NULL,
		location_id TEXT NOT NULL,
		choice_index INTEGER NOT NULL,
		choice_text TEXT NOT NULL,
		money_delta INTEGER NOT NULL,
		credit_delta INTEGER NOT NULL,
		health_delta INTEGER NOT NULL,
		stress_delta INTEGER NOT NULL,
		week INTEGER NOT NULL,
		day INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL,
		UNIQUE(session_id, scenario_id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create analytics tables: %w", err)
	}
	return &Warehouse{db: db}, nil
}

// RecordCompletedGame stores the final record; a repeat for the same
// session replaces it.
func (w *Warehouse) RecordCompletedGame(ctx context.Context, g CompletedGame) error {
	_, err := w.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO completed_games
		(session_id, player_name, persona_id, ending, failure_reason, money, debt,
		 credit_score, health, stress, weeks_completed, decision_count, finished_at)
		VALUES (:session_id, :player_name, :persona_id, :ending, :failure_reason, :money, :debt,
		 :credit_score, :health, :stress, :weeks_completed, :decision_count, :finished_at)`, g)
	if err != nil {
		return fmt.Errorf("record completed game %s: %w", g.SessionID, err)
	}
	return nil
}

// UpsertWeeklySnapshot keeps one row per session and week, the latest wins.
func (w *Warehouse) UpsertWeeklySnapshot(ctx context.Context, snap models.WeeklySnapshot) error {
	_, err := w.db.ExecContext(ctx, `INSERT INTO weekly_snapshots
		(session_id, week, money, debt, credit_score, health, stress, energy_remaining,
		 work_days_completed, bought_groceries, filled_petrol, paid_debt, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, week) DO UPDATE SET
		 money = excluded.money,
		 debt = excluded.debt,
		 credit_score = excluded.credit_score,
		 health = excluded.health,
		 stress = excluded.stress,
		 energy_remaining = excluded.energy_remaining,
		 work_days_completed = excluded.work_days_completed,
		 bought_groceries = excluded.bought_groceries,
		 filled_petrol = excluded.filled_petrol,
		 paid_debt = excluded.paid_debt,
		 recorded_at = excluded.recorded_at`,
		snap.SessionID, snap.Week, snap.Money, snap.Debt, snap.CreditScore, snap.Health, snap.Stress,
		snap.EnergyRemaining, snap.WorkDaysCompleted, snap.BoughtGroceries, snap.FilledPetrol,
		snap.PaidDebt, snap.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s week %d: %w", snap.SessionID, snap.Week, err)
	}
	return nil
}

// RecordDecision copies one resolved choice. Replays of the same scenario
// are ignored.
func (w *Warehouse) RecordDecision(ctx context.Context, d models.Decision) error {
	_, err := w.db.ExecContext(ctx, `INSERT INTO player_decisions
		(session_id, scenario_id, location_id, choice_index, choice_text,
		 money_delta, credit_delta, health_delta, stress_delta, week, day, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, scenario_id) DO NOTHING`,
		d.SessionID, d.ScenarioID, string(d.LocationID), d.ChoiceIndex, d.ChoiceText,
		d.Delta.Money, d.Delta.Credit, d.Delta.Health, d.Delta.Stress, d.Week, d.Day,
		d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record decision %s/%s: %w", d.SessionID, d.ScenarioID, err)
	}
	return nil
}

// Snapshots returns the stored weekly snapshots of a session by week.
func (w *Warehouse) Snapshots(ctx context.Context, sessionID string) ([]models.WeeklySnapshot, error) {
	var rows []struct {
		SessionID         string `db:"session_id"`
		Week              int    `db:"week"`
		Money             int    `db:"money"`
		Debt              int    `db:"debt"`
		CreditScore       int    `db:"credit_score"`
		Health            int    `db:"health"`
		Stress            int    `db:"stress"`
		EnergyRemaining   int    `db:"energy_remaining"`
		WorkDaysCompleted int    `db:"work_days_completed"`
		BoughtGroceries   bool   `db:"bought_groceries"`
		FilledPetrol      bool   `db:"filled_petrol"`
		PaidDebt          bool   `db:"paid_debt"`
		RecordedAt        int64  `db:"recorded_at"`
	}
	if err := w.db.SelectContext(ctx, &rows,
		"SELECT * FROM weekly_snapshots WHERE session_id = ? ORDER BY week", sessionID); err != nil {
		return nil, err
	}
	out := make([]models.WeeklySnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.WeeklySnapshot{
			SessionID:         r.SessionID,
			Week:              r.Week,
			Money:             r.Money,
			Debt:              r.Debt,
			CreditScore:       r.CreditScore,
			Health:            r.Health,
			Stress:            r.Stress,
			EnergyRemaining:   r.EnergyRemaining,
			WorkDaysCompleted: r.WorkDaysCompleted,
			BoughtGroceries:   r.BoughtGroceries,
			FilledPetrol:      r.FilledPetrol,
			PaidDebt:          r.PaidDebt,
			RecordedAt:        time.UnixMilli(r.RecordedAt).UTC(),
		})
	}
	return out, nil
}

// EndingCounts tallies completed games by ending.
func (w *Warehouse) EndingCounts(ctx context.Context) (map[models.Ending]int, error) {
	var rows []struct {
		Ending models.Ending `db:"ending"`
		N      int           `db:"n"`
	}
	if err := w.db.SelectContext(ctx, &rows,
		"SELECT ending, COUNT(*) AS n FROM completed_games GROUP BY ending"); err != nil {
		return nil, err
	}
	out := make(map[models.Ending]int, len(rows))
	for _, r := range rows {
		out[r.Ending] = r.N
	}
	return out, nil
}

// DecisionCount is the number of mirrored decisions of a session.
func (w *Warehouse) DecisionCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := w.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM player_decisions WHERE session_id = ?", sessionID)
	return n, err
}
