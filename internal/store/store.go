// Package store persists game sessions and the decision history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tatianab/b40-life-sim/internal/models"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
}

// Store wraps the SQLite connection holding sessions and decisions.
type Store struct {
	db        *sqlx.DB
	log       *slog.Logger
	Decisions DecisionLog
}

// Open opens or creates the database at path and runs the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serialises writers; SQLite allows only one anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database opened", "path", path)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection so the analytics and leaderboard tables can live
// in the same file.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Most columns are nullable: rows written by older builds lack them, and
// loading fills the gaps through Normalize.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	player_name TEXT,
	persona_id TEXT NOT NULL,
	money INTEGER,
	debt INTEGER,
	credit_score INTEGER,
	health INTEGER,
	stress INTEGER,
	current_day INTEGER,
	current_week INTEGER,
	current_location TEXT,
	energy_remaining INTEGER,
	work_days_completed INTEGER,
	bought_groceries INTEGER,
	filled_petrol INTEGER,
	paid_debt INTEGER,
	worked_today INTEGER,
	weekly_event_day INTEGER,
	weekly_event_triggered INTEGER,
	weekend_pending INTEGER,
	is_game_over INTEGER NOT NULL DEFAULT 0,
	ending TEXT,
	failure_reason TEXT,
	created_at INTEGER,
	updated_at INTEGER
);

CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	location_id TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	choice_index INTEGER NOT NULL,
	choice_text TEXT NOT NULL,
	money_delta INTEGER NOT NULL DEFAULT 0,
	credit_delta INTEGER NOT NULL DEFAULT 0,
	health_delta INTEGER NOT NULL DEFAULT 0,
	stress_delta INTEGER NOT NULL DEFAULT 0,
	hidden_consequence TEXT,
	week INTEGER NOT NULL,
	day INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_decisions_scenario ON decisions(session_id, scenario_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

type sessionRow struct {
	ID                   string         `db:"id"`
	PlayerName           sql.NullString `db:"player_name"`
	PersonaID            string         `db:"persona_id"`
	Money                sql.NullInt64  `db:"money"`
	Debt                 sql.NullInt64  `db:"debt"`
	CreditScore          sql.NullInt64  `db:"credit_score"`
	Health               sql.NullInt64  `db:"health"`
	Stress               sql.NullInt64  `db:"stress"`
	CurrentDay           sql.NullInt64  `db:"current_day"`
	CurrentWeek          sql.NullInt64  `db:"current_week"`
	CurrentLocation      sql.NullString `db:"current_location"`
	EnergyRemaining      sql.NullInt64  `db:"energy_remaining"`
	WorkDaysCompleted    sql.NullInt64  `db:"work_days_completed"`
	BoughtGroceries      sql.NullBool   `db:"bought_groceries"`
	FilledPetrol         sql.NullBool   `db:"filled_petrol"`
	PaidDebt             sql.NullBool   `db:"paid_debt"`
	WorkedToday          sql.NullBool   `db:"worked_today"`
	WeeklyEventDay       sql.NullInt64  `db:"weekly_event_day"`
	WeeklyEventTriggered sql.NullBool   `db:"weekly_event_triggered"`
	WeekendPending       sql.NullBool   `db:"weekend_pending"`
	IsGameOver           bool           `db:"is_game_over"`
	Ending               sql.NullString `db:"ending"`
	FailureReason        sql.NullString `db:"failure_reason"`
	CreatedAt            sql.NullInt64  `db:"created_at"`
	UpdatedAt            sql.NullInt64  `db:"updated_at"`
}

func orInt(v sql.NullInt64, def int) int {
	if !v.Valid {
		return def
	}
	return int(v.Int64)
}

func millis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

// session converts a row, defaulting missing columns, and normalises it.
func (r sessionRow) session() models.GameSession {
	s := models.GameSession{
		ID:              r.ID,
		PlayerName:      r.PlayerName.String,
		PersonaID:       models.PersonaID(r.PersonaID),
		Money:           orInt(r.Money, 0),
		Debt:            orInt(r.Debt, 0),
		CreditScore:     orInt(r.CreditScore, models.MinCreditScore),
		Health:          orInt(r.Health, models.StartingHealth),
		Stress:          orInt(r.Stress, models.StartingStress),
		CurrentDay:      orInt(r.CurrentDay, 1),
		CurrentWeek:     orInt(r.CurrentWeek, 1),
		CurrentLocation: models.LocationID(r.CurrentLocation.String),
		EnergyRemaining: orInt(r.EnergyRemaining, models.MaxEnergy),
		Objectives: models.WeeklyObjectives{
			WorkDaysCompleted: orInt(r.WorkDaysCompleted, 0),
			BoughtGroceries:   r.BoughtGroceries.Bool,
			FilledPetrol:      r.FilledPetrol.Bool,
			PaidDebt:          r.PaidDebt.Bool,
		},
		WorkedToday:          r.WorkedToday.Bool,
		WeeklyEventDay:       orInt(r.WeeklyEventDay, 0),
		WeeklyEventTriggered: r.WeeklyEventTriggered.Bool,
		WeekendPending:       r.WeekendPending.Bool,
		IsGameOver:           r.IsGameOver,
		Ending:               models.Ending(r.Ending.String),
		FailureReason:        r.FailureReason.String,
		CreatedAt:            millis(r.CreatedAt),
		UpdatedAt:            millis(r.UpdatedAt),
	}
	s.Normalize()
	return s
}

func toRow(s models.GameSession) sessionRow {
	i := func(v int) sql.NullInt64 { return sql.NullInt64{Int64: int64(v), Valid: true} }
	b := func(v bool) sql.NullBool { return sql.NullBool{Bool: v, Valid: true} }
	str := func(v string) sql.NullString { return sql.NullString{String: v, Valid: v != ""} }
	return sessionRow{
		ID:                   s.ID,
		PlayerName:           sql.NullString{String: s.PlayerName, Valid: true},
		PersonaID:            string(s.PersonaID),
		Money:                i(s.Money),
		Debt:                 i(s.Debt),
		CreditScore:          i(s.CreditScore),
		Health:               i(s.Health),
		Stress:               i(s.Stress),
		CurrentDay:           i(s.CurrentDay),
		CurrentWeek:          i(s.CurrentWeek),
		CurrentLocation:      str(string(s.CurrentLocation)),
		EnergyRemaining:      i(s.EnergyRemaining),
		WorkDaysCompleted:    i(s.Objectives.WorkDaysCompleted),
		BoughtGroceries:      b(s.Objectives.BoughtGroceries),
		FilledPetrol:         b(s.Objectives.FilledPetrol),
		PaidDebt:             b(s.Objectives.PaidDebt),
		WorkedToday:          b(s.WorkedToday),
		WeeklyEventDay:       i(s.WeeklyEventDay),
		WeeklyEventTriggered: b(s.WeeklyEventTriggered),
		WeekendPending:       b(s.WeekendPending),
		IsGameOver:           s.IsGameOver,
		Ending:               str(string(s.Ending)),
		FailureReason:        str(s.FailureReason),
		CreatedAt:            sql.NullInt64{Int64: s.CreatedAt.UnixMilli(), Valid: true},
		UpdatedAt:            sql.NullInt64{Int64: s.UpdatedAt.UnixMilli(), Valid: true},
	}
}

const upsertSession = `INSERT INTO sessions
	(id, player_name, persona_id, money, debt, credit_score, health, stress,
	 current_day, current_week, current_location, energy_remaining,
	 work_days_completed, bought_groceries, filled_petrol, paid_debt, worked_today,
	 weekly_event_day, weekly_event_triggered, weekend_pending, is_game_over,
	 ending, failure_reason, created_at, updated_at)
	VALUES
	(:id, :player_name, :persona_id, :money, :debt, :credit_score, :health, :stress,
	 :current_day, :current_week, :current_location, :energy_remaining,
	 :work_days_completed, :bought_groceries, :filled_petrol, :paid_debt, :worked_today,
	 :weekly_event_day, :weekly_event_triggered, :weekend_pending, :is_game_over,
	 :ending, :failure_reason, :created_at, :updated_at)
	ON CONFLICT(id) DO UPDATE SET
	 money = excluded.money,
	 debt = excluded.debt,
	 credit_score = excluded.credit_score,
	 health = excluded.health,
	 stress = excluded.stress,
	 current_day = excluded.current_day,
	 current_week = excluded.current_week,
	 current_location = excluded.current_location,
	 energy_remaining = excluded.energy_remaining,
	 work_days_completed = excluded.work_days_completed,
	 bought_groceries = excluded.bought_groceries,
	 filled_petrol = excluded.filled_petrol,
	 paid_debt = excluded.paid_debt,
	 worked_today = excluded.worked_today,
	 weekly_event_day = excluded.weekly_event_day,
	 weekly_event_triggered = excluded.weekly_event_triggered,
	 weekend_pending = excluded.weekend_pending,
	 is_game_over = excluded.is_game_over,
	 ending = excluded.ending,
	 failure_reason = excluded.failure_reason,
	 updated_at = excluded.updated_at`

func storageErr(op string, err error) error {
	return &models.StorageError{Op: op, Err: err}
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, sess models.GameSession) error {
	if _, err := sqlx.NamedExecContext(ctx, s.db, upsertSession, toRow(sess)); err != nil {
		return storageErr("create session", err)
	}
	return nil
}

func getSession(ctx context.Context, q sqlx.QueryerContext, id string) (models.GameSession, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT * FROM sessions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GameSession{}, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	if err != nil {
		return models.GameSession{}, storageErr("load session", err)
	}
	return row.session(), nil
}

// Session loads a session by id.
func (s *Store) Session(ctx context.Context, id string) (models.GameSession, error) {
	return getSession(ctx, s.db, id)
}

// ActiveSessions lists unfinished sessions, most recently played first.
func (s *Store) ActiveSessions(ctx context.Context, limit int) ([]models.GameSession, error) {
	var rows []sessionRow
	err := sqlx.SelectContext(ctx, s.db, &rows,
		"SELECT * FROM sessions WHERE is_game_over = 0 ORDER BY updated_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	out := make([]models.GameSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.session())
	}
	return out, nil
}

// UpdateFunc computes the next session from the current one. q is the open
// transaction, for writes that must commit together with the session.
type UpdateFunc func(ctx context.Context, q Querier, current models.GameSession) (models.GameSession, error)

// Update runs a read-modify-write of one session inside a transaction. When
// fn fails nothing is written and the current session is returned with the
// error.
func (s *Store) Update(ctx context.Context, id string, fn UpdateFunc) (models.GameSession, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.GameSession{}, storageErr("begin", err)
	}
	defer tx.Rollback()

	current, err := getSession(ctx, tx, id)
	if err != nil {
		return models.GameSession{}, err
	}

	next, err := fn(ctx, tx, current)
	if err != nil {
		return current, err
	}
	next.UpdatedAt = time.Now().UTC()

	if _, err := sqlx.NamedExecContext(ctx, tx, upsertSession, toRow(next)); err != nil {
		return current, storageErr("save session", err)
	}
	if err := tx.Commit(); err != nil {
		return current, storageErr("commit", err)
	}
	return next, nil
}

// DeleteSession removes a session and its history. Deleting a missing
// session is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM decisions WHERE session_id = ?", id); err != nil {
		return storageErr("delete decisions", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return storageErr("delete session", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("session deleted", "session", id)
	}
	return nil
}

// RecentDecisions returns the latest n decisions of a session, newest first.
func (s *Store) RecentDecisions(ctx context.Context, sessionID string, n int) ([]models.Decision, error) {
	return s.Decisions.ListRecent(ctx, s.db, sessionID, n)
}

// AllDecisions returns every decision of a session in the order it was made.
func (s *Store) AllDecisions(ctx context.Context, sessionID string) ([]models.Decision, error) {
	return s.Decisions.ListAll(ctx, s.db, sessionID)
}
