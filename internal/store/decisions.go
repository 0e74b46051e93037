package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tatianab/b40-life-sim/internal/models"
)

// DecisionLog is the append-only history of resolved choices. Its methods
// take the querier to run on, so a decision can be recorded in the same
// transaction as the session update it caused.
type DecisionLog struct{}

type decisionRow struct {
	ID                int64          `db:"id"`
	SessionID         string         `db:"session_id"`
	LocationID        string         `db:"location_id"`
	ScenarioID        string         `db:"scenario_id"`
	ChoiceIndex       int            `db:"choice_index"`
	ChoiceText        string         `db:"choice_text"`
	MoneyDelta        int            `db:"money_delta"`
	CreditDelta       int            `db:"credit_delta"`
	HealthDelta       int            `db:"health_delta"`
	StressDelta       int            `db:"stress_delta"`
	HiddenConsequence sql.NullString `db:"hidden_consequence"`
	Week              int            `db:"week"`
	Day               int            `db:"day"`
	CreatedAt         int64          `db:"created_at"`
}

func (r decisionRow) decision() models.Decision {
	return models.Decision{
		ID:          r.ID,
		SessionID:   r.SessionID,
		LocationID:  models.LocationID(r.LocationID),
		ScenarioID:  r.ScenarioID,
		ChoiceIndex: r.ChoiceIndex,
		ChoiceText:  r.ChoiceText,
		Delta: models.StatDelta{
			Money:  r.MoneyDelta,
			Credit: r.CreditDelta,
			Health: r.HealthDelta,
			Stress: r.StressDelta,
		},
		HiddenConsequence: r.HiddenConsequence.String,
		Week:              r.Week,
		Day:               r.Day,
		CreatedAt:         time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// Record appends a decision and returns its id. A second decision for the
// same scenario of a session fails with ErrDuplicateDecision.
func (DecisionLog) Record(ctx context.Context, q Querier, d models.Decision) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `INSERT INTO decisions
		(session_id, location_id, scenario_id, choice_index, choice_text,
		 money_delta, credit_delta, health_delta, stress_delta, hidden_consequence,
		 week, day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, string(d.LocationID), d.ScenarioID, d.ChoiceIndex, d.ChoiceText,
		d.Delta.Money, d.Delta.Credit, d.Delta.Health, d.Delta.Stress,
		sql.NullString{String: d.HiddenConsequence, Valid: d.HiddenConsequence != ""},
		d.Week, d.Day, d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, models.ErrDuplicateDecision
		}
		return 0, storageErr("record decision", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("record decision", err)
	}
	return id, nil
}

// Processed reports whether a scenario of the session was already resolved.
func (DecisionLog) Processed(ctx context.Context, q sqlx.QueryerContext, sessionID, scenarioID string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		"SELECT COUNT(*) FROM decisions WHERE session_id = ? AND scenario_id = ?", sessionID, scenarioID)
	if err != nil {
		return false, storageErr("check decision", err)
	}
	return n > 0, nil
}

// ListRecent returns up to n decisions, newest first.
func (DecisionLog) ListRecent(ctx context.Context, q sqlx.QueryerContext, sessionID string, n int) ([]models.Decision, error) {
	return listDecisions(ctx, q,
		"SELECT * FROM decisions WHERE session_id = ? ORDER BY id DESC LIMIT ?", sessionID, n)
}

// ListAll returns every decision of the session in insertion order.
func (DecisionLog) ListAll(ctx context.Context, q sqlx.QueryerContext, sessionID string) ([]models.Decision, error) {
	return listDecisions(ctx, q,
		"SELECT * FROM decisions WHERE session_id = ? ORDER BY id", sessionID)
}

func listDecisions(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]models.Decision, error) {
	var rows []decisionRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, storageErr("list decisions", err)
	}
	out := make([]models.Decision, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.decision())
	}
	return out, nil
}
