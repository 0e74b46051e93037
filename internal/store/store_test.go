package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tatianab/b40-life-sim/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) models.GameSession {
	now := time.Now().UTC()
	return models.GameSession{
		ID:              id,
		PlayerName:      "Ali",
		PersonaID:       "A",
		Money:           800,
		Debt:            30000,
		CreditScore:     650,
		Health:          100,
		Stress:          20,
		CurrentDay:      1,
		CurrentWeek:     1,
		CurrentLocation: "flat",
		EnergyRemaining: 11,
		WeeklyEventDay:  3,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateAndLoadSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	want := testSession("s1")
	want.Objectives = models.WeeklyObjectives{WorkDaysCompleted: 2, FilledPetrol: true}
	if err := s.CreateSession(ctx, want); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := s.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if got.Money != 800 || got.CreditScore != 650 || got.CurrentLocation != "flat" {
		t.Errorf("Unexpected session: %+v", got)
	}
	if got.Objectives != want.Objectives {
		t.Errorf("Expected objectives %+v, got %+v", want.Objectives, got.Objectives)
	}
	if got.WeeklyEventDay != 3 {
		t.Errorf("Expected event day 3, got %d", got.WeeklyEventDay)
	}

	if _, err := s.Session(ctx, "missing"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestLoadNormalizesOldRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// A row from before energy, objectives and the calendar were stored.
	_, err := s.DB().Exec(`INSERT INTO sessions (id, persona_id, money, credit_score) VALUES ('old', 'B', -10, 990)`)
	if err != nil {
		t.Fatalf("Failed to insert old row: %v", err)
	}

	got, err := s.Session(ctx, "old")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if got.EnergyRemaining != models.MaxEnergy {
		t.Errorf("Expected energy %d, got %d", models.MaxEnergy, got.EnergyRemaining)
	}
	if got.CurrentWeek != 1 || got.CurrentDay != 1 {
		t.Errorf("Expected week 1 day 1, got %d %d", got.CurrentWeek, got.CurrentDay)
	}
	if got.Money != 0 || got.CreditScore != models.MaxCreditScore {
		t.Errorf("Expected money 0 and credit %d, got %d %d", models.MaxCreditScore, got.Money, got.CreditScore)
	}
	if got.Health != models.StartingHealth || got.Stress != models.StartingStress {
		t.Errorf("Expected starting health and stress, got %d %d", got.Health, got.Stress)
	}
}

func TestUpdateCommitsOrRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	updated, err := s.Update(ctx, "s1", func(ctx context.Context, q Querier, cur models.GameSession) (models.GameSession, error) {
		cur.Money -= 50
		cur.Objectives.BoughtGroceries = true
		return cur, nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Money != 750 {
		t.Errorf("Expected money 750, got %d", updated.Money)
	}

	boom := errors.New("boom")
	_, err = s.Update(ctx, "s1", func(ctx context.Context, q Querier, cur models.GameSession) (models.GameSession, error) {
		if _, err := s.Decisions.Record(ctx, q, models.Decision{SessionID: "s1", ScenarioID: "x", LocationID: "flat", ChoiceText: "a", Week: 1, Day: 1}); err != nil {
			return cur, err
		}
		cur.Money = 0
		return cur, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	got, _ := s.Session(ctx, "s1")
	if got.Money != 750 || !got.Objectives.BoughtGroceries {
		t.Errorf("Expected committed state to survive, got money %d groceries %v", got.Money, got.Objectives.BoughtGroceries)
	}
	all, _ := s.AllDecisions(ctx, "s1")
	if len(all) != 0 {
		t.Errorf("Expected the decision to roll back, got %d", len(all))
	}

	if _, err := s.Update(ctx, "missing", func(ctx context.Context, q Querier, cur models.GameSession) (models.GameSession, error) {
		return cur, nil
	}); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestDecisionLog(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	for i, id := range []string{"sc1", "sc2", "sc3"} {
		_, err := s.Decisions.Record(ctx, s.DB(), models.Decision{
			SessionID:         "s1",
			LocationID:        "pasar_mini",
			ScenarioID:        id,
			ChoiceIndex:       i,
			ChoiceText:        "choice " + id,
			Delta:             models.StatDelta{Money: -10 * (i + 1)},
			HiddenConsequence: "later",
			Week:              1,
			Day:               1,
		})
		if err != nil {
			t.Fatalf("Record %s failed: %v", id, err)
		}
	}

	_, err := s.Decisions.Record(ctx, s.DB(), models.Decision{SessionID: "s1", ScenarioID: "sc2", LocationID: "bank", ChoiceText: "again"})
	if !errors.Is(err, models.ErrDuplicateDecision) {
		t.Errorf("Expected ErrDuplicateDecision, got %v", err)
	}

	ok, err := s.Decisions.Processed(ctx, s.DB(), "s1", "sc2")
	if err != nil || !ok {
		t.Errorf("Expected sc2 processed, got %v %v", ok, err)
	}

	recent, err := s.RecentDecisions(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentDecisions failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ScenarioID != "sc3" || recent[1].ScenarioID != "sc2" {
		t.Errorf("Expected sc3, sc2 newest first, got %+v", recent)
	}

	all, err := s.AllDecisions(ctx, "s1")
	if err != nil {
		t.Fatalf("AllDecisions failed: %v", err)
	}
	if len(all) != 3 || all[0].ScenarioID != "sc1" {
		t.Fatalf("Expected 3 decisions in order, got %+v", all)
	}
	if all[2].Delta.Money != -30 || all[2].HiddenConsequence != "later" {
		t.Errorf("Unexpected decision: %+v", all[2])
	}
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := s.Decisions.Record(ctx, s.DB(), models.Decision{SessionID: "s1", ScenarioID: "sc", LocationID: "flat", ChoiceText: "a"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.DeleteSession(ctx, "s1"); err != nil {
			t.Fatalf("DeleteSession %d failed: %v", i, err)
		}
	}
	if _, err := s.Session(ctx, "s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	all, _ := s.AllDecisions(ctx, "s1")
	if len(all) != 0 {
		t.Errorf("Expected decisions deleted, got %d", len(all))
	}
}

func TestActiveSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	done := testSession("done")
	done.IsGameOver = true
	done.Ending = models.EndingBurnout
	for _, sess := range []models.GameSession{testSession("a"), testSession("b"), done} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	active, err := s.ActiveSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("Expected 2 active sessions, got %d", len(active))
	}
}
