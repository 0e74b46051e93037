package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tatianab/b40-life-sim/internal/models"
)

func openWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	w, err := NewWarehouse(db)
	if err != nil {
		t.Fatalf("NewWarehouse failed: %v", err)
	}
	return w
}

func TestWeeklySnapshotUpsert(t *testing.T) {
	ctx := context.Background()
	w := openWarehouse(t)

	snap := models.WeeklySnapshot{SessionID: "s1", Week: 1, Money: 500, CreditScore: 650, RecordedAt: time.Now()}
	if err := w.UpsertWeeklySnapshot(ctx, snap); err != nil {
		t.Fatalf("UpsertWeeklySnapshot failed: %v", err)
	}
	snap.Money = 420
	snap.FilledPetrol = true
	if err := w.UpsertWeeklySnapshot(ctx, snap); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	snap.Week = 2
	if err := w.UpsertWeeklySnapshot(ctx, snap); err != nil {
		t.Fatalf("Week 2 upsert failed: %v", err)
	}

	got, err := w.Snapshots(ctx, "s1")
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(got))
	}
	if got[0].Money != 420 || !got[0].FilledPetrol {
		t.Errorf("Expected the week 1 row replaced, got %+v", got[0])
	}
}

func TestRecordDecisionIgnoresReplays(t *testing.T) {
	ctx := context.Background()
	w := openWarehouse(t)

	d := models.Decision{SessionID: "s1", ScenarioID: "sc1", LocationID: "bank", ChoiceText: "Pay", CreatedAt: time.Now()}
	for i := 0; i < 2; i++ {
		if err := w.RecordDecision(ctx, d); err != nil {
			t.Fatalf("RecordDecision failed: %v", err)
		}
	}
	n, err := w.DecisionCount(ctx, "s1")
	if err != nil {
		t.Fatalf("DecisionCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 decision, got %d", n)
	}
}

func TestCompletedGames(t *testing.T) {
	ctx := context.Background()
	w := openWarehouse(t)

	s := models.GameSession{ID: "s1", PlayerName: "Ali", PersonaID: "A", CurrentWeek: 4, IsGameOver: true, Ending: models.EndingThrived, Money: 300}
	g := NewCompletedGame(s, 12, time.Now())
	if g.WeeksCompleted != 4 || g.DecisionCount != 12 {
		t.Errorf("Unexpected record: %+v", g)
	}
	if err := w.RecordCompletedGame(ctx, g); err != nil {
		t.Fatalf("RecordCompletedGame failed: %v", err)
	}

	s2 := models.GameSession{ID: "s2", PlayerName: "Bee", PersonaID: "B", CurrentWeek: 2, IsGameOver: true, Ending: models.EndingBurnout}
	if err := w.RecordCompletedGame(ctx, NewCompletedGame(s2, 3, time.Now())); err != nil {
		t.Fatalf("RecordCompletedGame failed: %v", err)
	}

	counts, err := w.EndingCounts(ctx)
	if err != nil {
		t.Fatalf("EndingCounts failed: %v", err)
	}
	if counts[models.EndingThrived] != 1 || counts[models.EndingBurnout] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestDispatcherRunsAndSwallowsErrors(t *testing.T) {
	d := NewDispatcher(8, nil)

	var ran atomic.Int32
	d.Submit("ok", "s1", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	d.Submit("fails", "s1", func(ctx context.Context) error {
		ran.Add(1)
		return errors.New("warehouse offline")
	})
	d.Submit("panics", "s1", func(ctx context.Context) error {
		ran.Add(1)
		panic("boom")
	})
	d.Submit("after panic", "s1", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	d.Close()

	if ran.Load() != 4 {
		t.Errorf("Expected 4 jobs to run, got %d", ran.Load())
	}
	if d.Submit("late", "s1", func(ctx context.Context) error { return nil }) {
		t.Error("Expected Submit after Close to be dropped")
	}
	d.Close()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	d.Submit("blocker", "s1", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	if !d.Submit("queued", "s1", func(ctx context.Context) error { return nil }) {
		t.Error("Expected the first queued job to fit")
	}
	if d.Submit("overflow", "s1", func(ctx context.Context) error { return nil }) {
		t.Error("Expected the overflow job to be dropped")
	}
	close(release)
	d.Close()
}
