package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tatianab/b40-life-sim/internal/analytics"
	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/engine"
	"github.com/tatianab/b40-life-sim/internal/game"
	"github.com/tatianab/b40-life-sim/internal/leaderboard"
	"github.com/tatianab/b40-life-sim/internal/models"
	"github.com/tatianab/b40-life-sim/internal/store"
)

type fixedRand int

func (r fixedRand) Intn(n int) int { return int(r) % n }

type stubNarrator struct{}

func (stubNarrator) Generate(_ context.Context, req engine.ScenarioRequest) (models.Scenario, error) {
	return models.Scenario{
		ID:         uuid.NewString(),
		LocationID: req.Location.ID,
		Narration:  "A neighbour asks to borrow money.",
		Emotion:    "uneasy",
		Choices: []models.Choice{
			{Text: "Lend RM50", Consequence: models.StatDelta{Money: -50, Stress: 5}, HiddenConsequence: "They may not repay."},
			{Text: "Politely refuse", Consequence: models.StatDelta{Stress: 10}},
		},
		Source: models.SourceAI,
	}, nil
}

func (stubNarrator) Reflect(context.Context, engine.ReflectionRequest) (string, error) {
	return "You were generous.", nil
}

type harness struct {
	svc       *GameService
	store     *store.Store
	warehouse *analytics.Warehouse
	board     *leaderboard.SQLiteBoard
	async     *analytics.Dispatcher
}

// flush waits for queued analytics writes.
func (h *harness) flush() {
	h.async.Close()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "game.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	wh, err := analytics.NewWarehouse(st.DB())
	if err != nil {
		t.Fatalf("Failed to create warehouse: %v", err)
	}
	board, err := leaderboard.NewSQLiteBoard(st.DB())
	if err != nil {
		t.Fatalf("Failed to create board: %v", err)
	}
	async := analytics.NewDispatcher(64, nil)
	t.Cleanup(async.Close)

	svc, err := New(Deps{
		Catalog:    cat,
		Store:      st,
		Narrator:   stubNarrator{},
		Sink:       wh,
		Board:      board,
		Dispatcher: async,
		Rand:       fixedRand(0),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &harness{svc: svc, store: st, warehouse: wh, board: board, async: async}
}

// set overwrites session fields directly, for arranging a test.
func (h *harness) set(t *testing.T, id string, fn func(*models.GameSession)) {
	t.Helper()
	_, err := h.store.Update(context.Background(), id, func(_ context.Context, _ store.Querier, cur models.GameSession) (models.GameSession, error) {
		fn(&cur)
		return cur, nil
	})
	if err != nil {
		t.Fatalf("Failed to arrange session: %v", err)
	}
}

func TestStartGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	sess, err := h.svc.StartGame(ctx, "  ", "A")
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if sess.PlayerName != "Aisyah" || sess.Money != 800 || sess.WeeklyEventDay != 1 {
		t.Errorf("Unexpected session: %+v", sess)
	}

	loaded, err := h.svc.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if loaded.ID != sess.ID || loaded.CurrentLocation != "flat" {
		t.Errorf("Unexpected loaded session: %+v", loaded)
	}

	if _, err := h.svc.StartGame(ctx, "x", "Z"); !errors.Is(err, models.ErrUnknownPersona) {
		t.Errorf("Expected ErrUnknownPersona, got %v", err)
	}
	if _, err := h.svc.Travel(ctx, "nope", "bank"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestInteractAndResolveChoice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")

	sess, sc, err := h.svc.Interact(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Interact failed: %v", err)
	}
	if sess.EnergyRemaining != 10 {
		t.Errorf("Expected energy 10, got %d", sess.EnergyRemaining)
	}
	if sc.LocationID != "flat" || len(sc.Choices) != 2 {
		t.Errorf("Unexpected scenario: %+v", sc)
	}

	sess, dec, err := h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 0)
	if err != nil {
		t.Fatalf("ResolveChoice failed: %v", err)
	}
	if sess.Money != 750 || sess.Stress != 25 {
		t.Errorf("Expected money 750 stress 25, got %d %d", sess.Money, sess.Stress)
	}
	if dec.ID == 0 || dec.HiddenConsequence == "" || dec.Week != 1 {
		t.Errorf("Unexpected decision: %+v", dec)
	}

	again, _, err := h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 1)
	if !errors.Is(err, models.ErrDuplicateDecision) {
		t.Errorf("Expected ErrDuplicateDecision, got %v", err)
	}
	if again.Money != 750 || again.Stress != 25 {
		t.Errorf("Expected no change on replay, got %d %d", again.Money, again.Stress)
	}

	recent, err := h.svc.RecentDecisions(ctx, sess.ID, 5)
	if err != nil || len(recent) != 1 {
		t.Errorf("Expected one decision, got %d %v", len(recent), err)
	}
}

func TestResolveChoiceRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")

	if _, _, err := h.svc.ResolveChoice(ctx, sess.ID, "made-up", 0); !errors.Is(err, models.ErrNoChoice) {
		t.Errorf("Expected ErrNoChoice for an unknown scenario, got %v", err)
	}

	_, sc, _ := h.svc.Interact(ctx, sess.ID)
	if _, _, err := h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 5); !errors.Is(err, models.ErrNoChoice) {
		t.Errorf("Expected ErrNoChoice for a bad index, got %v", err)
	}
}

func TestResolveChoiceRejectsUnaffordableSpend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")
	_, sc, err := h.svc.Interact(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Interact failed: %v", err)
	}
	h.set(t, sess.ID, func(s *models.GameSession) { s.Money = 20 })

	got, _, err := h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 0)
	if !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	if got.Money != 20 || got.Stress != models.StartingStress {
		t.Errorf("Expected the session unchanged, got money %d stress %d", got.Money, got.Stress)
	}
	if all, _ := h.svc.Decisions(ctx, sess.ID); len(all) != 0 {
		t.Errorf("Expected no decision recorded, got %d", len(all))
	}

	// The scenario is still open for a choice the player can afford.
	got, dec, err := h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 1)
	if err != nil {
		t.Fatalf("ResolveChoice failed: %v", err)
	}
	if got.Money != 20 || dec.ChoiceIndex != 1 {
		t.Errorf("Expected the refusal recorded at money 20, got %d %+v", got.Money, dec)
	}
}

func TestAdvanceDayClosesOpenScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")
	_, sc, _ := h.svc.Interact(ctx, sess.ID)

	if _, err := h.svc.Travel(ctx, sess.ID, "ehailing_hub"); err != nil {
		t.Fatalf("Travel failed: %v", err)
	}
	if _, err := h.svc.CompleteObjective(ctx, sess.ID, game.ObjectiveRequest{Action: models.ActionWork}); err != nil {
		t.Fatalf("Work failed: %v", err)
	}
	res, err := h.svc.AdvanceDay(ctx, sess.ID, false)
	if err != nil || res.Session.CurrentDay != 2 {
		t.Fatalf("Expected day 2, got %+v %v", res, err)
	}

	if _, _, err := h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 1); !errors.Is(err, models.ErrNoChoice) {
		t.Errorf("Expected ErrNoChoice for yesterday's scenario, got %v", err)
	}
	if all, _ := h.svc.Decisions(ctx, sess.ID); len(all) != 0 {
		t.Errorf("Expected no decision recorded, got %d", len(all))
	}
}

func TestConcurrentSubmissionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")
	_, sc, _ := h.svc.Interact(ctx, sess.ID)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 0); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if oks != 1 {
		t.Errorf("Expected exactly one accepted submission, got %d", oks)
	}
	got, _ := h.svc.Session(ctx, sess.ID)
	if got.Money != 750 {
		t.Errorf("Expected money 750, got %d", got.Money)
	}
}

func TestTravelAndObjectives(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")

	if _, err := h.svc.Travel(ctx, sess.ID, "night_market"); !errors.Is(err, models.ErrLocationLocked) {
		t.Errorf("Expected ErrLocationLocked, got %v", err)
	}

	sess, err := h.svc.Travel(ctx, sess.ID, "ehailing_hub")
	if err != nil {
		t.Fatalf("Travel failed: %v", err)
	}
	sess, err = h.svc.CompleteObjective(ctx, sess.ID, game.ObjectiveRequest{Action: models.ActionWork})
	if err != nil {
		t.Fatalf("Work failed: %v", err)
	}
	if sess.Objectives.WorkDaysCompleted != 1 || !sess.WorkedToday {
		t.Errorf("Expected one work day, got %+v", sess.Objectives)
	}

	res, err := h.svc.AdvanceDay(ctx, sess.ID, false)
	if err != nil {
		t.Fatalf("AdvanceDay failed: %v", err)
	}
	if !res.CanAdvance || res.Session.CurrentDay != 2 {
		t.Errorf("Expected day 2, got %+v", res)
	}

	res, err = h.svc.AdvanceDay(ctx, sess.ID, false)
	if err != nil {
		t.Fatalf("AdvanceDay failed: %v", err)
	}
	if res.CanAdvance || res.Blocker != game.BlockedByWork {
		t.Errorf("Expected to be blocked by work, got %+v", res)
	}
}

func TestFinalWeekendPublishes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")
	h.set(t, sess.ID, func(s *models.GameSession) {
		s.CurrentWeek = 4
		s.CurrentDay = 5
		s.Money = 900
		s.CreditScore = 700
		s.Objectives = models.WeeklyObjectives{WorkDaysCompleted: 5, BoughtGroceries: true, FilledPetrol: true, PaidDebt: true}
	})

	res, err := h.svc.AdvanceDay(ctx, sess.ID, false)
	if err != nil || !res.ShouldShowWeekendDialog {
		t.Fatalf("Expected the weekend dialog, got %+v %v", res, err)
	}

	menu, err := h.svc.WeekendMenu(ctx, sess.ID)
	if err != nil {
		t.Fatalf("WeekendMenu failed: %v", err)
	}
	if menu[0].ID != catalog.SkipActivityID {
		t.Errorf("Expected skip first, got %s", menu[0].ID)
	}

	if _, err := h.svc.ResolveWeekend(ctx, sess.ID, "casino"); !errors.Is(err, models.ErrUnknownActivity) {
		t.Errorf("Expected ErrUnknownActivity, got %v", err)
	}
	final, err := h.svc.ResolveWeekend(ctx, sess.ID, "cooking_class")
	if err != nil {
		t.Fatalf("ResolveWeekend failed: %v", err)
	}
	if !final.IsGameOver || final.Ending != models.EndingThrived {
		t.Fatalf("Expected thrived, got %s (over=%v)", final.Ending, final.IsGameOver)
	}

	if _, err := h.svc.AdvanceDay(ctx, sess.ID, true); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition after game over, got %v", err)
	}
	text, err := h.svc.Debrief(ctx, sess.ID)
	if err != nil || text != "You were generous." {
		t.Errorf("Unexpected debrief: %q %v", text, err)
	}

	h.flush()

	snaps, err := h.warehouse.Snapshots(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Week != 4 || snaps[0].Money != 875 {
		t.Errorf("Expected one week 4 snapshot with the final money, got %+v", snaps)
	}
	counts, _ := h.warehouse.EndingCounts(ctx)
	if counts[models.EndingThrived] != 1 {
		t.Errorf("Expected one thrived game, got %v", counts)
	}
	top, _ := h.board.Top(ctx, 5)
	if len(top) != 1 || top[0].Score != 875 || top[0].WeeksCompleted != 4 {
		t.Errorf("Unexpected leaderboard: %+v", top)
	}
}

type failingSink struct{}

func (failingSink) RecordCompletedGame(context.Context, analytics.CompletedGame) error {
	return errors.New("warehouse down")
}

func (failingSink) UpsertWeeklySnapshot(context.Context, models.WeeklySnapshot) error {
	return errors.New("warehouse down")
}

func (failingSink) RecordDecision(context.Context, models.Decision) error {
	return errors.New("warehouse down")
}

type failingBoard struct{}

func (failingBoard) UpsertLiveScore(context.Context, leaderboard.Entry) error {
	return errors.New("board down")
}

func (failingBoard) Top(context.Context, int) ([]leaderboard.Entry, error) {
	return nil, errors.New("board down")
}

func TestFailingSinksDoNotAffectGame(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "game.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	cat, _ := catalog.Default()
	async := analytics.NewDispatcher(64, nil)

	svc, err := New(Deps{
		Catalog:    cat,
		Store:      st,
		Narrator:   stubNarrator{},
		Sink:       failingSink{},
		Board:      failingBoard{},
		Dispatcher: async,
		Rand:       fixedRand(0),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sess, err := svc.StartGame(ctx, "Ali", "A")
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	_, sc, _ := svc.Interact(ctx, sess.ID)
	if _, _, err := svc.ResolveChoice(ctx, sess.ID, sc.ID, 0); err != nil {
		t.Fatalf("ResolveChoice failed: %v", err)
	}

	_, err = st.Update(ctx, sess.ID, func(_ context.Context, _ store.Querier, cur models.GameSession) (models.GameSession, error) {
		cur.CurrentWeek = 4
		cur.CurrentDay = 5
		cur.Money = 900
		cur.CreditScore = 700
		cur.Objectives = models.WeeklyObjectives{WorkDaysCompleted: 5, BoughtGroceries: true, FilledPetrol: true, PaidDebt: true}
		return cur, nil
	})
	if err != nil {
		t.Fatalf("Failed to arrange session: %v", err)
	}
	if _, err := svc.AdvanceDay(ctx, sess.ID, false); err != nil {
		t.Fatalf("AdvanceDay failed: %v", err)
	}
	final, err := svc.ResolveWeekend(ctx, sess.ID, "cooking_class")
	if err != nil {
		t.Fatalf("ResolveWeekend failed: %v", err)
	}
	async.Close()

	loaded, err := svc.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if loaded.Ending != models.EndingThrived || loaded.Money != final.Money || loaded.Money != 875 {
		t.Errorf("Expected a stored thrived ending with money 875, got %s %d", loaded.Ending, loaded.Money)
	}
	if all, _ := svc.Decisions(ctx, sess.ID); len(all) != 1 {
		t.Errorf("Expected the decision kept despite the sink, got %d", len(all))
	}
}

func TestWeeklyEventFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")

	// fixedRand(0) puts the event on day 1 and draws the first event.
	ev, due, err := h.svc.DrawWeeklyEvent(ctx, sess.ID)
	if err != nil || !due {
		t.Fatalf("Expected an event due, got %v %v", due, err)
	}
	again, _, _ := h.svc.DrawWeeklyEvent(ctx, sess.ID)
	if again.ID != ev.ID {
		t.Errorf("Expected the same draw, got %s and %s", ev.ID, again.ID)
	}

	after, resolved, err := h.svc.ResolveWeeklyEvent(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResolveWeeklyEvent failed: %v", err)
	}
	if resolved.ID != ev.ID || !after.WeeklyEventTriggered {
		t.Errorf("Expected %s resolved, got %s", ev.ID, resolved.ID)
	}
	if after.Money != 800+ev.Consequence.Money {
		t.Errorf("Expected money %d, got %d", 800+ev.Consequence.Money, after.Money)
	}

	if _, due, _ := h.svc.DrawWeeklyEvent(ctx, sess.ID); due {
		t.Error("Expected no further event this week")
	}
	if _, _, err := h.svc.ResolveWeeklyEvent(ctx, sess.ID); !errors.Is(err, models.ErrAlreadyComplete) {
		t.Errorf("Expected ErrAlreadyComplete, got %v", err)
	}

	all, _ := h.svc.Decisions(ctx, sess.ID)
	if len(all) != 1 || all[0].ChoiceText != ev.Title {
		t.Errorf("Expected the event logged as a decision, got %+v", all)
	}
}

func TestResetGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, _ := h.svc.StartGame(ctx, "Ali", "A")
	_, sc, _ := h.svc.Interact(ctx, sess.ID)
	h.svc.ResolveChoice(ctx, sess.ID, sc.ID, 1)

	for i := 0; i < 2; i++ {
		if err := h.svc.ResetGame(ctx, sess.ID); err != nil {
			t.Fatalf("ResetGame %d failed: %v", i, err)
		}
	}
	if _, err := h.svc.Session(ctx, sess.ID); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	all, _ := h.svc.Decisions(ctx, sess.ID)
	if len(all) != 0 {
		t.Errorf("Expected no decisions, got %d", len(all))
	}
}

func TestDefaultNarratorFallsBack(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "game.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	cat, _ := catalog.Default()

	svc, err := New(Deps{Catalog: cat, Store: st, Now: func() time.Time { return time.Unix(1700000000, 0) }})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	sess, _ := svc.StartGame(ctx, "Ali", "B")
	_, sc, err := svc.Interact(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Interact failed: %v", err)
	}
	if sc.Source != models.SourceFallback || sc.ID == "" {
		t.Errorf("Expected a fallback scenario with an id, got %+v", sc)
	}
	if _, err := svc.Debrief(ctx, sess.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition before game over, got %v", err)
	}
	if top, err := svc.Leaderboard(ctx, 5); err != nil || top != nil {
		t.Errorf("Expected no leaderboard, got %v %v", top, err)
	}
}
