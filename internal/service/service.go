// Package service runs the game rules against stored sessions. Every call
// names its session explicitly; the service keeps no notion of a current
// game. Calls on the same session are serialised, and each one is a single
// read-modify-write transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
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

// Deps are the collaborators of a GameService. Catalog and Store are
// required; everything else has a default or is optional.
type Deps struct {
	Catalog  *catalog.Catalog
	Store    *store.Store
	Narrator engine.Narrator // default: canned scenarios only
	Sink     analytics.Sink
	Board    leaderboard.Board
	// Dispatcher runs sink and board writes. When nil the service starts
	// its own and closes it in Close.
	Dispatcher *analytics.Dispatcher
	Rand       game.Rand
	Now        func() time.Time
	Logger     *slog.Logger
}

type GameService struct {
	cat       *catalog.Catalog
	store     *store.Store
	narrator  engine.Narrator
	fallback  *engine.Fallback
	sink      analytics.Sink
	board     leaderboard.Board
	async     *analytics.Dispatcher
	ownsAsync bool
	rng       game.Rand
	now       func() time.Time
	log       *slog.Logger
	locks     *keyedMutex

	mu        sync.Mutex
	scenarios map[string]models.Scenario // open scenario per session
	events    map[string]catalog.Event   // drawn, unresolved weekly event per session
}

// New builds a GameService.
func New(d Deps) (*GameService, error) {
	if d.Catalog == nil || d.Store == nil {
		return nil, errors.New("service: catalog and store are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	fallback := engine.NewFallback(d.Catalog)
	if d.Narrator == nil {
		d.Narrator = engine.WithFallback(nil, fallback, 0, d.Logger)
	}
	if d.Rand == nil {
		d.Rand = game.NewRand(0)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	g := &GameService{
		cat:       d.Catalog,
		store:     d.Store,
		narrator:  d.Narrator,
		fallback:  fallback,
		sink:      d.Sink,
		board:     d.Board,
		async:     d.Dispatcher,
		rng:       d.Rand,
		now:       d.Now,
		log:       d.Logger,
		locks:     newKeyedMutex(),
		scenarios: make(map[string]models.Scenario),
		events:    make(map[string]catalog.Event),
	}
	if g.async == nil {
		g.async = analytics.NewDispatcher(256, d.Logger)
		g.ownsAsync = true
	}
	return g, nil
}

// Close flushes queued analytics writes.
func (g *GameService) Close() {
	if g.ownsAsync {
		g.async.Close()
	}
}

// Catalog is the persona catalog the service plays with.
func (g *GameService) Catalog() *catalog.Catalog {
	return g.cat
}

func (g *GameService) persona(s models.GameSession) (*catalog.Persona, error) {
	return g.cat.Persona(s.PersonaID)
}

// update locks the session, runs fn in a transaction and publishes the
// committed change.
func (g *GameService) update(ctx context.Context, id string, fn store.UpdateFunc) (models.GameSession, error) {
	unlock := g.locks.Lock(id)
	defer unlock()

	var prev models.GameSession
	next, err := g.store.Update(ctx, id, func(ctx context.Context, q store.Querier, cur models.GameSession) (models.GameSession, error) {
		prev = cur
		return fn(ctx, q, cur)
	})
	if err != nil {
		return next, err
	}
	g.published(prev, next)
	return next, nil
}

// StartGame creates a session for the persona. An empty player name takes
// the persona's name.
func (g *GameService) StartGame(ctx context.Context, playerName string, personaID models.PersonaID) (models.GameSession, error) {
	p, err := g.cat.Persona(personaID)
	if err != nil {
		return models.GameSession{}, err
	}
	name := strings.TrimSpace(playerName)
	if name == "" {
		name = p.Name
	}

	sess := game.NewSession(uuid.NewString(), name, p, g.rng, g.now().UTC())
	if err := g.store.CreateSession(ctx, sess); err != nil {
		return models.GameSession{}, err
	}
	g.log.Info("game started", "session", sess.ID, "persona", p.ID, "player", name)
	g.publishScore(sess)
	return sess, nil
}

// Session loads a session.
func (g *GameService) Session(ctx context.Context, id string) (models.GameSession, error) {
	return g.store.Session(ctx, id)
}

// ActiveGames lists unfinished sessions to resume, most recent first.
func (g *GameService) ActiveGames(ctx context.Context, n int) ([]models.GameSession, error) {
	return g.store.ActiveSessions(ctx, n)
}

// Travel moves the player to another location.
func (g *GameService) Travel(ctx context.Context, id string, dest models.LocationID) (models.GameSession, error) {
	return g.update(ctx, id, func(_ context.Context, _ store.Querier, cur models.GameSession) (models.GameSession, error) {
		p, err := g.persona(cur)
		if err != nil {
			return cur, err
		}
		return game.Travel(cur, p, dest)
	})
}

// Interact pays for a scenario at the current location and generates it.
// Generation happens after the session is saved and unlocked, and cannot
// fail: a narrator problem yields the location's canned scenario.
func (g *GameService) Interact(ctx context.Context, id string) (models.GameSession, models.Scenario, error) {
	var (
		p   *catalog.Persona
		loc catalog.Location
	)
	sess, err := g.update(ctx, id, func(_ context.Context, _ store.Querier, cur models.GameSession) (models.GameSession, error) {
		var err error
		if p, err = g.persona(cur); err != nil {
			return cur, err
		}
		next, l, err := game.Interact(cur, p)
		loc = l
		return next, err
	})
	if err != nil {
		return sess, models.Scenario{}, err
	}

	recent, err := g.store.RecentDecisions(ctx, id, engine.MaxRecentDecisions)
	if err != nil {
		g.log.Warn("could not load recent decisions", "session", id, "error", err)
		recent = nil
	}
	req := engine.NewRequest(sess, p, loc, recent)
	sc, err := g.narrator.Generate(ctx, req)
	if err != nil {
		g.log.Warn("narrator failed, using fallback", "session", id, "error", err)
		sc, _ = g.fallback.Generate(ctx, req)
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	sc.LocationID = loc.ID

	g.mu.Lock()
	g.scenarios[id] = sc
	g.mu.Unlock()
	return sess, sc, nil
}

// ResolveChoice applies a choice of the open scenario and records the
// decision in the same transaction. Submitting a scenario twice fails with
// ErrDuplicateDecision and changes nothing.
func (g *GameService) ResolveChoice(ctx context.Context, id, scenarioID string, choice int) (models.GameSession, models.Decision, error) {
	var dec models.Decision
	sess, err := g.update(ctx, id, func(ctx context.Context, q store.Querier, cur models.GameSession) (models.GameSession, error) {
		done, err := g.store.Decisions.Processed(ctx, q, id, scenarioID)
		if err != nil {
			return cur, err
		}
		if done {
			return cur, models.ErrDuplicateDecision
		}

		g.mu.Lock()
		sc, ok := g.scenarios[id]
		g.mu.Unlock()
		if !ok || sc.ID != scenarioID {
			return cur, fmt.Errorf("%w: scenario %s is not open", models.ErrNoChoice, scenarioID)
		}
		if choice < 0 || choice >= len(sc.Choices) {
			return cur, fmt.Errorf("%w: %d", models.ErrNoChoice, choice)
		}
		c := sc.Choices[choice]
		// Unaffordable choices are rejected; the scenario stays open.
		if c.Consequence.Money < 0 && cur.Money+c.Consequence.Money < 0 {
			return cur, models.ErrInsufficientFunds
		}

		next, err := game.ApplyConsequence(cur, c.Consequence)
		if err != nil {
			return cur, err
		}
		dec = models.Decision{
			SessionID:         id,
			LocationID:        sc.LocationID,
			ScenarioID:        sc.ID,
			ChoiceIndex:       choice,
			ChoiceText:        c.Text,
			Delta:             c.Consequence,
			HiddenConsequence: c.HiddenConsequence,
			Week:              cur.CurrentWeek,
			Day:               cur.CurrentDay,
			CreatedAt:         g.now().UTC(),
		}
		if dec.ID, err = g.store.Decisions.Record(ctx, q, dec); err != nil {
			return cur, err
		}
		return next, nil
	})
	if err != nil {
		return sess, models.Decision{}, err
	}

	g.mu.Lock()
	if g.scenarios[id].ID == scenarioID {
		delete(g.scenarios, id)
	}
	g.mu.Unlock()
	g.publishDecision(dec)
	return sess, dec, nil
}

// CompleteObjective completes a weekly objective.
func (g *GameService) CompleteObjective(ctx context.Context, id string, req game.ObjectiveRequest) (models.GameSession, error) {
	return g.update(ctx, id, func(_ context.Context, _ store.Querier, cur models.GameSession) (models.GameSession, error) {
		p, err := g.persona(cur)
		if err != nil {
			return cur, err
		}
		return game.CompleteObjective(cur, p, req)
	})
}

// AdvanceDay ends the current day; see game.AdvanceDay. A scenario left
// open when the day ends can no longer be answered.
func (g *GameService) AdvanceDay(ctx context.Context, id string, applyLeave bool) (game.AdvanceResult, error) {
	var res game.AdvanceResult
	sess, err := g.update(ctx, id, func(_ context.Context, _ store.Querier, cur models.GameSession) (models.GameSession, error) {
		r, err := game.AdvanceDay(cur, applyLeave)
		if err != nil {
			return cur, err
		}
		res = r
		return r.Session, nil
	})
	if err != nil {
		return game.AdvanceResult{Session: sess}, err
	}
	res.Session = sess
	if res.CanAdvance || res.IsGameOver {
		g.forget(id)
	}
	return res, nil
}

// DrawWeeklyEvent returns this week's random event when it is due today.
// The draw is kept until the event is resolved, so asking again returns
// the same event.
func (g *GameService) DrawWeeklyEvent(ctx context.Context, id string) (catalog.Event, bool, error) {
	unlock := g.locks.Lock(id)
	defer unlock()

	sess, err := g.store.Session(ctx, id)
	if err != nil {
		return catalog.Event{}, false, err
	}
	if !game.EventDue(sess) {
		return catalog.Event{}, false, nil
	}
	ev, err := g.drawnEvent(sess)
	if err != nil {
		return catalog.Event{}, false, err
	}
	return ev, true, nil
}

func (g *GameService) drawnEvent(sess models.GameSession) (catalog.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ev, ok := g.events[sess.ID]; ok {
		return ev, nil
	}
	p, err := g.persona(sess)
	if err != nil {
		return catalog.Event{}, err
	}
	ev := game.DrawEvent(p, g.rng)
	g.events[sess.ID] = ev
	return ev, nil
}

// ResolveWeeklyEvent applies the drawn weekly event, drawing one first if
// needed, and logs it as a decision.
func (g *GameService) ResolveWeeklyEvent(ctx context.Context, id string) (models.GameSession, catalog.Event, error) {
	var (
		ev  catalog.Event
		dec models.Decision
	)
	sess, err := g.update(ctx, id, func(ctx context.Context, q store.Querier, cur models.GameSession) (models.GameSession, error) {
		if !game.EventDue(cur) {
			return game.ResolveEvent(cur, catalog.Event{})
		}
		var err error
		if ev, err = g.drawnEvent(cur); err != nil {
			return cur, err
		}
		next, err := game.ResolveEvent(cur, ev)
		if err != nil {
			return cur, err
		}
		dec = models.Decision{
			SessionID:  id,
			LocationID: cur.CurrentLocation,
			ScenarioID: fmt.Sprintf("event-w%d-%s", cur.CurrentWeek, ev.ID),
			ChoiceText: ev.Title,
			Delta:      ev.Consequence,
			Week:       cur.CurrentWeek,
			Day:        cur.CurrentDay,
			CreatedAt:  g.now().UTC(),
		}
		if dec.ID, err = g.store.Decisions.Record(ctx, q, dec); err != nil {
			return cur, err
		}
		return next, nil
	})
	if err != nil {
		return sess, catalog.Event{}, err
	}

	g.mu.Lock()
	delete(g.events, id)
	g.mu.Unlock()
	g.log.Info("weekly event", "session", id, "event", ev.ID, "category", ev.Category)
	g.publishDecision(dec)
	return sess, ev, nil
}

// WeekendMenu lists the weekend options while the weekend is pending.
func (g *GameService) WeekendMenu(ctx context.Context, id string) ([]catalog.WeekendActivity, error) {
	sess, err := g.store.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.WeekendPending || sess.IsGameOver {
		return nil, models.ErrInvalidTransition
	}
	p, err := g.persona(sess)
	if err != nil {
		return nil, err
	}
	return game.WeekendMenu(p), nil
}

// ResolveWeekend applies the chosen weekend activity and starts the next
// week, or ends the game after week 4.
func (g *GameService) ResolveWeekend(ctx context.Context, id, activityID string) (models.GameSession, error) {
	sess, err := g.update(ctx, id, func(_ context.Context, _ store.Querier, cur models.GameSession) (models.GameSession, error) {
		p, err := g.persona(cur)
		if err != nil {
			return cur, err
		}
		act, err := game.FindActivity(p, activityID)
		if err != nil {
			return cur, err
		}
		return game.ResolveWeekend(cur, act, g.rng)
	})
	if err != nil {
		return sess, err
	}
	g.forget(id)
	return sess, nil
}

// RecentDecisions returns the latest n decisions, newest first.
func (g *GameService) RecentDecisions(ctx context.Context, id string, n int) ([]models.Decision, error) {
	return g.store.RecentDecisions(ctx, id, n)
}

// Decisions returns the full decision history in order.
func (g *GameService) Decisions(ctx context.Context, id string) ([]models.Decision, error) {
	return g.store.AllDecisions(ctx, id)
}

// ResetGame deletes a session and its history. Resetting a missing session
// does nothing.
func (g *GameService) ResetGame(ctx context.Context, id string) error {
	unlock := g.locks.Lock(id)
	defer unlock()

	if err := g.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	g.forget(id)
	return nil
}

// Debrief reflects on a finished game's decisions.
func (g *GameService) Debrief(ctx context.Context, id string) (string, error) {
	sess, err := g.store.Session(ctx, id)
	if err != nil {
		return "", err
	}
	if !sess.IsGameOver {
		return "", models.ErrInvalidTransition
	}
	decisions, err := g.store.AllDecisions(ctx, id)
	if err != nil {
		return "", err
	}
	req := engine.ReflectionRequest{
		PersonaName:   sess.PlayerName,
		Ending:        sess.Ending,
		FailureReason: sess.FailureReason,
		Money:         sess.Money,
		Debt:          sess.Debt,
		CreditScore:   sess.CreditScore,
		Health:        sess.Health,
		Stress:        sess.Stress,
		Decisions:     decisions,
	}
	text, err := g.narrator.Reflect(ctx, req)
	if err != nil {
		g.log.Warn("reflection failed, using fallback", "session", id, "error", err)
		return g.fallback.Reflect(ctx, req)
	}
	return text, nil
}

// Leaderboard returns the top n live scores, or nothing without a board.
func (g *GameService) Leaderboard(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	if g.board == nil {
		return nil, nil
	}
	return g.board.Top(ctx, n)
}

func (g *GameService) forget(id string) {
	g.mu.Lock()
	delete(g.scenarios, id)
	delete(g.events, id)
	g.mu.Unlock()
}
