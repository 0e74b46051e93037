package service

import (
	"context"

	"github.com/tatianab/b40-life-sim/internal/analytics"
	"github.com/tatianab/b40-life-sim/internal/leaderboard"
	"github.com/tatianab/b40-life-sim/internal/models"
)

// published mirrors a committed transition into the sinks. Nothing here can
// fail the transition; jobs run later on the dispatcher.
func (g *GameService) published(prev, next models.GameSession) {
	g.publishScore(next)

	if next.WeekendPending && !prev.WeekendPending {
		g.publishSnapshot(next)
	}
	if next.IsGameOver && !prev.IsGameOver {
		g.log.Info("game over", "session", next.ID, "ending", next.Ending, "week", next.CurrentWeek, "reason", next.FailureReason)
		g.publishSnapshot(next)
		g.publishCompleted(next)
	}
}

func (g *GameService) publishScore(s models.GameSession) {
	if g.board == nil {
		return
	}
	e := leaderboard.EntryFor(s, g.now())
	g.async.Submit("leaderboard", s.ID, func(ctx context.Context) error {
		return g.board.UpsertLiveScore(ctx, e)
	})
}

func (g *GameService) publishSnapshot(s models.GameSession) {
	if g.sink == nil {
		return
	}
	snap := s.Snapshot(g.now().UTC())
	g.async.Submit("weekly_snapshot", s.ID, func(ctx context.Context) error {
		return g.sink.UpsertWeeklySnapshot(ctx, snap)
	})
}

func (g *GameService) publishCompleted(s models.GameSession) {
	if g.sink == nil {
		return
	}
	finished := g.now().UTC()
	g.async.Submit("completed_game", s.ID, func(ctx context.Context) error {
		decisions, err := g.store.AllDecisions(ctx, s.ID)
		if err != nil {
			return err
		}
		return g.sink.RecordCompletedGame(ctx, analytics.NewCompletedGame(s, len(decisions), finished))
	})
}

func (g *GameService) publishDecision(d models.Decision) {
	if g.sink == nil {
		return
	}
	g.async.Submit("decision", d.SessionID, func(ctx context.Context) error {
		return g.sink.RecordDecision(ctx, d)
	})
}
