// Package app assembles a GameService from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tatianab/b40-life-sim/internal/analytics"
	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/config"
	"github.com/tatianab/b40-life-sim/internal/engine"
	"github.com/tatianab/b40-life-sim/internal/game"
	"github.com/tatianab/b40-life-sim/internal/leaderboard"
	"github.com/tatianab/b40-life-sim/internal/service"
	"github.com/tatianab/b40-life-sim/internal/store"
)

// App owns the service and everything it was built from.
type App struct {
	Service *service.GameService
	Catalog *catalog.Catalog

	store  *store.Store
	engine *engine.Engine
}

// Open loads the catalog, opens the database and connects the narrator.
// Without a Gemini key every scenario comes from the catalog.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	warehouse, err := analytics.NewWarehouse(st.DB())
	if err != nil {
		st.Close()
		return nil, err
	}
	board, err := leaderboard.NewSQLiteBoard(st.DB())
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{Catalog: cat, store: st}

	var primary engine.Narrator
	if cfg.HasGemini() {
		eng, err := engine.NewEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("creating engine: %w", err)
		}
		a.engine = eng
		primary = eng
		log.Info("narrator ready", "model", cfg.GeminiModel, "timeout", cfg.ScenarioTimeout)
	} else {
		log.Info("no GEMINI_API_KEY set, using catalog scenarios")
	}

	svc, err := service.New(service.Deps{
		Catalog:  cat,
		Store:    st,
		Narrator: engine.WithFallback(primary, engine.NewFallback(cat), cfg.ScenarioTimeout, log),
		Sink:     warehouse,
		Board:    board,
		Rand:     game.NewRand(cfg.Seed),
		Logger:   log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

// Close flushes analytics and releases the database and the AI client.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.engine != nil {
		a.engine.Close()
	}
	a.store.Close()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}
