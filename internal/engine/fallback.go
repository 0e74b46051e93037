package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/models"
)

// Fallback serves the catalog's canned scenarios. It never fails.
type Fallback struct {
	cat *catalog.Catalog
}

func NewFallback(c *catalog.Catalog) *Fallback {
	return &Fallback{cat: c}
}

// Generate returns the canned scenario for the request's location. The
// content is fixed per location; only the id is fresh.
func (f *Fallback) Generate(_ context.Context, req ScenarioRequest) (models.Scenario, error) {
	fb := f.cat.Fallback(req.Location)
	choices := make([]models.Choice, len(fb.Choices))
	copy(choices, fb.Choices)
	return models.Scenario{
		ID:          uuid.NewString(),
		LocationID:  req.Location.ID,
		Narration:   strings.ReplaceAll(fb.Narration, "{location}", req.Location.Name),
		NPCDialogue: fb.NPCDialogue,
		Emotion:     fb.Emotion,
		Choices:     choices,
		Source:      models.SourceFallback,
	}, nil
}

// Reflect writes a plain debrief from the decision totals.
func (f *Fallback) Reflect(_ context.Context, req ReflectionRequest) (string, error) {
	var total models.StatDelta
	for _, d := range req.Decisions {
		total.Money += d.Delta.Money
		total.Credit += d.Delta.Credit
		total.Health += d.Delta.Health
		total.Stress += d.Delta.Stress
	}
	return fmt.Sprintf(
		"%s made %d decisions this month. Together they moved money by RM%d, credit by %d, health by %d and stress by %d. "+
			"The month closed with RM%d in hand and RM%d still owed.",
		req.PersonaName, len(req.Decisions), total.Money, total.Credit, total.Health, total.Stress, req.Money, req.Debt), nil
}

// Reflector writes the end-of-game debrief.
type Reflector interface {
	Reflect(ctx context.Context, req ReflectionRequest) (string, error)
}

// Narrator is a generator that also writes debriefs.
type Narrator interface {
	Generator
	Reflector
}

// Resilient runs a primary narrator under a deadline and answers from the
// fallback when it fails. Callers never see a narrator error.
type Resilient struct {
	primary  Narrator
	fallback *Fallback
	timeout  time.Duration
	log      *slog.Logger
}

// WithFallback wraps primary. A nil primary serves fallbacks only.
func WithFallback(primary Narrator, fallback *Fallback, timeout time.Duration, log *slog.Logger) *Resilient {
	if log == nil {
		log = slog.Default()
	}
	return &Resilient{primary: primary, fallback: fallback, timeout: timeout, log: log}
}

func (r *Resilient) Generate(ctx context.Context, req ScenarioRequest) (models.Scenario, error) {
	if r.primary != nil {
		cctx, cancel := r.deadline(ctx)
		sc, err := r.primary.Generate(cctx, req)
		cancel()
		if err == nil {
			return sc, nil
		}
		r.log.Warn("scenario generation failed, using fallback",
			"location", req.Location.ID, "persona", req.PersonaID, "error", err)
	}
	return r.fallback.Generate(ctx, req)
}

func (r *Resilient) Reflect(ctx context.Context, req ReflectionRequest) (string, error) {
	if r.primary != nil {
		cctx, cancel := r.deadline(ctx)
		text, err := r.primary.Reflect(cctx, req)
		cancel()
		if err == nil && text != "" {
			return text, nil
		}
		r.log.Warn("reflection failed, using fallback", "error", err)
	}
	return r.fallback.Reflect(ctx, req)
}

func (r *Resilient) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
