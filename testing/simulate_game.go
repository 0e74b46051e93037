package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tatianab/b40-life-sim/internal/app"
	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/config"
	"github.com/tatianab/b40-life-sim/internal/game"
	"github.com/tatianab/b40-life-sim/internal/models"
	"github.com/tatianab/b40-life-sim/internal/service"
)

const maxTurns = 200

// player plays one session through the service until the game ends.
type player struct {
	svc     *service.GameService
	persona *catalog.Persona
	id      string
	model   *genai.GenerativeModel // nil picks choices by heuristic
}

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open game: %v", err)
	}
	defer a.Close()

	personaID := models.PersonaID("A")
	if len(os.Args) > 1 {
		personaID = models.PersonaID(strings.ToUpper(os.Args[1]))
	}
	persona, err := a.Catalog.Persona(personaID)
	if err != nil {
		log.Fatalf("Failed to find persona: %v", err)
	}

	p := &player{svc: a.Service, persona: persona}

	// Initialize the Player LLM
	if cfg.HasGemini() {
		playerClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			log.Fatalf("Failed to create player client: %v", err)
		}
		defer playerClient.Close()
		p.model = playerClient.GenerativeModel(cfg.GeminiModel)
	}

	sess, err := a.Service.StartGame(ctx, "Simulated "+persona.Name, personaID)
	if err != nil {
		log.Fatalf("Failed to start game: %v", err)
	}
	p.id = sess.ID
	fmt.Printf("--- %s starts with RM%d and RM%d of debt ---\n\n", sess.PlayerName, sess.Money, sess.Debt)

	for turn := 1; turn <= maxTurns && !sess.IsGameOver; turn++ {
		if sess.WeekendPending {
			sess, err = p.weekend(ctx, sess)
		} else {
			sess, err = p.day(ctx, sess)
		}
		if err != nil {
			log.Fatalf("Simulation failed: %v", err)
		}
	}

	fmt.Printf("\n--- Game over: %s ---\n", game.Describe(sess.Ending))
	if sess.FailureReason != "" {
		fmt.Printf("Reason: %s\n", sess.FailureReason)
	}
	fmt.Printf("Money=RM%d Debt=RM%d Credit=%d Health=%d Stress=%d\n\n", sess.Money, sess.Debt, sess.CreditScore, sess.Health, sess.Stress)

	debrief, err := a.Service.Debrief(ctx, p.id)
	if err != nil {
		log.Fatalf("Failed to debrief: %v", err)
	}
	fmt.Println(debrief)
}

// day plays one working day: work, errands, one conversation, then sleep.
func (p *player) day(ctx context.Context, sess models.GameSession) (models.GameSession, error) {
	fmt.Printf("--- Week %d, day %d (energy %d, RM%d) ---\n", sess.CurrentWeek, sess.CurrentDay, sess.EnergyRemaining, sess.Money)

	var err error
	if !sess.WorkedToday {
		if sess, err = p.goTo(ctx, sess, models.ObjectiveWork); err != nil {
			return sess, err
		}
		if sess, err = p.try(ctx, sess, game.ObjectiveRequest{Action: models.ActionWork}); err != nil {
			return sess, err
		}
	}
	if !sess.Objectives.BoughtGroceries {
		action := models.ActionGroceriesHealthy
		if sess.Money < game.HealthyGroceryPrice {
			action = models.ActionGroceriesUnhealthy
		}
		if sess, err = p.goTo(ctx, sess, models.ObjectiveGroceries); err != nil {
			return sess, err
		}
		if sess, err = p.try(ctx, sess, game.ObjectiveRequest{Action: action}); err != nil {
			return sess, err
		}
	}
	if !sess.Objectives.FilledPetrol {
		if sess, err = p.goTo(ctx, sess, models.ObjectivePetrol); err != nil {
			return sess, err
		}
		if sess, err = p.try(ctx, sess, game.ObjectiveRequest{Action: models.ActionPetrol}); err != nil {
			return sess, err
		}
	}
	if sess.CurrentWeek == models.TotalWeeks && !sess.Objectives.PaidDebt {
		if sess, err = p.try(ctx, sess, game.ObjectiveRequest{Action: models.ActionDebt}); err != nil {
			return sess, err
		}
	}
	if sess, err = p.event(ctx, sess); err != nil || sess.IsGameOver {
		return sess, err
	}

	if sess.EnergyRemaining > 3 {
		if sess, err = p.talk(ctx, sess); err != nil || sess.IsGameOver {
			return sess, err
		}
	}

	res, err := p.svc.AdvanceDay(ctx, p.id, false)
	if err != nil {
		return res.Session, err
	}
	if res.Blocker == game.BlockedByWork {
		fmt.Println("Could not make it to work; taking leave.")
		res, err = p.svc.AdvanceDay(ctx, p.id, true)
		if err != nil {
			return res.Session, err
		}
	}
	if res.Blocker == game.BlockedByObjectives {
		fmt.Println("Objectives are out of reach; spending the last of the week's energy.")
		return p.exhaust(ctx, res.Session)
	}
	if res.IsGameOver {
		fmt.Println("The week ended with objectives incomplete.")
	}
	return res.Session, nil
}

func (p *player) goTo(ctx context.Context, sess models.GameSession, obj models.ObjectiveType) (models.GameSession, error) {
	loc, ok := p.persona.LocationFor(obj)
	if !ok || sess.CurrentLocation == loc.ID {
		return sess, nil
	}
	next, err := p.svc.Travel(ctx, p.id, loc.ID)
	if err != nil {
		if recoverable(err) {
			fmt.Printf("Could not travel to %s: %v\n", loc.Name, err)
			return sess, nil
		}
		return sess, err
	}
	fmt.Printf("Travelled to %s %s.\n", loc.Icon, loc.Name)
	return next, nil
}

func (p *player) try(ctx context.Context, sess models.GameSession, req game.ObjectiveRequest) (models.GameSession, error) {
	next, err := p.svc.CompleteObjective(ctx, p.id, req)
	if err != nil {
		if recoverable(err) {
			fmt.Printf("Could not %s: %v\n", req.Action, err)
			return sess, nil
		}
		return sess, err
	}
	fmt.Printf("Done: %s (RM%d left)\n", req.Action, next.Money)
	return next, nil
}

func (p *player) event(ctx context.Context, sess models.GameSession) (models.GameSession, error) {
	if !game.EventDue(sess) {
		return sess, nil
	}
	next, ev, err := p.svc.ResolveWeeklyEvent(ctx, p.id)
	if err != nil {
		return sess, err
	}
	fmt.Printf("EVENT: %s. %s\n", ev.Title, ev.Description)
	return next, nil
}

func (p *player) talk(ctx context.Context, sess models.GameSession) (models.GameSession, error) {
	next, sc, err := p.svc.Interact(ctx, p.id)
	if err != nil {
		if recoverable(err) {
			return sess, nil
		}
		return sess, err
	}
	fmt.Printf("Scenario: %s\n", sc.Narration)
	idx := p.choose(ctx, next, sc)
	after, dec, err := p.svc.ResolveChoice(ctx, p.id, sc.ID, idx)
	if err != nil {
		return next, err
	}
	fmt.Printf("Player chose: %s\n", dec.ChoiceText)
	if dec.HiddenConsequence != "" {
		fmt.Printf("Later: %s\n", dec.HiddenConsequence)
	}
	return after, nil
}

// exhaust spends the week's remaining energy walking between standard
// locations so the day can end.
func (p *player) exhaust(ctx context.Context, sess models.GameSession) (models.GameSession, error) {
	for sess.EnergyRemaining > 0 && !sess.IsGameOver {
		moved := false
		for _, loc := range p.persona.Locations {
			if loc.Kind != catalog.KindStandard || loc.ID == sess.CurrentLocation {
				continue
			}
			next, err := p.svc.Travel(ctx, p.id, loc.ID)
			if err != nil {
				return sess, err
			}
			sess, moved = next, true
			break
		}
		if !moved {
			return sess, errors.New("no standard location to travel to")
		}
	}
	res, err := p.svc.AdvanceDay(ctx, p.id, false)
	return res.Session, err
}

func (p *player) weekend(ctx context.Context, sess models.GameSession) (models.GameSession, error) {
	menu, err := p.svc.WeekendMenu(ctx, p.id)
	if err != nil {
		return sess, err
	}
	best := menu[0]
	for _, a := range menu[1:] {
		if a.MoneyCost > sess.Money-game.HealthyGroceryPrice {
			continue
		}
		if weekendValue(a) > weekendValue(best) {
			best = a
		}
	}
	next, err := p.svc.ResolveWeekend(ctx, p.id, best.ID)
	if err != nil {
		return sess, err
	}
	fmt.Printf("Weekend: %s\n\n", best.Name)
	return next, nil
}

func weekendValue(a catalog.WeekendActivity) int {
	d := a.Delta()
	return d.Money + 3*d.Health - 3*d.Stress
}

// choose asks the player model for a choice, falling back to the choice
// that looks best on paper.
func (p *player) choose(ctx context.Context, sess models.GameSession, sc models.Scenario) int {
	if p.model != nil {
		if idx, ok := p.ask(ctx, sess, sc); ok {
			return idx
		}
	}
	best, bestScore := 0, 0
	for i, c := range sc.Choices {
		score := c.Consequence.Money + 2*c.Consequence.Credit + 3*c.Consequence.Health - 3*c.Consequence.Stress
		if i == 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (p *player) ask(ctx context.Context, sess models.GameSession, sc models.Scenario) (int, bool) {
	var choices strings.Builder
	for i, c := range sc.Choices {
		fmt.Fprintf(&choices, "%d. %s\n", i+1, c.Text)
	}
	prompt := fmt.Sprintf(`You are %s, living on a tight budget in Malaysia.
Money: RM%d, Debt: RM%d, Credit score: %d, Health: %d, Stress: %d

%s

Choices:
%s
Which choice do you make? Return ONLY the number.`,
		sess.PlayerName, sess.Money, sess.Debt, sess.CreditScore, sess.Health, sess.Stress,
		sc.Narration, choices.String(),
	)

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])))
	if err != nil || n < 1 || n > len(sc.Choices) {
		return 0, false
	}
	return n - 1, true
}

func recoverable(err error) bool {
	return err != nil && !models.IsStorageFault(err)
}
