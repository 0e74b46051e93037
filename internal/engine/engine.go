// Package engine produces scenarios: Gemini narrates them when a key is
// configured, and the catalog's canned scenarios stand in whenever it is
// not, times out or answers with something unusable.
package engine

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/models"
)

//go:embed prompts/generate_scenario.txt
var generateScenarioPrompt string

//go:embed prompts/reflect_game.txt
var reflectGamePrompt string

var (
	scenarioTmpl = template.Must(template.New("generate_scenario").Parse(generateScenarioPrompt))
	reflectTmpl  = template.Must(template.New("reflect_game").Parse(reflectGamePrompt))
)

// MaxRecentDecisions bounds the history sent with a scenario request.
const MaxRecentDecisions = 5

// ScenarioRequest is everything the narrator knows when writing a scenario.
type ScenarioRequest struct {
	PersonaID          models.PersonaID
	PersonaName        string
	PersonaDescription string
	Location           catalog.Location
	Money              int
	Debt               int
	CreditScore        int
	Health             int
	Stress             int
	Week               int
	Day                int
	RecentDecisions    []models.Decision
}

// NewRequest builds a request for the player's current state at loc.
func NewRequest(s models.GameSession, p *catalog.Persona, loc catalog.Location, recent []models.Decision) ScenarioRequest {
	if len(recent) > MaxRecentDecisions {
		recent = recent[:MaxRecentDecisions]
	}
	return ScenarioRequest{
		PersonaID:          p.ID,
		PersonaName:        p.Name,
		PersonaDescription: strings.TrimSpace(p.Description),
		Location:           loc,
		Money:              s.Money,
		Debt:               s.Debt,
		CreditScore:        s.CreditScore,
		Health:             s.Health,
		Stress:             s.Stress,
		Week:               s.CurrentWeek,
		Day:                s.CurrentDay,
		RecentDecisions:    recent,
	}
}

// Generator writes a scenario for a request.
type Generator interface {
	Generate(ctx context.Context, req ScenarioRequest) (models.Scenario, error)
}

// Engine is the Gemini-backed narrator.
type Engine struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewEngine connects to Gemini with the given key and model name.
func NewEngine(ctx context.Context, apiKey, modelName string) (*Engine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	return &Engine{
		client: client,
		model:  model,
	}, nil
}

func (e *Engine) Close() {
	e.client.Close()
}

// Generate asks Gemini for a scenario at the request's location.
func (e *Engine) Generate(ctx context.Context, req ScenarioRequest) (models.Scenario, error) {
	data := struct {
		ScenarioRequest
		LocationName string
		Objective    models.ObjectiveType
	}{
		ScenarioRequest: req,
		LocationName:    req.Location.Name,
		Objective:       req.Location.Objective,
	}

	var buf bytes.Buffer
	if err := scenarioTmpl.Execute(&buf, data); err != nil {
		return models.Scenario{}, err
	}

	text, err := e.complete(ctx, buf.String())
	if err != nil {
		return models.Scenario{}, err
	}

	sc, err := ParseScenario(text)
	if err != nil {
		return models.Scenario{}, err
	}
	sc.ID = uuid.NewString()
	sc.LocationID = req.Location.ID
	sc.Source = models.SourceAI
	return sc, nil
}

// ReflectionRequest describes a finished game for the closing debrief.
type ReflectionRequest struct {
	PersonaName   string
	Ending        models.Ending
	FailureReason string
	Money         int
	Debt          int
	CreditScore   int
	Health        int
	Stress        int
	Decisions     []models.Decision
}

// Reflect asks Gemini for a short debrief of the player's decisions.
func (e *Engine) Reflect(ctx context.Context, req ReflectionRequest) (string, error) {
	var buf bytes.Buffer
	if err := reflectTmpl.Execute(&buf, req); err != nil {
		return "", err
	}
	text, err := e.complete(ctx, buf.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := e.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}

	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return string(text), nil
}

// ParseScenario reads a scenario from model output, tolerating a Markdown
// code fence around the YAML.
func ParseScenario(raw string) (models.Scenario, error) {
	cleanYAML := strings.TrimSpace(raw)
	cleanYAML = strings.TrimPrefix(cleanYAML, "```yaml")
	cleanYAML = strings.TrimPrefix(cleanYAML, "```")
	cleanYAML = strings.TrimSuffix(cleanYAML, "```")

	var sc models.Scenario
	if err := yaml.Unmarshal([]byte(cleanYAML), &sc); err != nil {
		return models.Scenario{}, fmt.Errorf("failed to parse scenario YAML: %v\nOutput was: %s", err, cleanYAML)
	}
	if strings.TrimSpace(sc.Narration) == "" {
		return models.Scenario{}, fmt.Errorf("scenario has no narration")
	}
	if n := len(sc.Choices); n < 2 || n > 3 {
		return models.Scenario{}, fmt.Errorf("scenario has %d choices, want 2-3", n)
	}
	for i, c := range sc.Choices {
		if strings.TrimSpace(c.Text) == "" {
			return models.Scenario{}, fmt.Errorf("choice %d has no text", i+1)
		}
	}
	return sc, nil
}
