// Package catalog holds the static persona and map configuration: starting
// resources, locations, event pools, weekend activities and the fallback
// scenarios used when the narrator is unavailable.
//
// The catalog is validated once at load time. After Load succeeds, every
// persona has a start location, a location for each weekly objective, and
// well-formed events; an unknown persona or location is a load error rather
// than something callers discover mid-game.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/tatianab/b40-life-sim/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// LocationKind decides what an action at a location costs.
type LocationKind string

const (
	KindStandard LocationKind = "standard" // costs 1 energy
	KindDining   LocationKind = "dining"   // free, bypasses the energy check
	KindWeekend  LocationKind = "weekend"  // closed on weekdays
)

// Location is a node on a persona's map.
type Location struct {
	ID          models.LocationID    `yaml:"id" json:"id"`
	Name        string               `yaml:"name" json:"name"`
	Icon        string               `yaml:"icon" json:"icon"`
	Coordinates []int                `yaml:"coordinates" json:"coordinates"` // [X, Y] on the map, 0-100
	Kind        LocationKind         `yaml:"kind" json:"kind"`
	Objective   models.ObjectiveType `yaml:"objective,omitempty" json:"objective,omitempty"`
}

// EventCategory groups random weekly events.
type EventCategory string

const (
	EventNegative EventCategory = "negative"
	EventPositive EventCategory = "positive"
	EventNeutral  EventCategory = "neutral"
)

// Event is a random weekly event.
type Event struct {
	ID          string           `yaml:"id" json:"id"`
	Title       string           `yaml:"title" json:"title"`
	Description string           `yaml:"description" json:"description"`
	Category    EventCategory    `yaml:"-" json:"category"` // set from the pool it was listed in
	Consequence models.StatDelta `yaml:"consequence" json:"consequence"`
}

// EventPools lists a persona's events by category.
type EventPools struct {
	Negative []Event `yaml:"negative"`
	Positive []Event `yaml:"positive"`
	Neutral  []Event `yaml:"neutral"`
}

// WeekendActivity is an option on the end-of-week menu.
type WeekendActivity struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	MoneyCost    int    `yaml:"money_cost" json:"money_cost"` // negative for paid work
	StressChange int    `yaml:"stress_change" json:"stress_change"`
	HealthChange int    `yaml:"health_change" json:"health_change"`
}

// Delta converts the activity into a stat change.
func (a WeekendActivity) Delta() models.StatDelta {
	return models.StatDelta{Money: -a.MoneyCost, Stress: a.StressChange, Health: a.HealthChange}
}

// Purchase is a priced objective whose terms come from the persona.
type Purchase struct {
	Cost   int              `yaml:"cost" json:"cost"`
	Effect models.StatDelta `yaml:"effect" json:"effect"`
}

// Persona is a preset player archetype.
type Persona struct {
	ID                models.PersonaID  `yaml:"id" json:"id"`
	Name              string            `yaml:"name" json:"name"`
	Description       string            `yaml:"description" json:"description"`
	StartingMoney     int               `yaml:"starting_money" json:"starting_money"`
	StartingDebt      int               `yaml:"starting_debt" json:"starting_debt"`
	StartingCredit    int               `yaml:"starting_credit" json:"starting_credit"`
	StartLocation     models.LocationID `yaml:"start_location" json:"start_location"`
	PetrolFill        Purchase          `yaml:"petrol_fill" json:"petrol_fill"`
	Locations         []Location        `yaml:"locations" json:"locations"`
	Events            EventPools        `yaml:"events" json:"-"`
	WeekendActivities []WeekendActivity `yaml:"weekend_activities" json:"weekend_activities"`

	locations map[models.LocationID]Location
	pool      []Event
}

// Location looks up a location on this persona's map.
func (p *Persona) Location(id models.LocationID) (Location, error) {
	loc, ok := p.locations[id]
	if !ok {
		return Location{}, fmt.Errorf("%w: %q for persona %s", models.ErrUnknownLocation, id, p.ID)
	}
	return loc, nil
}

// LocationFor returns the first location tagged with the objective.
func (p *Persona) LocationFor(obj models.ObjectiveType) (Location, bool) {
	for _, loc := range p.Locations {
		if loc.Objective == obj {
			return loc, true
		}
	}
	return Location{}, false
}

// EventPool is every event of the persona, all categories combined.
func (p *Persona) EventPool() []Event {
	return p.pool
}

// Event finds an event by id.
func (p *Persona) Event(id string) (Event, bool) {
	for _, ev := range p.pool {
		if ev.ID == id {
			return ev, true
		}
	}
	return Event{}, false
}

// FallbackScenario is a canned scenario used when generation fails.
// "{location}" in the narration is replaced with the location name.
type FallbackScenario struct {
	Narration   string          `yaml:"narration"`
	NPCDialogue string          `yaml:"npc_dialogue"`
	Emotion     string          `yaml:"emotion"`
	Choices     []models.Choice `yaml:"choices"`
}

// Catalog is the root of catalog.yaml.
type Catalog struct {
	Personas  []*Persona                  `yaml:"personas"`
	Fallbacks map[string]FallbackScenario `yaml:"fallback_scenarios"`

	byID map[models.PersonaID]*Persona
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Load(defaultCatalog)
}

// LoadFile reads and validates a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load parses and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

// Persona looks up a persona by id.
func (c *Catalog) Persona(id models.PersonaID) (*Persona, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownPersona, id)
	}
	return p, nil
}

// Fallback picks the canned scenario for a location: by objective first,
// then by kind, then the default entry.
func (c *Catalog) Fallback(loc Location) FallbackScenario {
	if loc.Objective != "" {
		if fb, ok := c.Fallbacks[string(loc.Objective)]; ok {
			return fb
		}
	}
	if fb, ok := c.Fallbacks[string(loc.Kind)]; ok {
		return fb
	}
	return c.Fallbacks["default"]
}

var requiredObjectives = []models.ObjectiveType{
	models.ObjectiveWork,
	models.ObjectiveGroceries,
	models.ObjectivePetrol,
	models.ObjectiveDebt,
}

func (c *Catalog) validate() error {
	if len(c.Personas) == 0 {
		return fmt.Errorf("no personas defined")
	}
	if err := validateFallback("default", c.Fallbacks["default"]); err != nil {
		return err
	}
	for key, fb := range c.Fallbacks {
		if err := validateFallback(key, fb); err != nil {
			return err
		}
	}

	c.byID = make(map[models.PersonaID]*Persona, len(c.Personas))
	for _, p := range c.Personas {
		if p.ID == "" {
			return fmt.Errorf("persona %q has no id", p.Name)
		}
		if _, dup := c.byID[p.ID]; dup {
			return fmt.Errorf("duplicate persona %s", p.ID)
		}
		if err := p.validate(); err != nil {
			return fmt.Errorf("persona %s: %w", p.ID, err)
		}
		c.byID[p.ID] = p
	}
	return nil
}

func validateFallback(key string, fb FallbackScenario) error {
	if strings.TrimSpace(fb.Narration) == "" {
		return fmt.Errorf("fallback scenario %q has no narration", key)
	}
	if n := len(fb.Choices); n < 2 || n > 3 {
		return fmt.Errorf("fallback scenario %q has %d choices, want 2-3", key, n)
	}
	return nil
}

func (p *Persona) validate() error {
	if p.StartingMoney < 0 || p.StartingDebt < 0 {
		return fmt.Errorf("negative starting resources")
	}
	if p.StartingCredit < models.MinCreditScore || p.StartingCredit > models.MaxCreditScore {
		return fmt.Errorf("starting credit %d out of range", p.StartingCredit)
	}
	if p.PetrolFill.Cost <= 0 {
		return fmt.Errorf("petrol fill must have a positive cost")
	}

	p.locations = make(map[models.LocationID]Location, len(p.Locations))
	for _, loc := range p.Locations {
		if loc.ID == "" {
			return fmt.Errorf("location %q has no id", loc.Name)
		}
		if _, dup := p.locations[loc.ID]; dup {
			return fmt.Errorf("duplicate location %s", loc.ID)
		}
		switch loc.Kind {
		case KindStandard, KindDining, KindWeekend:
		default:
			return fmt.Errorf("location %s has unknown kind %q", loc.ID, loc.Kind)
		}
		switch loc.Objective {
		case "", models.ObjectiveWork, models.ObjectiveGroceries, models.ObjectivePetrol, models.ObjectiveDebt:
		default:
			return fmt.Errorf("location %s has unknown objective %q", loc.ID, loc.Objective)
		}
		if loc.Objective != "" && loc.Kind == KindWeekend {
			return fmt.Errorf("location %s: weekend-only locations cannot host objectives", loc.ID)
		}
		if len(loc.Coordinates) != 2 {
			return fmt.Errorf("location %s needs [x, y] coordinates", loc.ID)
		}
		p.locations[loc.ID] = loc
	}

	start, ok := p.locations[p.StartLocation]
	if !ok {
		return fmt.Errorf("start location %q is not on the map", p.StartLocation)
	}
	if start.Kind == KindWeekend {
		return fmt.Errorf("start location %s is weekend-only", start.ID)
	}
	for _, obj := range requiredObjectives {
		if _, ok := p.LocationFor(obj); !ok {
			return fmt.Errorf("no location for objective %s", obj)
		}
	}

	p.pool = p.pool[:0]
	seen := make(map[string]bool)
	add := func(cat EventCategory, events []Event) error {
		for _, ev := range events {
			if ev.ID == "" || seen[ev.ID] {
				return fmt.Errorf("event %q has a missing or duplicate id", ev.Title)
			}
			seen[ev.ID] = true
			ev.Category = cat
			p.pool = append(p.pool, ev)
		}
		return nil
	}
	if err := add(EventNegative, p.Events.Negative); err != nil {
		return err
	}
	if err := add(EventPositive, p.Events.Positive); err != nil {
		return err
	}
	if err := add(EventNeutral, p.Events.Neutral); err != nil {
		return err
	}
	if len(p.pool) == 0 {
		return fmt.Errorf("empty event pool")
	}

	ids := make(map[string]bool)
	for _, a := range p.WeekendActivities {
		if a.ID == "" || ids[a.ID] || a.ID == SkipActivityID {
			return fmt.Errorf("weekend activity %q has a missing, reserved or duplicate id", a.Name)
		}
		ids[a.ID] = true
	}
	return nil
}

// SkipActivityID is reserved for the free "stay home" weekend option that
// every persona gets.
const SkipActivityID = "skip"
