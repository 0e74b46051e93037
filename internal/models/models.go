package models

import "time"

// PersonaID identifies a persona in the catalog.
type PersonaID string

// LocationID identifies a location on a persona's map.
type LocationID string

// ObjectiveType is one of the mandatory weekly tasks.
type ObjectiveType string

const (
	ObjectiveWork      ObjectiveType = "work"
	ObjectiveGroceries ObjectiveType = "groceries"
	ObjectivePetrol    ObjectiveType = "petrol"
	ObjectiveDebt      ObjectiveType = "debt"
)

// ObjectiveAction is what the player does to satisfy an objective.
// Groceries come in two variants with different prices and effects.
type ObjectiveAction string

const (
	ActionWork               ObjectiveAction = "work"
	ActionGroceriesHealthy   ObjectiveAction = "groceries_healthy"
	ActionGroceriesUnhealthy ObjectiveAction = "groceries_unhealthy"
	ActionPetrol             ObjectiveAction = "petrol"
	ActionDebt               ObjectiveAction = "debt"
)

// Objective returns the objective an action counts towards.
func (a ObjectiveAction) Objective() ObjectiveType {
	switch a {
	case ActionGroceriesHealthy, ActionGroceriesUnhealthy:
		return ObjectiveGroceries
	default:
		return ObjectiveType(a)
	}
}

// Ending is the terminal classification of a finished game.
type Ending string

const (
	EndingThrived          Ending = "thrived"
	EndingSurvived         Ending = "survived"
	EndingHealthCrisis     Ending = "health_crisis"
	EndingBurnout          Ending = "burnout"
	EndingBankruptcy       Ending = "bankruptcy"
	EndingCreditDestroyed  Ending = "credit_destroyed"
	EndingObjectivesFailed Ending = "objectives_failed"
)

// Success reports whether the ending counts as finishing all four weeks.
func (e Ending) Success() bool {
	return e == EndingThrived || e == EndingSurvived
}

// Phase is the coarse state of a session.
type Phase string

const (
	PhasePlaying        Phase = "playing"
	PhaseWeekendPending Phase = "weekend_pending"
	PhaseGameOver       Phase = "game_over"
)

// StatDelta is a change to the four player stats.
type StatDelta struct {
	Money  int `yaml:"money" json:"money"`
	Credit int `yaml:"credit" json:"credit"`
	Health int `yaml:"health" json:"health"`
	Stress int `yaml:"stress" json:"stress"`
}

// IsZero reports whether the delta changes nothing.
func (d StatDelta) IsZero() bool {
	return d == StatDelta{}
}

// WeeklyObjectives tracks progress on the mandatory tasks of the current week.
type WeeklyObjectives struct {
	WorkDaysCompleted int  `json:"work_days_completed"` // 0-5
	BoughtGroceries   bool `json:"bought_groceries"`
	FilledPetrol      bool `json:"filled_petrol"`
	PaidDebt          bool `json:"paid_debt"` // only meaningful in week 4
}

// GameSession is one playthrough. It holds no slices or maps, so a copy is a
// full snapshot; game rules take a session value and return a new one.
type GameSession struct {
	ID         string    `json:"id"`
	PlayerName string    `json:"player_name"`
	PersonaID  PersonaID `json:"persona_id"`

	// Stats
	Money       int `json:"money"`
	Debt        int `json:"debt"`
	CreditScore int `json:"credit_score"` // 300-850
	Health      int `json:"health"`       // 0-100
	Stress      int `json:"stress"`       // 0-100

	// Calendar and position
	CurrentDay      int        `json:"current_day"`  // 1-5
	CurrentWeek     int        `json:"current_week"` // 1-4
	CurrentLocation LocationID `json:"current_location"`
	EnergyRemaining int        `json:"energy_remaining"` // 0-11

	Objectives  WeeklyObjectives `json:"objectives"`
	WorkedToday bool             `json:"worked_today"`

	WeeklyEventDay       int  `json:"weekly_event_day"` // 0 until chosen
	WeeklyEventTriggered bool `json:"weekly_event_triggered"`

	WeekendPending bool   `json:"weekend_pending"`
	IsGameOver     bool   `json:"is_game_over"`
	Ending         Ending `json:"ending,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Phase derives the state machine state from the session flags.
func (s GameSession) Phase() Phase {
	switch {
	case s.IsGameOver:
		return PhaseGameOver
	case s.WeekendPending:
		return PhaseWeekendPending
	default:
		return PhasePlaying
	}
}

// WeeksCompleted counts whole weeks the player got through.
func (s GameSession) WeeksCompleted() int {
	if s.IsGameOver && s.Ending.Success() {
		return TotalWeeks
	}
	return s.CurrentWeek - 1
}

// Decision is one resolved choice. Decisions are append-only.
type Decision struct {
	ID                int64      `json:"id"`
	SessionID         string     `json:"session_id"`
	LocationID        LocationID `json:"location_id"`
	ScenarioID        string     `json:"scenario_id"`
	ChoiceIndex       int        `json:"choice_index"`
	ChoiceText        string     `json:"choice_text"`
	Delta             StatDelta  `json:"delta"`
	HiddenConsequence string     `json:"hidden_consequence,omitempty"`
	Week              int        `json:"week"`
	Day               int        `json:"day"`
	CreatedAt         time.Time  `json:"created_at"`
}

// WeeklySnapshot is a point-in-time copy of a session for analytics,
// unique per session and week.
type WeeklySnapshot struct {
	SessionID         string    `json:"session_id"`
	Week              int       `json:"week"`
	Money             int       `json:"money"`
	Debt              int       `json:"debt"`
	CreditScore       int       `json:"credit_score"`
	Health            int       `json:"health"`
	Stress            int       `json:"stress"`
	EnergyRemaining   int       `json:"energy_remaining"`
	WorkDaysCompleted int       `json:"work_days_completed"`
	BoughtGroceries   bool      `json:"bought_groceries"`
	FilledPetrol      bool      `json:"filled_petrol"`
	PaidDebt          bool      `json:"paid_debt"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// Snapshot copies the session's current week into a WeeklySnapshot.
func (s GameSession) Snapshot(now time.Time) WeeklySnapshot {
	return WeeklySnapshot{
		SessionID:         s.ID,
		Week:              s.CurrentWeek,
		Money:             s.Money,
		Debt:              s.Debt,
		CreditScore:       s.CreditScore,
		Health:            s.Health,
		Stress:            s.Stress,
		EnergyRemaining:   s.EnergyRemaining,
		WorkDaysCompleted: s.Objectives.WorkDaysCompleted,
		BoughtGroceries:   s.Objectives.BoughtGroceries,
		FilledPetrol:      s.Objectives.FilledPetrol,
		PaidDebt:          s.Objectives.PaidDebt,
		RecordedAt:        now,
	}
}

// Choice is one option of a scenario.
type Choice struct {
	Text              string    `yaml:"text" json:"text"`
	Consequence       StatDelta `yaml:"consequence" json:"consequence"`
	HiddenConsequence string    `yaml:"hidden_consequence,omitempty" json:"hidden_consequence,omitempty"`
}

// Scenario source values.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
	SourceEvent    = "event"
)

// Scenario is a narrated situation at a location with 2-3 choices.
type Scenario struct {
	ID          string     `yaml:"-" json:"id"`
	LocationID  LocationID `yaml:"-" json:"location_id"`
	Narration   string     `yaml:"narration" json:"narration"`
	NPCDialogue string     `yaml:"npc_dialogue,omitempty" json:"npc_dialogue,omitempty"`
	Emotion     string     `yaml:"emotion" json:"emotion"`
	Choices     []Choice   `yaml:"choices" json:"choices"`
	Source      string     `yaml:"-" json:"source"`
}
