package game

import (
	"fmt"

	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/models"
)

// SkipActivity is the free weekend option offered to every persona.
var SkipActivity = catalog.WeekendActivity{
	ID:           catalog.SkipActivityID,
	Name:         "Stay home",
	Description:  "Skip plans and rest. It costs nothing, but the week weighs on you.",
	StressChange: 10,
}

// EnsureEventDay picks the day of this week's random event if none is set.
func EnsureEventDay(s models.GameSession, rng Rand) models.GameSession {
	if s.WeeklyEventDay == 0 {
		s.WeeklyEventDay = rng.Intn(models.DaysPerWeek) + 1
	}
	return s
}

// EventDue reports whether the weekly event should fire now.
func EventDue(s models.GameSession) bool {
	return !s.IsGameOver &&
		!s.WeekendPending &&
		!s.WeeklyEventTriggered &&
		s.WeeklyEventDay == s.CurrentDay
}

// DrawEvent picks uniformly from the persona's combined event pool.
func DrawEvent(p *catalog.Persona, rng Rand) catalog.Event {
	pool := p.EventPool()
	return pool[rng.Intn(len(pool))]
}

// ResolveEvent applies the weekly event and marks it triggered. The flag is
// set even when the event ends the game.
func ResolveEvent(s models.GameSession, ev catalog.Event) (models.GameSession, error) {
	switch {
	case s.IsGameOver || s.WeekendPending:
		return s, models.ErrInvalidTransition
	case s.WeeklyEventTriggered:
		return s, models.ErrAlreadyComplete
	case s.WeeklyEventDay != s.CurrentDay:
		return s, fmt.Errorf("%w: event is scheduled for day %d", models.ErrInvalidTransition, s.WeeklyEventDay)
	}
	s = applyDelta(s, ev.Consequence)
	s.WeeklyEventTriggered = true
	return s, nil
}

// WeekendMenu lists the weekend options, skip first.
func WeekendMenu(p *catalog.Persona) []catalog.WeekendActivity {
	return append([]catalog.WeekendActivity{SkipActivity}, p.WeekendActivities...)
}

// FindActivity looks up a weekend option by id.
func FindActivity(p *catalog.Persona, id string) (catalog.WeekendActivity, error) {
	for _, a := range WeekendMenu(p) {
		if a.ID == id {
			return a, nil
		}
	}
	return catalog.WeekendActivity{}, fmt.Errorf("%w: %q", models.ErrUnknownActivity, id)
}

// ResolveWeekend closes the weekend with the chosen activity. Weeks 1-3 roll
// into the next week; week 4 ends the game as thrived or survived, unless
// the activity itself exhausted the player.
func ResolveWeekend(s models.GameSession, act catalog.WeekendActivity, rng Rand) (models.GameSession, error) {
	if s.IsGameOver || !s.WeekendPending {
		return s, models.ErrInvalidTransition
	}
	if act.MoneyCost > 0 && s.Money < act.MoneyCost {
		return s, models.ErrInsufficientFunds
	}

	s = applyDelta(s, act.Delta())
	s.WeekendPending = false
	if s.IsGameOver {
		return s, nil
	}
	if s.CurrentWeek >= models.TotalWeeks {
		finish(&s)
		return s, nil
	}
	return startWeek(s, rng), nil
}

func finish(s *models.GameSession) {
	s.IsGameOver = true
	s.FailureReason = ""
	if s.Money > 0 && s.CreditScore > ThriveCreditThreshold {
		s.Ending = models.EndingThrived
	} else {
		s.Ending = models.EndingSurvived
	}
}

func startWeek(s models.GameSession, rng Rand) models.GameSession {
	s.CurrentWeek++
	s.CurrentDay = 1
	s.EnergyRemaining = models.MaxEnergy
	s.Objectives = models.WeeklyObjectives{}
	s.WorkedToday = false
	s.WeeklyEventDay = 0
	s.WeeklyEventTriggered = false
	return EnsureEventDay(s, rng)
}

// Describe is the player-facing headline for an ending.
func Describe(e models.Ending) string {
	switch e {
	case models.EndingThrived:
		return "You thrived: money in the bank and a healthy credit score."
	case models.EndingSurvived:
		return "You survived the month, but only just."
	case models.EndingHealthCrisis:
		return "Health crisis: your body gave out before the month did."
	case models.EndingBurnout:
		return "Burnout: the stress became too much to carry."
	case models.EndingBankruptcy:
		return "Bankruptcy: the debts caught up with you."
	case models.EndingCreditDestroyed:
		return "Credit destroyed: no lender will talk to you now."
	case models.EndingObjectivesFailed:
		return "The week ran out before your responsibilities did."
	default:
		return string(e)
	}
}
