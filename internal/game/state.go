// Package game is the rules engine: weekly objectives, the energy budget,
// stat consequences, day and week advancement, random events and endings.
//
// Every transition takes a session value and returns a new one. On error the
// returned session is the input, unchanged, so a rejected transition never
// leaves a partial mutation behind. Persisting the result is the caller's job.
package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/models"
)

// Prices and effects owned by the rules.
const (
	HealthyGroceryPrice   = 50
	UnhealthyGroceryPrice = 30
	DebtCreditBonus       = 15
	ThriveCreditThreshold = 600
)

var (
	healthyGroceryEffect   = models.StatDelta{Health: 10, Stress: -10}
	unhealthyGroceryEffect = models.StatDelta{Health: -10, Stress: -15}

	// LeavePenalty is charged when a player skips work for the day.
	LeavePenalty = models.StatDelta{Stress: 15, Health: -5, Credit: -5}
)

// NewSession starts a playthrough for a persona on week 1, day 1.
func NewSession(id, playerName string, p *catalog.Persona, rng Rand, now time.Time) models.GameSession {
	s := models.GameSession{
		ID:              id,
		PlayerName:      playerName,
		PersonaID:       p.ID,
		Money:           p.StartingMoney,
		Debt:            p.StartingDebt,
		CreditScore:     p.StartingCredit,
		Health:          models.StartingHealth,
		Stress:          models.StartingStress,
		CurrentDay:      1,
		CurrentWeek:     1,
		CurrentLocation: p.StartLocation,
		EnergyRemaining: models.MaxEnergy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return EnsureEventDay(s, rng)
}

// ApplyConsequence applies a stat delta with clamping, then checks for the
// stat-exhaustion endings.
func ApplyConsequence(s models.GameSession, d models.StatDelta) (models.GameSession, error) {
	if s.IsGameOver {
		return s, models.ErrInvalidTransition
	}
	return applyDelta(s, d), nil
}

func applyDelta(s models.GameSession, d models.StatDelta) models.GameSession {
	s.Money = max(0, s.Money+d.Money)
	s.CreditScore = models.Clamp(s.CreditScore+d.Credit, models.MinCreditScore, models.MaxCreditScore)
	s.Health = models.Clamp(s.Health+d.Health, models.MinStat, models.MaxStat)
	s.Stress = models.Clamp(s.Stress+d.Stress, models.MinStat, models.MaxStat)
	return checkExhaustion(s)
}

// checkExhaustion assigns at most one ending. Health is checked before stress.
func checkExhaustion(s models.GameSession) models.GameSession {
	if s.IsGameOver {
		return s
	}
	switch {
	case s.Health <= models.MinStat:
		endGame(&s, models.EndingHealthCrisis, "your health collapsed")
	case s.Stress >= models.MaxStat:
		endGame(&s, models.EndingBurnout, "stress reached breaking point")
	}
	return s
}

func endGame(s *models.GameSession, e models.Ending, reason string) {
	s.IsGameOver = true
	s.Ending = e
	s.FailureReason = reason
	s.WeekendPending = false
}

// ObjectiveRequest asks to complete an objective. Cost and Effect are only
// read for petrol, whose terms come from the caller; zero values fall back
// to the persona's usual fill.
type ObjectiveRequest struct {
	Action models.ObjectiveAction
	Cost   int
	Effect models.StatDelta
}

// DebtPayment is the week-4 instalment: a quarter of the debt, rounded up.
func DebtPayment(debt int) int {
	return (debt + 3) / 4
}

// CompleteObjective marks a weekly objective done, charging for it where
// the objective has a price.
func CompleteObjective(s models.GameSession, p *catalog.Persona, req ObjectiveRequest) (models.GameSession, error) {
	if s.IsGameOver || s.WeekendPending {
		return s, models.ErrInvalidTransition
	}

	switch req.Action {
	case models.ActionWork:
		loc, err := p.Location(s.CurrentLocation)
		if err != nil {
			return s, err
		}
		if loc.Objective != models.ObjectiveWork {
			return s, models.ErrWrongLocation
		}
		if s.Objectives.WorkDaysCompleted >= models.WorkDaysRequired {
			return s, models.ErrAlreadyComplete
		}
		s.Objectives.WorkDaysCompleted++
		s.WorkedToday = true
		return checkExhaustion(s), nil

	case models.ActionGroceriesHealthy, models.ActionGroceriesUnhealthy:
		if s.Objectives.BoughtGroceries {
			return s, models.ErrAlreadyComplete
		}
		price, effect := HealthyGroceryPrice, healthyGroceryEffect
		if req.Action == models.ActionGroceriesUnhealthy {
			price, effect = UnhealthyGroceryPrice, unhealthyGroceryEffect
		}
		next, err := purchase(s, price, effect)
		if err != nil {
			return s, err
		}
		next.Objectives.BoughtGroceries = true
		return next, nil

	case models.ActionPetrol:
		if s.Objectives.FilledPetrol {
			return s, models.ErrAlreadyComplete
		}
		cost, effect := req.Cost, req.Effect
		if cost <= 0 {
			cost, effect = p.PetrolFill.Cost, p.PetrolFill.Effect
		}
		next, err := purchase(s, cost, effect)
		if err != nil {
			return s, err
		}
		next.Objectives.FilledPetrol = true
		return next, nil

	case models.ActionDebt:
		if s.CurrentWeek != models.DebtWeek {
			return s, models.ErrNotDebtWeek
		}
		if s.Objectives.PaidDebt {
			return s, models.ErrAlreadyPaid
		}
		payment := DebtPayment(s.Debt)
		if s.Money < payment {
			return s, models.ErrInsufficientFunds
		}
		s.Money -= payment
		s.Debt -= payment
		s.CreditScore = models.Clamp(s.CreditScore+DebtCreditBonus, models.MinCreditScore, models.MaxCreditScore)
		s.Objectives.PaidDebt = true
		return checkExhaustion(s), nil

	default:
		return s, fmt.Errorf("%w: unknown objective %q", models.ErrInvalidTransition, req.Action)
	}
}

// purchase validates funds before any debit; a failed purchase changes nothing.
func purchase(s models.GameSession, price int, effect models.StatDelta) (models.GameSession, error) {
	if s.Money < price {
		return s, models.ErrInsufficientFunds
	}
	effect.Money -= price
	return applyDelta(s, effect), nil
}

// Blocker explains why a day could not advance.
type Blocker string

const (
	BlockedByWork       Blocker = "work_not_done"
	BlockedByObjectives Blocker = "objectives_pending"
)

// AdvanceResult is the outcome of AdvanceDay.
type AdvanceResult struct {
	Session                 models.GameSession
	CanAdvance              bool
	ShouldShowWeekendDialog bool
	IsGameOver              bool
	LeaveApplied            bool
	Blocker                 Blocker
}

// AdvanceDay ends the current day. A player who has not worked must either
// go to work or take leave (applyLeave) and pay the leave penalty. Ending
// day 5 with every objective done opens the weekend instead of starting a
// new week; ending it with objectives missing and no energy left loses.
// Opening the weekend forfeits any energy the player has not spent.
func AdvanceDay(s models.GameSession, applyLeave bool) (AdvanceResult, error) {
	if s.IsGameOver || s.WeekendPending {
		return AdvanceResult{Session: s}, models.ErrInvalidTransition
	}

	status := WeeklyObjectives(s.Objectives, s.CurrentWeek)
	lastDay := s.CurrentDay >= models.DaysPerWeek

	if lastDay && !status.AllRequiredComplete && s.EnergyRemaining <= 0 {
		endGame(&s, models.EndingObjectivesFailed, missingReason(s.CurrentWeek, status))
		return AdvanceResult{Session: s, IsGameOver: true}, nil
	}

	work, _ := status.Item(models.ObjectiveWork)
	workDone := s.WorkedToday || work.Complete
	if !workDone && !applyLeave {
		return AdvanceResult{Session: s, Blocker: BlockedByWork}, nil
	}
	if lastDay && !status.AllRequiredComplete {
		return AdvanceResult{Session: s, Blocker: BlockedByObjectives}, nil
	}

	var res AdvanceResult
	if !workDone {
		s = applyDelta(s, LeavePenalty)
		res.LeaveApplied = true
		if s.IsGameOver {
			res.Session, res.IsGameOver = s, true
			return res, nil
		}
	}

	s.WorkedToday = false
	if lastDay {
		// Unspent energy is forfeited when the weekend opens.
		s.WeekendPending = true
		s.EnergyRemaining = 0
		res.ShouldShowWeekendDialog = true
	} else {
		s.CurrentDay++
	}
	res.Session = s
	res.CanAdvance = true
	return res, nil
}

func missingReason(week int, st ObjectiveStatus) string {
	var missing []string
	for _, it := range st.Items {
		if it.Required && !it.Complete {
			missing = append(missing, string(it.Type))
		}
	}
	return fmt.Sprintf("week %d ended with objectives incomplete: %s", week, strings.Join(missing, ", "))
}
