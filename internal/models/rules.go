package models

// Fixed game constants shared by the rules engine and the storage layer.
const (
	TotalWeeks       = 4
	DaysPerWeek      = 5
	MaxEnergy        = 11
	WorkDaysRequired = 5
	DebtWeek         = 4

	MinCreditScore = 300
	MaxCreditScore = 850
	MinStat        = 0
	MaxStat        = 100

	StartingHealth = 100
	StartingStress = 20
)

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize fills defaults for fields older sessions never stored and bounds
// every ranged field. It runs once when a session is loaded.
func (s *GameSession) Normalize() {
	if s.CurrentWeek == 0 {
		s.CurrentWeek = 1
	}
	if s.CurrentDay == 0 {
		s.CurrentDay = 1
	}
	s.CurrentWeek = Clamp(s.CurrentWeek, 1, TotalWeeks)
	s.CurrentDay = Clamp(s.CurrentDay, 1, DaysPerWeek)

	if s.Money < 0 {
		s.Money = 0
	}
	if s.Debt < 0 {
		s.Debt = 0
	}
	s.CreditScore = Clamp(s.CreditScore, MinCreditScore, MaxCreditScore)
	s.Health = Clamp(s.Health, MinStat, MaxStat)
	s.Stress = Clamp(s.Stress, MinStat, MaxStat)
	s.EnergyRemaining = Clamp(s.EnergyRemaining, 0, MaxEnergy)
	s.Objectives.WorkDaysCompleted = Clamp(s.Objectives.WorkDaysCompleted, 0, WorkDaysRequired)

	if s.WeeklyEventDay != 0 {
		s.WeeklyEventDay = Clamp(s.WeeklyEventDay, 1, DaysPerWeek)
	}
	if s.IsGameOver {
		s.WeekendPending = false
	}
}
