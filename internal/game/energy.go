package game

import (
	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/models"
)

// Consume debits energy. It rejects the action outright when the budget is
// short; energy never drops below zero.
func Consume(s models.GameSession, amount int) (models.GameSession, error) {
	if s.IsGameOver {
		return s, models.ErrInvalidTransition
	}
	if amount <= 0 {
		return s, nil
	}
	if s.EnergyRemaining < amount {
		return s, models.ErrInsufficientEnergy
	}
	s.EnergyRemaining -= amount
	return s, nil
}

// ActionCost is the energy an action at loc costs. The cost depends on the
// kind of location, never on its id.
func ActionCost(s models.GameSession, loc catalog.Location) (int, error) {
	switch loc.Kind {
	case catalog.KindDining:
		return 0, nil
	case catalog.KindWeekend:
		if !s.WeekendPending {
			return 0, models.ErrLocationLocked
		}
		return 0, nil
	default:
		return 1, nil
	}
}

// Travel moves the player to dest, paying the location's cost. Staying
// where the player already is costs nothing.
func Travel(s models.GameSession, p *catalog.Persona, dest models.LocationID) (models.GameSession, error) {
	if s.IsGameOver {
		return s, models.ErrInvalidTransition
	}
	loc, err := p.Location(dest)
	if err != nil {
		return s, err
	}
	if dest == s.CurrentLocation {
		return s, nil
	}
	next, err := pay(s, loc)
	if err != nil {
		return s, err
	}
	next.CurrentLocation = dest
	return next, nil
}

// Interact pays for triggering a scenario at the current location. Every
// interaction is charged, including repeats at the same place.
func Interact(s models.GameSession, p *catalog.Persona) (models.GameSession, catalog.Location, error) {
	if s.IsGameOver {
		return s, catalog.Location{}, models.ErrInvalidTransition
	}
	loc, err := p.Location(s.CurrentLocation)
	if err != nil {
		return s, catalog.Location{}, err
	}
	next, err := pay(s, loc)
	if err != nil {
		return s, loc, err
	}
	return next, loc, nil
}

func pay(s models.GameSession, loc catalog.Location) (models.GameSession, error) {
	cost, err := ActionCost(s, loc)
	if err != nil {
		return s, err
	}
	return Consume(s, cost)
}
