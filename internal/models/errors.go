package models

import "errors"

// Expected, recoverable outcomes. Callers match them with errors.Is and turn
// them into player-facing messages.
var (
	ErrInsufficientFunds  = errors.New("not enough money")
	ErrInsufficientEnergy = errors.New("not enough energy")
	ErrLocationLocked     = errors.New("location is only open on the weekend")
	ErrAlreadyComplete    = errors.New("objective already complete this week")
	ErrAlreadyPaid        = errors.New("debt already paid this week")
	ErrNotDebtWeek        = errors.New("debt payment is only due in week 4")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidTransition  = errors.New("invalid transition for current game state")
	ErrWrongLocation      = errors.New("objective not available at this location")
	ErrUnknownLocation    = errors.New("unknown location")
	ErrUnknownPersona     = errors.New("unknown persona")
	ErrUnknownActivity    = errors.New("unknown weekend activity")
	ErrNoChoice           = errors.New("scenario has no such choice")
	ErrDuplicateDecision  = errors.New("scenario already resolved")
)

// StorageError marks a persistence fault. Unlike the sentinels above it is
// fatal to the operation: the game cannot progress without durable state.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageFault reports whether err came from the persistence layer.
func IsStorageFault(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
