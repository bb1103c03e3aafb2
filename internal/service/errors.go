package service

import (
	"errors"
	"fmt"

	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrNotOwner              = errors.New("you do not own this")
	ErrUnknownItem           = errors.New("unknown room, troop or training")
	ErrQueueFull             = errors.New("construction queue is full")
	ErrQueueBusy             = errors.New("Cola ocupada")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrInsufficientTroops    = errors.New("not enough troops at the origin")
	ErrRequirementsNotMet    = vendetta.ErrRequirementsNotMet
	ErrAlreadyStarted        = errors.New("entry has already started")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrTrainingInProgress    = errors.New("training already in progress on another property")
	ErrInvalidMission        = errors.New("invalid mission")
	ErrMissionArrived        = errors.New("mission has already arrived")
)

// InvariantError marks persisted state that breaks an engine invariant. The
// entity is skipped and flagged, never repaired.
type InvariantError struct {
	Entity string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated on %s: %s", e.Entity, e.Reason)
}

func invariant(entity, format string, args ...any) error {
	return &InvariantError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// IsInvariant reports whether err carries an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
