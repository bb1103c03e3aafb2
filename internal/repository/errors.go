package repository

import "errors"

// Unique constraint violations that callers can tell apart. They surface when
// a concurrent transaction commits the same row first.
var (
	ErrPropertyBusy   = errors.New("property already has a training queued")
	ErrTrainingQueued = errors.New("training already queued on another property")
)
