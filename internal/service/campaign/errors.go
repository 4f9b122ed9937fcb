package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrInvalidInput    = errors.New("invalid campaign input")
	ErrNotCancellable  = errors.New("schedule cannot be cancelled in its current state")
	ErrNotReschedulable = errors.New("schedule cannot be rescheduled in its current state")
)
