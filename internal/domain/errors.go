package domain

import "errors"

// Sentinel errors shared across the engine.
var (
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrDuplicateSchedule   = errors.New("schedule already exists for campaign and round")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAlreadyNotified     = errors.New("stage notification already sent")
	ErrUnknownStage        = errors.New("unknown stage")
	ErrScheduleTerminal    = errors.New("schedule is in a terminal state")
	ErrDuplicateLogAttempt = errors.New("notification log attempt already recorded")
	ErrNoMetrics           = errors.New("no metrics recorded for campaign round")
)
