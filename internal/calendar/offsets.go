package calendar

import (
	"time"

	"github.com/ignite/campaign-pilot/internal/domain"
)

// Offsets holds each stage's offset from the launch instant T. Negative
// values fire before launch. Overridable only for testing; production uses
// DefaultOffsets.
type Offsets struct {
	PreLaunch          time.Duration
	PreFlight          time.Duration
	LaunchWarning      time.Duration
	LaunchConfirmation time.Duration
	WrapUp             time.Duration
}

// DefaultOffsets returns the production timeline: T-21h, T-3h15m, T-15m,
// T+0, T+30m.
func DefaultOffsets() Offsets {
	return Offsets{
		PreLaunch:          -21 * time.Hour,
		PreFlight:          -(3*time.Hour + 15*time.Minute),
		LaunchWarning:      -15 * time.Minute,
		LaunchConfirmation: 0,
		WrapUp:             30 * time.Minute,
	}
}

// OverrideMinutes returns a copy with any nonzero minute value replacing
// the corresponding offset. Values are minutes relative to T; negative
// fires before launch. Testing only.
func (o Offsets) OverrideMinutes(preLaunch, preFlight, warning, wrapUp int) Offsets {
	if preLaunch != 0 {
		o.PreLaunch = time.Duration(preLaunch) * time.Minute
	}
	if preFlight != 0 {
		o.PreFlight = time.Duration(preFlight) * time.Minute
	}
	if warning != 0 {
		o.LaunchWarning = time.Duration(warning) * time.Minute
	}
	if wrapUp != 0 {
		o.WrapUp = time.Duration(wrapUp) * time.Minute
	}
	return o
}

// ForStage returns the offset for the given stage.
func (o Offsets) ForStage(stage domain.Stage) time.Duration {
	switch stage {
	case domain.StagePreLaunch:
		return o.PreLaunch
	case domain.StagePreFlight:
		return o.PreFlight
	case domain.StageLaunchWarning:
		return o.LaunchWarning
	case domain.StageLaunchConfirmation:
		return o.LaunchConfirmation
	case domain.StageWrapUp:
		return o.WrapUp
	}
	return 0
}

// TriggerTime computes when a stage fires relative to the launch instant.
func TriggerTime(launchT time.Time, stage domain.Stage, o Offsets) time.Time {
	return launchT.UTC().Add(o.ForStage(stage))
}
