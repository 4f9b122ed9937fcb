package domain

// Stage enumerates the five lifecycle events of a round, in timeline order.
type Stage string

const (
	StagePreLaunch          Stage = "prelaunch"
	StagePreFlight          Stage = "preflight"
	StageLaunchWarning      Stage = "launch_warning"
	StageLaunchConfirmation Stage = "launch_confirmation"
	StageWrapUp             Stage = "wrapup"
)

// AllStages returns the stages in timeline order.
func AllStages() []Stage {
	return []Stage{
		StagePreLaunch,
		StagePreFlight,
		StageLaunchWarning,
		StageLaunchConfirmation,
		StageWrapUp,
	}
}

// Valid reports whether s is one of the five known stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePreLaunch, StagePreFlight, StageLaunchWarning,
		StageLaunchConfirmation, StageWrapUp:
		return true
	}
	return false
}
