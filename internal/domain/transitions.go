package domain

// allowedTransitions is the status DAG. Any pair not listed is forbidden.
// COMPLETED is terminal and has no outgoing edges.
// SCHEDULED -> LAUNCHING covers the skip-preflight launch path.
var allowedTransitions = map[ScheduleStatus][]ScheduleStatus{
	StatusScheduled: {StatusReady, StatusBlocked, StatusLaunching},
	StatusReady:     {StatusBlocked, StatusLaunching},
	StatusLaunching: {StatusSent, StatusScheduled},
	StatusSent:      {StatusCompleted},
	StatusBlocked:   {StatusScheduled},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to ScheduleStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition mutates the schedule's status after validating the edge.
func (s *CampaignSchedule) Transition(to ScheduleStatus) error {
	if s.Status == StatusCompleted {
		return ErrScheduleTerminal
	}
	if !CanTransition(s.Status, to) {
		return ErrInvalidTransition
	}
	s.Status = to
	return nil
}

// StageMarkableFrom reports whether the stage's notification entry may flip
// to sent while the schedule is in the given status. A stage's flip is only
// legal when the state transition that stage drives is itself legal from the
// current status (or, for stages with no transition, from their natural
// resting status).
func StageMarkableFrom(stage Stage, status ScheduleStatus) bool {
	switch stage {
	case StagePreLaunch:
		// Announce-only: no transition, fires while still scheduled.
		return status == StatusScheduled
	case StagePreFlight:
		// Drives SCHEDULED -> READY or SCHEDULED -> BLOCKED.
		return status == StatusScheduled
	case StageLaunchWarning:
		// May drive READY -> BLOCKED on a late verification failure.
		return status == StatusReady
	case StageLaunchConfirmation:
		// Fires while LAUNCHING (driving -> SENT) or just after.
		return status == StatusLaunching || status == StatusSent
	case StageWrapUp:
		// Drives SENT -> COMPLETED.
		return status == StatusSent
	}
	return false
}
