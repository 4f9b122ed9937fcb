package domain

import "time"

// NotificationEntry records whether a stage's chat message has gone out.
// Sent flips false to true exactly once; it never flips back.
type NotificationEntry struct {
	Sent              bool       `json:"sent"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
	Status            string     `json:"status,omitempty"`
	ExternalMessageID string     `json:"external_message_id,omitempty"`
}

// NotificationStatus is the fixed-shape per-stage record on a schedule.
// The shape is closed: one named entry per stage, no arbitrary keys.
type NotificationStatus struct {
	PreLaunch          NotificationEntry `json:"prelaunch"`
	PreFlight          NotificationEntry `json:"preflight"`
	LaunchWarning      NotificationEntry `json:"launch_warning"`
	LaunchConfirmation NotificationEntry `json:"launch_confirmation"`
	WrapUp             NotificationEntry `json:"wrapup"`
}

// Entry returns a pointer to the entry for the given stage, or nil for an
// unknown stage.
func (ns *NotificationStatus) Entry(stage Stage) *NotificationEntry {
	switch stage {
	case StagePreLaunch:
		return &ns.PreLaunch
	case StagePreFlight:
		return &ns.PreFlight
	case StageLaunchWarning:
		return &ns.LaunchWarning
	case StageLaunchConfirmation:
		return &ns.LaunchConfirmation
	case StageWrapUp:
		return &ns.WrapUp
	}
	return nil
}

// MarkSent flips the stage's entry to sent. Returns ErrAlreadyNotified if
// the entry is already sent (the flip is monotonic) and ErrUnknownStage for
// a stage outside the fixed shape.
func (ns *NotificationStatus) MarkSent(stage Stage, at time.Time, messageID, status string) error {
	e := ns.Entry(stage)
	if e == nil {
		return ErrUnknownStage
	}
	if e.Sent {
		return ErrAlreadyNotified
	}
	ts := at.UTC()
	e.Sent = true
	e.Timestamp = &ts
	e.ExternalMessageID = messageID
	e.Status = status
	return nil
}
