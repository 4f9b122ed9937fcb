package domain

import (
	"fmt"
	"time"
)

// ScheduleStatus enumerates the lifecycle states of a round schedule.
type ScheduleStatus string

const (
	StatusScheduled ScheduleStatus = "SCHEDULED"
	StatusReady     ScheduleStatus = "READY"
	StatusLaunching ScheduleStatus = "LAUNCHING"
	StatusSent      ScheduleStatus = "SENT"
	StatusCompleted ScheduleStatus = "COMPLETED"
	StatusBlocked   ScheduleStatus = "BLOCKED"
)

// CampaignSchedule is the persistent record for one (campaign, round).
type CampaignSchedule struct {
	ID           string `json:"id" db:"id"`
	CampaignName string `json:"campaign_name" db:"campaign_name"`
	RoundNumber  int    `json:"round_number" db:"round_number"`

	// Calendar placement. ScheduledDate is the launch instant (Tue/Thu
	// 09:15:00 UTC); ScheduledTime carries the redundant "09:15" string.
	ScheduledDate time.Time `json:"scheduled_date" db:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time" db:"scheduled_time"`

	ListName       string `json:"list_name" db:"list_name"`
	ExternalListID string `json:"external_list_id" db:"external_list_id"`
	RecipientCount int64  `json:"recipient_count" db:"recipient_count"`
	RecipientRange string `json:"recipient_range" db:"recipient_range"`

	Subject     string `json:"subject" db:"subject"`
	SenderName  string `json:"sender_name" db:"sender_name"`
	SenderEmail string `json:"sender_email" db:"sender_email"`

	// ExternalDraftID points at the mail-platform draft, when one exists.
	// ExternalCampaignID is populated when the launch is initiated and is
	// null exactly while status is SCHEDULED, READY, or BLOCKED.
	ExternalDraftID    *string `json:"external_draft_id" db:"external_draft_id"`
	ExternalCampaignID *int64  `json:"external_campaign_id" db:"external_campaign_id"`

	Notifications NotificationStatus `json:"notification_status" db:"notification_status"`
	Status        ScheduleStatus     `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once the schedule can no longer change state.
func (s *CampaignSchedule) IsTerminal() bool {
	return s.Status == StatusCompleted
}

// FinalRound reports whether this is the last of the three rounds.
func (s *CampaignSchedule) FinalRound() bool {
	return s.RoundNumber == 3
}

// Launched reports whether the round has been handed to the mail platform.
func (s *CampaignSchedule) Launched() bool {
	return s.ExternalCampaignID != nil
}

// Validate checks the structural invariants of a single schedule row.
func (s *CampaignSchedule) Validate() error {
	if s.CampaignName == "" {
		return fmt.Errorf("campaign name is required")
	}
	if s.RoundNumber < 1 || s.RoundNumber > 3 {
		return fmt.Errorf("round number %d out of range 1..3", s.RoundNumber)
	}
	if s.RecipientCount < 0 {
		return fmt.Errorf("recipient count %d is negative", s.RecipientCount)
	}
	wd := s.ScheduledDate.UTC().Weekday()
	if wd != time.Tuesday && wd != time.Thursday {
		return fmt.Errorf("scheduled date %s falls on %s, want Tuesday or Thursday",
			s.ScheduledDate.Format(time.RFC3339), wd)
	}
	if s.ScheduledDate.UTC().Hour() != 9 || s.ScheduledDate.UTC().Minute() != 15 {
		return fmt.Errorf("scheduled date %s is not at 09:15:00 UTC",
			s.ScheduledDate.Format(time.RFC3339))
	}
	return nil
}
