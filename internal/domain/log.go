package domain

import "time"

// LogStatus enumerates the outcome of a single notification attempt.
type LogStatus string

const (
	LogSuccess LogStatus = "SUCCESS"
	LogFailure LogStatus = "FAILURE"
	// LogRetrying is part of the persisted vocabulary for operator tooling.
	// The notifier records each attempt's own outcome as SUCCESS or FAILURE;
	// whether a retry is in flight lives in the job-status view.
	LogRetrying LogStatus = "RETRYING"
)

// NotificationLog is one append-only row per notification attempt.
// (ScheduleID, Stage, Attempt) is unique; Attempt starts at 1.
type NotificationLog struct {
	ID                string    `json:"id" db:"id"`
	ScheduleID        string    `json:"schedule_id" db:"schedule_id"`
	Stage             Stage     `json:"stage" db:"stage"`
	Attempt           int       `json:"attempt" db:"attempt"`
	Status            LogStatus `json:"status" db:"status"`
	ExternalMessageID string    `json:"external_message_id,omitempty" db:"external_message_id"`
	ErrorMessage      string    `json:"error_message,omitempty" db:"error_message"`
	SentAt            time.Time `json:"sent_at" db:"sent_at"`
}
