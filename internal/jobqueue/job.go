// Package jobqueue is the durable delayed-job scheduler. Jobs live in Redis
// sorted sets keyed by fire time; execution claims a lease (visibility
// timeout) so a crashed worker's jobs return to the queue, giving
// at-least-once delivery. The orchestrator's idempotence absorbs the
// duplicates that discipline permits.
package jobqueue

import (
	"time"

	"github.com/ignite/campaign-pilot/internal/domain"
)

// Retry policy: three retries with exponential backoff after the initial
// attempt, then dead-letter.
var retryBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// JobState enumerates the lifecycle of a queued job.
type JobState string

const (
	StateDelayed   JobState = "delayed" // waiting for fireAt
	StatePending   JobState = "pending" // due, awaiting a worker
	StateActive    JobState = "active"  // claimed by a worker
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed" // dead-lettered
)

// Job is one scheduled stage execution.
type Job struct {
	ID         string       `json:"id"`
	ScheduleID string       `json:"schedule_id"`
	Stage      domain.Stage `json:"stage"`
	FireAt     time.Time    `json:"fire_at"`
	Retries    int          `json:"retries"`
	LastError  string       `json:"last_error,omitempty"`
}

// StageJobStatus is the inspection view of one stage's job.
type StageJobStatus struct {
	State  JobState  `json:"state"`
	FireAt time.Time `json:"fire_at"`
}
