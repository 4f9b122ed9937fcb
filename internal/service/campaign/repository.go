package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/jobqueue"
)

// Repository defines the data access contract for schedules.
// Implementations must be safe for concurrent use.
type Repository interface {
	// CreateSchedules inserts all rounds atomically. Returns
	// domain.ErrDuplicateSchedule when the campaign already exists.
	CreateSchedules(ctx context.Context, schedules []*domain.CampaignSchedule) error

	// GetSchedule returns a single round. Returns domain.ErrScheduleNotFound
	// if it doesn't exist.
	GetSchedule(ctx context.Context, id string) (*domain.CampaignSchedule, error)

	// GetByCampaign returns every round of a campaign ordered by round.
	GetByCampaign(ctx context.Context, campaignName string) ([]domain.CampaignSchedule, error)

	// UpdateStatus persists a status change.
	UpdateStatus(ctx context.Context, id string, status domain.ScheduleStatus) error

	// UpdateScheduledDate moves a round's launch instant.
	UpdateScheduledDate(ctx context.Context, id string, date time.Time) error

	// LogsForSchedule returns the notification attempt history.
	LogsForSchedule(ctx context.Context, scheduleID string) ([]domain.NotificationLog, error)

	// FailedLogsNeedingRetry returns stages whose latest attempt failed,
	// oldest first, capped at limit.
	FailedLogsNeedingRetry(ctx context.Context, limit int) ([]domain.NotificationLog, error)
}

// JobScheduler is the slice of the delayed-job queue the service drives.
type JobScheduler interface {
	EnqueueStages(ctx context.Context, scheduleID string, launchT time.Time) error
	CancelJobsFor(ctx context.Context, scheduleID string) error
	RescheduleJobsFor(ctx context.Context, scheduleID string, newLaunchT time.Time) error
	StatusOf(ctx context.Context, scheduleID string) (map[domain.Stage]jobqueue.StageJobStatus, error)
}
