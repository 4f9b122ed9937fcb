package campaign

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"time"

	"github.com/ignite/campaign-pilot/internal/batch"
	"github.com/ignite/campaign-pilot/internal/calendar"
	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/jobqueue"
)

// Service implements campaign lifecycle business logic. All public methods
// are safe for concurrent use if the underlying repository is.
type Service struct {
	repo  Repository
	queue JobScheduler
	clock calendar.Clock
}

// NewService creates a campaign service backed by the given repository and
// job scheduler.
func NewService(repo Repository, queue JobScheduler, clock calendar.Clock) *Service {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Service{repo: repo, queue: queue, clock: clock}
}

// CreateInput is the campaign creation request.
type CreateInput struct {
	CampaignName    string
	ListIDPrefix    string
	Subject         string
	SenderName      string
	SenderEmail     string
	TotalRecipients int64
	// ExternalListIDs holds one platform list id per round.
	ExternalListIDs [batch.Rounds]string
	ExternalDraftID *string
	// StartDate is the earliest acceptable launch day; defaults to now.
	StartDate *time.Time
}

func (in *CreateInput) validate() error {
	if in.CampaignName == "" {
		return fmt.Errorf("%w: campaign name is required", ErrInvalidInput)
	}
	if in.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if in.TotalRecipients <= 0 {
		return fmt.Errorf("%w: total recipients must be > 0", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.SenderEmail); err != nil {
		return fmt.Errorf("%w: sender email %q: %v", ErrInvalidInput, in.SenderEmail, err)
	}
	for i, listID := range in.ExternalListIDs {
		if listID == "" {
			return fmt.Errorf("%w: external list id for round %d is required", ErrInvalidInput, i+1)
		}
	}
	return nil
}

// Create partitions the recipient base into three rounds, persists the
// schedules atomically, and enqueues the five stage jobs for each round.
func (s *Service) Create(ctx context.Context, in CreateInput) ([]domain.CampaignSchedule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	start := s.clock.Now()
	if in.StartDate != nil {
		start = *in.StartDate
	}

	slots, err := batch.Partition(in.TotalRecipients, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	schedules := make([]*domain.CampaignSchedule, 0, len(slots))
	for _, slot := range slots {
		sched := &domain.CampaignSchedule{
			CampaignName:    in.CampaignName,
			RoundNumber:     slot.Round,
			ScheduledDate:   slot.ScheduledAt,
			ScheduledTime:   "09:15",
			ListName:        fmt.Sprintf("%s-r%d", in.ListIDPrefix, slot.Round),
			ExternalListID:  in.ExternalListIDs[slot.Round-1],
			RecipientCount:  slot.Count,
			RecipientRange:  slot.Range(),
			Subject:         in.Subject,
			SenderName:      in.SenderName,
			SenderEmail:     in.SenderEmail,
			ExternalDraftID: in.ExternalDraftID,
			Status:          domain.StatusScheduled,
		}
		if err := sched.Validate(); err != nil {
			return nil, fmt.Errorf("%w: round %d: %v", ErrInvalidInput, slot.Round, err)
		}
		schedules = append(schedules, sched)
	}

	if err := s.repo.CreateSchedules(ctx, schedules); err != nil {
		return nil, err
	}

	for _, sched := range schedules {
		if err := s.queue.EnqueueStages(ctx, sched.ID, sched.ScheduledDate); err != nil {
			return nil, fmt.Errorf("enqueue stages for round %d: %w", sched.RoundNumber, err)
		}
	}

	log.Printf("[Campaign] Created %s: %d recipients across %d rounds (first launch %s)",
		in.CampaignName, in.TotalRecipients, len(schedules),
		schedules[0].ScheduledDate.Format(time.RFC3339))

	out := make([]domain.CampaignSchedule, len(schedules))
	for i, sched := range schedules {
		out[i] = *sched
	}
	return out, nil
}

// RoundStatus combines a round's persistent state with its pending jobs.
type RoundStatus struct {
	Schedule domain.CampaignSchedule                  `json:"schedule"`
	Jobs     map[domain.Stage]jobqueue.StageJobStatus `json:"jobs"`
	Logs     []domain.NotificationLog                 `json:"logs,omitempty"`
}

// Status returns the full lifecycle view of a campaign.
func (s *Service) Status(ctx context.Context, campaignName string) ([]RoundStatus, error) {
	schedules, err := s.repo.GetByCampaign(ctx, campaignName)
	if err != nil {
		return nil, err
	}

	out := make([]RoundStatus, 0, len(schedules))
	for _, sched := range schedules {
		jobs, err := s.queue.StatusOf(ctx, sched.ID)
		if err != nil {
			return nil, err
		}
		logs, err := s.repo.LogsForSchedule(ctx, sched.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RoundStatus{Schedule: sched, Jobs: jobs, Logs: logs})
	}
	return out, nil
}

// JobStatus returns the pending-job view for one schedule.
func (s *Service) JobStatus(ctx context.Context, scheduleID string) (map[domain.Stage]jobqueue.StageJobStatus, error) {
	if _, err := s.repo.GetSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	return s.queue.StatusOf(ctx, scheduleID)
}

// FailedNotifications lists stages whose latest attempt failed, for operator
// review alongside the queue's dead letters.
func (s *Service) FailedNotifications(ctx context.Context, limit int) ([]domain.NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.FailedLogsNeedingRetry(ctx, limit)
}

// Cancel removes the schedule's pending jobs and blocks it. Side effects
// already committed (posted messages, a completed send) are retained.
func (s *Service) Cancel(ctx context.Context, scheduleID, reason string) error {
	sched, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if err := s.queue.CancelJobsFor(ctx, scheduleID); err != nil {
		return err
	}

	if err := sched.Transition(domain.StatusBlocked); err != nil {
		// Jobs are gone either way; SENT and COMPLETED rounds keep their
		// status since the send already happened.
		log.Printf("[Campaign] Cancelled jobs for %s round %d but status %s stays: %v",
			sched.CampaignName, sched.RoundNumber, sched.Status, err)
		return fmt.Errorf("%w: status %s", ErrNotCancellable, sched.Status)
	}
	if err := s.repo.UpdateStatus(ctx, scheduleID, domain.StatusBlocked); err != nil {
		return err
	}
	log.Printf("[Campaign] Cancelled %s round %d: %s", sched.CampaignName, sched.RoundNumber, reason)
	return nil
}

// Reschedule moves an unlaunched round to a new launch instant and rebuilds
// its stage jobs relative to it.
func (s *Service) Reschedule(ctx context.Context, scheduleID string, newLaunchT time.Time) (*domain.CampaignSchedule, error) {
	sched, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sched.Launched() || sched.IsTerminal() {
		return nil, fmt.Errorf("%w: status %s", ErrNotReschedulable, sched.Status)
	}

	slot, err := calendar.NextEligibleSlot(newLaunchT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !slot.Equal(newLaunchT.UTC()) {
		return nil, fmt.Errorf("%w: %s is not a Tuesday/Thursday 09:15 UTC launch slot",
			ErrInvalidInput, newLaunchT.UTC().Format(time.RFC3339))
	}

	if err := s.repo.UpdateScheduledDate(ctx, scheduleID, slot); err != nil {
		return nil, err
	}
	if err := s.queue.RescheduleJobsFor(ctx, scheduleID, slot); err != nil {
		return nil, err
	}

	sched.ScheduledDate = slot
	log.Printf("[Campaign] Rescheduled %s round %d to %s",
		sched.CampaignName, sched.RoundNumber, slot.Format(time.RFC3339))
	return sched, nil
}
