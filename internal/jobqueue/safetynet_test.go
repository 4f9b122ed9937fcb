package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/campaign-pilot/internal/calendar"
	"github.com/ignite/campaign-pilot/internal/domain"
)

type fakeLister struct {
	schedules []domain.CampaignSchedule
}

func (f *fakeLister) ListActive(context.Context) ([]domain.CampaignSchedule, error) {
	return f.schedules, nil
}

func TestSafetyNetSweepReenqueuesLostStage(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	launch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)

	sched := domain.CampaignSchedule{
		ID:            "sched-1",
		CampaignName:  "oct-offer",
		RoundNumber:   1,
		ScheduledDate: launch,
		Status:        domain.StatusReady,
	}
	// No jobs in the queue at all: simulate a flushed backend.
	sn := NewSafetyNet(&fakeLister{schedules: []domain.CampaignSchedule{sched}}, q, calendar.DefaultOffsets(), 15*time.Minute)

	// Five minutes after the launch-warning trigger (T-15m).
	setClock(launch.Add(-10 * time.Minute))

	if err := sn.sweep(ctx); err != nil {
		t.Fatalf("sweep() error: %v", err)
	}

	jobs, err := q.StatusOf(ctx, "sched-1")
	if err != nil {
		t.Fatalf("StatusOf() error: %v", err)
	}
	// Only the launch warning is inside the window: preflight (T-3h15m) is
	// too old, confirmation and wrapup are still in the future.
	if len(jobs) != 1 {
		t.Fatalf("re-enqueued %d stages, want 1: %+v", len(jobs), jobs)
	}
	st, ok := jobs[domain.StageLaunchWarning]
	if !ok {
		t.Fatalf("launch warning not re-enqueued: %+v", jobs)
	}
	want := calendar.TriggerTime(launch, domain.StageLaunchWarning, calendar.DefaultOffsets())
	if !st.FireAt.Equal(want) {
		t.Errorf("FireAt = %s, want the original trigger %s", st.FireAt, want)
	}
}

func TestSafetyNetSweepSkipsTrackedAndSentStages(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	launch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)

	sched := domain.CampaignSchedule{
		ID:            "sched-1",
		CampaignName:  "oct-offer",
		RoundNumber:   1,
		ScheduledDate: launch,
		Status:        domain.StatusReady,
	}
	// The warning already went out; its job record is gone but the entry
	// says sent.
	if err := sched.Notifications.MarkSent(domain.StageLaunchWarning, launch.Add(-15*time.Minute), "msg-1", "ready"); err != nil {
		t.Fatal(err)
	}
	// Confirmation has a live job record.
	if err := q.Enqueue(ctx, &Job{ScheduleID: "sched-1", Stage: domain.StageLaunchConfirmation, FireAt: launch}); err != nil {
		t.Fatal(err)
	}

	sn := NewSafetyNet(&fakeLister{schedules: []domain.CampaignSchedule{sched}}, q, calendar.DefaultOffsets(), 15*time.Minute)
	setClock(launch.Add(5 * time.Minute))

	if err := sn.sweep(ctx); err != nil {
		t.Fatalf("sweep() error: %v", err)
	}

	jobs, err := q.StatusOf(ctx, "sched-1")
	if err != nil {
		t.Fatalf("StatusOf() error: %v", err)
	}
	// Still only the confirmation job: the sent warning was not resurrected
	// and the tracked confirmation was not duplicated.
	if len(jobs) != 1 {
		t.Fatalf("job view has %d stages, want 1: %+v", len(jobs), jobs)
	}
	if _, ok := jobs[domain.StageLaunchConfirmation]; !ok {
		t.Errorf("confirmation job missing: %+v", jobs)
	}
}
