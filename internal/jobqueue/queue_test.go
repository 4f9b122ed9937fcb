package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-pilot/internal/calendar"
	"github.com/ignite/campaign-pilot/internal/domain"
)

func setupQueue(t *testing.T) (*Queue, *redis.Client, func(time.Time)) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	q := NewQueue(rdb, calendar.DefaultOffsets(), time.Minute)

	var mu sync.Mutex
	clock := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	})
	setClock := func(at time.Time) {
		mu.Lock()
		clock = at
		mu.Unlock()
	}
	return q, rdb, setClock
}

func TestEnqueueStages(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()
	launch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)

	if err := q.EnqueueStages(ctx, "sched-1", launch); err != nil {
		t.Fatalf("EnqueueStages() error: %v", err)
	}

	jobs, err := q.StatusOf(ctx, "sched-1")
	if err != nil {
		t.Fatalf("StatusOf() error: %v", err)
	}
	if len(jobs) != 5 {
		t.Fatalf("got %d stage jobs, want 5", len(jobs))
	}

	offsets := calendar.DefaultOffsets()
	for _, stage := range domain.AllStages() {
		st, ok := jobs[stage]
		if !ok {
			t.Errorf("stage %s has no job", stage)
			continue
		}
		if st.State != StateDelayed {
			t.Errorf("stage %s: State = %s, want delayed", stage, st.State)
		}
		want := calendar.TriggerTime(launch, stage, offsets)
		if !st.FireAt.Equal(want) {
			t.Errorf("stage %s: FireAt = %s, want %s", stage, st.FireAt, want)
		}
	}
}

func TestStatusPromotesDueJobsToPending(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	launch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)

	if err := q.EnqueueStages(ctx, "sched-1", launch); err != nil {
		t.Fatalf("EnqueueStages() error: %v", err)
	}

	// Between prelaunch (T-21h) and preflight (T-3h15m).
	setClock(launch.Add(-10 * time.Hour))

	jobs, err := q.StatusOf(ctx, "sched-1")
	if err != nil {
		t.Fatalf("StatusOf() error: %v", err)
	}
	if jobs[domain.StagePreLaunch].State != StatePending {
		t.Errorf("prelaunch State = %s, want pending", jobs[domain.StagePreLaunch].State)
	}
	if jobs[domain.StagePreFlight].State != StateDelayed {
		t.Errorf("preflight State = %s, want delayed", jobs[domain.StagePreFlight].State)
	}
}

func TestClaimRespectsFireTime(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	fireAt := time.Date(2025, 10, 2, 6, 0, 0, 0, time.UTC)

	job := &Job{ScheduleID: "sched-1", Stage: domain.StagePreFlight, FireAt: fireAt}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	setClock(fireAt.Add(-time.Second))
	claimed, err := q.claimDue(ctx, 10)
	if err != nil {
		t.Fatalf("claimDue() error: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d jobs before fire time", len(claimed))
	}

	setClock(fireAt)
	claimed, err = q.claimDue(ctx, 10)
	if err != nil {
		t.Fatalf("claimDue() error: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d jobs at fire time, want 1", len(claimed))
	}
	if claimed[0].Stage != domain.StagePreFlight {
		t.Errorf("claimed stage = %s", claimed[0].Stage)
	}

	jobs, _ := q.StatusOf(ctx, "sched-1")
	if jobs[domain.StagePreFlight].State != StateActive {
		t.Errorf("State = %s, want active", jobs[domain.StagePreFlight].State)
	}

	// The claim is exclusive; a second claim finds nothing.
	claimed, err = q.claimDue(ctx, 10)
	if err != nil {
		t.Fatalf("claimDue() error: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("second claim returned %d jobs", len(claimed))
	}
}

func TestCompleteRemovesJob(t *testing.T) {
	q, rdb, setClock := setupQueue(t)
	ctx := context.Background()
	fireAt := time.Date(2025, 10, 2, 6, 0, 0, 0, time.UTC)

	job := &Job{ScheduleID: "sched-1", Stage: domain.StagePreFlight, FireAt: fireAt}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	setClock(fireAt)
	claimed, err := q.claimDue(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claimDue: %v, %d jobs", err, len(claimed))
	}

	if err := q.complete(ctx, claimed[0]); err != nil {
		t.Fatalf("complete() error: %v", err)
	}

	jobs, _ := q.StatusOf(ctx, "sched-1")
	if jobs[domain.StagePreFlight].State != StateCompleted {
		t.Errorf("State = %s, want completed", jobs[domain.StagePreFlight].State)
	}
	if n, _ := rdb.HLen(ctx, keyData).Result(); n != 0 {
		t.Errorf("job data not cleaned up: %d entries", n)
	}
}

func TestFailRetriesThenDeadLetters(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	fireAt := time.Date(2025, 10, 2, 6, 0, 0, 0, time.UTC)

	if err := q.Enqueue(ctx, &Job{ScheduleID: "sched-1", Stage: domain.StagePreFlight, FireAt: fireAt}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	now := fireAt
	cause := errors.New("chat service unavailable")
	wantDelays := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

	for attempt, delay := range wantDelays {
		setClock(now)
		claimed, err := q.claimDue(ctx, 1)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("attempt %d: claimDue: %v, %d jobs", attempt+1, err, len(claimed))
		}
		if claimed[0].Retries != attempt {
			t.Errorf("attempt %d: Retries = %d, want %d", attempt+1, claimed[0].Retries, attempt)
		}
		if err := q.fail(ctx, claimed[0], cause, false); err != nil {
			t.Fatalf("fail() error: %v", err)
		}

		jobs, _ := q.StatusOf(ctx, "sched-1")
		st := jobs[domain.StagePreFlight]
		if st.State != StateDelayed {
			t.Errorf("attempt %d: State = %s, want delayed", attempt+1, st.State)
		}
		if want := now.Add(delay); !st.FireAt.Equal(want) {
			t.Errorf("attempt %d: FireAt = %s, want %s", attempt+1, st.FireAt, want)
		}
		now = st.FireAt
	}

	// Retry budget exhausted: the fourth failure dead-letters.
	setClock(now)
	claimed, err := q.claimDue(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("final claim: %v, %d jobs", err, len(claimed))
	}
	if err := q.fail(ctx, claimed[0], cause, false); err != nil {
		t.Fatalf("fail() error: %v", err)
	}

	jobs, _ := q.StatusOf(ctx, "sched-1")
	if jobs[domain.StagePreFlight].State != StateFailed {
		t.Errorf("State = %s, want failed", jobs[domain.StagePreFlight].State)
	}

	dead, err := q.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("DeadLetters() error: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("got %d dead letters, want exactly 1", len(dead))
	}
	if dead[0].Retries != 3 || dead[0].LastError == "" {
		t.Errorf("dead letter = %+v", dead[0])
	}

	// Nothing left to claim.
	setClock(now.Add(time.Hour))
	claimed, _ = q.claimDue(ctx, 10)
	if len(claimed) != 0 {
		t.Errorf("dead-lettered job was claimed again")
	}
}

func TestFailPermanentSkipsRetries(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	fireAt := time.Date(2025, 10, 2, 6, 0, 0, 0, time.UTC)

	if err := q.Enqueue(ctx, &Job{ScheduleID: "sched-1", Stage: domain.StageWrapUp, FireAt: fireAt}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	setClock(fireAt)
	claimed, err := q.claimDue(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claimDue: %v, %d jobs", err, len(claimed))
	}

	if err := q.fail(ctx, claimed[0], errors.New("schedule is terminal"), true); err != nil {
		t.Fatalf("fail() error: %v", err)
	}

	dead, _ := q.DeadLetters(ctx, 10)
	if len(dead) != 1 {
		t.Fatalf("got %d dead letters, want 1", len(dead))
	}
	if dead[0].Retries != 0 {
		t.Errorf("Retries = %d, want 0 (no retry budget spent)", dead[0].Retries)
	}
}

func TestCancelJobsFor(t *testing.T) {
	q, rdb, setClock := setupQueue(t)
	ctx := context.Background()
	launch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)

	if err := q.EnqueueStages(ctx, "sched-1", launch); err != nil {
		t.Fatalf("EnqueueStages() error: %v", err)
	}
	if err := q.EnqueueStages(ctx, "sched-2", launch); err != nil {
		t.Fatalf("EnqueueStages() error: %v", err)
	}

	if err := q.CancelJobsFor(ctx, "sched-1"); err != nil {
		t.Fatalf("CancelJobsFor() error: %v", err)
	}

	jobs, err := q.StatusOf(ctx, "sched-1")
	if err != nil {
		t.Fatalf("StatusOf() error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("cancelled schedule still tracks %d jobs", len(jobs))
	}

	// The other schedule is untouched, and only its jobs remain claimable.
	setClock(launch.Add(time.Hour))
	claimed, err := q.claimDue(ctx, 100)
	if err != nil {
		t.Fatalf("claimDue() error: %v", err)
	}
	if len(claimed) != 5 {
		t.Fatalf("claimed %d jobs, want the 5 of sched-2", len(claimed))
	}
	for _, job := range claimed {
		if job.ScheduleID != "sched-2" {
			t.Errorf("claimed job for %s after cancellation", job.ScheduleID)
		}
	}
	if n, _ := rdb.Exists(ctx, keySchedule+"sched-1").Result(); n != 0 {
		t.Error("schedule index for sched-1 not removed")
	}
}

func TestRescheduleJobsFor(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()
	oldLaunch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)
	newLaunch := time.Date(2025, 10, 7, 9, 15, 0, 0, time.UTC)

	if err := q.EnqueueStages(ctx, "sched-1", oldLaunch); err != nil {
		t.Fatalf("EnqueueStages() error: %v", err)
	}
	if err := q.RescheduleJobsFor(ctx, "sched-1", newLaunch); err != nil {
		t.Fatalf("RescheduleJobsFor() error: %v", err)
	}

	jobs, err := q.StatusOf(ctx, "sched-1")
	if err != nil {
		t.Fatalf("StatusOf() error: %v", err)
	}
	if len(jobs) != 5 {
		t.Fatalf("got %d jobs after reschedule, want 5", len(jobs))
	}
	want := calendar.TriggerTime(newLaunch, domain.StagePreFlight, calendar.DefaultOffsets())
	if got := jobs[domain.StagePreFlight].FireAt; !got.Equal(want) {
		t.Errorf("preflight FireAt = %s, want %s", got, want)
	}
}

func TestDelayWrapUp(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()
	launch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)

	if err := q.EnqueueStages(ctx, "sched-1", launch); err != nil {
		t.Fatalf("EnqueueStages() error: %v", err)
	}
	originalWrapUp := calendar.TriggerTime(launch, domain.StageWrapUp, calendar.DefaultOffsets())

	// An earlier target is a no-op.
	if err := q.DelayWrapUp(ctx, "sched-1", originalWrapUp.Add(-10*time.Minute)); err != nil {
		t.Fatalf("DelayWrapUp() error: %v", err)
	}
	jobs, _ := q.StatusOf(ctx, "sched-1")
	if got := jobs[domain.StageWrapUp].FireAt; !got.Equal(originalWrapUp) {
		t.Errorf("earlier DelayWrapUp moved FireAt to %s", got)
	}

	// A later launch pushes the wrap-up out.
	bumped := originalWrapUp.Add(45 * time.Minute)
	if err := q.DelayWrapUp(ctx, "sched-1", bumped); err != nil {
		t.Fatalf("DelayWrapUp() error: %v", err)
	}
	jobs, _ = q.StatusOf(ctx, "sched-1")
	if got := jobs[domain.StageWrapUp].FireAt; !got.Equal(bumped) {
		t.Errorf("FireAt = %s, want %s", got, bumped)
	}

	// Other stages keep their fire times.
	wantWarn := calendar.TriggerTime(launch, domain.StageLaunchWarning, calendar.DefaultOffsets())
	if got := jobs[domain.StageLaunchWarning].FireAt; !got.Equal(wantWarn) {
		t.Errorf("launch warning FireAt moved to %s", got)
	}
}

func TestDelayWrapUpRecreatesDeadLetteredJob(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	originalWrapUp := time.Date(2025, 10, 2, 9, 45, 0, 0, time.UTC)

	// The planned wrap-up fires before the round has launched and
	// dead-letters as not applicable.
	if err := q.Enqueue(ctx, &Job{ScheduleID: "sched-1", Stage: domain.StageWrapUp, FireAt: originalWrapUp}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	setClock(originalWrapUp)
	claimed, err := q.claimDue(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claimDue: %v, %d jobs", err, len(claimed))
	}
	if err := q.fail(ctx, claimed[0], errors.New("stage not applicable in current status"), true); err != nil {
		t.Fatalf("fail() error: %v", err)
	}

	// A manual launch 45 minutes late repositions the wrap-up; with the
	// original job gone a fresh one is enqueued at the observed send + 30m.
	fireAt := originalWrapUp.Add(45 * time.Minute).Add(30 * time.Minute)
	if err := q.DelayWrapUp(ctx, "sched-1", fireAt); err != nil {
		t.Fatalf("DelayWrapUp() error: %v", err)
	}

	jobs, err := q.StatusOf(ctx, "sched-1")
	if err != nil {
		t.Fatalf("StatusOf() error: %v", err)
	}
	st := jobs[domain.StageWrapUp]
	if st.State != StateDelayed {
		t.Errorf("State = %s, want delayed", st.State)
	}
	if !st.FireAt.Equal(fireAt) {
		t.Errorf("FireAt = %s, want %s", st.FireAt, fireAt)
	}

	setClock(fireAt)
	claimed, err = q.claimDue(ctx, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("re-claim: %v, %d jobs", err, len(claimed))
	}
	if claimed[0].Stage != domain.StageWrapUp {
		t.Errorf("claimed stage = %s, want wrapup", claimed[0].Stage)
	}
}

func TestReapExpiredLeases(t *testing.T) {
	q, _, setClock := setupQueue(t)
	ctx := context.Background()
	fireAt := time.Date(2025, 10, 2, 6, 0, 0, 0, time.UTC)

	if err := q.Enqueue(ctx, &Job{ScheduleID: "sched-1", Stage: domain.StagePreFlight, FireAt: fireAt}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	setClock(fireAt)
	if claimed, _ := q.claimDue(ctx, 1); len(claimed) != 1 {
		t.Fatal("claim failed")
	}

	// Within the lease the job stays invisible.
	if n, err := q.reapExpired(ctx, 10); err != nil || n != 0 {
		t.Fatalf("reapExpired inside lease: n=%d err=%v", n, err)
	}

	// After the lease it is re-deliverable.
	setClock(fireAt.Add(2 * time.Minute))
	if n, err := q.reapExpired(ctx, 10); err != nil || n != 1 {
		t.Fatalf("reapExpired after lease: n=%d err=%v", n, err)
	}
	claimed, err := q.claimDue(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("re-claim after reap: %v, %d jobs", err, len(claimed))
	}
}

func TestPermanentClassification(t *testing.T) {
	if isPermanent(errors.New("transient")) {
		t.Error("plain error classified permanent")
	}
	if !isPermanent(Permanent(errors.New("fatal"))) {
		t.Error("Permanent() not classified permanent")
	}
	wrapped := fmt.Errorf("stage run: %w", Permanent(errors.New("fatal")))
	if !isPermanent(wrapped) {
		t.Error("wrapped permanent error not detected")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
