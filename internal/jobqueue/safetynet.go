package jobqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/campaign-pilot/internal/calendar"
	"github.com/ignite/campaign-pilot/internal/domain"
)

// ScheduleLister is the persistence slice the safety net scans.
type ScheduleLister interface {
	ListActive(ctx context.Context) ([]domain.CampaignSchedule, error)
}

// SafetyNet is the optional polling backstop behind the durable queue: it
// re-enqueues a stage whose trigger time passed inside the window but whose
// job record is gone (lost queue backend, operator flush). The
// orchestrator's idempotence makes double-enqueueing harmless.
type SafetyNet struct {
	store   ScheduleLister
	queue   *Queue
	offsets calendar.Offsets
	window  time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewSafetyNet creates the poller. The window must be at least as wide as
// the longest expected scheduler stall.
func NewSafetyNet(store ScheduleLister, queue *Queue, offsets calendar.Offsets, window time.Duration) *SafetyNet {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &SafetyNet{store: store, queue: queue, offsets: offsets, window: window}
}

// Start begins polling at half the window width.
func (sn *SafetyNet) Start() error {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	if sn.running {
		return fmt.Errorf("safety net already running")
	}
	sn.running = true
	sn.ctx, sn.cancel = context.WithCancel(context.Background())

	log.Printf("[SafetyNet] Starting (window %v)", sn.window)
	sn.wg.Add(1)
	go sn.pollLoop()
	return nil
}

// Stop halts polling.
func (sn *SafetyNet) Stop() {
	sn.mu.Lock()
	if !sn.running {
		sn.mu.Unlock()
		return
	}
	sn.running = false
	sn.mu.Unlock()

	sn.cancel()
	sn.wg.Wait()
}

func (sn *SafetyNet) pollLoop() {
	defer sn.wg.Done()

	ticker := time.NewTicker(sn.window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-sn.ctx.Done():
			return
		case <-ticker.C:
			if err := sn.sweep(sn.ctx); err != nil && sn.ctx.Err() == nil {
				log.Printf("[SafetyNet] Sweep failed: %v", err)
			}
		}
	}
}

// sweep re-enqueues stages that came due inside the window without a job.
func (sn *SafetyNet) sweep(ctx context.Context) error {
	schedules, err := sn.store.ListActive(ctx)
	if err != nil {
		return err
	}

	now := sn.queue.now().UTC()
	for _, sched := range schedules {
		jobs, err := sn.queue.StatusOf(ctx, sched.ID)
		if err != nil {
			return err
		}
		for _, stage := range domain.AllStages() {
			entry := sched.Notifications.Entry(stage)
			if entry == nil || entry.Sent {
				continue
			}
			fireAt := calendar.TriggerTime(sched.ScheduledDate, stage, sn.offsets)
			if fireAt.After(now) || now.Sub(fireAt) > sn.window {
				continue
			}
			if _, tracked := jobs[stage]; tracked {
				continue
			}
			log.Printf("[SafetyNet] Re-enqueueing %s/%s (due %s, no job record)",
				sched.CampaignName, stage, fireAt.Format(time.RFC3339))
			if err := sn.queue.Enqueue(ctx, &Job{
				ScheduleID: sched.ID,
				Stage:      stage,
				FireAt:     fireAt,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
