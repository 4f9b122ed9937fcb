// Package orchestrator is the idempotent top-level entry for stage
// execution. Each run acquires the schedule's lock, re-reads persistent
// state, and returns without side effects when the stage already fired.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/notifier"
	"github.com/ignite/campaign-pilot/internal/ongage"
	"github.com/ignite/campaign-pilot/internal/pkg/distlock"
)

var (
	// ErrNotReady is returned when launch is attempted without a passing
	// pre-flight and without the skip flag.
	ErrNotReady = errors.New("orchestrator: schedule is not ready to launch")
	// ErrLockHeld is returned when another worker holds the schedule's lock.
	ErrLockHeld = errors.New("orchestrator: schedule lock held elsewhere")
	// ErrStageNotApplicable is returned when the schedule's status forbids
	// the stage (cancelled, already past it, or out of order).
	ErrStageNotApplicable = errors.New("orchestrator: stage not applicable in current status")
)

// Store is the persistence slice the orchestrator needs.
type Store interface {
	GetSchedule(ctx context.Context, id string) (*domain.CampaignSchedule, error)
	UpdateStatus(ctx context.Context, id string, status domain.ScheduleStatus) error
	SetExternalCampaign(ctx context.Context, id string, externalID int64) error
}

// Launcher is the platform slice the launch composite needs.
type Launcher interface {
	GetDraft(ctx context.Context, draftID string) (*ongage.Draft, error)
	SendCampaignNow(ctx context.Context, campaignID int64) (*ongage.SendResult, error)
}

// LockFactory builds the per-schedule lock. Production backs it with Redis
// (PG advisory fallback); tests inject an in-process implementation.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// WrapUpScheduler repositions a schedule's wrap-up job relative to the
// observed send.
type WrapUpScheduler interface {
	DelayWrapUp(ctx context.Context, scheduleID string, fireAt time.Time) error
}

// Result is the outcome of one stage run.
type Result struct {
	AlreadySent bool
	MessageID   string
	// Send is set by the launch composite.
	Send *ongage.SendResult
}

// Orchestrator drives stage execution.
type Orchestrator struct {
	store    Store
	notifier *notifier.Notifier
	platform Launcher
	locks    LockFactory

	wrapups      WrapUpScheduler
	wrapUpOffset time.Duration

	stageTimeout time.Duration
	lockTTL      time.Duration
}

// New creates an Orchestrator. stageTimeout bounds a whole stage run
// (default 120s); lockTTL bounds lock abandonment after a crash.
func New(store Store, n *notifier.Notifier, platform Launcher, locks LockFactory, stageTimeout, lockTTL time.Duration) *Orchestrator {
	if stageTimeout <= 0 {
		stageTimeout = 120 * time.Second
	}
	if lockTTL <= 0 {
		lockTTL = 3 * time.Minute
	}
	return &Orchestrator{
		store:        store,
		notifier:     n,
		platform:     platform,
		locks:        locks,
		stageTimeout: stageTimeout,
		lockTTL:      lockTTL,
	}
}

// SetWrapUpScheduler wires the queue hook that keeps the wrap-up stage
// trailing the observed send by offset, so a launch that fires late (manual
// or queued) still gets its wrap-up.
func (o *Orchestrator) SetWrapUpScheduler(s WrapUpScheduler, offset time.Duration) {
	o.wrapups = s
	o.wrapUpOffset = offset
}

// IsFatal reports whether a stage error is not worth retrying.
func IsFatal(err error) bool {
	return notifier.IsFatal(err) ||
		errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrStageNotApplicable) ||
		errors.Is(err, domain.ErrScheduleNotFound) ||
		errors.Is(err, domain.ErrScheduleTerminal)
}

// Run executes one stage for one schedule. The launch stage routes to the
// launch composite without the skip flag.
func (o *Orchestrator) Run(ctx context.Context, stage domain.Stage, scheduleID string) (*Result, error) {
	if stage == domain.StageLaunchConfirmation {
		return o.Launch(ctx, scheduleID, false)
	}

	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	release, err := o.acquire(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	defer release()

	sched, err := o.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if entry := sched.Notifications.Entry(stage); entry != nil && entry.Sent {
		return &Result{AlreadySent: true, MessageID: entry.ExternalMessageID}, nil
	}
	if !domain.StageMarkableFrom(stage, sched.Status) {
		log.Printf("[Orchestrator] %s not applicable for %s round %d (status %s)",
			stage, sched.CampaignName, sched.RoundNumber, sched.Status)
		return nil, fmt.Errorf("%w: stage %s, status %s", ErrStageNotApplicable, stage, sched.Status)
	}

	var out *notifier.Outcome
	switch stage {
	case domain.StagePreLaunch:
		out, err = o.notifier.PreLaunch(ctx, sched)
	case domain.StagePreFlight:
		out, err = o.notifier.PreFlight(ctx, sched)
	case domain.StageLaunchWarning:
		out, err = o.notifier.LaunchWarning(ctx, sched)
	case domain.StageWrapUp:
		out, err = o.notifier.WrapUp(ctx, sched)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStage, stage)
	}
	if err != nil {
		return nil, err
	}
	return &Result{MessageID: out.MessageID}, nil
}

// Launch runs the composite launch: require READY (or the skip flag),
// transition to LAUNCHING, instruct the platform to send, then mark SENT
// and post the confirmation. A platform failure reverts to SCHEDULED so the
// round can be re-verified and retried.
func (o *Orchestrator) Launch(ctx context.Context, scheduleID string, skipPreflight bool) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	release, err := o.acquire(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	defer release()

	sched, err := o.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if entry := sched.Notifications.Entry(domain.StageLaunchConfirmation); entry.Sent {
		return &Result{AlreadySent: true, MessageID: entry.ExternalMessageID}, nil
	}

	// A prior run may have sent but crashed before confirming.
	if sched.Status == domain.StatusSent {
		out, err := o.notifier.LaunchConfirmation(ctx, sched)
		if err != nil {
			return nil, err
		}
		return &Result{MessageID: out.MessageID}, nil
	}

	switch sched.Status {
	case domain.StatusReady:
		// Normal path.
	case domain.StatusScheduled:
		if !skipPreflight {
			return nil, fmt.Errorf("%w: status %s", ErrNotReady, sched.Status)
		}
		log.Printf("[Orchestrator] Launching %s round %d with pre-flight skipped",
			sched.CampaignName, sched.RoundNumber)
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotReady, sched.Status)
	}

	campaignID, err := o.resolveCampaignID(ctx, sched)
	if err != nil {
		return nil, err
	}

	if err := o.transition(ctx, sched, domain.StatusLaunching); err != nil {
		return nil, err
	}

	send, err := o.platform.SendCampaignNow(ctx, campaignID)
	if err != nil {
		log.Printf("[Orchestrator] Send failed for %s round %d, reverting to SCHEDULED: %v",
			sched.CampaignName, sched.RoundNumber, err)
		if revertErr := o.transition(ctx, sched, domain.StatusScheduled); revertErr != nil {
			log.Printf("[Orchestrator] Revert failed for %s: %v", scheduleID, revertErr)
		}
		return nil, fmt.Errorf("send campaign: %w", err)
	}
	log.Printf("[Orchestrator] %s round %d sent (campaign %d, queued %d)",
		sched.CampaignName, sched.RoundNumber, campaignID, send.QueuedCount)

	if err := o.transition(ctx, sched, domain.StatusSent); err != nil {
		return nil, err
	}
	o.repositionWrapUp(ctx, sched.ID)

	out, err := o.notifier.LaunchConfirmation(ctx, sched)
	if err != nil {
		// The send succeeded; only the confirmation is outstanding. A retry
		// re-enters through the StatusSent branch above.
		return nil, err
	}
	return &Result{MessageID: out.MessageID, Send: send}, nil
}

// repositionWrapUp pushes the wrap-up job to observed-send + offset. The
// queue recreates the job when the original already fired against a
// not-yet-launched schedule, so a late launch never loses its wrap-up.
func (o *Orchestrator) repositionWrapUp(ctx context.Context, scheduleID string) {
	if o.wrapups == nil {
		return
	}
	fireAt := time.Now().UTC().Add(o.wrapUpOffset)
	if err := o.wrapups.DelayWrapUp(ctx, scheduleID, fireAt); err != nil {
		log.Printf("[Orchestrator] Failed to reposition wrap-up for %s: %v", scheduleID, err)
	}
}

func (o *Orchestrator) acquire(ctx context.Context, scheduleID string) (func(), error) {
	lock := o.locks("schedule:"+scheduleID, o.lockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire schedule lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		// Release with a fresh context so an expired stage deadline cannot
		// leave the lock held until TTL.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			log.Printf("[Orchestrator] Lock release failed for %s: %v", scheduleID, err)
		}
	}, nil
}

// resolveCampaignID resolves and persists the platform campaign id from the
// attached draft on first launch.
func (o *Orchestrator) resolveCampaignID(ctx context.Context, sched *domain.CampaignSchedule) (int64, error) {
	if sched.ExternalCampaignID != nil {
		return *sched.ExternalCampaignID, nil
	}
	if sched.ExternalDraftID == nil || *sched.ExternalDraftID == "" {
		return 0, fmt.Errorf("%w: no draft attached", ErrNotReady)
	}
	draft, err := o.platform.GetDraft(ctx, *sched.ExternalDraftID)
	if err != nil {
		return 0, fmt.Errorf("resolve draft %s: %w", *sched.ExternalDraftID, err)
	}
	id := draft.ID.Int64()
	if err := o.store.SetExternalCampaign(ctx, sched.ID, id); err != nil {
		return 0, err
	}
	sched.ExternalCampaignID = &id
	return id, nil
}

func (o *Orchestrator) transition(ctx context.Context, sched *domain.CampaignSchedule, to domain.ScheduleStatus) error {
	if err := sched.Transition(to); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", sched.Status, to, err)
	}
	if err := o.store.UpdateStatus(ctx, sched.ID, to); err != nil {
		return err
	}
	return nil
}
