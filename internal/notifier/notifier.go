// Package notifier posts the five stage notifications and records every
// attempt. One call makes exactly one post attempt; the job scheduler owns
// the retry cadence, so the retry budget stays at three attempts per stage
// no matter where the call came from.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/metrics"
	"github.com/ignite/campaign-pilot/internal/slack"
	"github.com/ignite/campaign-pilot/internal/verification"
)

// ChatPoster posts block messages to the operations channel.
type ChatPoster interface {
	PostMessage(ctx context.Context, channel string, blocks []slack.Block, fallback string) (*slack.PostResult, error)
}

// Store is the persistence slice the notifier needs.
type Store interface {
	UpdateStatus(ctx context.Context, id string, status domain.ScheduleStatus) error
	UpdateNotification(ctx context.Context, id string, mutate func(*domain.NotificationStatus) error) error
	AppendLog(ctx context.Context, entry *domain.NotificationLog) error
	NextAttempt(ctx context.Context, scheduleID string, stage domain.Stage) (int, error)
}

// StageError classifies a stage failure for retry accounting.
type StageError struct {
	Fatal bool
	Err   error
}

func (e *StageError) Error() string {
	kind := "retryable"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("notifier: %s stage failure: %v", kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a stage failure that retrying cannot fix.
func IsFatal(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Fatal
	}
	return false
}

// Outcome describes a successfully delivered stage notification.
type Outcome struct {
	MessageID string
	Attempt   int
	// Verification carries the pre-flight verdict when the stage ran one.
	Verification *verification.Result
	// Metrics carries the wrap-up collection when the stage ran one.
	Metrics *metrics.Collection
}

// Notifier builds and delivers stage notifications.
type Notifier struct {
	store    Store
	chat     ChatPoster
	channel  string
	verifier *verification.Verifier
	collect  *metrics.Collector
	now      func() time.Time
}

// NewNotifier creates a Notifier posting to the given channel.
func NewNotifier(store Store, chat ChatPoster, channel string, verifier *verification.Verifier, collector *metrics.Collector) *Notifier {
	return &Notifier{
		store:    store,
		chat:     chat,
		channel:  channel,
		verifier: verifier,
		collect:  collector,
		now:      time.Now,
	}
}

// SetClock overrides the notifier's clock. Tests only.
func (n *Notifier) SetClock(now func() time.Time) { n.now = now }

// PreLaunch posts the T-21h announcement. No data collaborators, no state
// transition.
func (n *Notifier) PreLaunch(ctx context.Context, sched *domain.CampaignSchedule) (*Outcome, error) {
	blocks, fallback := renderPreLaunch(sched)
	return n.deliver(ctx, sched, domain.StagePreLaunch, blocks, fallback, "sent")
}

// PreFlight runs full verification, posts the readiness report, and drives
// the SCHEDULED -> READY or SCHEDULED -> BLOCKED transition.
func (n *Notifier) PreFlight(ctx context.Context, sched *domain.CampaignSchedule) (*Outcome, error) {
	res, err := n.verifier.Verify(ctx, sched)
	if err != nil {
		if errors.Is(err, verification.ErrNoDraft) {
			return nil, &StageError{Fatal: true, Err: err}
		}
		return nil, &StageError{Err: fmt.Errorf("verify: %w", err)}
	}

	blocks, fallback := renderPreFlight(sched, res)
	out, err := n.deliver(ctx, sched, domain.StagePreFlight, blocks, fallback, string(res.Status))
	if err != nil {
		return nil, err
	}
	out.Verification = res

	next := domain.StatusReady
	if res.Status == verification.StatusBlocked {
		next = domain.StatusBlocked
	}
	if err := n.transition(ctx, sched, next); err != nil {
		return nil, err
	}
	return out, nil
}

// LaunchWarning posts the T-15m countdown after a quick (no-model)
// verification. A blocked quick check holds the launch by driving
// READY -> BLOCKED.
func (n *Notifier) LaunchWarning(ctx context.Context, sched *domain.CampaignSchedule) (*Outcome, error) {
	res, err := n.verifier.QuickVerify(ctx, sched)
	if err != nil {
		if errors.Is(err, verification.ErrNoDraft) {
			return nil, &StageError{Fatal: true, Err: err}
		}
		return nil, &StageError{Err: fmt.Errorf("quick verify: %w", err)}
	}

	blocks, fallback := renderLaunchWarning(sched, res)
	out, err := n.deliver(ctx, sched, domain.StageLaunchWarning, blocks, fallback, string(res.Status))
	if err != nil {
		return nil, err
	}
	out.Verification = res

	if res.Status == verification.StatusBlocked {
		if err := n.transition(ctx, sched, domain.StatusBlocked); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LaunchConfirmation posts the T+0 confirmation. The launch composite owns
// the LAUNCHING -> SENT transition; this only reports it.
func (n *Notifier) LaunchConfirmation(ctx context.Context, sched *domain.CampaignSchedule) (*Outcome, error) {
	blocks, fallback := renderLaunchConfirmation(sched)
	return n.deliver(ctx, sched, domain.StageLaunchConfirmation, blocks, fallback, "sent")
}

// WrapUp collects post-send metrics, posts the performance report, and
// drives SENT -> COMPLETED.
func (n *Notifier) WrapUp(ctx context.Context, sched *domain.CampaignSchedule) (*Outcome, error) {
	col, err := n.collect.Collect(ctx, sched)
	if err != nil {
		if errors.Is(err, metrics.ErrNotLaunched) {
			return nil, &StageError{Fatal: true, Err: err}
		}
		return nil, &StageError{Err: fmt.Errorf("collect: %w", err)}
	}

	blocks, fallback := renderWrapUp(sched, col)
	out, err := n.deliver(ctx, sched, domain.StageWrapUp, blocks, fallback, "sent")
	if err != nil {
		return nil, err
	}
	out.Metrics = col

	if err := n.transition(ctx, sched, domain.StatusCompleted); err != nil {
		return nil, err
	}
	return out, nil
}

// deliver makes one post attempt, appends the attempt's log row, and on
// success flips the stage's notification entry. Log first, then flip: a
// crash between the two leaves an unflipped entry and a SUCCESS row, which
// the next idempotent run resolves without reposting externally visible
// state changes beyond the duplicate message the at-least-once queue
// already permits.
func (n *Notifier) deliver(ctx context.Context, sched *domain.CampaignSchedule, stage domain.Stage, blocks []slack.Block, fallback, entryStatus string) (*Outcome, error) {
	attempt, err := n.store.NextAttempt(ctx, sched.ID, stage)
	if err != nil {
		return nil, &StageError{Err: fmt.Errorf("next attempt: %w", err)}
	}

	result, postErr := n.chat.PostMessage(ctx, n.channel, blocks, fallback)
	if postErr != nil {
		logEntry := &domain.NotificationLog{
			ScheduleID:   sched.ID,
			Stage:        stage,
			Attempt:      attempt,
			Status:       domain.LogFailure,
			ErrorMessage: postErr.Error(),
			SentAt:       n.now().UTC(),
		}
		if logErr := n.store.AppendLog(ctx, logEntry); logErr != nil {
			log.Printf("[Notifier] Failed to record failure for %s/%s attempt %d: %v",
				sched.ID, stage, attempt, logErr)
		}
		log.Printf("[Notifier] %s %s attempt %d failed: %v", sched.CampaignName, stage, attempt, postErr)
		return nil, &StageError{Fatal: !slack.Retryable(postErr), Err: postErr}
	}

	if err := n.store.AppendLog(ctx, &domain.NotificationLog{
		ScheduleID:        sched.ID,
		Stage:             stage,
		Attempt:           attempt,
		Status:            domain.LogSuccess,
		ExternalMessageID: result.MessageID,
		SentAt:            n.now().UTC(),
	}); err != nil {
		return nil, &StageError{Err: fmt.Errorf("record success: %w", err)}
	}

	err = n.store.UpdateNotification(ctx, sched.ID, func(ns *domain.NotificationStatus) error {
		return ns.MarkSent(stage, n.now(), result.MessageID, entryStatus)
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyNotified) {
		return nil, &StageError{Err: fmt.Errorf("mark sent: %w", err)}
	}
	if mErr := sched.Notifications.MarkSent(stage, n.now(), result.MessageID, entryStatus); mErr != nil && !errors.Is(mErr, domain.ErrAlreadyNotified) {
		return nil, &StageError{Fatal: true, Err: mErr}
	}

	log.Printf("[Notifier] %s %s posted (attempt %d, message %s)",
		sched.CampaignName, stage, attempt, result.MessageID)
	return &Outcome{MessageID: result.MessageID, Attempt: attempt}, nil
}

// transition validates the edge in memory, then persists it.
func (n *Notifier) transition(ctx context.Context, sched *domain.CampaignSchedule, to domain.ScheduleStatus) error {
	if err := sched.Transition(to); err != nil {
		return &StageError{Fatal: true, Err: fmt.Errorf("transition to %s: %w", to, err)}
	}
	if err := n.store.UpdateStatus(ctx, sched.ID, to); err != nil {
		return &StageError{Err: fmt.Errorf("persist status %s: %w", to, err)}
	}
	log.Printf("[Notifier] %s round %d -> %s", sched.CampaignName, sched.RoundNumber, to)
	return nil
}
