// Package metrics collects post-send statistics from the mail platform,
// derives rates, persists an immutable snapshot, and runs the analysis
// pipeline in wrapup mode.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/campaign-pilot/internal/analysis"
	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/ongage"
)

// ErrNotLaunched is returned when collection is attempted for a schedule
// that never launched (no external campaign id).
var ErrNotLaunched = errors.New("metrics: schedule has no external campaign id")

// MailPlatform is the slice of the platform client the collector needs.
type MailPlatform interface {
	GetDetailedStatistics(ctx context.Context, campaignID int64) (*ongage.DetailedStats, error)
}

// Store persists snapshots and serves prior rounds for comparison.
type Store interface {
	AppendMetrics(ctx context.Context, m *domain.CampaignMetrics) error
	LatestMetrics(ctx context.Context, campaignName string, round int) (*domain.CampaignMetrics, error)
}

// Collection is the result of one collect run.
type Collection struct {
	Persisted *domain.CampaignMetrics
	Previous  *domain.CampaignMetrics
	Analysis  *analysis.Result
}

// Collector fetches, derives, persists, and analyzes round metrics.
type Collector struct {
	platform MailPlatform
	store    Store
	pipeline *analysis.Pipeline
}

// NewCollector creates a Collector.
func NewCollector(platform MailPlatform, store Store, pipeline *analysis.Pipeline) *Collector {
	return &Collector{platform: platform, store: store, pipeline: pipeline}
}

// Collect fetches the campaign's current statistics, persists a snapshot
// with derived rates, and runs the wrapup analysis against the previous
// round when one exists.
func (c *Collector) Collect(ctx context.Context, sched *domain.CampaignSchedule) (*Collection, error) {
	if sched.ExternalCampaignID == nil {
		return nil, ErrNotLaunched
	}

	stats, err := c.platform.GetDetailedStatistics(ctx, *sched.ExternalCampaignID)
	if err != nil {
		return nil, fmt.Errorf("fetch statistics: %w", err)
	}

	m := fromPlatform(sched, stats)
	if err := c.store.AppendMetrics(ctx, m); err != nil {
		return nil, fmt.Errorf("persist metrics: %w", err)
	}
	log.Printf("[Metrics] %s round %d: processed=%d delivered=%d (%.2f%%) bounced=%d",
		sched.CampaignName, sched.RoundNumber, m.Processed, m.Delivered, m.DeliveryRate, m.Bounced)

	var prev *domain.CampaignMetrics
	if sched.RoundNumber > 1 {
		p, err := c.store.LatestMetrics(ctx, sched.CampaignName, sched.RoundNumber-1)
		if err != nil && !errors.Is(err, domain.ErrNoMetrics) {
			return nil, fmt.Errorf("load previous round metrics: %w", err)
		}
		prev = p
	}

	res := c.pipeline.Run(ctx, &analysis.Input{
		Schedule: sched,
		Current:  m,
		Previous: prev,
		Stage:    domain.StageWrapUp,
	})

	return &Collection{Persisted: m, Previous: prev, Analysis: res}, nil
}

// fromPlatform maps the platform's raw counters onto a snapshot with
// derived rates.
func fromPlatform(sched *domain.CampaignSchedule, stats *ongage.DetailedStats) *domain.CampaignMetrics {
	m := &domain.CampaignMetrics{
		ScheduleID:         sched.ID,
		ExternalCampaignID: *sched.ExternalCampaignID,
		Processed:          stats.Processed.Int64(),
		Delivered:          stats.Delivered.Int64(),
		Bounced:            stats.Bounced.Int64(),
		HardBounces:        stats.HardBounces.Int64(),
		SoftBounces:        stats.SoftBounces.Int64(),
		Blocked:            stats.Blocked.Int64(),
		Queued:             stats.Queued.Int64(),
		Opened:             stats.Opened.Int64(),
		Clicked:            stats.Clicked.Int64(),
		Unsubscribed:       stats.Unsubscribed.Int64(),
		Complained:         stats.Complained.Int64(),
		CollectedAt:        time.Now().UTC(),
	}
	m.SendStartAt, m.SendEndAt = stats.SendWindow()
	m.DeriveRates()
	return m
}
