// Package verification runs the pre-flight checks for a scheduled round:
// platform readiness, list statistics, sender reputation, and the analysis
// pipeline in preflight mode.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ignite/campaign-pilot/internal/analysis"
	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/ongage"
)

// Status is the verification verdict.
type Status string

const (
	StatusReady   Status = "ready"
	StatusWarning Status = "warning"
	StatusBlocked Status = "blocked"
)

// ErrNoDraft is returned when the schedule has no platform draft attached.
var ErrNoDraft = errors.New("verification: schedule has no draft id")

// AIAnalysis is the model-derived portion of a verification result.
type AIAnalysis struct {
	ListQualityScore     int                     `json:"list_quality_score"`
	PreviousRoundMetrics *domain.CampaignMetrics `json:"previous_round_metrics,omitempty"`
	Recommendations      []string                `json:"recommendations"`
	Insights             []string                `json:"insights"`
	Warnings             []string                `json:"warnings"`
	Degraded             bool                    `json:"degraded"`
}

// Result is the composed pre-flight verdict.
type Result struct {
	Status  Status                         `json:"status"`
	Checks  map[ongage.ReadinessCheck]bool `json:"checks"`
	Issues  []ongage.Issue                 `json:"issues"`
	Stats   *ongage.ListStats              `json:"list_stats,omitempty"`
	AI      *AIAnalysis                    `json:"ai_analysis,omitempty"`
	Summary string                         `json:"summary,omitempty"`
}

// MailPlatform is the slice of the platform client verification needs.
type MailPlatform interface {
	VerifyReadiness(ctx context.Context, draftID string) (*ongage.Readiness, error)
	GetListStatistics(ctx context.Context, listID string) (*ongage.ListStats, error)
	GetSenderReputation(ctx context.Context, email string) (*ongage.Reputation, error)
}

// MetricsStore reads prior-round metrics for the comparison input.
type MetricsStore interface {
	LatestMetrics(ctx context.Context, campaignName string, round int) (*domain.CampaignMetrics, error)
}

// Verifier composes the platform checks with the analysis pipeline.
type Verifier struct {
	platform MailPlatform
	metrics  MetricsStore
	pipeline *analysis.Pipeline
}

// NewVerifier creates a Verifier.
func NewVerifier(platform MailPlatform, metrics MetricsStore, pipeline *analysis.Pipeline) *Verifier {
	return &Verifier{platform: platform, metrics: metrics, pipeline: pipeline}
}

// Verify runs the full pre-flight verification for a schedule, including
// the analysis pipeline. For rounds past the first, the pipeline compares
// the previous round against the one before it since the current round has
// not launched yet.
func (v *Verifier) Verify(ctx context.Context, sched *domain.CampaignSchedule) (*Result, error) {
	res, err := v.platformChecks(ctx, sched)
	if err != nil {
		return nil, err
	}

	reputation, err := v.platform.GetSenderReputation(ctx, sched.SenderEmail)
	if err != nil {
		// Reputation is advisory; the heuristics degrade without it.
		log.Printf("[Verification] Reputation lookup failed for %s: %v", sched.CampaignName, err)
		reputation = nil
	}

	in := &analysis.Input{
		Schedule:   sched,
		ListStats:  res.Stats,
		Reputation: reputation,
		Stage:      domain.StagePreFlight,
	}

	var prevMetrics *domain.CampaignMetrics
	if sched.RoundNumber > 1 {
		prev, err := v.metrics.LatestMetrics(ctx, sched.CampaignName, sched.RoundNumber-1)
		if err != nil && !errors.Is(err, domain.ErrNoMetrics) {
			return nil, fmt.Errorf("load previous round metrics: %w", err)
		}
		if prev != nil {
			prevMetrics = prev
			in.Current = prev
			if sched.RoundNumber > 2 {
				prevPrev, err := v.metrics.LatestMetrics(ctx, sched.CampaignName, sched.RoundNumber-2)
				if err != nil && !errors.Is(err, domain.ErrNoMetrics) {
					return nil, fmt.Errorf("load round %d metrics: %w", sched.RoundNumber-2, err)
				}
				in.Previous = prevPrev
			}
		}
	}

	pipelineRes := v.pipeline.Run(ctx, in)

	ai := &AIAnalysis{
		PreviousRoundMetrics: prevMetrics,
		Degraded:             pipelineRes.Degraded,
	}
	if pipelineRes.ListQuality != nil {
		ai.ListQualityScore = pipelineRes.ListQuality.HealthScore
	}
	if pipelineRes.Report != nil {
		ai.Recommendations = pipelineRes.Report.Recommendations
		ai.Insights = pipelineRes.Report.Insights
		ai.Warnings = pipelineRes.Report.Warnings
		res.Summary = pipelineRes.Report.Summary
	}
	res.AI = ai

	res.Status = decide(res.Checks, res.Issues, &ai.ListQualityScore)
	log.Printf("[Verification] %s round %d: %s (list quality %d)",
		sched.CampaignName, sched.RoundNumber, res.Status, ai.ListQualityScore)
	return res, nil
}

// QuickVerify runs only the platform checks, skipping the analysis
// pipeline. The launch-warning stage uses it as a last cheap gate.
func (v *Verifier) QuickVerify(ctx context.Context, sched *domain.CampaignSchedule) (*Result, error) {
	res, err := v.platformChecks(ctx, sched)
	if err != nil {
		return nil, err
	}
	res.Status = decide(res.Checks, res.Issues, nil)
	return res, nil
}

func (v *Verifier) platformChecks(ctx context.Context, sched *domain.CampaignSchedule) (*Result, error) {
	if sched.ExternalDraftID == nil || *sched.ExternalDraftID == "" {
		return nil, ErrNoDraft
	}

	readiness, err := v.platform.VerifyReadiness(ctx, *sched.ExternalDraftID)
	if err != nil {
		return nil, fmt.Errorf("verify readiness: %w", err)
	}

	stats, err := v.platform.GetListStatistics(ctx, sched.ExternalListID)
	if err != nil {
		return nil, fmt.Errorf("list statistics: %w", err)
	}

	res := &Result{
		Checks: readiness.Checks,
		Issues: readiness.Issues,
		Stats:  stats,
	}
	if stats.Total == 0 {
		res.Issues = append(res.Issues, ongage.Issue{Severity: "error", Message: "target list is empty"})
	}
	return res, nil
}

// decide applies the verdict rule. Blocked when any check errored, any
// required check is false, or the list quality score is below 50. Warning
// when any check warned or the score sits in [50, 70). Ready otherwise.
// A nil score (quick mode) skips the score clauses.
func decide(checks map[ongage.ReadinessCheck]bool, issues []ongage.Issue, listQualityScore *int) Status {
	for _, passed := range checks {
		if !passed {
			return StatusBlocked
		}
	}
	warning := false
	for _, issue := range issues {
		switch issue.Severity {
		case "error":
			return StatusBlocked
		case "warning":
			warning = true
		}
	}
	if listQualityScore != nil {
		if *listQualityScore < 50 {
			return StatusBlocked
		}
		if *listQualityScore < 70 {
			warning = true
		}
	}
	if warning {
		return StatusWarning
	}
	return StatusReady
}
