// Package analysis runs the assessment pipeline: five language-model agents
// composed into one dependency graph, with rule-based fallbacks when an
// agent times out or keeps returning malformed output.
package analysis

import (
	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/ongage"
)

// Input carries everything the pipeline can assess. Metrics fields are nil
// when the round has not launched yet.
type Input struct {
	Schedule   *domain.CampaignSchedule
	ListStats  *ongage.ListStats
	Reputation *ongage.Reputation

	Current  *domain.CampaignMetrics
	Previous *domain.CampaignMetrics

	Stage domain.Stage // preflight or wrapup framing for the report
}

// ListQualityResult is the ListQuality agent's assessment of the target list.
type ListQualityResult struct {
	HealthScore             int      `json:"health_score"`
	Grade                   string   `json:"grade"`
	EngagementRate          float64  `json:"engagement_rate"`
	RiskFactors             []string `json:"risk_factors"`
	Recommendation          string   `json:"recommendation"`
	EstimatedDeliverability float64  `json:"estimated_deliverability"`
}

// MetricAssessment buckets a single metric.
type MetricAssessment struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Bucket string  `json:"bucket"` // excellent, good, warning, critical
}

// Issue is a severity-ranked problem found by an agent.
type Issue struct {
	Severity string `json:"severity"` // critical, high, medium, low
	Message  string `json:"message"`
}

// DeliveryAnalysisResult grades a metrics vector.
type DeliveryAnalysisResult struct {
	Grade           string             `json:"grade"`
	Score           int                `json:"score"`
	Metrics         []MetricAssessment `json:"metrics"`
	Patterns        []string           `json:"patterns"`
	Issues          []Issue            `json:"issues"`
	Recommendations []string           `json:"recommendations"`
}

// MetricDelta is one metric's movement between rounds.
type MetricDelta struct {
	Metric       string  `json:"metric"`
	Current      float64 `json:"current"`
	Previous     float64 `json:"previous"`
	Delta        float64 `json:"delta"`
	Significance string  `json:"significance"` // none, minor, moderate, major
}

// Trend values produced by the Comparison agent.
const (
	TrendImproving  = "improving"
	TrendStable     = "stable"
	TrendDeclining  = "declining"
	TrendFirstRound = "first_round"
)

// ComparisonResult describes round-over-round movement.
type ComparisonResult struct {
	Trend      string        `json:"trend"`
	Deltas     []MetricDelta `json:"deltas"`
	Prediction string        `json:"prediction,omitempty"`
}

// RecommendationItem is one prioritized action.
type RecommendationItem struct {
	Priority string `json:"priority"` // critical, high, medium, low
	Text     string `json:"text"`
}

// OverallHealth summarizes the campaign in one score.
type OverallHealth struct {
	Score  int    `json:"score"`
	Status string `json:"status"`
	Trend  string `json:"trend"`
}

// RecommendationResult is the synthesis agent's output.
type RecommendationResult struct {
	ExecutiveSummary  string               `json:"executive_summary"`
	Overall           OverallHealth        `json:"overall_health"`
	Recommendations   []RecommendationItem `json:"recommendations"`
	Warnings          []string             `json:"warnings"`
	Opportunities     []string             `json:"opportunities"`
	NextRoundStrategy string               `json:"next_round_strategy,omitempty"`
}

// ReportResult is the stage-facing formatted assessment.
type ReportResult struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Warnings        []string `json:"warnings"`
	NextSteps       []string `json:"next_steps"`
}

// Result aggregates the pipeline output. Degraded is set when any agent
// failed and its slot was filled by rule-based heuristics.
type Result struct {
	ListQuality    *ListQualityResult
	Delivery       *DeliveryAnalysisResult
	Comparison     *ComparisonResult
	Recommendation *RecommendationResult
	Report         *ReportResult

	Degraded     bool
	FailedAgents []string
}
