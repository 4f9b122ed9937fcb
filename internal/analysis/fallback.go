package analysis

import (
	"fmt"
	"math"

	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/ongage"
)

// Rule-based heuristics used when an agent is unavailable. Thresholds track
// common deliverability guidance: 95%+ delivery is healthy, 2%+ bounce is
// trouble, complaint rates matter at a tenth of a percent.

func fallbackListQuality(stats *ongage.ListStats, rep *ongage.Reputation) *ListQualityResult {
	out := &ListQualityResult{
		HealthScore:             70,
		Grade:                   "C",
		Recommendation:          "List statistics unavailable; proceed with caution",
		EstimatedDeliverability: 90,
	}
	if stats == nil {
		out.RiskFactors = append(out.RiskFactors, "list statistics unavailable")
		return out
	}

	score := 100.0
	if stats.Total > 0 {
		subscribedPct := float64(stats.Subscribed) / float64(stats.Total) * 100
		out.EngagementRate = subscribedPct
		if subscribedPct < 50 {
			score -= 30
			out.RiskFactors = append(out.RiskFactors, fmt.Sprintf("only %.1f%% of the list is subscribed", subscribedPct))
		} else if subscribedPct < 80 {
			score -= 10
		}

		blockedPct := float64(stats.Blocked) / float64(stats.Total) * 100
		if blockedPct > 5 {
			score -= 25
			out.RiskFactors = append(out.RiskFactors, fmt.Sprintf("%.1f%% of the list is blocked", blockedPct))
		} else if blockedPct > 1 {
			score -= 10
		}

		bouncePct := float64(stats.RecentBounces) / float64(stats.Total) * 100
		if bouncePct > 2 {
			score -= 20
			out.RiskFactors = append(out.RiskFactors, fmt.Sprintf("recent bounce rate %.1f%% exceeds 2%%", bouncePct))
		}
	}
	if rep != nil {
		if rep.Score < 50 {
			score -= 25
			out.RiskFactors = append(out.RiskFactors, fmt.Sprintf("sender reputation %.0f is poor", rep.Score))
		} else if rep.Score < 70 {
			score -= 10
			out.RiskFactors = append(out.RiskFactors, fmt.Sprintf("sender reputation %.0f needs attention", rep.Score))
		}
		if rep.Trend == "declining" {
			score -= 5
			out.RiskFactors = append(out.RiskFactors, "sender reputation trending down")
		}
	}

	out.HealthScore = clampScore(score)
	out.Grade = gradeFor(out.HealthScore)
	out.EstimatedDeliverability = math.Min(99, float64(out.HealthScore)+10)
	switch {
	case out.HealthScore >= 80:
		out.Recommendation = "List is healthy; clear to send"
	case out.HealthScore >= 60:
		out.Recommendation = "List is sendable but review the risk factors before launch"
	default:
		out.Recommendation = "List quality is poor; hold the send and clean the list"
	}
	return out
}

func fallbackDelivery(m *domain.CampaignMetrics) *DeliveryAnalysisResult {
	out := &DeliveryAnalysisResult{}

	out.Metrics = append(out.Metrics,
		MetricAssessment{Metric: "delivery_rate", Value: m.DeliveryRate, Bucket: bucketHighGood(m.DeliveryRate, 98, 95, 90)},
		MetricAssessment{Metric: "bounce_rate", Value: m.BounceRate, Bucket: bucketLowGood(m.BounceRate, 0.5, 2, 5)},
		MetricAssessment{Metric: "hard_bounce_rate", Value: m.HardBounceRate, Bucket: bucketLowGood(m.HardBounceRate, 0.2, 1, 2)},
	)
	if m.OpenRate != nil {
		out.Metrics = append(out.Metrics,
			MetricAssessment{Metric: "open_rate", Value: *m.OpenRate, Bucket: bucketHighGood(*m.OpenRate, 25, 15, 8)})
	}
	if m.ClickRate != nil {
		out.Metrics = append(out.Metrics,
			MetricAssessment{Metric: "click_rate", Value: *m.ClickRate, Bucket: bucketHighGood(*m.ClickRate, 3, 1.5, 0.5)})
	}

	score := 100.0
	for _, a := range out.Metrics {
		switch a.Bucket {
		case "warning":
			score -= 10
		case "critical":
			score -= 25
		}
	}
	out.Score = clampScore(score)
	out.Grade = gradeFor(out.Score)

	if m.HardBounceRate > 1 {
		out.Issues = append(out.Issues, Issue{Severity: "high",
			Message: fmt.Sprintf("hard bounce rate %.2f%% exceeds 1%%; list hygiene needed", m.HardBounceRate)})
		out.Recommendations = append(out.Recommendations, "Suppress hard bounces before the next round")
	}
	if m.DeliveryRate < 95 && m.Processed > 0 {
		out.Issues = append(out.Issues, Issue{Severity: "critical",
			Message: fmt.Sprintf("delivery rate %.2f%% is below 95%%", m.DeliveryRate)})
		out.Recommendations = append(out.Recommendations, "Investigate blocks and bounces with the mailbox providers")
	}
	if m.Complained > 0 && m.Delivered > 0 {
		complaintPct := float64(m.Complained) / float64(m.Delivered) * 100
		if complaintPct > 0.1 {
			out.Issues = append(out.Issues, Issue{Severity: "critical",
				Message: fmt.Sprintf("complaint rate %.3f%% exceeds 0.1%%", complaintPct)})
		}
	}
	if m.Queued > 0 {
		out.Patterns = append(out.Patterns, fmt.Sprintf("%d messages still queued at collection time", m.Queued))
	}
	return out
}

// deltaSignificance classifies a percentage-point movement.
func deltaSignificance(delta float64) string {
	abs := math.Abs(delta)
	switch {
	case abs < 0.2:
		return "none"
	case abs < 1.0:
		return "minor"
	case abs < 3.0:
		return "moderate"
	default:
		return "major"
	}
}

func fallbackComparison(cur, prev *domain.CampaignMetrics) *ComparisonResult {
	if prev == nil {
		return &ComparisonResult{Trend: TrendFirstRound}
	}

	out := &ComparisonResult{}
	add := func(name string, c, p float64) float64 {
		d := c - p
		out.Deltas = append(out.Deltas, MetricDelta{
			Metric: name, Current: c, Previous: p, Delta: d,
			Significance: deltaSignificance(d),
		})
		return d
	}

	deliveryDelta := add("delivery_rate", cur.DeliveryRate, prev.DeliveryRate)
	bounceDelta := add("bounce_rate", cur.BounceRate, prev.BounceRate)
	if cur.OpenRate != nil && prev.OpenRate != nil {
		add("open_rate", *cur.OpenRate, *prev.OpenRate)
	}
	if cur.ClickRate != nil && prev.ClickRate != nil {
		add("click_rate", *cur.ClickRate, *prev.ClickRate)
	}

	switch {
	case deliveryDelta <= -1.0 || bounceDelta >= 1.0:
		out.Trend = TrendDeclining
	case deliveryDelta >= 1.0 && bounceDelta <= 0:
		out.Trend = TrendImproving
	default:
		out.Trend = TrendStable
	}
	return out
}

func fallbackRecommendation(in *Input, res *Result) *RecommendationResult {
	out := &RecommendationResult{}

	scores := []int{}
	if res.ListQuality != nil {
		scores = append(scores, res.ListQuality.HealthScore)
	}
	if res.Delivery != nil {
		scores = append(scores, res.Delivery.Score)
	}
	score := 70
	if len(scores) > 0 {
		sum := 0
		for _, s := range scores {
			sum += s
		}
		score = sum / len(scores)
	}

	trend := TrendFirstRound
	if res.Comparison != nil {
		trend = res.Comparison.Trend
	}
	status := "healthy"
	switch {
	case score < 50:
		status = "at_risk"
	case score < 70 || trend == TrendDeclining:
		status = "attention"
	}
	out.Overall = OverallHealth{Score: score, Status: status, Trend: trend}
	out.ExecutiveSummary = fmt.Sprintf(
		"Rule-based assessment for %s round %d: overall score %d (%s), trend %s.",
		in.Schedule.CampaignName, in.Schedule.RoundNumber, score, status, trend)

	if res.ListQuality != nil {
		for _, rf := range res.ListQuality.RiskFactors {
			out.Warnings = append(out.Warnings, rf)
		}
	}
	if res.Delivery != nil {
		for _, issue := range res.Delivery.Issues {
			priority := issue.Severity
			if priority != "critical" && priority != "high" && priority != "medium" && priority != "low" {
				priority = "medium"
			}
			out.Recommendations = append(out.Recommendations, RecommendationItem{
				Priority: priority, Text: issue.Message,
			})
		}
	}
	if len(out.Recommendations) == 0 {
		out.Recommendations = append(out.Recommendations, RecommendationItem{
			Priority: "low", Text: "No issues detected by rule-based checks",
		})
	}
	if !in.Schedule.FinalRound() {
		if trend == TrendDeclining {
			out.NextRoundStrategy = "Reduce volume or tighten the segment for the next round until delivery recovers"
		} else {
			out.NextRoundStrategy = "Keep the current configuration for the next round"
		}
	}
	return out
}

func fallbackReport(in *Input, res *Result) *ReportResult {
	out := &ReportResult{}

	rec := res.Recommendation
	if rec != nil {
		out.Summary = rec.ExecutiveSummary
		out.Warnings = rec.Warnings
		for _, r := range rec.Recommendations {
			out.Recommendations = append(out.Recommendations, r.Text)
		}
	} else {
		out.Summary = fmt.Sprintf("Assessment for %s round %d (rule-based)",
			in.Schedule.CampaignName, in.Schedule.RoundNumber)
	}

	if res.ListQuality != nil {
		out.Insights = append(out.Insights,
			fmt.Sprintf("List health %d/100 (grade %s)", res.ListQuality.HealthScore, res.ListQuality.Grade))
	}
	if res.Delivery != nil {
		out.Insights = append(out.Insights,
			fmt.Sprintf("Delivery score %d/100 (grade %s)", res.Delivery.Score, res.Delivery.Grade))
	}
	if res.Comparison != nil && res.Comparison.Trend != TrendFirstRound {
		out.Insights = append(out.Insights, fmt.Sprintf("Round-over-round trend: %s", res.Comparison.Trend))
	}

	if in.Stage == domain.StagePreFlight {
		out.NextSteps = append(out.NextSteps, "Review readiness checks before the launch window")
	} else {
		if !in.Schedule.FinalRound() {
			out.NextSteps = append(out.NextSteps, "Carry these findings into the next round")
		} else {
			out.NextSteps = append(out.NextSteps, "Final round complete; archive the campaign report")
		}
	}
	return out
}

func clampScore(s float64) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return int(s)
}

func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func bucketHighGood(v, excellent, good, warning float64) string {
	switch {
	case v >= excellent:
		return "excellent"
	case v >= good:
		return "good"
	case v >= warning:
		return "warning"
	default:
		return "critical"
	}
}

func bucketLowGood(v, excellent, good, warning float64) string {
	switch {
	case v <= excellent:
		return "excellent"
	case v <= good:
		return "good"
	case v <= warning:
		return "warning"
	default:
		return "critical"
	}
}
