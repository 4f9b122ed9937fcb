package analysis

import (
	"strings"
	"testing"

	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/ongage"
)

func TestDeltaSignificance(t *testing.T) {
	tests := []struct {
		delta float64
		want  string
	}{
		{0, "none"},
		{0.19, "none"},
		{-0.19, "none"},
		{0.2, "minor"},
		{-0.5, "minor"},
		{0.99, "minor"},
		{1.0, "moderate"},
		{-1.5, "moderate"},
		{2.99, "moderate"},
		{3.0, "major"},
		{-7.2, "major"},
	}
	for _, tt := range tests {
		if got := deltaSignificance(tt.delta); got != tt.want {
			t.Errorf("deltaSignificance(%v) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}

func TestFallbackComparisonDeclining(t *testing.T) {
	open96, open94 := 20.0, 19.5
	prev := &domain.CampaignMetrics{DeliveryRate: 96.5, BounceRate: 2.0, OpenRate: &open96}
	cur := &domain.CampaignMetrics{DeliveryRate: 95.0, BounceRate: 2.8, OpenRate: &open94}

	out := fallbackComparison(cur, prev)
	if out.Trend != TrendDeclining {
		t.Errorf("Trend = %q, want declining", out.Trend)
	}

	var delivery *MetricDelta
	for i := range out.Deltas {
		if out.Deltas[i].Metric == "delivery_rate" {
			delivery = &out.Deltas[i]
		}
	}
	if delivery == nil {
		t.Fatal("no delivery_rate delta")
	}
	if delivery.Delta != -1.5 {
		t.Errorf("delivery delta = %v, want -1.5", delivery.Delta)
	}
	if delivery.Significance != "moderate" {
		t.Errorf("delivery significance = %q, want moderate", delivery.Significance)
	}
}

func TestFallbackComparisonTrends(t *testing.T) {
	base := func(delivery, bounce float64) *domain.CampaignMetrics {
		return &domain.CampaignMetrics{DeliveryRate: delivery, BounceRate: bounce}
	}

	tests := []struct {
		name      string
		cur, prev *domain.CampaignMetrics
		want      string
	}{
		{"improving", base(97, 1.5), base(95.5, 2.0), TrendImproving},
		{"stable", base(96.1, 2.0), base(96.0, 2.0), TrendStable},
		{"bounce spike declines", base(96, 3.2), base(96, 2.0), TrendDeclining},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackComparison(tt.cur, tt.prev).Trend; got != tt.want {
				t.Errorf("Trend = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFallbackComparisonFirstRound(t *testing.T) {
	out := fallbackComparison(&domain.CampaignMetrics{}, nil)
	if out.Trend != TrendFirstRound {
		t.Errorf("Trend = %q, want first_round", out.Trend)
	}
	if len(out.Deltas) != 0 {
		t.Errorf("first round produced %d deltas", len(out.Deltas))
	}
}

func TestFallbackListQuality(t *testing.T) {
	healthy := fallbackListQuality(&ongage.ListStats{
		Total: 10000, Subscribed: 9500, Blocked: 50, RecentBounces: 20,
	}, &ongage.Reputation{Score: 85, Trend: "stable"})
	if healthy.HealthScore != 100 {
		t.Errorf("healthy HealthScore = %d, want 100", healthy.HealthScore)
	}
	if healthy.Grade != "A" {
		t.Errorf("healthy Grade = %q, want A", healthy.Grade)
	}
	if len(healthy.RiskFactors) != 0 {
		t.Errorf("healthy RiskFactors = %v", healthy.RiskFactors)
	}

	// 30 (low subscribed) + 25 (blocked) + 20 (bounces) + 25 (reputation)
	// + 5 (declining trend) off a 100 base.
	poor := fallbackListQuality(&ongage.ListStats{
		Total: 10000, Subscribed: 3000, Blocked: 800, RecentBounces: 400,
	}, &ongage.Reputation{Score: 40, Trend: "declining"})
	if poor.HealthScore != 0 {
		t.Errorf("poor HealthScore = %d, want 0", poor.HealthScore)
	}
	if poor.Grade != "F" {
		t.Errorf("poor Grade = %q, want F", poor.Grade)
	}
	if len(poor.RiskFactors) != 5 {
		t.Errorf("poor RiskFactors = %v, want 5 entries", poor.RiskFactors)
	}

	missing := fallbackListQuality(nil, nil)
	if missing.HealthScore != 70 || len(missing.RiskFactors) != 1 {
		t.Errorf("nil stats: score %d, risks %v", missing.HealthScore, missing.RiskFactors)
	}
}

func TestFallbackDelivery(t *testing.T) {
	open, click := 22.0, 2.0
	good := fallbackDelivery(&domain.CampaignMetrics{
		Processed: 1000, Delivered: 985, DeliveryRate: 98.5,
		BounceRate: 0.4, HardBounceRate: 0.1,
		OpenRate: &open, ClickRate: &click,
	})
	if good.Score != 100 {
		t.Errorf("good Score = %d, want 100", good.Score)
	}
	if len(good.Issues) != 0 {
		t.Errorf("good Issues = %v", good.Issues)
	}

	bad := fallbackDelivery(&domain.CampaignMetrics{
		Processed: 1000, Delivered: 880, Complained: 3,
		DeliveryRate: 88.0, BounceRate: 6.0, HardBounceRate: 2.5,
	})
	if bad.Score >= good.Score {
		t.Errorf("bad Score %d not below good Score %d", bad.Score, good.Score)
	}
	if len(bad.Issues) < 2 {
		t.Errorf("bad Issues = %v, want hard-bounce and delivery issues", bad.Issues)
	}
	var sawHardBounce, sawDelivery, sawComplaints bool
	for _, issue := range bad.Issues {
		switch {
		case strings.Contains(issue.Message, "hard bounce"):
			sawHardBounce = true
		case strings.Contains(issue.Message, "delivery rate"):
			sawDelivery = true
		case strings.Contains(issue.Message, "complaint rate"):
			sawComplaints = true
		}
	}
	if !sawHardBounce || !sawDelivery || !sawComplaints {
		t.Errorf("missing expected issues: %+v", bad.Issues)
	}
}

func TestFallbackRecommendationStatus(t *testing.T) {
	sched := &domain.CampaignSchedule{CampaignName: "oct-offer", RoundNumber: 2}
	in := &Input{Schedule: sched}

	res := &Result{
		ListQuality: &ListQualityResult{HealthScore: 90},
		Delivery:    &DeliveryAnalysisResult{Score: 90},
		Comparison:  &ComparisonResult{Trend: TrendDeclining},
	}
	rec := fallbackRecommendation(in, res)
	if rec.Overall.Status != "attention" {
		t.Errorf("declining trend: Status = %q, want attention", rec.Overall.Status)
	}
	if rec.NextRoundStrategy == "" {
		t.Error("round 2 should get a next-round strategy")
	}

	final := &Input{Schedule: &domain.CampaignSchedule{CampaignName: "oct-offer", RoundNumber: 3}}
	if got := fallbackRecommendation(final, res); got.NextRoundStrategy != "" {
		t.Errorf("final round NextRoundStrategy = %q, want empty", got.NextRoundStrategy)
	}

	atRisk := fallbackRecommendation(in, &Result{
		ListQuality: &ListQualityResult{HealthScore: 40},
		Delivery:    &DeliveryAnalysisResult{Score: 40},
	})
	if atRisk.Overall.Status != "at_risk" {
		t.Errorf("score 40: Status = %q, want at_risk", atRisk.Overall.Status)
	}
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "A"}, {90, "A"}, {89, "B"}, {80, "B"},
		{79, "C"}, {70, "C"}, {69, "D"}, {60, "D"}, {59, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := gradeFor(tt.score); got != tt.want {
			t.Errorf("gradeFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
