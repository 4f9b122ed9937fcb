package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-pilot/internal/llm"
)

// shapeViolationLimit is how many consecutive malformed responses an agent
// tolerates before it switches to fallback mode for the rest of the process.
const shapeViolationLimit = 3

// agent is one node of the assessment graph. Violation tracking is per
// process, shared across pipeline invocations.
type agent struct {
	name         string
	systemPrompt string
	required     []string

	violations atomic.Int32
	fallback   atomic.Bool
}

func (a *agent) recordViolation(err error) error {
	if a.violations.Add(1) >= shapeViolationLimit {
		if !a.fallback.Swap(true) {
			log.Printf("[Analysis] Agent %s entering fallback mode after %d consecutive shape violations", a.name, shapeViolationLimit)
		}
	}
	return fmt.Errorf("%s: response shape: %w", a.name, err)
}

// Pipeline runs the five agents as a dependency graph: ListQuality,
// DeliveryAnalysis, and Comparison are independent and run concurrently;
// Recommendation consumes all three; ReportFormatting consumes
// Recommendation. Any agent failure degrades the result to rule-based
// heuristics for the affected slots.
type Pipeline struct {
	llm          llm.Client
	agentTimeout time.Duration

	listQuality    *agent
	delivery       *agent
	comparison     *agent
	recommendation *agent
	report         *agent
}

// NewPipeline creates a pipeline over the given model client. A nil client
// means every slot is filled by heuristics (analysis disabled).
func NewPipeline(client llm.Client, agentTimeout time.Duration) *Pipeline {
	if agentTimeout <= 0 {
		agentTimeout = 30 * time.Second
	}
	return &Pipeline{
		llm:          client,
		agentTimeout: agentTimeout,
		listQuality: &agent{
			name:         "ListQuality",
			systemPrompt: listQualityPrompt,
			required:     []string{"health_score", "grade", "recommendation"},
		},
		delivery: &agent{
			name:         "DeliveryAnalysis",
			systemPrompt: deliveryAnalysisPrompt,
			required:     []string{"grade", "score", "metrics"},
		},
		comparison: &agent{
			name:         "Comparison",
			systemPrompt: comparisonPrompt,
			required:     []string{"trend", "deltas"},
		},
		recommendation: &agent{
			name:         "Recommendation",
			systemPrompt: recommendationPrompt,
			required:     []string{"executive_summary", "overall_health", "recommendations"},
		},
		report: &agent{
			name:         "ReportFormatting",
			systemPrompt: reportFormattingPrompt,
			required:     []string{"summary"},
		},
	}
}

// Run executes the assessment graph. It never returns an error: failed
// agents are replaced by heuristics and reported through Result.Degraded
// and Result.FailedAgents.
func (p *Pipeline) Run(ctx context.Context, in *Input) *Result {
	res := &Result{}

	var wg sync.WaitGroup
	var mu sync.Mutex
	fail := func(name string) {
		mu.Lock()
		res.Degraded = true
		res.FailedAgents = append(res.FailedAgents, name)
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		out := &ListQualityResult{}
		if err := p.invoke(ctx, p.listQuality, listQualityInput(in), out); err != nil {
			log.Printf("[Analysis] ListQuality failed, using heuristics: %v", err)
			fail(p.listQuality.name)
			out = fallbackListQuality(in.ListStats, in.Reputation)
		}
		res.ListQuality = out
	}()
	go func() {
		defer wg.Done()
		if in.Current == nil {
			// Nothing sent yet, nothing to grade.
			return
		}
		out := &DeliveryAnalysisResult{}
		if err := p.invoke(ctx, p.delivery, deliveryInput(in), out); err != nil {
			log.Printf("[Analysis] DeliveryAnalysis failed, using heuristics: %v", err)
			fail(p.delivery.name)
			out = fallbackDelivery(in.Current)
		}
		res.Delivery = out
	}()
	go func() {
		defer wg.Done()
		if in.Current == nil {
			return
		}
		out := &ComparisonResult{}
		if err := p.invoke(ctx, p.comparison, comparisonInput(in), out); err != nil {
			log.Printf("[Analysis] Comparison failed, using heuristics: %v", err)
			fail(p.comparison.name)
			out = fallbackComparison(in.Current, in.Previous)
		}
		res.Comparison = out
	}()
	wg.Wait()

	if res.Degraded {
		// Synthesis over partially heuristic inputs is not worth a model
		// call; build the recommendation and report from rules too.
		res.Recommendation = fallbackRecommendation(in, res)
		res.Report = fallbackReport(in, res)
		return res
	}

	rec := &RecommendationResult{}
	if err := p.invoke(ctx, p.recommendation, recommendationInput(in, res), rec); err != nil {
		log.Printf("[Analysis] Recommendation failed, using heuristics: %v", err)
		fail(p.recommendation.name)
		rec = fallbackRecommendation(in, res)
	}
	res.Recommendation = rec

	rep := &ReportResult{}
	if err := p.invoke(ctx, p.report, reportInput(in, res), rep); err != nil {
		log.Printf("[Analysis] ReportFormatting failed, using heuristics: %v", err)
		fail(p.report.name)
		rep = fallbackReport(in, res)
	}
	res.Report = rep
	return res
}

var errNoClient = fmt.Errorf("analysis: no model client configured")
var errFallbackMode = fmt.Errorf("analysis: agent in fallback mode")

// invoke runs one agent under its deadline, extracts the JSON object from
// the response, and validates field presence before decoding into out.
func (p *Pipeline) invoke(ctx context.Context, a *agent, userPrompt string, out interface{}) error {
	if p.llm == nil {
		return errNoClient
	}
	if a.fallback.Load() {
		return errFallbackMode
	}

	ctx, cancel := context.WithTimeout(ctx, p.agentTimeout)
	defer cancel()

	text, err := p.llm.Generate(ctx, a.systemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("%s: %w", a.name, err)
	}

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return a.recordViolation(err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return a.recordViolation(err)
	}
	for _, field := range a.required {
		if _, ok := probe[field]; !ok {
			return a.recordViolation(fmt.Errorf("missing field %q", field))
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return a.recordViolation(err)
	}

	a.violations.Store(0)
	return nil
}
