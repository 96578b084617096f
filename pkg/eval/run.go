package eval

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/permitctl/pkg/review"
	"golang.org/x/sync/errgroup"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Thresholds are the pass criteria for an evaluation run. MinThroughput is
// in reviews per hour.
type Thresholds struct {
	MinCompletenessAccuracy float64       `json:"min_completeness_accuracy" yaml:"min_completeness_accuracy"`
	MaxComplianceMAE        float64       `json:"max_compliance_mae" yaml:"max_compliance_mae"`
	MinRiskAccuracy         float64       `json:"min_risk_classification_accuracy" yaml:"min_risk_classification_accuracy"`
	MaxP95Latency           time.Duration `json:"max_p95_latency" yaml:"max_p95_latency"`
	MaxMeanLatency          time.Duration `json:"max_mean_latency" yaml:"max_mean_latency"`
	MinThroughput           float64       `json:"min_throughput" yaml:"min_throughput"`
	MinGracefulRate         float64       `json:"min_graceful_error_handling_rate" yaml:"min_graceful_error_handling_rate"`
	MaxConsistencyStd       float64       `json:"max_consistency_std" yaml:"max_consistency_std"`
	MinRetrievalRecall      float64       `json:"min_retrieval_recall" yaml:"min_retrieval_recall"`
}

// DefaultThresholds returns the standard pass criteria.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCompletenessAccuracy: 0.95,
		MaxComplianceMAE:        5.0,
		MinRiskAccuracy:         0.80,
		MaxP95Latency:           10 * time.Second,
		MaxMeanLatency:          5 * time.Second,
		MinThroughput:           100,
		MinGracefulRate:         0.80,
		MaxConsistencyStd:       5.0,
		MinRetrievalRecall:      0.80,
	}
}

// CaseResult compares one case against what the reviewer produced.
type CaseResult struct {
	ID                   string        `json:"id" yaml:"id"`
	Category             Category      `json:"category" yaml:"category"`
	ExpectedCompleteness int           `json:"expected_completeness" yaml:"expected_completeness"`
	ActualCompleteness   int           `json:"actual_completeness" yaml:"actual_completeness"`
	ExpectedCompliance   int           `json:"expected_compliance" yaml:"expected_compliance"`
	ActualCompliance     int           `json:"actual_compliance" yaml:"actual_compliance"`
	ExpectedRisk         string        `json:"expected_risk" yaml:"expected_risk"`
	ActualRisk           string        `json:"actual_risk" yaml:"actual_risk"`
	Latency              time.Duration `json:"latency" yaml:"latency"`
}

// Report is the outcome of an evaluation run.
type Report struct {
	ID                   string        `json:"id" yaml:"id"`
	Time                 time.Time     `json:"time" yaml:"time"`
	Cases                int           `json:"cases" yaml:"cases"`
	CompletenessAccuracy float64       `json:"completeness_accuracy" yaml:"completeness_accuracy"`
	ComplianceMAE        float64       `json:"compliance_mae" yaml:"compliance_mae"`
	RiskAccuracy         float64       `json:"risk_classification_accuracy" yaml:"risk_classification_accuracy"`
	MeanLatency          time.Duration `json:"mean_latency" yaml:"mean_latency"`
	P95Latency           time.Duration `json:"p95_latency" yaml:"p95_latency"`
	Elapsed              time.Duration `json:"elapsed" yaml:"elapsed"`
	Throughput           float64       `json:"throughput" yaml:"throughput"`
	Robustness           *Robustness   `json:"robustness,omitempty" yaml:"robustness,omitempty"`
	Retrieval            *Retrieval    `json:"retrieval,omitempty" yaml:"retrieval,omitempty"`
	Thresholds           Thresholds    `json:"thresholds" yaml:"thresholds"`
	Status               string        `json:"status" yaml:"status"`
	Failures             []string      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Results              []CaseResult  `json:"results" yaml:"results"`
}

// Passed reports whether every threshold was met.
func (r *Report) Passed() bool {
	return r.Status == StatusPass
}

// Run reviews every case on at most workers goroutines and scores the results.
func Run(ctx context.Context, rv *review.Reviewer, cases []Case, th Thresholds, workers int) (*Report, error) {
	if rv == nil {
		return nil, fmt.Errorf("reviewer is required")
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases to evaluate")
	}
	if workers <= 0 {
		workers = review.DefaultWorkers
	}

	results := make([]CaseResult, len(cases))
	started := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range cases {
		g.Go(func() error {
			start := time.Now()
			res, err := rv.Review(ctx, c.Application)
			if err != nil {
				return fmt.Errorf("case %s: %w", c.ID, err)
			}
			results[i] = CaseResult{
				ID:                   c.ID,
				Category:             c.Category,
				ExpectedCompleteness: c.ExpectedCompleteness,
				ActualCompleteness:   res.Scorecard.Completeness,
				ExpectedCompliance:   c.ExpectedCompliance,
				ActualCompliance:     res.Scorecard.Compliance,
				ExpectedRisk:         c.ExpectedRisk.String(),
				ActualRisk:           res.Scorecard.Risk.String(),
				Latency:              time.Since(start),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := Summarize(results, th)
	r.Elapsed = time.Since(started)
	r.Throughput = perHour(len(results), r.Elapsed)
	r.Evaluate()
	return r, nil
}

func perHour(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Hours()
}

// Summarize computes accuracy and latency metrics over results.
func Summarize(results []CaseResult, th Thresholds) *Report {
	r := &Report{
		ID:         uuid.NewString(),
		Time:       time.Now().UTC(),
		Cases:      len(results),
		Thresholds: th,
		Results:    results,
	}
	if len(results) == 0 {
		r.Evaluate()
		return r
	}

	var completeOK, riskOK int
	var absErr float64
	var total time.Duration
	latencies := make([]time.Duration, 0, len(results))
	for _, c := range results {
		if c.ExpectedCompleteness == c.ActualCompleteness {
			completeOK++
		}
		if c.ExpectedRisk == c.ActualRisk {
			riskOK++
		}
		absErr += math.Abs(float64(c.ExpectedCompliance - c.ActualCompliance))
		total += c.Latency
		latencies = append(latencies, c.Latency)
	}

	n := float64(len(results))
	r.CompletenessAccuracy = float64(completeOK) / n
	r.RiskAccuracy = float64(riskOK) / n
	r.ComplianceMAE = absErr / n
	r.MeanLatency = total / time.Duration(len(results))
	r.P95Latency = percentile(latencies, 0.95)

	r.Evaluate()
	return r
}

// Evaluate checks every collected metric against the thresholds and sets
// Status and Failures. Throughput is only checked once Elapsed is known.
func (r *Report) Evaluate() {
	th := r.Thresholds
	r.Failures = nil
	if r.Cases == 0 {
		r.Failures = append(r.Failures, "no results")
	}
	if r.CompletenessAccuracy < th.MinCompletenessAccuracy {
		r.Failures = append(r.Failures, fmt.Sprintf("completeness accuracy %.3f below %.3f", r.CompletenessAccuracy, th.MinCompletenessAccuracy))
	}
	if r.ComplianceMAE > th.MaxComplianceMAE {
		r.Failures = append(r.Failures, fmt.Sprintf("compliance MAE %.2f above %.2f", r.ComplianceMAE, th.MaxComplianceMAE))
	}
	if r.RiskAccuracy < th.MinRiskAccuracy {
		r.Failures = append(r.Failures, fmt.Sprintf("risk accuracy %.3f below %.3f", r.RiskAccuracy, th.MinRiskAccuracy))
	}
	if th.MaxP95Latency > 0 && r.P95Latency > th.MaxP95Latency {
		r.Failures = append(r.Failures, fmt.Sprintf("p95 latency %s above %s", r.P95Latency, th.MaxP95Latency))
	}
	if th.MaxMeanLatency > 0 && r.MeanLatency > th.MaxMeanLatency {
		r.Failures = append(r.Failures, fmt.Sprintf("mean latency %s above %s", r.MeanLatency, th.MaxMeanLatency))
	}
	if r.Elapsed > 0 && th.MinThroughput > 0 && r.Throughput < th.MinThroughput {
		r.Failures = append(r.Failures, fmt.Sprintf("throughput %.1f/h below %.1f/h", r.Throughput, th.MinThroughput))
	}
	if rb := r.Robustness; rb != nil {
		if rb.GracefulRate < th.MinGracefulRate {
			r.Failures = append(r.Failures, fmt.Sprintf("graceful error handling rate %.3f below %.3f", rb.GracefulRate, th.MinGracefulRate))
		}
		if rb.ConsistencyStd > th.MaxConsistencyStd {
			r.Failures = append(r.Failures, fmt.Sprintf("consistency std %.2f above %.2f", rb.ConsistencyStd, th.MaxConsistencyStd))
		}
	}
	if rt := r.Retrieval; rt != nil && rt.MeanRecall < th.MinRetrievalRecall {
		r.Failures = append(r.Failures, fmt.Sprintf("retrieval recall %.3f below %.3f", rt.MeanRecall, th.MinRetrievalRecall))
	}

	r.Status = StatusPass
	if len(r.Failures) > 0 {
		r.Status = StatusFail
	}
}

// percentile uses the nearest-rank method.
func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	s := slices.Clone(d)
	slices.Sort(s)
	rank := int(math.Ceil(p*float64(len(s)))) - 1
	rank = max(0, min(rank, len(s)-1))
	return s[rank]
}

// Markdown renders the report summary as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Permit Scoring Evaluation\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", r.ID)
	fmt.Fprintf(&b, "- Time: %s\n", r.Time.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Cases: %d\n", r.Cases)
	fmt.Fprintf(&b, "- Status: **%s**\n\n", r.Status)

	b.WriteString("| Metric | Value | Threshold |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| Completeness accuracy | %.3f | >= %.3f |\n", r.CompletenessAccuracy, r.Thresholds.MinCompletenessAccuracy)
	fmt.Fprintf(&b, "| Compliance MAE | %.2f | <= %.2f |\n", r.ComplianceMAE, r.Thresholds.MaxComplianceMAE)
	fmt.Fprintf(&b, "| Risk accuracy | %.3f | >= %.3f |\n", r.RiskAccuracy, r.Thresholds.MinRiskAccuracy)
	fmt.Fprintf(&b, "| Mean latency | %s | <= %s |\n", r.MeanLatency, r.Thresholds.MaxMeanLatency)
	fmt.Fprintf(&b, "| P95 latency | %s | <= %s |\n", r.P95Latency, r.Thresholds.MaxP95Latency)
	fmt.Fprintf(&b, "| Throughput | %.1f/h | >= %.1f/h |\n", r.Throughput, r.Thresholds.MinThroughput)

	if rb := r.Robustness; rb != nil {
		b.WriteString("\n## Robustness\n\n| Metric | Value | Threshold |\n|---|---|---|\n")
		fmt.Fprintf(&b, "| Graceful error handling | %.3f (%d/%d) | >= %.3f |\n", rb.GracefulRate, rb.Handled, rb.Inputs, r.Thresholds.MinGracefulRate)
		fmt.Fprintf(&b, "| Consistency std (%d runs) | %.2f | <= %.2f |\n", rb.Runs, rb.ConsistencyStd, r.Thresholds.MaxConsistencyStd)
	}

	if rt := r.Retrieval; rt != nil {
		b.WriteString("\n## Retrieval\n\n| Query | Category | Recall | Missing |\n|---|---|---|---|\n")
		for _, q := range rt.Results {
			fmt.Fprintf(&b, "| %s | %s | %.2f | %s |\n", q.Query, q.Category, q.Recall, strings.Join(q.Missing, ", "))
		}
		fmt.Fprintf(&b, "\nMean recall: %.3f (threshold >= %.3f)\n", rt.MeanRecall, r.Thresholds.MinRetrievalRecall)
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
