package eval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mchmarny/permitctl/pkg/review"
	"github.com/mchmarny/permitctl/pkg/score"
)

// DefaultConsistencyRuns is how many times the consistency check reviews
// the same application.
const DefaultConsistencyRuns = 5

// Robustness reports how the reviewer copes with malformed applications and
// whether repeated reviews of one application agree.
type Robustness struct {
	Inputs         int      `json:"inputs" yaml:"inputs"`
	Handled        int      `json:"handled" yaml:"handled"`
	GracefulRate   float64  `json:"graceful_error_handling_rate" yaml:"graceful_error_handling_rate"`
	Runs           int      `json:"consistency_runs" yaml:"consistency_runs"`
	Completeness   []int    `json:"consistency_completeness" yaml:"consistency_completeness"`
	ConsistencyStd float64  `json:"consistency_std" yaml:"consistency_std"`
	Errors         []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// MalformedInputs returns applications a reviewer must handle without
// crashing: either a scorecard or an invalid input error.
func MalformedInputs() []score.Application {
	return []score.Application{
		nil,
		{},
		{"invalid_field": "test"},
		{"business_license": ""},
		{"   ": "present"},
		{"business_license": strings.Repeat("x", 1<<16)},
	}
}

func consistencyApplication() score.Application {
	return score.Application{
		"business_license":       "present",
		"food_safety_inspection": "passed",
		"zoning_permit":          "missing",
	}
}

// CheckRobustness reviews every malformed input once and the consistency
// application runs times.
func CheckRobustness(ctx context.Context, rv *review.Reviewer, runs int) (*Robustness, error) {
	if rv == nil {
		return nil, errors.New("reviewer is required")
	}
	if runs <= 0 {
		runs = DefaultConsistencyRuns
	}

	inputs := MalformedInputs()
	rb := &Robustness{Inputs: len(inputs), Runs: runs}
	for i, app := range inputs {
		_, err := safeReview(ctx, rv, app)
		if err == nil || errors.Is(err, score.ErrInvalidInput) {
			rb.Handled++
			continue
		}
		rb.Errors = append(rb.Errors, fmt.Sprintf("input %d: %v", i, err))
	}
	rb.GracefulRate = float64(rb.Handled) / float64(rb.Inputs)

	rb.Completeness = make([]int, 0, runs)
	for range runs {
		res, err := safeReview(ctx, rv, consistencyApplication())
		if err != nil {
			return nil, fmt.Errorf("consistency run: %w", err)
		}
		rb.Completeness = append(rb.Completeness, res.Scorecard.Completeness)
	}
	rb.ConsistencyStd = stddev(rb.Completeness)

	return rb, nil
}

// safeReview turns a panic in the reviewer into an error.
func safeReview(ctx context.Context, rv *review.Reviewer, app score.Application) (res *review.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("review panicked: %v", p)
		}
	}()
	return rv.Review(ctx, app)
}

// stddev is the population standard deviation.
func stddev(v []int) float64 {
	if len(v) < 2 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	mean := sum / float64(len(v))

	var sq float64
	for _, x := range v {
		d := float64(x) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(v)))
}
