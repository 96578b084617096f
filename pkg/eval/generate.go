// Package eval generates synthetic permit applications and measures how well
// a reviewer scores them.
package eval

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/mchmarny/permitctl/pkg/score"
)

// Category groups generated cases by intent.
type Category string

const (
	CategoryPerfect    Category = "perfect"
	CategoryIncomplete Category = "incomplete"
	CategoryEdge       Category = "edge"

	DefaultPerfect    = 20
	DefaultIncomplete = 30

	missing = "missing"
)

// fieldOptions lists plausible statuses per field; the first option of each
// is the approved status.
var fieldOptions = map[string][]string{
	"business_license":           {"present", "missing", "expired", "pending"},
	"food_safety_inspection":     {"passed", "failed", "pending", "expired"},
	"affidavit_of_commissary":    {"attached", "missing", "incomplete"},
	"zoning_permit":              {"approved", "denied", "pending", "missing"},
	"fire_department_inspection": {"passed", "failed", "pending", "not_required"},
	"insurance_certificate":      {"valid", "expired", "missing", "insufficient_coverage"},
	"waste_disposal_plan":        {"approved", "missing", "incomplete"},
	"water_connection_permit":    {"approved", "missing", "pending"},
}

// Counts sets how many cases of each generated category to produce.
type Counts struct {
	Perfect    int `json:"perfect" yaml:"perfect"`
	Incomplete int `json:"incomplete" yaml:"incomplete"`
}

// DefaultCounts mirrors the size of the reference evaluation set.
func DefaultCounts() Counts {
	return Counts{Perfect: DefaultPerfect, Incomplete: DefaultIncomplete}
}

// Case is one application with the scores the engine rules expect for it.
type Case struct {
	ID                   string            `json:"id" yaml:"id"`
	Category             Category          `json:"category" yaml:"category"`
	Application          score.Application `json:"application" yaml:"application"`
	ExpectedCompleteness int               `json:"expected_completeness" yaml:"expected_completeness"`
	ExpectedCompliance   int               `json:"expected_compliance" yaml:"expected_compliance"`
	ExpectedRisk         score.Risk        `json:"expected_risk" yaml:"expected_risk"`
}

// Generator builds cases for a set of required fields and a corpus.
type Generator struct {
	Fields []string
	Corpus score.Corpus
}

// Generate returns a deterministic case set for seed: perfect applications,
// randomly incomplete ones and a fixed list of edge cases.
func (g Generator) Generate(seed uint64, counts Counts) ([]Case, error) {
	if len(g.Fields) == 0 {
		return nil, fmt.Errorf("%w: required fields must not be empty", score.ErrInvalidInput)
	}
	if counts.Perfect < 0 || counts.Incomplete < 0 {
		return nil, errors.New("case counts must not be negative")
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	cases := make([]Case, 0, counts.Perfect+counts.Incomplete+3)

	for i := range counts.Perfect {
		app := score.Application{}
		for _, f := range g.allFields() {
			app[f] = g.options(f)[0]
		}
		cases = append(cases, g.expect(fmt.Sprintf("perfect_%03d", i), CategoryPerfect, app))
	}

	required := g.required()
	for i := range counts.Incomplete {
		app := score.Application{}
		for _, f := range g.allFields() {
			opts := g.options(f)
			switch {
			case required[score.NormalizeField(f)] && rng.Float64() > 0.3:
				app[f] = pick(rng, opts, func(s string) bool { return s != missing })
			case required[score.NormalizeField(f)]:
				app[f] = missing
			case rng.Float64() > 0.5:
				app[f] = opts[rng.IntN(len(opts))]
			default:
				app[f] = missing
			}
		}
		cases = append(cases, g.expect(fmt.Sprintf("incomplete_%03d", i), CategoryIncomplete, app))
	}

	cases = append(cases, g.edgeCases()...)
	return cases, nil
}

func (g Generator) edgeCases() []Case {
	expired := score.Application{}
	mixed := score.Application{}
	for i, f := range g.Fields {
		opts := g.options(f)
		if i < 2 {
			expired[f] = "expired"
		} else {
			expired[f] = opts[0]
		}
		mixed[f] = opts[len(opts)-1]
	}

	return []Case{
		g.expect("edge_001_empty", CategoryEdge, score.Application{}),
		g.expect("edge_002_expired_docs", CategoryEdge, expired),
		g.expect("edge_003_mixed_status", CategoryEdge, mixed),
	}
}

func (g Generator) expect(id string, c Category, app score.Application) Case {
	// Fields were validated non-empty in Generate.
	completeness, _ := score.Completeness(app, g.Fields)
	compliance := score.Compliance(app, g.Corpus)
	return Case{
		ID:                   id,
		Category:             c,
		Application:          app,
		ExpectedCompleteness: completeness,
		ExpectedCompliance:   compliance,
		ExpectedRisk:         score.Classify(completeness, compliance),
	}
}

func (g Generator) required() map[string]bool {
	m := make(map[string]bool, len(g.Fields))
	for _, f := range g.Fields {
		m[score.NormalizeField(f)] = true
	}
	return m
}

// allFields returns the required fields followed by the optional ones not
// already required, in a stable order.
func (g Generator) allFields() []string {
	req := g.required()
	out := slices.Clone(g.Fields)
	optional := make([]string, 0, len(fieldOptions))
	for f := range fieldOptions {
		if !req[f] {
			optional = append(optional, f)
		}
	}
	slices.Sort(optional)
	return append(out, optional...)
}

func (g Generator) options(field string) []string {
	if opts, ok := fieldOptions[score.NormalizeField(field)]; ok {
		return opts
	}
	return []string{"present", missing, "pending"}
}

func pick(rng *rand.Rand, opts []string, keep func(string) bool) string {
	filtered := make([]string, 0, len(opts))
	for _, o := range opts {
		if keep(o) {
			filtered = append(filtered, o)
		}
	}
	return filtered[rng.IntN(len(filtered))]
}

// Generate builds a case set for the default required fields and an empty corpus.
func Generate(seed uint64, counts Counts) ([]Case, error) {
	return Generator{Fields: score.DefaultRequiredFields}.Generate(seed, counts)
}
