package score

import (
	"fmt"
)

// ComplianceChecker scores an application against a requirement corpus.
type ComplianceChecker interface {
	Check(app Application, corpus Corpus) (int, error)
}

// GapReporter is implemented by checkers able to list unmet requirements.
type GapReporter interface {
	Gaps(app Application, corpus Corpus) []string
}

// CheckerFunc adapts a function to ComplianceChecker.
type CheckerFunc func(app Application, corpus Corpus) (int, error)

func (f CheckerFunc) Check(app Application, corpus Corpus) (int, error) {
	return f(app, corpus)
}

// SubstringChecker is the placeholder heuristic: a requirement is met when its
// text appears in any application value.
type SubstringChecker struct{}

func (SubstringChecker) Check(app Application, corpus Corpus) (int, error) {
	return Compliance(app, corpus), nil
}

func (SubstringChecker) Gaps(app Application, corpus Corpus) []string {
	return Gaps(app, corpus)
}

// StrictChecker wraps another checker and rejects an empty corpus.
type StrictChecker struct {
	Checker ComplianceChecker
}

func (s StrictChecker) Check(app Application, corpus Corpus) (int, error) {
	if len(corpus) == 0 {
		return 0, ErrEmptyCorpus
	}
	c := s.Checker
	if c == nil {
		c = SubstringChecker{}
	}
	return c.Check(app, corpus)
}

// Engine binds a required field list and a compliance checker.
type Engine struct {
	requiredFields []string
	checker        ComplianceChecker
}

// Option configures an Engine.
type Option func(*Engine)

// WithChecker replaces the default substring compliance checker.
func WithChecker(c ComplianceChecker) Option {
	return func(e *Engine) {
		if c != nil {
			e.checker = c
		}
	}
}

// NewEngine creates an engine. An empty field list is rejected.
func NewEngine(requiredFields []string, opts ...Option) (*Engine, error) {
	if len(requiredFields) == 0 {
		return nil, fmt.Errorf("%w: required fields list is empty", ErrInvalidInput)
	}
	e := &Engine{
		requiredFields: append([]string(nil), requiredFields...),
		checker:        SubstringChecker{},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// RequiredFields returns a copy of the engine's required field list.
func (e *Engine) RequiredFields() []string {
	return append([]string(nil), e.requiredFields...)
}

// Score computes the full scorecard for app.
func (e *Engine) Score(app Application, corpus Corpus) (*Scorecard, error) {
	completeness, err := Completeness(app, e.requiredFields)
	if err != nil {
		return nil, err
	}

	compliance, err := e.checker.Check(app, corpus)
	if err != nil {
		return nil, fmt.Errorf("checking compliance: %w", err)
	}
	if compliance < 0 || compliance > hundredPercent {
		return nil, fmt.Errorf("compliance score out of range: %d", compliance)
	}

	return &Scorecard{
		Completeness: completeness,
		Compliance:   compliance,
		Risk:         Classify(completeness, compliance),
	}, nil
}

// Report lists what keeps app from approval.
type Report struct {
	Errors         []string `json:"errors" yaml:"errors"`
	Risk           Risk     `json:"risks,omitempty" yaml:"risks,omitempty"`
	ComplianceGaps []string `json:"compliance_gaps" yaml:"compliance_gaps"`
}

// Report builds the gap report for a scored application. Compliance gaps are
// only listed when the checker can report them.
func (e *Engine) Report(app Application, corpus Corpus, card *Scorecard) *Report {
	r := &Report{
		Errors:         MissingFields(app, e.requiredFields),
		ComplianceGaps: make([]string, 0),
	}
	if card != nil {
		r.Risk = card.Risk
	}
	if gr, ok := e.checker.(GapReporter); ok {
		r.ComplianceGaps = gr.Gaps(app, corpus)
	}
	return r
}
