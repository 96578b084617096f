package score

import (
	"fmt"
	"strings"
)

// Application maps a permit field name to its submitted status value.
type Application map[string]string

// Corpus is the ordered list of requirement statements checked against an application.
type Corpus []string

// Risk is the risk level assigned to a scored application.
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// ParseRisk converts a case-insensitive risk name to Risk.
func ParseRisk(s string) (Risk, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	default:
		return "", fmt.Errorf("%w: unknown risk level %q", ErrInvalidInput, s)
	}
}

func (r Risk) String() string {
	return string(r)
}

func (r Risk) MarshalText() ([]byte, error) {
	if _, err := ParseRisk(string(r)); err != nil {
		return nil, err
	}
	return []byte(r), nil
}

func (r *Risk) UnmarshalText(b []byte) error {
	v, err := ParseRisk(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Decision is the routing outcome derived from a risk level.
type Decision string

const (
	DecisionAutoApproved       Decision = "auto_approved"
	DecisionForwardedForReview Decision = "forwarded_for_review"
)

func (d Decision) String() string {
	return string(d)
}

func (d Decision) MarshalText() ([]byte, error) {
	switch d {
	case DecisionAutoApproved, DecisionForwardedForReview:
		return []byte(d), nil
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, string(d))
	}
}

func (d *Decision) UnmarshalText(b []byte) error {
	switch v := Decision(strings.TrimSpace(string(b))); v {
	case DecisionAutoApproved, DecisionForwardedForReview:
		*d = v
		return nil
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, string(b))
	}
}

// Scorecard is the output triple of the engine.
type Scorecard struct {
	Completeness int  `json:"completeness" yaml:"completeness"`
	Compliance   int  `json:"compliance" yaml:"compliance"`
	Risk         Risk `json:"risk" yaml:"risk"`
}

// Decision returns the routing outcome for the scorecard's risk.
func (s *Scorecard) Decision() Decision {
	return Decide(s.Risk)
}

// Clone returns a copy of the application that does not share storage.
func (a Application) Clone() Application {
	if a == nil {
		return Application{}
	}
	c := make(Application, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}
