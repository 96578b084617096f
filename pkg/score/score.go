// Package score implements the permit application scorecard: completeness,
// compliance and risk scoring plus the routing decision derived from risk.
// All functions are pure; callers own persistence and reporting.
package score

import (
	"fmt"
	"math"
	"strings"
)

const (
	// RiskThreshold is the minimum completeness and compliance score for Low risk.
	RiskThreshold = 80

	hundredPercent = 100
	missingValue   = "missing"
)

// DefaultRequiredFields lists the documents every food truck application must carry.
var DefaultRequiredFields = []string{
	"Business License",
	"Food Safety Inspection",
	"Affidavit of Commissary",
	"Zoning Permit",
	"Fire Department Inspection",
}

// NormalizeField folds a field name so that "Zoning Permit", "zoning-permit"
// and "zoning_permit" refer to the same field.
func NormalizeField(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	return n
}

// IsPresent reports whether a status value counts as supplied.
func IsPresent(value string) bool {
	v := strings.TrimSpace(value)
	return v != "" && !strings.EqualFold(v, missingValue)
}

// index returns the application keyed by normalized field name. When two keys
// fold to the same name, a present value wins over a missing one.
func index(app Application) map[string]string {
	idx := make(map[string]string, len(app))
	for k, v := range app {
		n := NormalizeField(k)
		if cur, ok := idx[n]; ok && IsPresent(cur) {
			continue
		}
		idx[n] = v
	}
	return idx
}

// MissingFields returns the required fields without a present value, in the
// order given.
func MissingFields(app Application, requiredFields []string) []string {
	idx := index(app)
	missing := make([]string, 0)
	for _, f := range requiredFields {
		if !IsPresent(idx[NormalizeField(f)]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Completeness returns the percentage of required fields present in app.
func Completeness(app Application, requiredFields []string) (int, error) {
	if len(requiredFields) == 0 {
		return 0, fmt.Errorf("%w: required fields list is empty", ErrInvalidInput)
	}
	missing := MissingFields(app, requiredFields)
	return percent(len(requiredFields)-len(missing), len(requiredFields)), nil
}

// Compliance returns the percentage of requirement lines found, case-insensitively,
// as a substring of any application value. An empty corpus is fully compliant.
func Compliance(app Application, corpus Corpus) int {
	if len(corpus) == 0 {
		return hundredPercent
	}
	return percent(len(corpus)-len(gaps(app, corpus, false)), len(corpus))
}

// Gaps returns the non-blank requirement lines not satisfied by app.
func Gaps(app Application, corpus Corpus) []string {
	return gaps(app, corpus, true)
}

func gaps(app Application, corpus Corpus, skipBlank bool) []string {
	values := make([]string, 0, len(app))
	for _, v := range app {
		values = append(values, strings.ToLower(v))
	}

	out := make([]string, 0)
	for _, line := range corpus {
		rule := strings.ToLower(strings.TrimSpace(line))
		if rule == "" && skipBlank {
			continue
		}
		if !matchesAny(rule, values) {
			out = append(out, line)
		}
	}
	return out
}

func matchesAny(rule string, values []string) bool {
	for _, v := range values {
		if strings.Contains(v, rule) {
			return true
		}
	}
	return false
}

// Classify maps the two upstream scores to a risk level.
func Classify(completeness, compliance int) Risk {
	switch {
	case completeness < RiskThreshold:
		return RiskHigh
	case compliance < RiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskLevel scores app and returns its risk level. Compliance is only
// evaluated when completeness meets the threshold.
func RiskLevel(app Application, requiredFields []string, corpus Corpus) (Risk, error) {
	c, err := Completeness(app, requiredFields)
	if err != nil {
		return "", err
	}
	if c < RiskThreshold {
		return RiskHigh, nil
	}
	return Classify(c, Compliance(app, corpus)), nil
}

// Decide routes an application: only Low risk is approved automatically.
func Decide(r Risk) Decision {
	if r == RiskLow {
		return DecisionAutoApproved
	}
	return DecisionForwardedForReview
}

func percent(n, total int) int {
	return int(math.RoundToEven(hundredPercent * float64(n) / float64(total)))
}
