package score

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullApplication() Application {
	return Application{
		"Business License":           "present",
		"Food Safety Inspection":     "passed",
		"Affidavit of Commissary":    "attached",
		"Zoning Permit":              "approved",
		"Fire Department Inspection": "passed",
	}
}

func TestCompleteness_AllPresent(t *testing.T) {
	c, err := Completeness(fullApplication(), DefaultRequiredFields)
	require.NoError(t, err)
	assert.Equal(t, 100, c)
}

func TestCompleteness_Empty(t *testing.T) {
	c, err := Completeness(Application{}, DefaultRequiredFields)
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = Completeness(nil, DefaultRequiredFields)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestCompleteness_NoRequiredFields(t *testing.T) {
	_, err := Completeness(fullApplication(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompleteness_MissingValues(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"missing literal", "missing", 80},
		{"missing mixed case", "  MISSING ", 80},
		{"empty", "", 80},
		{"whitespace", "   ", 80},
		{"expired counts as supplied", "expired", 100},
		{"pending counts as supplied", "pending", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fullApplication()
			app["Zoning Permit"] = tt.value
			got, err := Completeness(app, DefaultRequiredFields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompleteness_FieldNameFolding(t *testing.T) {
	app := Application{
		"business_license":           "present",
		"food-safety-inspection":     "passed",
		"AFFIDAVIT OF COMMISSARY":    "attached",
		"zoning_permit":              "approved",
		"Fire Department Inspection": "passed",
	}
	c, err := Completeness(app, DefaultRequiredFields)
	require.NoError(t, err)
	assert.Equal(t, 100, c)
}

func TestCompleteness_DuplicateFoldedKeys(t *testing.T) {
	app := Application{
		"Zoning Permit": "approved",
		"zoning_permit": "missing",
	}
	c, err := Completeness(app, []string{"Zoning Permit"})
	require.NoError(t, err)
	assert.Equal(t, 100, c)
}

func TestCompleteness_Monotonic(t *testing.T) {
	app := Application{}
	prev := 0
	for _, f := range DefaultRequiredFields {
		app[f] = "present"
		c, err := Completeness(app, DefaultRequiredFields)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c, prev)
		assert.GreaterOrEqual(t, c, 0)
		assert.LessOrEqual(t, c, 100)
		prev = c
	}
	assert.Equal(t, 100, prev)
}

func TestCompleteness_Rounding(t *testing.T) {
	fields := []string{"a", "b", "c"}
	c, err := Completeness(Application{"a": "x"}, fields)
	require.NoError(t, err)
	assert.Equal(t, 33, c)

	c, err = Completeness(Application{"a": "x", "b": "y"}, fields)
	require.NoError(t, err)
	assert.Equal(t, 67, c)
}

func TestCompliance(t *testing.T) {
	app := Application{
		"Zoning Permit": "Approved for commercial district",
		"Fire":          "Passed inspection",
	}

	tests := []struct {
		name   string
		corpus Corpus
		want   int
	}{
		{"empty corpus is compliant", nil, 100},
		{"all matched", Corpus{"approved", "passed"}, 100},
		{"case insensitive", Corpus{"COMMERCIAL DISTRICT"}, 100},
		{"half matched", Corpus{"approved", "propane"}, 50},
		{"none matched", Corpus{"propane", "ventilation"}, 0},
		{"trimmed lines", Corpus{"  passed  \r"}, 100},
		{"one of three", Corpus{"passed", "propane", "ventilation"}, 33},
		{"half rounds to even down", Corpus{"passed", "a", "b", "c", "d", "e", "f", "g"}, 12},
		{"half rounds to even up", Corpus{"passed", "approved", "commercial", "a", "b", "c", "d", "e"}, 38},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compliance(app, tt.corpus))
		})
	}
}

func TestCompliance_BlankLine(t *testing.T) {
	assert.Equal(t, 100, Compliance(Application{"a": "x"}, Corpus{""}))
	assert.Equal(t, 0, Compliance(Application{}, Corpus{""}))
}

func TestGaps(t *testing.T) {
	app := Application{"Zoning Permit": "approved"}
	got := Gaps(app, Corpus{"approved", "", "propane"})
	assert.Equal(t, []string{"propane"}, got)
}

func TestRiskLevel(t *testing.T) {
	full := fullApplication()

	r, err := RiskLevel(full, DefaultRequiredFields, Corpus{"passed", "approved"})
	require.NoError(t, err)
	assert.Equal(t, RiskLow, r)

	r, err = RiskLevel(full, DefaultRequiredFields, Corpus{"passed", "propane"})
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, r)

	r, err = RiskLevel(Application{}, DefaultRequiredFields, nil)
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, r)

	_, err = RiskLevel(full, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRiskLevel_OneFieldMissing(t *testing.T) {
	app := fullApplication()
	delete(app, "Zoning Permit")

	c, err := Completeness(app, DefaultRequiredFields)
	require.NoError(t, err)
	assert.Equal(t, 80, c)

	r, err := RiskLevel(app, DefaultRequiredFields, Corpus{"passed"})
	require.NoError(t, err)
	assert.Equal(t, RiskLow, r)

	r, err = RiskLevel(app, DefaultRequiredFields, Corpus{"passed", "propane"})
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, r)
}

func TestClassify(t *testing.T) {
	for completeness := 0; completeness <= 100; completeness += 5 {
		for compliance := 0; compliance <= 100; compliance += 5 {
			r := Classify(completeness, compliance)
			assert.Equal(t, completeness >= 80 && compliance >= 80, r == RiskLow)
			assert.Equal(t, completeness < 80, r == RiskHigh)
		}
	}
}

func TestDecide(t *testing.T) {
	assert.Equal(t, DecisionAutoApproved, Decide(RiskLow))
	assert.Equal(t, DecisionForwardedForReview, Decide(RiskMedium))
	assert.Equal(t, DecisionForwardedForReview, Decide(RiskHigh))
}

func TestIdempotent(t *testing.T) {
	app := fullApplication()
	corpus := Corpus{"passed", "propane"}

	r1, err := RiskLevel(app, DefaultRequiredFields, corpus)
	require.NoError(t, err)
	r2, err := RiskLevel(app, DefaultRequiredFields, corpus)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, Compliance(app, corpus), Compliance(app, corpus))
	assert.Equal(t, fullApplication(), app)
}

func TestRiskText(t *testing.T) {
	r, err := ParseRisk(" medium ")
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, r)

	_, err = ParseRisk("severe")
	assert.ErrorIs(t, err, ErrInvalidInput)

	b, err := json.Marshal(Scorecard{Completeness: 80, Compliance: 50, Risk: RiskMedium})
	require.NoError(t, err)
	assert.JSONEq(t, `{"completeness":80,"compliance":50,"risk":"Medium"}`, string(b))

	var card Scorecard
	require.NoError(t, json.Unmarshal([]byte(`{"completeness":1,"compliance":2,"risk":"high"}`), &card))
	assert.Equal(t, RiskHigh, card.Risk)

	assert.Error(t, json.Unmarshal([]byte(`{"risk":"nope"}`), &card))
}

func TestDecisionText(t *testing.T) {
	var d Decision
	require.NoError(t, d.UnmarshalText([]byte("auto_approved")))
	assert.Equal(t, DecisionAutoApproved, d)
	assert.Error(t, d.UnmarshalText([]byte("approved")))

	_, err := Decision("maybe").MarshalText()
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	app := fullApplication()
	c := app.Clone()
	c["Zoning Permit"] = "missing"
	assert.Equal(t, "approved", app["Zoning Permit"])
	assert.NotNil(t, Application(nil).Clone())
}
