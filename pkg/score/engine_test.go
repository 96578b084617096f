package score

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine_NoFields(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_ScoreScenarios(t *testing.T) {
	e, err := NewEngine(DefaultRequiredFields)
	require.NoError(t, err)

	t.Run("complete and compliant", func(t *testing.T) {
		card, err := e.Score(fullApplication(), Corpus{"present", "passed", "attached", "approved"})
		require.NoError(t, err)
		assert.Equal(t, 100, card.Completeness)
		assert.Equal(t, 100, card.Compliance)
		assert.Equal(t, RiskLow, card.Risk)
		assert.Equal(t, DecisionAutoApproved, card.Decision())
	})

	t.Run("empty application", func(t *testing.T) {
		card, err := e.Score(Application{}, Corpus{"present"})
		require.NoError(t, err)
		assert.Equal(t, 0, card.Completeness)
		assert.Equal(t, RiskHigh, card.Risk)
		assert.Equal(t, DecisionForwardedForReview, card.Decision())
	})

	t.Run("empty corpus", func(t *testing.T) {
		card, err := e.Score(fullApplication(), nil)
		require.NoError(t, err)
		assert.Equal(t, 100, card.Compliance)
		assert.Equal(t, RiskLow, card.Risk)
	})
}

func TestEngine_CustomChecker(t *testing.T) {
	e, err := NewEngine(DefaultRequiredFields, WithChecker(CheckerFunc(func(Application, Corpus) (int, error) {
		return 50, nil
	})))
	require.NoError(t, err)

	card, err := e.Score(fullApplication(), Corpus{"x"})
	require.NoError(t, err)
	assert.Equal(t, 50, card.Compliance)
	assert.Equal(t, RiskMedium, card.Risk)

	r := e.Report(fullApplication(), Corpus{"x"}, card)
	assert.Empty(t, r.ComplianceGaps)
}

func TestEngine_CheckerErrors(t *testing.T) {
	boom := errors.New("boom")
	e, err := NewEngine(DefaultRequiredFields, WithChecker(CheckerFunc(func(Application, Corpus) (int, error) {
		return 0, boom
	})))
	require.NoError(t, err)
	_, err = e.Score(fullApplication(), nil)
	assert.ErrorIs(t, err, boom)

	e, err = NewEngine(DefaultRequiredFields, WithChecker(CheckerFunc(func(Application, Corpus) (int, error) {
		return 101, nil
	})))
	require.NoError(t, err)
	_, err = e.Score(fullApplication(), nil)
	assert.Error(t, err)
}

func TestStrictChecker(t *testing.T) {
	e, err := NewEngine(DefaultRequiredFields, WithChecker(StrictChecker{}))
	require.NoError(t, err)

	_, err = e.Score(fullApplication(), nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	card, err := e.Score(fullApplication(), Corpus{"passed"})
	require.NoError(t, err)
	assert.Equal(t, 100, card.Compliance)
}

func TestEngine_Report(t *testing.T) {
	e, err := NewEngine(DefaultRequiredFields)
	require.NoError(t, err)

	app := fullApplication()
	app["Zoning Permit"] = "missing"
	corpus := Corpus{"passed", "propane safety"}

	card, err := e.Score(app, corpus)
	require.NoError(t, err)

	r := e.Report(app, corpus, card)
	assert.Equal(t, []string{"Zoning Permit"}, r.Errors)
	assert.Equal(t, []string{"propane safety"}, r.ComplianceGaps)
	assert.Equal(t, RiskMedium, r.Risk)
}

func TestEngine_RequiredFieldsCopy(t *testing.T) {
	fields := []string{"a", "b"}
	e, err := NewEngine(fields)
	require.NoError(t, err)
	fields[0] = "z"
	got := e.RequiredFields()
	assert.Equal(t, []string{"a", "b"}, got)
	got[1] = "y"
	assert.Equal(t, []string{"a", "b"}, e.RequiredFields())
}
