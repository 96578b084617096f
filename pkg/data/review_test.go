package data

import (
	"testing"
	"time"

	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetReview(t *testing.T) {
	db := setupTestDB(t)

	r := &Review{
		ID:          "r1",
		Time:        time.Now().UTC(),
		Application: score.Application{"Zoning Permit": "missing"},
		Scorecard:   score.Scorecard{Completeness: 80, Compliance: 50, Risk: score.RiskMedium},
		Decision:    score.DecisionForwardedForReview,
		Report: score.Report{
			Errors:         []string{"Zoning Permit"},
			Risk:           score.RiskMedium,
			ComplianceGaps: []string{"propane"},
		},
		Summary: "needs zoning",
	}
	require.NoError(t, SaveReview(db, r))

	got, err := GetReview(db, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.Application, got.Application)
	assert.Equal(t, r.Scorecard, got.Scorecard)
	assert.Equal(t, r.Report, got.Report)
	assert.Equal(t, "needs zoning", got.Summary)
	assert.Empty(t, got.Context)
	assert.Equal(t, score.DecisionForwardedForReview, got.Decision)
}

func TestGetReview_NotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := GetReview(db, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveReview_Invalid(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, SaveReview(db, nil))
	assert.Error(t, SaveReview(nil, &Review{ID: "x"}))
	_, err := GetReview(nil, "x")
	assert.Error(t, err)
}
