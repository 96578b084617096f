package data

import (
	"fmt"
	"testing"
	"time"

	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuditRecord(id string, risk score.Risk) *AuditRecord {
	return &AuditRecord{
		ID:          id,
		Time:        time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC),
		Application: score.Application{"Zoning Permit": "approved"},
		Scorecard:   score.Scorecard{Completeness: 100, Compliance: 90, Risk: risk},
		Decision:    score.Decide(risk),
	}
}

func TestSaveAndListAuditEntries(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, SaveAuditEntry(db, testAuditRecord(fmt.Sprintf("id-%d", i), score.RiskLow)))
	}

	list, err := ListAuditEntries(db, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "id-2", list[0].ID)
	assert.Equal(t, "id-4", list[2].ID)

	got := list[0]
	assert.Equal(t, score.Application{"Zoning Permit": "approved"}, got.Application)
	assert.Equal(t, score.RiskLow, got.Scorecard.Risk)
	assert.Equal(t, score.DecisionAutoApproved, got.Decision)
	assert.True(t, got.Time.Equal(time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)))

	all, err := ListAuditEntries(db, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSaveAuditEntry_DuplicateID(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SaveAuditEntry(db, testAuditRecord("dup", score.RiskLow)))
	assert.Error(t, SaveAuditEntry(db, testAuditRecord("dup", score.RiskHigh)))
}

func TestAuditEntry_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SaveAuditEntry(db, testAuditRecord("a", score.RiskLow)))

	_, err := db.Exec("UPDATE audit_entry SET decision = 'forwarded_for_review' WHERE id = 'a'")
	assert.Error(t, err)

	_, err = db.Exec("DELETE FROM audit_entry WHERE id = 'a'")
	assert.Error(t, err)

	list, err := ListAuditEntries(db, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, score.DecisionAutoApproved, list[0].Decision)
}

func TestSaveAuditEntry_Invalid(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, SaveAuditEntry(db, nil))
	assert.Error(t, SaveAuditEntry(db, &AuditRecord{}))
	assert.Error(t, SaveAuditEntry(nil, testAuditRecord("x", score.RiskLow)))

	_, err := ListAuditEntries(nil, 1)
	assert.Error(t, err)
}
