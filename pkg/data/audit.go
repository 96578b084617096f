package data

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/pkg/errors"
)

const (
	insertAuditEntry = `INSERT INTO audit_entry (id, seq, created_at, application, completeness, compliance, risk, decision)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entry), ?, ?, ?, ?, ?, ?)
	`

	selectAuditEntries = `SELECT id, created_at, application, completeness, compliance, risk, decision
		FROM (
			SELECT * FROM audit_entry ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`
)

// AuditRecord is the persisted form of an audit entry.
type AuditRecord struct {
	ID          string
	Time        time.Time
	Application score.Application
	Scorecard   score.Scorecard
	Decision    score.Decision
}

// SaveAuditEntry appends a record. Existing records can not be replaced.
func SaveAuditEntry(db *sql.DB, r *AuditRecord) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil || r.ID == "" {
		return errors.New("audit record with an ID is required")
	}

	app, err := json.Marshal(r.Application)
	if err != nil {
		return errors.Wrap(err, "failed to marshal application")
	}

	stmt, err := db.Prepare(insertAuditEntry)
	if err != nil {
		return errors.Wrap(err, "failed to prepare audit insert statement")
	}
	defer stmt.Close()

	if _, err = stmt.Exec(r.ID, r.Time.UTC().Format(timeLayout), string(app),
		r.Scorecard.Completeness, r.Scorecard.Compliance,
		r.Scorecard.Risk.String(), r.Decision.String()); err != nil {
		return errors.Wrapf(err, "failed to insert audit entry: %s", r.ID)
	}

	return nil
}

// ListAuditEntries returns up to limit most recent records, oldest first.
func ListAuditEntries(db *sql.DB, limit int) ([]*AuditRecord, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectAuditEntries)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare audit select statement")
	}
	defer stmt.Close()

	rows, err := stmt.Query(limitOrDefault(limit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query audit entries")
	}
	defer rows.Close()

	list := make([]*AuditRecord, 0)
	for rows.Next() {
		var (
			r       AuditRecord
			created string
			app     string
			risk    string
			dec     string
		)
		if err := rows.Scan(&r.ID, &created, &app, &r.Scorecard.Completeness,
			&r.Scorecard.Compliance, &risk, &dec); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit row")
		}
		if r.Time, err = time.Parse(timeLayout, created); err != nil {
			return nil, errors.Wrapf(err, "failed to parse audit time: %s", created)
		}
		if err := json.Unmarshal([]byte(app), &r.Application); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal application for: %s", r.ID)
		}
		if err := r.Scorecard.Risk.UnmarshalText([]byte(risk)); err != nil {
			return nil, errors.Wrapf(err, "invalid risk for: %s", r.ID)
		}
		if err := r.Decision.UnmarshalText([]byte(dec)); err != nil {
			return nil, errors.Wrapf(err, "invalid decision for: %s", r.ID)
		}
		list = append(list, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate audit rows")
	}

	return list, nil
}
