package data

import (
	"database/sql"

	"github.com/pkg/errors"
)

var (
	stateQueries = map[string]string{
		"audit_entry":          "SELECT COUNT(*) FROM audit_entry",
		"review":               "SELECT COUNT(*) FROM review",
		"auto_approved":        "SELECT COUNT(*) FROM audit_entry WHERE decision = 'auto_approved'",
		"forwarded_for_review": "SELECT COUNT(*) FROM audit_entry WHERE decision = 'forwarded_for_review'",
		"session":              "SELECT COUNT(*) FROM session",
		"message":              "SELECT COUNT(*) FROM message",
	}
)

// GetDataState returns the current state of the database.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, v := range stateQueries {
		stmt, err := db.Prepare(v)
		if err != nil {
			return nil, errors.Wrapf(err, "error preparing %s statement", k)
		}

		count, err := getCount(db, stmt)
		stmt.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "error getting %s count", k)
		}
		state[k] = count
	}

	return state, nil
}

func getCount(db *sql.DB, stmt *sql.Stmt) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	row := stmt.QueryRow()

	var count int64
	err := row.Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to scan row")
	}

	return count, nil
}
