package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const (
	pgDefaultList = 100

	pgSchema = `CREATE TABLE IF NOT EXISTS permit_audit (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	application JSONB NOT NULL,
	completeness INTEGER NOT NULL CHECK (completeness BETWEEN 0 AND 100),
	compliance INTEGER NOT NULL CHECK (compliance BETWEEN 0 AND 100),
	risk TEXT NOT NULL,
	decision TEXT NOT NULL
)`

	pgInsert = `INSERT INTO permit_audit (id, created_at, application, completeness, compliance, risk, decision)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	pgSelect = `SELECT id, created_at, application::text, completeness, compliance, risk, decision
FROM (SELECT * FROM permit_audit ORDER BY seq DESC LIMIT $1) recent
ORDER BY seq ASC`
)

// PostgresSink persists entries to a shared Postgres database.
type PostgresSink struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and makes sure the audit table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := NewPostgresSink(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("creating audit table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error { return s.db.Close() }

func (s *PostgresSink) Append(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	app, err := json.Marshal(e.Application)
	if err != nil {
		return fmt.Errorf("marshaling application: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, pgInsert, e.ID, e.Time.UTC(), string(app),
		e.Scorecard.Completeness, e.Scorecard.Compliance,
		e.Scorecard.Risk.String(), e.Decision.String()); err != nil {
		return fmt.Errorf("inserting audit entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresSink) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = pgDefaultList
	}
	rows, err := s.db.QueryContext(ctx, pgSelect, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			created   time.Time
			app       string
			risk, dec string
		)
		if err := rows.Scan(&e.ID, &created, &app, &e.Scorecard.Completeness,
			&e.Scorecard.Compliance, &risk, &dec); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		e.Time = created.UTC()
		if err := json.Unmarshal([]byte(app), &e.Application); err != nil {
			return nil, fmt.Errorf("decoding application for %s: %w", e.ID, err)
		}
		if err := e.Scorecard.Risk.UnmarshalText([]byte(risk)); err != nil {
			return nil, err
		}
		if err := e.Decision.UnmarshalText([]byte(dec)); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
