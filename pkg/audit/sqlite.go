package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mchmarny/permitctl/pkg/data"
)

// SQLiteSink persists entries to the local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if err := data.SaveAuditEntry(s.db, &data.AuditRecord{
		ID:          e.ID,
		Time:        e.Time,
		Application: e.Application,
		Scorecard:   e.Scorecard,
		Decision:    e.Decision,
	}); err != nil {
		return fmt.Errorf("saving audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteSink) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, err := data.ListAuditEntries(s.db, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	out := make([]Entry, 0, len(list))
	for _, r := range list {
		out = append(out, Entry{
			ID:          r.ID,
			Time:        r.Time,
			Application: r.Application,
			Scorecard:   r.Scorecard,
			Decision:    r.Decision,
		})
	}
	return out, nil
}
