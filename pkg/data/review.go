package data

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/pkg/errors"
)

const (
	insertReview = `INSERT INTO review (id, created_at, application, scorecard, decision, report, summary, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectReview = `SELECT id, created_at, application, scorecard, decision, report, summary, context
		FROM review WHERE id = ?
	`
)

// Review is a persisted review log item awaiting or recording human review.
type Review struct {
	ID          string            `json:"id" yaml:"id"`
	Time        time.Time         `json:"time" yaml:"time"`
	Application score.Application `json:"application" yaml:"application"`
	Scorecard   score.Scorecard   `json:"scores" yaml:"scores"`
	Decision    score.Decision    `json:"decision" yaml:"decision"`
	Report      score.Report      `json:"report" yaml:"report"`
	Summary     string            `json:"llama_summary,omitempty" yaml:"llama_summary,omitempty"`
	Context     []string          `json:"context,omitempty" yaml:"context,omitempty"`
}

// SaveReview persists a review log item.
func SaveReview(db *sql.DB, r *Review) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil || r.ID == "" {
		return errors.New("review with an ID is required")
	}

	blobs := make([]string, 0, 3)
	for _, v := range []any{r.Application, r.Scorecard, r.Report} {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal review: %s", r.ID)
		}
		blobs = append(blobs, string(b))
	}

	ctx := r.Context
	if ctx == nil {
		ctx = []string{}
	}
	c, err := json.Marshal(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to marshal review context")
	}

	if _, err := db.Exec(insertReview, r.ID, r.Time.UTC().Format(timeLayout),
		blobs[0], blobs[1], r.Decision.String(), blobs[2], r.Summary, string(c)); err != nil {
		return errors.Wrapf(err, "failed to insert review: %s", r.ID)
	}
	return nil
}

// GetReview returns the review with id or nil when none exists.
func GetReview(db *sql.DB, id string) (*Review, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var (
		r                            Review
		created, app, card, rep, ctx string
		dec                          string
	)
	err := db.QueryRow(selectReview, id).Scan(&r.ID, &created, &app, &card, &dec, &rep, &r.Summary, &ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get review: %s", id)
	}

	if r.Time, err = time.Parse(timeLayout, created); err != nil {
		return nil, errors.Wrapf(err, "failed to parse review time: %s", created)
	}
	if err := r.Decision.UnmarshalText([]byte(dec)); err != nil {
		return nil, errors.Wrapf(err, "invalid decision for review: %s", id)
	}
	for _, p := range []struct {
		raw string
		v   any
	}{
		{app, &r.Application},
		{card, &r.Scorecard},
		{rep, &r.Report},
		{ctx, &r.Context},
	} {
		if err := json.Unmarshal([]byte(p.raw), p.v); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal review: %s", id)
		}
	}

	return &r, nil
}
