// Package review runs the full permit review pipeline: retrieve regulations,
// score, decide, explain and record an audit entry.
package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/permitctl/pkg/audit"
	"github.com/mchmarny/permitctl/pkg/data"
	"github.com/mchmarny/permitctl/pkg/score"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 4

	queryPrefix = "Denver food truck permit requirements for"
)

// Retriever finds regulation text relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// Explainer drafts a reviewer-facing summary of a scored application.
type Explainer interface {
	Explain(ctx context.Context, app score.Application, card *score.Scorecard, regulations []string) (string, error)
}

// Result is the outcome of one review.
type Result = data.Review

// Reviewer wires the scoring engine to its optional collaborators.
// Engine and Corpus are required; the rest may be nil.
type Reviewer struct {
	Engine    *score.Engine
	Corpus    func() score.Corpus
	Retriever Retriever
	Explainer Explainer
	Sink      audit.Sink
	DB        *sql.DB
	Now       func() time.Time
}

func (r *Reviewer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Reviewer) corpus() score.Corpus {
	if r.Corpus == nil {
		return nil
	}
	return r.Corpus()
}

// Review scores app and records the decision. A failed retrieval or
// explanation is logged and skipped; a failed save or audit append is returned.
func (r *Reviewer) Review(ctx context.Context, app score.Application) (*Result, error) {
	if r.Engine == nil {
		return nil, errors.New("reviewer requires a scoring engine")
	}
	if app == nil {
		return nil, fmt.Errorf("%w: application is required", score.ErrInvalidInput)
	}

	corpus := r.corpus()
	var regulations []string
	if r.Retriever != nil {
		got, err := r.Retriever.Retrieve(ctx, Query(app))
		if err != nil {
			slog.Warn("regulation retrieval failed, using full corpus", "error", err)
		} else if len(got) > 0 {
			regulations = got
			corpus = Narrow(corpus, got)
		}
	}

	card, err := r.Engine.Score(app, corpus)
	if err != nil {
		return nil, fmt.Errorf("scoring application: %w", err)
	}

	res := &Result{
		ID:          uuid.NewString(),
		Time:        r.now().UTC(),
		Application: app.Clone(),
		Scorecard:   *card,
		Decision:    card.Decision(),
		Report:      *r.Engine.Report(app, corpus, card),
		Context:     regulations,
	}

	if r.Explainer != nil {
		summary, err := r.Explainer.Explain(ctx, app, card, regulations)
		if err != nil {
			slog.Warn("explanation failed", "id", res.ID, "error", err)
		} else {
			res.Summary = summary
		}
	}

	// an audit entry exists only for reviews that were saved
	if r.DB != nil {
		if err := data.SaveReview(r.DB, res); err != nil {
			return nil, fmt.Errorf("saving review: %w", err)
		}
	}

	if r.Sink != nil {
		e := audit.Entry{
			ID:          res.ID,
			Time:        res.Time,
			Application: res.Application.Clone(),
			Scorecard:   res.Scorecard,
			Decision:    res.Decision,
		}
		if err := r.Sink.Append(ctx, e); err != nil {
			return nil, fmt.Errorf("appending audit entry: %w", err)
		}
	}

	slog.Debug("reviewed application",
		"id", res.ID,
		"completeness", card.Completeness,
		"compliance", card.Compliance,
		"risk", card.Risk,
		"decision", res.Decision)

	return res, nil
}

// ReviewAll reviews apps on at most workers goroutines. Results keep the
// order of apps; the first error cancels the remaining reviews.
func (r *Reviewer) ReviewAll(ctx context.Context, apps []score.Application, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]*Result, len(apps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, app := range apps {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.Review(ctx, app)
			if err != nil {
				return fmt.Errorf("application %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Narrow keeps the corpus lines that appear, case-insensitively, in any of
// the retrieved chunks. When no line matches, the full corpus is returned.
func Narrow(corpus score.Corpus, chunks []string) score.Corpus {
	if len(corpus) == 0 || len(chunks) == 0 {
		return corpus
	}
	text := strings.ToLower(strings.Join(chunks, "\n"))
	out := make(score.Corpus, 0, len(corpus))
	for _, line := range corpus {
		rule := strings.ToLower(strings.TrimSpace(line))
		if rule != "" && strings.Contains(text, rule) {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return corpus
	}
	return out
}

// Query builds the retrieval query for app from its field names.
func Query(app score.Application) string {
	fields := make([]string, 0, len(app))
	for k := range app {
		if f := strings.ReplaceAll(score.NormalizeField(k), "_", " "); f != "" {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	if len(fields) == 0 {
		return queryPrefix + " a new application"
	}
	return queryPrefix + " " + strings.Join(fields, ", ")
}
