// Package audit records scoring decisions in append-only sinks.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/permitctl/pkg/score"
)

// ErrInvalidEntry is returned when an entry is missing its identity or decision.
var ErrInvalidEntry = errors.New("invalid audit entry")

// Entry is an immutable record of one scoring decision.
type Entry struct {
	ID          string            `json:"id" yaml:"id"`
	Time        time.Time         `json:"time" yaml:"time"`
	Application score.Application `json:"application" yaml:"application"`
	Scorecard   score.Scorecard   `json:"scorecard" yaml:"scorecard"`
	Decision    score.Decision    `json:"decision" yaml:"decision"`
}

// NewEntry snapshots app and derives the decision from the scorecard.
func NewEntry(app score.Application, card score.Scorecard, now time.Time) Entry {
	return Entry{
		ID:          uuid.NewString(),
		Time:        now.UTC(),
		Application: app.Clone(),
		Scorecard:   card,
		Decision:    card.Decision(),
	}
}

// Validate checks the entry carries an ID and a decision consistent with its risk.
func (e Entry) Validate() error {
	if e.ID == "" {
		return errors.Join(ErrInvalidEntry, errors.New("id is required"))
	}
	if e.Decision != score.Decide(e.Scorecard.Risk) {
		return errors.Join(ErrInvalidEntry, errors.New("decision does not match risk"))
	}
	return nil
}

func (e Entry) clone() Entry {
	e.Application = e.Application.Clone()
	return e
}

// Sink accepts audit entries for append-only persistence.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Reader lists previously appended entries, oldest first.
type Reader interface {
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Store is a sink that can also be read back.
type Store interface {
	Sink
	Reader
}

// MultiSink appends to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, e Entry) error {
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Append(context.Context, Entry) error { return nil }
