package eval

import (
	"context"
	"errors"
	"strings"

	"github.com/mchmarny/permitctl/pkg/review"
)

// Query is a retrieval question with keywords a relevant answer should contain.
type Query struct {
	Query    string   `json:"query" yaml:"query"`
	Category string   `json:"category" yaml:"category"`
	Keywords []string `json:"expected_answer_keywords" yaml:"expected_answer_keywords"`
}

// DefaultQueries returns the standard permit retrieval questions.
func DefaultQueries() []Query {
	return []Query{
		{
			Query:    "What documents are required for food truck permit?",
			Category: "requirements",
			Keywords: []string{"business license", "food safety", "zoning", "fire inspection"},
		},
		{
			Query:    "Denver food truck zoning restrictions",
			Category: "zoning",
			Keywords: []string{"residential zones", "commercial districts", "distance requirements"},
		},
		{
			Query:    "Fire safety requirements for mobile food units",
			Category: "safety",
			Keywords: []string{"fire extinguisher", "propane safety", "ventilation", "inspection"},
		},
		{
			Query:    "Health department inspection checklist",
			Category: "health",
			Keywords: []string{"temperature control", "sanitization", "food handling", "storage"},
		},
		{
			Query:    "Insurance requirements for food truck business",
			Category: "insurance",
			Keywords: []string{"general liability", "commercial auto", "workers compensation"},
		},
	}
}

// QueryResult is the keyword recall of one query.
type QueryResult struct {
	Query    string   `json:"query" yaml:"query"`
	Category string   `json:"category" yaml:"category"`
	Chunks   int      `json:"chunks" yaml:"chunks"`
	Found    []string `json:"found" yaml:"found"`
	Missing  []string `json:"missing" yaml:"missing"`
	Recall   float64  `json:"recall" yaml:"recall"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Retrieval summarizes keyword recall over a query set.
type Retrieval struct {
	Queries    int           `json:"queries" yaml:"queries"`
	MeanRecall float64       `json:"mean_recall" yaml:"mean_recall"`
	Results    []QueryResult `json:"results" yaml:"results"`
}

// EvaluateRetrieval runs every query and measures the share of expected
// keywords found, case-insensitively, in the retrieved text. A failed
// query scores zero recall.
func EvaluateRetrieval(ctx context.Context, r review.Retriever, queries []Query) (*Retrieval, error) {
	if r == nil {
		return nil, errors.New("retriever is required")
	}
	if len(queries) == 0 {
		return nil, errors.New("no retrieval queries")
	}

	out := &Retrieval{Queries: len(queries), Results: make([]QueryResult, 0, len(queries))}
	var total float64
	for _, q := range queries {
		qr := QueryResult{Query: q.Query, Category: q.Category, Found: []string{}, Missing: []string{}}

		chunks, err := r.Retrieve(ctx, q.Query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			qr.Error = err.Error()
			qr.Missing = append(qr.Missing, q.Keywords...)
			out.Results = append(out.Results, qr)
			continue
		}

		qr.Chunks = len(chunks)
		qr.Recall = keywordRecall(strings.Join(chunks, "\n"), q.Keywords, &qr)
		total += qr.Recall
		out.Results = append(out.Results, qr)
	}
	out.MeanRecall = total / float64(len(queries))

	return out, nil
}

func keywordRecall(text string, keywords []string, qr *QueryResult) float64 {
	if len(keywords) == 0 {
		return 1
	}
	text = strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			qr.Found = append(qr.Found, k)
		} else {
			qr.Missing = append(qr.Missing, k)
		}
	}
	return float64(len(qr.Found)) / float64(len(keywords))
}
