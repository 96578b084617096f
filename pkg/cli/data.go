package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mchmarny/permitctl/pkg/audit"
	"github.com/mchmarny/permitctl/pkg/data"
	"github.com/mchmarny/permitctl/pkg/review"
	"github.com/mchmarny/permitctl/pkg/score"
)

const (
	maxRequestBytes = 1 << 20
	defaultAPILimit = 100
	maxAPILimit     = 1000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// handlers serves the scoring API. Question answering is served only when
// both db and asker are set.
type handlers struct {
	reviewer *review.Reviewer
	scorer   *review.Reviewer
	audit    audit.Reader
	metrics  *metrics
	db       *sql.DB
	asker    asker
}

func newHandlers(rv *review.Reviewer, ar audit.Reader, m *metrics) *handlers {
	// scoring skips the LLM explanation so it stays deterministic and fast
	scorer := *rv
	scorer.Explainer = nil
	return &handlers{reviewer: rv, scorer: &scorer, audit: ar, metrics: m}
}

func (h *handlers) readApplication(w http.ResponseWriter, r *http.Request) (score.Application, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	app, err := decodeApplication(b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return app, true
}

func (h *handlers) run(w http.ResponseWriter, r *http.Request, rv *review.Reviewer) (*review.Result, bool) {
	app, ok := h.readApplication(w, r)
	if !ok {
		return nil, false
	}
	res, err := rv.Review(r.Context(), app)
	if err != nil {
		if errors.Is(err, score.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		slog.Error("failed to review application", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to review application")
		return nil, false
	}
	h.metrics.decisions.WithLabelValues(res.Scorecard.Risk.String(), res.Decision.String()).Inc()
	return res, true
}

func (h *handlers) score(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.run(w, r, h.scorer); ok {
		writeJSON(w, http.StatusOK, newScoreResponse(res))
	}
}

func (h *handlers) review(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.run(w, r, h.reviewer); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *handlers) auditList(w http.ResponseWriter, r *http.Request) {
	limit := queryParamInt(r, "limit", defaultAPILimit)
	if limit <= 0 || limit > maxAPILimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	list, err := h.audit.List(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list audit entries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) requirements(w http.ResponseWriter, _ *http.Request) {
	corpus := score.Corpus{}
	if h.reviewer.Corpus != nil {
		if c := h.reviewer.Corpus(); c != nil {
			corpus = c
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(corpus),
		"requirements": corpus,
	})
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	if h.asker == nil || h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "question answering is not configured")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	res, err := askQuestion(r.Context(), h.db, h.asker, req.SessionID, req.Prompt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, errSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, score.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("failed to answer question", "session", req.SessionID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to answer question")
	}
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}
	s, err := data.GetSession(h.db, r.PathValue("id"))
	if err != nil {
		slog.Error("failed to get session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}
	if err := data.DeleteSession(h.db, r.PathValue("id")); err != nil {
		slog.Error("failed to delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}
