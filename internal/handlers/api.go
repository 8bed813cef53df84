package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"backup-timeline/internal/database"
	"backup-timeline/internal/indexer"
	"backup-timeline/internal/logging"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 1000
)

// TriggerSync queues a sync of the sources named by the repeatable "source"
// query parameter, or of all sources.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query()["source"]

	err := h.daemon.TriggerSync(keys...)
	switch {
	case errors.Is(err, indexer.ErrUnknownSource):
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, context.Canceled):
		writeJSONError(w, "shutting down", http.StatusServiceUnavailable)
		return
	case err != nil:
		logging.Error("failed to trigger sync: %v", err)
		writeJSONError(w, "failed to trigger sync", http.StatusInternalServerError)
		return
	}

	if keys == nil {
		keys = []string{}
	}
	writeJSONCode(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"sources": keys,
	})
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	database.Stats
	BySource []database.SourceSummary `json:"bySource"`
}

// GetStats returns entry counts by schema and per-source summaries.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		logging.Error("failed to load stats: %v", err)
		writeJSONError(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	summaries, err := h.store.SourceSummaries(r.Context())
	if err != nil {
		logging.Error("failed to load source summaries: %v", err)
		writeJSONError(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []database.SourceSummary{}
	}
	writeJSONCode(w, http.StatusOK, StatsResponse{Stats: stats, BySource: summaries})
}

// ListRuns returns journaled sync runs, newest first. Query parameters:
// source (optional) and limit (default 50).
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.store.ListSyncRuns(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		logging.Error("failed to list sync runs: %v", err)
		writeJSONError(w, "failed to list sync runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.SyncRun{}
	}
	writeJSONCode(w, http.StatusOK, runs)
}
