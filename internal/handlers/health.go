package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"backup-timeline/internal/database"
	"backup-timeline/internal/indexer"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status           string                 `json:"status"`
	Ready            bool                   `json:"ready"`
	Version          string                 `json:"version"`
	Uptime           string                 `json:"uptime"`
	Syncing          bool                   `json:"syncing"`
	LastSynced       string                 `json:"lastSynced,omitempty"`
	LastPreviewBatch string                 `json:"lastPreviewBatch,omitempty"`
	InitialSyncError string                 `json:"initialSyncError,omitempty"`
	Sources          []indexer.SourceStatus `json:"sources"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. A source whose last
// sync did not succeed makes the service degraded but still healthy enough to
// serve. Until the daemon completes a sync, lastSynced comes from the store.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.daemon.GetHealthStatus()

	response := HealthResponse{
		Ready:            status.Ready,
		Version:          startup.Version,
		Uptime:           status.Uptime,
		Syncing:          status.Syncing,
		InitialSyncError: status.InitialSyncError,
		Sources:          status.Sources,
		GoVersion:        runtime.Version(),
		NumCPU:           runtime.NumCPU(),
		NumGoroutine:     runtime.NumGoroutine(),
	}

	switch {
	case !status.Ready:
		response.Status = statusStarting
	case status.InitialSyncError != "" || anyFailed(status.Sources):
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	lastSynced := status.LastSynced
	if lr, ok := h.store.(LastRunReader); ok {
		if lastSynced.IsZero() {
			lastSynced = h.lastRun(r.Context(), lr, database.MetaLastSync)
		}
		if t := h.lastRun(r.Context(), lr, database.MetaLastPreviewBatch); !t.IsZero() {
			response.LastPreviewBatch = t.UTC().Format(time.RFC3339)
		}
	}
	if !lastSynced.IsZero() {
		response.LastSynced = lastSynced.UTC().Format(time.RFC3339)
	}

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONCode(w, code, response)
}

func (h *Handlers) lastRun(ctx context.Context, lr LastRunReader, key string) time.Time {
	t, err := lr.GetLastRun(ctx, key)
	if err != nil {
		logging.Warn("Failed to read %s: %v", key, err)
		return time.Time{}
	}
	return t
}

func anyFailed(sources []indexer.SourceStatus) bool {
	for _, s := range sources {
		if s.Status == "failed" || s.Status == "partial" {
			return true
		}
	}
	return false
}

// LivenessCheck always returns 200 while the process serves requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSONStatus(w, http.StatusOK, "alive")
}

// ReadinessCheck returns 200 once the initial sync has finished.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.daemon.IsReady() {
		writeJSONStatus(w, http.StatusOK, "ready")
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
}
