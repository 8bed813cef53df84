package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"backup-timeline/internal/database"
	"backup-timeline/internal/indexer"
)

// Daemon is the sync daemon as seen by the handlers. *indexer.Indexer
// implements it.
type Daemon interface {
	GetHealthStatus() indexer.HealthStatus
	IsReady() bool
	TriggerSync(keys ...string) error
}

// Store is the read side of the entry store used by the API.
// *database.Database and *pgstore.Store implement it.
type Store interface {
	GetStats(ctx context.Context) (database.Stats, error)
	SourceSummaries(ctx context.Context) ([]database.SourceSummary, error)
	ListSyncRuns(ctx context.Context, source string, limit int) ([]database.SyncRun, error)
}

// LastRunReader is implemented by stores that persist run timestamps.
// When the store implements it, /healthz reports them.
type LastRunReader interface {
	GetLastRun(ctx context.Context, key string) (time.Time, error)
}

// Handlers serves the operations API.
type Handlers struct {
	daemon Daemon
	store  Store
}

// New creates the handlers.
func New(daemon Daemon, store Store) *Handlers {
	return &Handlers{daemon: daemon, store: store}
}

// Router registers every route.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sync", h.TriggerSync).Methods(http.MethodPost)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/runs", h.ListRuns).Methods(http.MethodGet)

	return r
}
