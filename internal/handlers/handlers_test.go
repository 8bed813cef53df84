package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-timeline/internal/database"
	"backup-timeline/internal/indexer"
	"backup-timeline/internal/startup"
)

type fakeDaemon struct {
	status    indexer.HealthStatus
	triggered [][]string
	err       error
}

func (d *fakeDaemon) GetHealthStatus() indexer.HealthStatus { return d.status }
func (d *fakeDaemon) IsReady() bool                         { return d.status.Ready }
func (d *fakeDaemon) TriggerSync(keys ...string) error {
	if d.err != nil {
		return d.err
	}
	d.triggered = append(d.triggered, keys)
	return nil
}

type fakeStore struct {
	stats     database.Stats
	summaries []database.SourceSummary
	runs      []database.SyncRun
	err       error
	gotSource string
	gotLimit  int
}

func (s *fakeStore) GetStats(context.Context) (database.Stats, error) {
	return s.stats, s.err
}

func (s *fakeStore) SourceSummaries(context.Context) ([]database.SourceSummary, error) {
	return s.summaries, s.err
}

// lastRunStore adds persisted run timestamps to fakeStore.
type lastRunStore struct {
	fakeStore
	lastRuns map[string]time.Time
}

func (s *lastRunStore) GetLastRun(_ context.Context, key string) (time.Time, error) {
	return s.lastRuns[key], nil
}

func (s *fakeStore) ListSyncRuns(_ context.Context, source string, limit int) ([]database.SyncRun, error) {
	s.gotSource, s.gotLimit = source, limit
	return s.runs, s.err
}

func serve(t *testing.T, h *Handlers, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		status     indexer.HealthStatus
		wantCode   int
		wantStatus string
	}{
		{
			name:       "starting",
			status:     indexer.HealthStatus{Syncing: true},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: statusStarting,
		},
		{
			name: "healthy",
			status: indexer.HealthStatus{Ready: true, Sources: []indexer.SourceStatus{
				{Source: "laptop", Status: "success"},
			}},
			wantCode:   http.StatusOK,
			wantStatus: statusHealthy,
		},
		{
			name: "partial source",
			status: indexer.HealthStatus{Ready: true, Sources: []indexer.SourceStatus{
				{Source: "laptop", Status: "success"},
				{Source: "nas", Status: "partial", Error: "backup 2024-01-02T03:00:00Z: boom"},
			}},
			wantCode:   http.StatusOK,
			wantStatus: statusDegraded,
		},
		{
			name:       "initial sync error",
			status:     indexer.HealthStatus{Ready: true, InitialSyncError: "nas: listing failed"},
			wantCode:   http.StatusOK,
			wantStatus: statusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeDaemon{status: tt.status}, &fakeStore{})
			rec := serve(t, h, http.MethodGet, "/healthz")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decode[HealthResponse](t, rec)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, startup.Version, resp.Version)
			assert.Len(t, resp.Sources, len(tt.status.Sources))
		})
	}
}

func TestHealthCheckLastSynced(t *testing.T) {
	synced := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := New(&fakeDaemon{status: indexer.HealthStatus{Ready: true, LastSynced: synced}}, &fakeStore{})

	resp := decode[HealthResponse](t, serve(t, h, http.MethodGet, "/healthz"))
	assert.Equal(t, "2024-03-01T12:00:00Z", resp.LastSynced)
	assert.Empty(t, resp.LastPreviewBatch)
}

func TestHealthCheckPersistedRuns(t *testing.T) {
	persisted := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	batch := time.Date(2024, 2, 2, 9, 30, 0, 0, time.UTC)
	store := &lastRunStore{lastRuns: map[string]time.Time{
		database.MetaLastSync:         persisted,
		database.MetaLastPreviewBatch: batch,
	}}

	// Before the daemon's first sync the persisted timestamp is reported.
	h := New(&fakeDaemon{status: indexer.HealthStatus{Ready: true}}, store)
	resp := decode[HealthResponse](t, serve(t, h, http.MethodGet, "/healthz"))
	assert.Equal(t, "2024-02-01T08:00:00Z", resp.LastSynced)
	assert.Equal(t, "2024-02-02T09:30:00Z", resp.LastPreviewBatch)

	// A sync by this process wins.
	synced := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h = New(&fakeDaemon{status: indexer.HealthStatus{Ready: true, LastSynced: synced}}, store)
	resp = decode[HealthResponse](t, serve(t, h, http.MethodGet, "/healthz"))
	assert.Equal(t, "2024-03-01T12:00:00Z", resp.LastSynced)
}

func TestProbes(t *testing.T) {
	daemon := &fakeDaemon{}
	h := New(daemon, &fakeStore{})

	rec := serve(t, h, http.MethodGet, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())

	rec = serve(t, h, http.MethodHead, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not_ready"}`, rec.Body.String())

	daemon.status.Ready = true
	rec = serve(t, h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestGetVersion(t *testing.T) {
	rec := serve(t, New(&fakeDaemon{}, &fakeStore{}), http.MethodGet, "/version")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	info := decode[startup.BuildInfo](t, rec)
	assert.Equal(t, startup.GetBuildInfo(), info)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, New(&fakeDaemon{}, &fakeStore{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backup_timeline_")
}

func TestTriggerSync(t *testing.T) {
	daemon := &fakeDaemon{}
	h := New(daemon, &fakeStore{})

	rec := serve(t, h, http.MethodPost, "/api/sync")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"accepted","sources":[]}`, rec.Body.String())

	rec = serve(t, h, http.MethodPost, "/api/sync?source=laptop&source=nas")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"accepted","sources":["laptop","nas"]}`, rec.Body.String())

	require.Len(t, daemon.triggered, 2)
	assert.Empty(t, daemon.triggered[0])
	assert.Equal(t, []string{"laptop", "nas"}, daemon.triggered[1])

	rec = serve(t, h, http.MethodGet, "/api/sync")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTriggerSyncErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"unknown source", indexer.ErrUnknownSource, http.StatusNotFound},
		{"shutting down", context.Canceled, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, New(&fakeDaemon{err: tt.err}, &fakeStore{}), http.MethodPost, "/api/sync?source=x")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec), "error")
		})
	}
}

func TestGetStats(t *testing.T) {
	store := &fakeStore{stats: database.Stats{
		TotalEntries:    3,
		EntriesBySchema: map[string]int{"file.image": 2, "file.video": 1},
		Sources:         1,
	}}
	rec := serve(t, New(&fakeDaemon{}, store), http.MethodGet, "/api/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalEntries":3,"entriesBySchema":{"file.image":2,"file.video":1},"sources":1,"bySource":[]}`, rec.Body.String())

	store.summaries = []database.SourceSummary{{Source: "laptop", Entries: 3, Backups: 2, LatestBackupAt: "2024-01-02T00:00:00Z"}}
	rec = serve(t, New(&fakeDaemon{}, store), http.MethodGet, "/api/stats")
	assert.JSONEq(t, `{"totalEntries":3,"entriesBySchema":{"file.image":2,"file.video":1},"sources":1,
		"bySource":[{"source":"laptop","entries":3,"backups":2,"latestBackupAt":"2024-01-02T00:00:00Z"}]}`, rec.Body.String())

	store.err = errors.New("db locked")
	rec = serve(t, New(&fakeDaemon{}, store), http.MethodGet, "/api/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListRuns(t *testing.T) {
	store := &fakeStore{runs: []database.SyncRun{{ID: "r1", Source: "laptop", Status: database.SyncSuccess}}}
	h := New(&fakeDaemon{}, store)

	rec := serve(t, h, http.MethodGet, "/api/runs?source=laptop&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]database.SyncRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
	assert.Equal(t, "laptop", store.gotSource)
	assert.Equal(t, 5, store.gotLimit)

	serve(t, h, http.MethodGet, "/api/runs?limit=100000")
	assert.Equal(t, maxRunsLimit, store.gotLimit)

	serve(t, h, http.MethodGet, "/api/runs")
	assert.Equal(t, defaultRunsLimit, store.gotLimit)
	assert.Equal(t, "", store.gotSource)

	rec = serve(t, h, http.MethodGet, "/api/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRunsEmpty(t *testing.T) {
	rec := serve(t, New(&fakeDaemon{}, &fakeStore{}), http.MethodGet, "/api/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
