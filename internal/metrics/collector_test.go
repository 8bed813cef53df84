package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockStatsProvider struct {
	mu        sync.Mutex
	stats     Stats
	err       error
	calls     int
	dbUpdates int
}

func (m *mockStatsProvider) TimelineStats(context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats, m.err
}

func (m *mockStatsProvider) UpdateDBMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dbUpdates++
}

func (m *mockStatsProvider) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.dbUpdates
}

func TestCollectorSetsGauges(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		TotalEntries:    7,
		EntriesBySchema: map[string]int{"file.image": 5, "file.video": 2},
		Sources:         3,
	}}

	c := NewCollector(provider, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(EntriesTotal.WithLabelValues("file.image")); got != 5 {
		t.Errorf("entries{file.image} = %v, want 5", got)
	}
	if got := testutil.ToFloat64(EntriesTotal.WithLabelValues("file.audio")); got != 0 {
		t.Errorf("entries{file.audio} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(SourcesTotal); got != 3 {
		t.Errorf("sources = %v, want 3", got)
	}
	if _, updates := provider.counts(); updates != 1 {
		t.Errorf("UpdateDBMetrics called %d times, want 1", updates)
	}
}

func TestCollectorKeepsGaugesOnError(t *testing.T) {
	SourcesTotal.Set(11)
	provider := &mockStatsProvider{err: errors.New("db closed")}

	NewCollector(provider, time.Hour).collect()

	if got := testutil.ToFloat64(SourcesTotal); got != 11 {
		t.Errorf("sources = %v, want unchanged 11", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.collect() // must not panic
}

func TestCollectorStartStop(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{EntriesBySchema: map[string]int{}}}

	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		calls, _ := provider.counts()
		if calls >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("collector ran %d times, want at least 2", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Stop()
	calls, _ := provider.counts()
	time.Sleep(30 * time.Millisecond)
	if after, _ := provider.counts(); after != calls {
		t.Errorf("collector kept running after Stop: %d -> %d", calls, after)
	}
}
