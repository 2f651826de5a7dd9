package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/homemonitor/internal/registry"
	"github.com/aaronlmathis/homemonitor/internal/series"
	"github.com/aaronlmathis/homemonitor/internal/thingspeak"
)

const feedBody = `{
	"channel": {"id": 1, "name": "Living Room", "last_entry_id": 3},
	"feeds": [
		{"created_at": "2024-12-24T07:00:39Z", "entry_id": 1, "field1": "70.1"},
		{"created_at": "2024-12-24T07:05:39Z", "entry_id": 2, "field1": "70.3"},
		{"created_at": "2024-12-24T07:10:39Z", "entry_id": 3, "field1": "70.5"}
	]
}`

type fixture struct {
	poller *Poller
	store  *series.MemStore
	health *series.HealthMetrics
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := zap.NewNop()
	client := thingspeak.NewClient(server.URL, 5*time.Second, 100, logger)
	conv := thingspeak.NewTimeConverterAt(func() time.Time {
		return time.Date(2024, 12, 24, 12, 0, 0, 0, time.UTC)
	}, time.FixedZone("PST", -8*60*60))
	builder := thingspeak.NewBuilder([]thingspeak.FieldDef{{Number: 1, Label: "Temperature"}}, 100, conv, logger)

	reg := registry.New(filepath.Join(t.TempDir(), "channels.json"), 10, logger)
	if err := reg.Add(registry.Channel{Name: "Living Room", ID: 1, APIKey: "k"}); err != nil {
		t.Fatalf("Failed to seed registry: %v", err)
	}

	health := series.NewHealthMetrics()
	store := series.NewMemStoreWithHealth(health)

	p := NewPoller(logger, store, health, client, builder, reg, Config{
		Interval: time.Hour,
		Results:  100,
	})
	return &fixture{poller: p, store: store, health: health}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", desc)
}

func TestPollerInitialRefresh(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.poller.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.poller.Stop()

	waitFor(t, "first refresh", f.health.Ready)

	s, exists := f.store.Get(series.Key(1, 1))
	if !exists {
		t.Fatal("Expected series after first refresh")
	}
	if s.Len() != 3 {
		t.Errorf("Expected 3 points, got %d", s.Len())
	}

	status, _ := f.store.GetChannelStatus(1)
	if !status.Valid {
		t.Error("Expected channel marked valid")
	}

	if !f.poller.NextDeadline().After(time.Now()) {
		t.Error("Expected deadline pushed into the future")
	}
	if f.poller.State() != StateIdle {
		t.Errorf("Expected idle state after refresh, got %s", f.poller.State())
	}
}

func TestPollerFailureKeepsPriorSeries(t *testing.T) {
	var fail atomic.Bool
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(feedBody))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.poller.Start(ctx)
	defer f.poller.Stop()

	waitFor(t, "first refresh", f.health.Ready)

	fail.Store(true)
	if !f.poller.TriggerRefresh() {
		t.Fatal("Expected trigger to be accepted")
	}

	waitFor(t, "failed refresh recorded", func() bool {
		status, ok := f.store.GetChannelStatus(1)
		return ok && !status.Valid
	})

	s, exists := f.store.Get(series.Key(1, 1))
	if !exists {
		t.Fatal("Expected prior series to survive a failed refresh")
	}
	if s.Len() != 3 {
		t.Errorf("Expected the stale 3-point series, got %d points", s.Len())
	}

	status, _ := f.store.GetChannelStatus(1)
	if status.LastError == "" {
		t.Error("Expected last error recorded on the status")
	}
	if !f.poller.NextDeadline().After(time.Now()) {
		t.Error("Expected deadline reset even after a failed refresh")
	}
}

func TestPollerManualTriggerCollapses(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	})

	// No loop is draining the queue, so the second trigger has nowhere
	// to go and must be dropped.
	if !f.poller.TriggerRefresh() {
		t.Error("Expected first trigger accepted")
	}
	if f.poller.TriggerRefresh() {
		t.Error("Expected second trigger dropped while one is pending")
	}
}

func TestPollerOnRefreshHook(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	})

	var mu sync.Mutex
	var got []ChannelResult
	f.poller.SetOnRefresh(func(results []ChannelResult) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, results...)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.poller.Start(ctx)
	defer f.poller.Stop()

	waitFor(t, "refresh hook", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0].ChannelID != 1 || !got[0].Valid || got[0].Points != 3 {
		t.Errorf("Unexpected refresh result %+v", got[0])
	}
}

func TestPollerTriggerUnknownChannel(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.poller.Start(ctx)
	defer f.poller.Stop()

	waitFor(t, "first refresh", f.health.Ready)

	before := f.health.GetSnapshot().RefreshCount
	f.poller.TriggerChannelRefresh(999)

	waitFor(t, "refresh attempt for unknown channel", func() bool {
		return f.health.GetSnapshot().RefreshCount > before
	})

	// Nothing to fetch, so no new status appears for the unknown id.
	if _, ok := f.store.GetChannelStatus(999); ok {
		t.Error("Expected no status for unknown channel")
	}
}
