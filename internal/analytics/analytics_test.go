package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

func search(index, query string, hits int, cacheHit bool, latency int64) SearchEvent {
	return SearchEvent{
		Type:      EventSearch,
		Index:     index,
		Query:     query,
		TotalHits: hits,
		CacheHit:  cacheHit,
		LatencyMs: latency,
	}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(search("quspin", "spin", 4, false, 10))
	agg.Track(search("quspin", "spin", 4, true, 2))
	agg.Track(search(AllIndexes, "floquet", 6, false, 30))
	agg.Track(search("quspin", "zzz", 0, false, 5))
	agg.Track(IndexEvent{Type: EventIndexPublished, Index: "quspin", Documents: 50})
	agg.Track(IndexEvent{Type: EventIndexRemoved, Index: "old"})

	stats := agg.Stats()
	if stats.TotalSearches != 4 || stats.CacheHits != 1 || stats.CacheMisses != 3 {
		t.Errorf("unexpected counters %+v", stats)
	}
	if stats.ZeroResultCount != 1 || stats.IndexesPublished != 1 || stats.IndexesRemoved != 1 {
		t.Errorf("unexpected counters %+v", stats)
	}
	if stats.AvgLatencyMs != 11.75 {
		t.Errorf("AvgLatencyMs = %v, want 11.75", stats.AvgLatencyMs)
	}
	if stats.P50LatencyMs != 10 || stats.P99LatencyMs != 30 {
		t.Errorf("percentiles p50=%d p99=%d", stats.P50LatencyMs, stats.P99LatencyMs)
	}
	wantTop := []QueryCount{{"spin", 2}, {"floquet", 1}, {"zzz", 1}}
	if diff := cmp.Diff(wantTop, stats.TopQueries); diff != "" {
		t.Errorf("TopQueries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]QueryCount{{"zzz", 1}}, stats.ZeroResultQueries); diff != "" {
		t.Errorf("ZeroResultQueries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int64{"quspin": 3, AllIndexes: 1}, stats.SearchesByIndex); diff != "" {
		t.Errorf("SearchesByIndex mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.Track(search("x", "q", 1, false, 1))
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	if n != maxLatencySamples {
		t.Errorf("kept %d samples, want %d", n, maxLatencySamples)
	}
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	encode := func(v any) []byte {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	inputs := [][]byte{
		encode(search("quspin", "spin", 1, false, 3)),
		encode(IndexEvent{Type: EventIndexPublished, Index: "quspin"}),
		[]byte(`{"type":"something_else"}`),
		[]byte(`not json`),
	}
	for _, in := range inputs {
		if err := handle(ctx, nil, in); err != nil {
			t.Fatalf("handler returned %v for %s", err, in)
		}
	}
	stats := agg.Stats()
	if stats.TotalSearches != 1 || stats.IndexesPublished != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

type recorder struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (r *recorder) Publish(_ context.Context, events ...kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.batches = append(r.batches, events)
	return nil
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesOnShutdown(t *testing.T) {
	rec := &recorder{}
	c := NewCollector(rec, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	for i := 0; i < 5; i++ {
		c.Track(search("x", "q", 1, false, 1))
	}
	cancel()
	c.Close()

	if got := rec.total(); got != 5 {
		t.Errorf("published %d events, want 5", got)
	}
	if c.BufferLen() != 0 {
		t.Errorf("%d events left in buffer", c.BufferLen())
	}
}

func TestCollectorFlushesFullBatch(t *testing.T) {
	rec := &recorder{}
	c := NewCollector(rec, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
	}()
	c.Start(ctx)

	for i := 0; i < c.batchSize; i++ {
		c.Track(search("x", "q", 1, false, 1))
	}
	deadline := time.Now().Add(time.Second)
	for rec.total() < c.batchSize && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.total(); got != c.batchSize {
		t.Errorf("published %d events before the interval, want %d", got, c.batchSize)
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	rec := &recorder{fail: true}
	c := NewCollector(rec, 3)
	for i := 0; i < 5; i++ {
		c.Track(search("x", "q", 1, false, 1))
	}
	if got := c.BufferLen(); got != 3 {
		t.Errorf("BufferLen = %d, want 3", got)
	}
	c.flush(context.Background())
	if got := c.BufferLen(); got != 3 {
		t.Errorf("failed flush should requeue, BufferLen = %d", got)
	}
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(search("quspin", "spin", 1, false, 3))
	h := NewHandler(agg, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalSearches != 1 {
		t.Errorf("TotalSearches = %d", stats.TotalSearches)
	}

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("snapshots without a store: status = %d", rec.Code)
	}
}

type memSnapshots struct {
	snaps []Snapshot
}

func (m *memSnapshots) ListSnapshots(_ context.Context, limit int) ([]Snapshot, error) {
	if limit > len(m.snaps) {
		limit = len(m.snaps)
	}
	return m.snaps[:limit], nil
}

func (m *memSnapshots) LatestSnapshot(context.Context) (*Snapshot, error) {
	if len(m.snaps) == 0 {
		return nil, nil
	}
	return &m.snaps[0], nil
}

func TestHandlerLatestSnapshot(t *testing.T) {
	store := &memSnapshots{}
	h := NewHandler(NewAggregator(), store)

	rec := httptest.NewRecorder()
	h.LatestSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty store: status = %d, want 404", rec.Code)
	}

	captured := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	store.snaps = []Snapshot{
		{Stats: AggregatedStats{TotalSearches: 7}, CapturedAt: captured},
		{Stats: AggregatedStats{TotalSearches: 3}, CapturedAt: captured.Add(-time.Hour)},
	}
	rec = httptest.NewRecorder()
	h.LatestSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Stats.TotalSearches != 7 || !got.CapturedAt.Equal(captured) {
		t.Errorf("latest = %+v, want the newest snapshot", got)
	}

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=1", nil))
	var list []Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("listed %d snapshots, want 1", len(list))
	}
}
