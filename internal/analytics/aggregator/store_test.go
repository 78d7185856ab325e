package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved []analytics.AggregatedStats
}

func (r *recordingSaver) SaveSnapshot(_ context.Context, stats analytics.AggregatedStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, stats)
	return nil
}

func TestScheduleTakesFinalSnapshot(t *testing.T) {
	agg := analytics.NewAggregator()
	agg.Track(analytics.SearchEvent{Type: analytics.EventSearch, Index: "docs", Query: "spin", TotalHits: 1})

	saver := &recordingSaver{}
	ctx, cancel := context.WithCancel(context.Background())
	done, err := Schedule(ctx, saver, agg, "@every 1h")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(saver.saved))
	}
	if saver.saved[0].TotalSearches != 1 {
		t.Errorf("snapshot TotalSearches = %d", saver.saved[0].TotalSearches)
	}
}

func TestScheduleRejectsBadSchedule(t *testing.T) {
	if _, err := Schedule(context.Background(), &recordingSaver{}, analytics.NewAggregator(), "every now and then"); err == nil {
		t.Fatal("expected an error for an invalid cron schedule")
	}
}
