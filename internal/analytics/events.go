package analytics

import "time"

type EventType string

const (
	EventSearch         EventType = "search"
	EventIndexPublished EventType = "index_published"
	EventIndexRemoved   EventType = "index_removed"
)

// AllIndexes is the Index value of a search that fanned out over the whole
// catalog.
const AllIndexes = "*"

type SearchEvent struct {
	Type       EventType `json:"type"`
	Index      string    `json:"index"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	IndexCount int       `json:"index_count"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

type IndexEvent struct {
	Type      EventType `json:"type"`
	Index     string    `json:"index"`
	Documents int       `json:"documents"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker receives analytics events. Collector ships them to Kafka;
// Aggregator records them in-process when Kafka is disabled.
type Tracker interface {
	Track(event any)
}
