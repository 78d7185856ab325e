package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// Handler serves the read side of the API: index metadata, validation
// reports and search. The cache, tracker and metrics are optional.
type Handler struct {
	catalog      *catalog.Catalog
	executor     *executor.Executor
	cache        *cache.QueryCache
	tracker      analytics.Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(
	cat *catalog.Catalog,
	exec *executor.Executor,
	queryCache *cache.QueryCache,
	tracker analytics.Tracker,
	m *metrics.Metrics,
	defaultLimit, maxResults int,
) *Handler {
	return &Handler{
		catalog:      cat,
		executor:     exec,
		cache:        queryCache,
		tracker:      tracker,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// ListIndexes handles GET /api/v1/indexes.
func (h *Handler) ListIndexes(w http.ResponseWriter, r *http.Request) {
	entries := h.catalog.Entries()
	out := make([]catalog.Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Summary())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"indexes":    out,
		"total":      len(out),
		"generation": h.catalog.Generation(),
	})
}

type indexInfo struct {
	catalog.Summary
	EnvVersion json.RawMessage     `json:"envversion,omitempty"`
	Extra      []string            `json:"extra_fields,omitempty"`
	Warnings   []searchindex.Issue `json:"warning_details"`
}

// GetIndex handles GET /api/v1/indexes/{name}.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	info := indexInfo{
		Summary:    entry.Summary(),
		EnvVersion: entry.Index.EnvVersion,
		Warnings:   entry.Report.Warnings,
	}
	for key := range entry.Index.Extra {
		info.Extra = append(info.Extra, key)
	}
	sort.Strings(info.Extra)
	h.writeJSON(w, http.StatusOK, info)
}

// Documents handles GET /api/v1/indexes/{name}/documents?offset=&limit=.
// Without limit every document is returned.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docs := entry.Index.Documents()
	total := len(docs)
	limit, err := intParam(r, "limit", total)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total || end < offset {
		end = total
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":     entry.Name,
		"total":     total,
		"offset":    offset,
		"documents": docs[offset:end],
	})
}

// Validate handles GET /api/v1/indexes/{name}/validate. Installed indexes
// are always valid; the report carries their warnings.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, entry.Report)
}

// SearchIndex handles GET /api/v1/indexes/{name}/search?q=&limit=.
func (h *Handler) SearchIndex(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	key := cache.Key{Index: entry.Name, Version: entry.Checksum}
	h.search(w, r, entry.Name, key, 1, func(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, entry.Name, entry.Index, plan, limit)
	})
}

// SearchAll handles GET /api/v1/search?q=&limit=&indexes=a,b. Without
// indexes every installed index is searched.
func (h *Handler) SearchAll(w http.ResponseWriter, r *http.Request) {
	entries := h.catalog.Entries()
	if filter := r.URL.Query().Get("indexes"); filter != "" {
		wanted := make(map[string]bool)
		for _, name := range strings.Split(filter, ",") {
			if name = strings.TrimSpace(name); name != "" {
				wanted[name] = true
			}
		}
		kept := entries[:0]
		for _, e := range entries {
			if wanted[e.Name] {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	targets := make([]executor.Target, len(entries))
	names := make([]string, len(entries))
	for i, e := range entries {
		targets[i] = executor.Target{Name: e.Name, Index: e.Index}
		names[i] = e.Name + "@" + e.Checksum
	}
	key := cache.Key{Version: strings.Join(names, ",")}
	h.search(w, r, analytics.AllIndexes, key, len(targets), func(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error) {
		return h.executor.FanOut(ctx, targets, plan, limit)
	})
}

type runFunc func(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)

func (h *Handler) search(w http.ResponseWriter, r *http.Request, label string, key cache.Key, indexCount int, run runFunc) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	plan := parser.Parse(query)
	if len(plan.Terms) == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:     query,
			Results:   []ranker.ScoredDoc{},
			TermStats: map[string]int{},
		})
		return
	}

	var result *executor.SearchResult
	var err error
	cacheHit := false
	if h.cache != nil {
		key.Plan, key.Limit = plan, limit
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return run(ctx, plan, limit)
		})
	} else {
		result, err = run(ctx, plan, limit)
	}
	if err != nil {
		h.observe(label, "error", cacheHit, start, 0)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Warn("search abandoned", "index", label, "query", query, "error", err)
			h.writeError(w, http.StatusGatewayTimeout, apperrors.ErrTimeout.Error())
			return
		}
		log.Error("search execution failed", "index", label, "query", query, "error", err)
		h.writeAppError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "search failed"))
		return
	}
	// Cached and shared results were computed for an equivalent query; echo
	// this one without touching the shared value.
	echoed := *result
	echoed.Query = query
	result = &echoed

	latency := time.Since(start)
	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observe(label, resultType, cacheHit, start, len(result.Results))
	log.Info("search completed",
		"index", label,
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		terms := make([]string, len(plan.Terms))
		for i, t := range plan.Terms {
			terms[i] = t.Term
		}
		h.tracker.Track(analytics.SearchEvent{
			Type:       analytics.EventSearch,
			Index:      label,
			Query:      query,
			Terms:      terms,
			TotalHits:  result.TotalHits,
			Returned:   len(result.Results),
			LatencyMs:  latency.Milliseconds(),
			CacheHit:   cacheHit,
			IndexCount: indexCount,
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observe(label, resultType string, cacheHit bool, start time.Time, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(label, resultType).Inc()
	if resultType == "error" {
		return
	}
	status := "miss"
	if cacheHit {
		status = "hit"
	}
	if h.cache != nil {
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	} else {
		status = "disabled"
	}
	h.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	h.metrics.SearchResultsCount.Observe(float64(returned))
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate?index=. Without
// index the whole cache is flushed.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeAppError(w, apperrors.New(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	index := r.URL.Query().Get("index")
	deleted, err := h.cache.Invalidate(r.Context(), index)
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err *apperrors.AppError) {
	h.writeError(w, err.StatusCode, err.Error())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*catalog.Entry, bool) {
	entry, err := h.catalog.Get(r.PathValue("name"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return nil, false
	}
	return entry, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
