package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// SnapshotReader reads persisted stats snapshots. LatestSnapshot returns
// nil when none exist yet.
type SnapshotReader interface {
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
}

type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotReader
	logger     *slog.Logger
}

// NewHandler serves live stats from aggregator. snapshots may be nil.
func NewHandler(aggregator *Aggregator, snapshots SnapshotReader) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// Snapshots handles GET /api/v1/analytics/snapshots?limit=.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot store is disabled"})
		return
	}
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	snaps, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing snapshots failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot store unavailable"})
		return
	}
	if snaps == nil {
		snaps = []Snapshot{}
	}
	h.writeJSON(w, http.StatusOK, snaps)
}

// LatestSnapshot handles GET /api/v1/analytics/snapshots/latest.
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot store is disabled"})
		return
	}
	snap, err := h.snapshots.LatestSnapshot(r.Context())
	if err != nil {
		h.logger.Error("reading latest snapshot failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot store unavailable"})
		return
	}
	if snap == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot taken yet"})
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
