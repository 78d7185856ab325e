package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// PublishedEvent announces that an index was stored (or deleted) so that
// other replicas can refresh their catalogs.
type PublishedEvent struct {
	Index       string    `json:"index"`
	Checksum    string    `json:"checksum,omitempty"`
	Documents   int       `json:"documents"`
	Removed     bool      `json:"removed,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// HandlePublished returns a Kafka MessageHandler that applies published
// events to cat, loading index bodies from store. Events for an index the
// catalog already holds at the same checksum are ignored.
func HandlePublished(store IndexStore, cat *Catalog) kafka.MessageHandler {
	logger := slog.Default().With("component", "catalog-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[PublishedEvent](value)
		if err != nil {
			logger.Error("failed to decode published event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if ValidateName(event.Index) != nil {
			logger.Warn("ignoring event with invalid index name", "index", event.Index)
			return nil
		}

		if event.Removed {
			cat.Remove(event.Index)
			return nil
		}
		if current, err := cat.Get(event.Index); err == nil && current.Checksum == event.Checksum {
			logger.Debug("index already current", "index", event.Index)
			return nil
		}
		if err := cat.install(ctx, store, event.Index); err != nil {
			if errors.Is(err, apperrors.ErrIndexNotFound) || errors.Is(err, apperrors.ErrInvalidIndex) {
				logger.Error("dropping published event", "index", event.Index, "error", err)
				return nil
			}
			return fmt.Errorf("installing published index %s: %w", event.Index, err)
		}
		return nil
	}
}
