// Package publisher turns an uploaded artifact into a served index: it
// decodes and validates the body, persists it to the index store, installs
// it in the local catalog and announces it on Kafka so that the other
// replicas pick it up.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

var publishRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     time.Second,
}

// Publisher coordinates index persistence and Kafka event production. The
// store and the event publisher are optional; without them uploads only
// affect the local catalog.
type Publisher struct {
	cat    *catalog.Catalog
	store  catalog.IndexStore
	events kafka.Publisher
	logger *slog.Logger
}

func New(cat *catalog.Catalog, store catalog.IndexStore, events kafka.Publisher) *Publisher {
	return &Publisher{
		cat:    cat,
		store:  store,
		events: events,
		logger: slog.Default().With("component", "publisher"),
	}
}

// Upload decodes data and installs it as name. When validation fails the
// report is returned together with an error wrapping
// apperrors.ErrInvalidIndex.
func (p *Publisher) Upload(ctx context.Context, name string, data []byte) (*ingestion.UploadResponse, *searchindex.ValidationReport, error) {
	idx, err := searchindex.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	entry, report, err := p.cat.Prepare(name, idx, catalog.SourceUpload)
	if err != nil {
		return nil, report, err
	}

	resp := &ingestion.UploadResponse{
		Index:    name,
		Checksum: entry.Checksum,
		Stats:    report.Stats,
		Warnings: report.Warnings,
	}
	if p.store != nil {
		if err := p.store.Save(ctx, entry); err != nil {
			return nil, report, err
		}
		resp.Stored = true
	}
	p.cat.Install(entry)

	resp.Published = p.announce(ctx, catalog.PublishedEvent{
		Index:       name,
		Checksum:    entry.Checksum,
		Documents:   report.Stats.Documents,
		PublishedAt: time.Now().UTC(),
	})
	return resp, report, nil
}

// Delete removes name from the store and the catalog.
func (p *Publisher) Delete(ctx context.Context, name string) error {
	if err := catalog.ValidateName(name); err != nil {
		return err
	}
	_, getErr := p.cat.Get(name)
	if getErr != nil && p.store == nil {
		return getErr
	}
	if p.store != nil {
		if err := p.store.Delete(ctx, name); err != nil {
			return err
		}
	}
	if !p.cat.Remove(name) && getErr != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, name)
	}
	p.announce(ctx, catalog.PublishedEvent{
		Index:       name,
		Removed:     true,
		PublishedAt: time.Now().UTC(),
	})
	return nil
}

// Reload re-reads name from its file or the store and reinstalls it.
func (p *Publisher) Reload(ctx context.Context, name string) (*catalog.Entry, error) {
	return p.cat.Reload(ctx, name, p.store)
}

// announce publishes ev and reports success. A failed publish only delays
// the other replicas; the local change already happened.
func (p *Publisher) announce(ctx context.Context, ev catalog.PublishedEvent) bool {
	if p.events == nil {
		return false
	}
	err := resilience.Retry(ctx, "publish-index-event", publishRetry, func(ctx context.Context) error {
		return p.events.Publish(ctx, kafka.Event{Key: ev.Index, Value: ev})
	})
	if err != nil {
		p.logger.Error("failed to publish index event, replicas will catch up on restart",
			"index", ev.Index,
			"removed", ev.Removed,
			"error", err,
		)
		return false
	}
	return true
}
