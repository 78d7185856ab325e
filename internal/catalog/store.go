package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS search_indexes (
		name       TEXT PRIMARY KEY,
		checksum   TEXT NOT NULL,
		doc_count  INTEGER NOT NULL,
		term_count INTEGER NOT NULL,
		raw        BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_search_indexes_updated_at ON search_indexes (updated_at)`,
}

// StoredIndex describes a persisted index without its body.
type StoredIndex struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndexStore persists uploaded indexes so that every replica can serve them.
type IndexStore interface {
	Save(ctx context.Context, entry *Entry) error
	Load(ctx context.Context, name string) (*searchindex.Index, error)
	List(ctx context.Context) ([]StoredIndex, error)
	Delete(ctx context.Context, name string) error
}

// Store keeps indexes in PostgreSQL in canonical JSON form.
type Store struct {
	db     *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "index-store"),
	}
}

// EnsureSchema creates the table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Migrate(ctx, schema...)
}

func (s *Store) Save(ctx context.Context, entry *Entry) error {
	raw, err := entry.Index.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding index %s: %w", entry.Name, err)
	}
	stats := entry.Report.Stats
	err = resilience.Retry(ctx, "index-store.save", s.retry, func(ctx context.Context) error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO search_indexes (name, checksum, doc_count, term_count, raw, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (name) DO UPDATE SET
				checksum = EXCLUDED.checksum,
				doc_count = EXCLUDED.doc_count,
				term_count = EXCLUDED.term_count,
				raw = EXCLUDED.raw,
				updated_at = EXCLUDED.updated_at`,
			entry.Name, entry.Checksum, stats.Documents, stats.Terms, raw)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: saving index %s: %v", apperrors.ErrStoreUnavailable, entry.Name, err)
	}
	s.logger.Info("index saved", "index", entry.Name, "checksum", entry.Checksum, "bytes", len(raw))
	return nil
}

func (s *Store) Load(ctx context.Context, name string) (*searchindex.Index, error) {
	var raw []byte
	err := resilience.Retry(ctx, "index-store.load", s.retry, func(ctx context.Context) error {
		err := s.db.DB.QueryRowContext(ctx,
			`SELECT raw FROM search_indexes WHERE name = $1`, name).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return resilience.Permanent(fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, name))
		}
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrIndexNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: loading index %s: %v", apperrors.ErrStoreUnavailable, name, err)
	}
	idx, err := searchindex.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding stored index %s: %w", name, err)
	}
	return idx, nil
}

func (s *Store) List(ctx context.Context) ([]StoredIndex, error) {
	var out []StoredIndex
	err := resilience.Retry(ctx, "index-store.list", s.retry, func(ctx context.Context) error {
		rows, err := s.db.DB.QueryContext(ctx,
			`SELECT name, checksum, doc_count, term_count, updated_at
			FROM search_indexes ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var si StoredIndex
			if err := rows.Scan(&si.Name, &si.Checksum, &si.Documents, &si.Terms, &si.UpdatedAt); err != nil {
				return err
			}
			out = append(out, si)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing indexes: %v", apperrors.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	err := resilience.Retry(ctx, "index-store.delete", s.retry, func(ctx context.Context) error {
		_, err := s.db.DB.ExecContext(ctx, `DELETE FROM search_indexes WHERE name = $1`, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: deleting index %s: %v", apperrors.ErrStoreUnavailable, name, err)
	}
	return nil
}

// Restore installs every stored index into cat. Indexes that no longer
// decode or validate are skipped. It returns the number installed.
func Restore(ctx context.Context, store IndexStore, cat *Catalog) (int, error) {
	stored, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, si := range stored {
		if err := cat.install(ctx, store, si.Name); err != nil {
			cat.logger.Error("skipping stored index", "index", si.Name, "error", err)
			continue
		}
		n++
	}
	cat.logger.Info("stored indexes restored", "found", len(stored), "loaded", n)
	return n, nil
}

func (c *Catalog) install(ctx context.Context, store IndexStore, name string) error {
	idx, err := store.Load(ctx, name)
	if err != nil {
		c.recordReload(SourceStore, "error")
		return err
	}
	_, _, err = c.Put(name, idx, SourceStore)
	return err
}
