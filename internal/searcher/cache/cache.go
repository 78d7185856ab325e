package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cached result. Version is the checksum of the index
// searched (for cross-index queries, every name@checksum searched), so
// replacing an index makes its old entries unreachable even before
// invalidation. Index is empty for cross-index queries.
type Key struct {
	Index   string
	Version string
	Plan    *parser.QueryPlan
	Limit   int
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, k Key) (*executor.SearchResult, bool) {
	key := buildKey(k)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "index", k.Index, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, k Key, result *executor.SearchResult) {
	key := buildKey(k)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for k, or runs computeFn once per
// key across concurrent callers and caches its result. The boolean reports
// a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	k Key,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, k); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(buildKey(k), func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops the entries of one index, or every entry when index is
// empty. Cross-index entries are always dropped.
func (c *QueryCache) Invalidate(ctx context.Context, index string) (int64, error) {
	patterns := []string{keyPrefix + "*"}
	if index != "" {
		patterns = []string{indexPrefix(index) + "*", indexPrefix("") + "*"}
	}
	var total int64
	for _, pattern := range patterns {
		deleted, err := c.backend.FlushByPattern(ctx, pattern)
		if err != nil {
			return total, fmt.Errorf("%w: invalidating %s: %v", apperrors.ErrCacheUnavailable, pattern, err)
		}
		total += deleted
	}
	c.logger.Info("cache invalidate", "index", index, "keys_deleted", total)
	return total, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func indexPrefix(index string) string {
	if index == "" {
		return keyPrefix + "_all:"
	}
	return keyPrefix + "idx:" + index + ":"
}

func buildKey(k Key) string {
	raw := fmt.Sprintf("%s|%s|limit=%d", k.Version, k.Plan.Normalized(), k.Limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", indexPrefix(k.Index), hash[:16])
}
