// Command docsearch serves documentation search indexes over HTTP.
//
// Indexes are loaded from the catalog data directory, restored from
// PostgreSQL when it is enabled, and can be published or removed through
// the API. With Kafka enabled, publishes are announced to every replica and
// search events feed the analytics aggregator; Redis enables the query
// cache.
//
// Usage:
//
//	go run ./cmd/docsearch [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("docsearch exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("docsearch stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting docsearch",
		"port", cfg.Server.Port,
		"data_dir", cfg.Catalog.DataDir,
		"postgres", cfg.Postgres.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"redis", cfg.Redis.Enabled,
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker(2 * time.Second)
	cat := catalog.New(m)
	checker.Register("catalog", func(ctx context.Context) health.ComponentHealth {
		n := cat.Len()
		if n == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no indexes loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d indexes loaded", n)}
	})

	// PostgreSQL: durable index store and analytics snapshots.
	var (
		indexStore    *catalog.Store
		snapshotStore *aggregator.Store
	)
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		indexStore = catalog.NewStore(db)
		snapshotStore = aggregator.NewStore(db)
		if err := indexStore.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := snapshotStore.EnsureSchema(ctx); err != nil {
			return err
		}
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		slog.Info("postgres index store enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	// Redis query cache.
	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := redisClient.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	// Analytics: through Kafka when enabled, otherwise recorded in-process.
	agg := analytics.NewAggregator()
	var tracker analytics.Tracker = agg
	var indexEvents kafka.Publisher
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer func() {
			stop()
			collector.Close()
		}()
		tracker = collector

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, "", analytics.HandleEvent(agg))
		go func() {
			if err := agg.Start(ctx, analyticsConsumer); err != nil {
				slog.Error("analytics aggregator error", "error", err)
			}
		}()

		indexProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished)
		defer indexProducer.Close()
		indexEvents = indexProducer

		// Every replica must see every publish, so each uses its own group.
		if indexStore != nil {
			group := fmt.Sprintf("%s-catalog-%s", cfg.Kafka.ConsumerGroup, uuid.NewString())
			publishedConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished, group, catalog.HandlePublished(indexStore, cat))
			go func() {
				if err := publishedConsumer.Start(ctx); err != nil {
					slog.Error("index event consumer error", "error", err)
				}
			}()
		}
		slog.Info("kafka enabled",
			"brokers", cfg.Kafka.Brokers,
			"index_topic", cfg.Kafka.Topics.IndexPublished,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}
	if snapshotStore != nil {
		snapshotsDone, err := aggregator.Schedule(ctx, snapshotStore, agg, cfg.Analytics.SnapshotSchedule)
		if err != nil {
			return err
		}
		defer func() {
			stop()
			<-snapshotsDone
		}()
	}

	cat.OnChange(func(name string, removed bool) {
		if queryCache != nil {
			invalidateCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if _, err := queryCache.Invalidate(invalidateCtx, name); err != nil {
				slog.Warn("cache invalidation failed", "index", name, "error", err)
			}
			cancel()
		}
		ev := analytics.IndexEvent{Type: analytics.EventIndexRemoved, Index: name, Timestamp: time.Now().UTC()}
		if !removed {
			ev.Type = analytics.EventIndexPublished
			if entry, err := cat.Get(name); err == nil {
				ev.Documents = entry.Index.Len()
			}
		}
		tracker.Track(ev)
	})

	// Indexes: stored ones first so that files on disk take precedence.
	if indexStore != nil {
		if _, err := catalog.Restore(ctx, indexStore, cat); err != nil {
			slog.Warn("restoring stored indexes failed", "error", err)
		}
	}
	if _, err := cat.LoadDir(ctx, cfg.Catalog.DataDir); err != nil {
		return err
	}
	if cfg.Catalog.Watch {
		w := catalog.NewWatcher(cat, cfg.Catalog.DataDir, cfg.Catalog.PollInterval)
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	var store catalog.IndexStore
	if indexStore != nil {
		store = indexStore
	}
	search := handler.New(cat, executor.New(), queryCache, tracker, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	ingest := ingesthandler.New(publisher.New(cat, store, indexEvents), cfg.Server.MaxUploadBytes)
	var snapshots analytics.SnapshotReader
	if snapshotStore != nil {
		snapshots = snapshotStore
	}
	analyticsH := analytics.NewHandler(agg, snapshots)

	requireKey := middleware.RequireAPIKey(cfg.Server.APIKeys)
	searchTimeout := middleware.Timeout(cfg.Search.Timeout)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/indexes", search.ListIndexes)
	mux.HandleFunc("GET /api/v1/indexes/{name}", search.GetIndex)
	mux.Handle("PUT /api/v1/indexes/{name}", requireKey(http.HandlerFunc(ingest.Upload)))
	mux.Handle("DELETE /api/v1/indexes/{name}", requireKey(http.HandlerFunc(ingest.Delete)))
	mux.Handle("POST /api/v1/indexes/{name}/reload", requireKey(http.HandlerFunc(ingest.Reload)))
	mux.HandleFunc("GET /api/v1/indexes/{name}/documents", search.Documents)
	mux.HandleFunc("GET /api/v1/indexes/{name}/validate", search.Validate)
	mux.Handle("GET /api/v1/indexes/{name}/search", searchTimeout(http.HandlerFunc(search.SearchIndex)))
	mux.Handle("GET /api/v1/search", searchTimeout(http.HandlerFunc(search.SearchAll)))
	mux.HandleFunc("GET /api/v1/cache/stats", search.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", requireKey(http.HandlerFunc(search.CacheInvalidate)))
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsH.Snapshots)
	mux.HandleFunc("GET /api/v1/analytics/snapshots/latest", analyticsH.LatestSnapshot)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(ctx, cfg.Server.RateLimit, time.Minute))(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("docsearch listening", "addr", server.Addr, "indexes", cat.Len())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
