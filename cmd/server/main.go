/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the incentive report server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, then INCENTIVE_* environment)
  2. Configure logging
  3. Open the SQLite store
  4. Wrap it with the cache (memory, redis or none)
  5. Build the report builder, handler and router
  6. Start the cache warmer and the HTTP server

COMMAND-LINE FLAGS:
  -config  Optional YAML config file

ENVIRONMENT:
  Every key can be overridden, e.g.
    INCENTIVE_SERVER_PORT=3000
    INCENTIVE_DATABASE_PATH=:memory:
    INCENTIVE_CACHE_BACKEND=redis INCENTIVE_REDIS_ADDR=localhost:6379

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (shutdown_timeout)
  3. Stop the cache warmer
  4. Close database and redis connections

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - cache/source.go: Cached source
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/warp/incentive-engine/api"
	"github.com/warp/incentive-engine/cache"
	"github.com/warp/incentive-engine/config"
	"github.com/warp/incentive-engine/logging"
	"github.com/warp/incentive-engine/payout"
	"github.com/warp/incentive-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Cache
	var src payout.Source = store
	var cached *cache.Source
	if cfg.Cache.Backend != "none" {
		kv, closeKV, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeKV()

		cached = cache.NewSource(store, kv, log)
		cached.ScheduleTTL = cfg.Cache.ScheduleTTL
		cached.RulesTTL = cfg.Cache.RulesTTL
		cached.ContractTTL = cfg.Cache.ContractTTL
		cached.AliasTTL = cfg.Cache.AliasTTL
		cached.FetchTimeout = cfg.Report.FetchTimeout
		src = cached
	}

	// Builder
	builder := payout.NewBuilder(src, log)
	builder.FetchTimeout = cfg.Report.FetchTimeout
	builder.Resolver.BatchSize = cfg.Report.AliasBatchSize
	builder.Resolver.Concurrency = cfg.Report.AliasConcurrency
	builder.Resolver.PrefixLen = cfg.Report.FallbackPrefixLen

	// Handler
	handler := api.NewHandler(builder, store, log)
	handler.Health = store
	if cfg.Server.EnableScenarios {
		handler.Store = store
		if cached != nil {
			handler.Cache = cached
		}
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		EnableScenarios: cfg.Server.EnableScenarios,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.WriteTimeout,
	}

	// Cache warmer
	if cached != nil {
		warmer := cache.NewWarmer(cached, cfg.Cache.WarmCron, log)
		if err := warmer.Start(ctx); err != nil {
			return fmt.Errorf("start cache warmer: %w", err)
		}
		defer warmer.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":      server.Addr,
			"db":        cfg.Database.Path,
			"cache":     cfg.Cache.Backend,
			"scenarios": cfg.Server.EnableScenarios,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// openCache returns the configured cache store and its closer.
func openCache(ctx context.Context, cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		rdb, err := cache.DialRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return cache.NewRedis(rdb, cfg.Cache.KeyPrefix), func() { rdb.Close() }, nil
	default:
		return cache.NewMemory(), func() {}, nil
	}
}
