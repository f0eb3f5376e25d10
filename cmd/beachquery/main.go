package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/adapter/catalog"
	httpadapter "github.com/couchcryptid/beach-query-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/beach-query-service/internal/adapter/kafka"
	"github.com/couchcryptid/beach-query-service/internal/adapter/nominatim"
	"github.com/couchcryptid/beach-query-service/internal/adapter/nws"
	"github.com/couchcryptid/beach-query-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/beach-query-service/internal/adapter/upstream"
	"github.com/couchcryptid/beach-query-service/internal/config"
	"github.com/couchcryptid/beach-query-service/internal/dispatch"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/couchcryptid/beach-query-service/internal/pipeline"
	"github.com/couchcryptid/beach-query-service/internal/querycache"
	"github.com/couchcryptid/beach-query-service/internal/scheduler"
	"github.com/couchcryptid/beach-query-service/internal/service"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	pointCacheSize   = 1024
	upstreamRetries  = 2
	upstreamBackoff  = 250 * time.Millisecond
	redisDialTimeout = 5 * time.Second

	// Nominatim's usage policy allows one request per second.
	nominatimRateLimit = 1.0
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	beaches, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load beach catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	logger.Info("beach catalog loaded", "path", cfg.CatalogPath, "beaches", beaches.Len())

	ready := httpadapter.Readiness{}

	// Query cache backend: a locked local file, or a Redis key shared by every replica.
	var backend querycache.Backend
	var redisClient *redis.Client
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          0,
			Protocol:    2,
			DialTimeout: redisDialTimeout,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		rb := querycache.NewRedisBackend(redisClient, cfg.RedisCacheKey)
		ready = append(ready, rb)
		backend = rb
		logger.Info("query cache using redis", "addr", cfg.RedisAddr, "key", cfg.RedisCacheKey)
	default:
		backend = querycache.NewFileBackend(cfg.CachePath)
		logger.Info("query cache using file", "path", cfg.CachePath)
	}
	cache := querycache.New(backend, querycache.Config{
		Capacity:    cfg.CacheCapacity,
		LockTimeout: cfg.CacheLockTimeout,
	}, clock, logger, metrics)

	nwsClient := nws.NewClient(upstream.NewClient(upstream.Config{
		Name:       "nws",
		BaseURL:    cfg.NWSBaseURL,
		UserAgent:  cfg.NWSUserAgent,
		Timeout:    cfg.NWSTimeout,
		MaxRetries: upstreamRetries,
		Backoff:    upstreamBackoff,
	}, metrics), pointCacheSize, logger, metrics)

	zips := nominatim.NewClient(upstream.NewClient(upstream.Config{
		Name:       "nominatim",
		BaseURL:    cfg.NominatimBaseURL,
		UserAgent:  cfg.NWSUserAgent,
		Timeout:    cfg.NWSTimeout,
		MaxRetries: upstreamRetries,
		Backoff:    upstreamBackoff,
		RateLimit:  nominatimRateLimit,
	}, metrics))

	// UV enrichment is feature-flagged via UV_ENABLED.
	var uv service.UVProvider
	if cfg.UVEnabled {
		uv = openmeteo.NewClient(upstream.NewClient(upstream.Config{
			Name:       "openmeteo",
			BaseURL:    cfg.OpenMeteoBaseURL,
			UserAgent:  cfg.NWSUserAgent,
			Timeout:    cfg.NWSTimeout,
			MaxRetries: upstreamRetries,
			Backoff:    upstreamBackoff,
		}, metrics))
		logger.Info("uv enrichment enabled", "base_url", cfg.OpenMeteoBaseURL)
	} else {
		logger.Info("uv enrichment disabled")
	}

	svc := service.New(service.Collaborators{
		Catalog:    beaches,
		Weather:    nwsClient,
		Advisories: nwsClient,
		UV:         uv,
		Zips:       zips,
		Cache:      cache,
	}, service.Options{MaxSearchResults: cfg.MaxSearchResults}, clock, logger)
	ready = append(ready, svc)

	handler := dispatch.New(svc, metrics, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, handler, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the Kafka request pipeline.
	var reader *kafkaadapter.Reader
	var writer, notifier *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(handler, clock, logger)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka pipeline disabled")
	}

	// Start the watch scheduler. Config validation guarantees Kafka is enabled
	// whenever a watch file is set.
	var sched *scheduler.Scheduler
	if cfg.WatchFile != "" {
		notifier = kafkaadapter.NewNotificationWriter(cfg, logger)
		sched = scheduler.New(cfg.WatchFile, cfg.WatchInterval, svc, notifier, clock, logger, metrics)
		if err := sched.Start(); err != nil {
			logger.Error("failed to start watch scheduler", "error", err)
			os.Exit(1)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logger.Error("kafka notification writer close error", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
