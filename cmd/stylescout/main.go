package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/outfitly/stylescout/internal/adapters"
	"github.com/outfitly/stylescout/internal/api"
	"github.com/outfitly/stylescout/internal/browser"
	"github.com/outfitly/stylescout/internal/config"
	"github.com/outfitly/stylescout/internal/engine"
	"github.com/outfitly/stylescout/internal/queue"
	"github.com/outfitly/stylescout/internal/ratelimit"
	"github.com/outfitly/stylescout/internal/service"
	"github.com/outfitly/stylescout/internal/sink"
	"github.com/outfitly/stylescout/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue store: Redis when configured, in-memory otherwise.
	var store queue.Store
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		store = queue.NewRedisStore(redisClient)
		logger.Info("using redis job store", "addr", cfg.Redis.Addr)
	} else {
		store = queue.NewMemoryStore()
		logger.Warn("using in-memory job store, jobs will not survive restarts")
	}

	q := queue.New(store, queue.Options{
		BaseDelay:        cfg.Queue.BaseDelay,
		MaxDelay:         cfg.Queue.MaxDelay,
		HeartbeatTimeout: cfg.Queue.HeartbeatTimeout,
		MaxStalledCount:  cfg.Queue.MaxStalledCount,
		KeepCompleted:    cfg.Queue.KeepCompleted,
		KeepFailed:       cfg.Queue.KeepFailed,
	}, logger)
	go q.Start(ctx)

	// Downstream sinks: postgres catalog sync and redis event stream, as
	// configured.
	sinks := []sink.ProductSink{}
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, sink.NewPostgresSink(pool))
	}
	if redisClient != nil {
		sinks = append(sinks, sink.NewRedisStreamSink(redisClient, cfg.Crawler.EventStream))
	}
	if len(sinks) == 0 {
		logger.Warn("no downstream sink configured, results retained on jobs only")
		sinks = append(sinks, sink.NewMemorySink())
	}
	productSink := sink.NewMultiSink(sinks...)

	browserOpts := browser.DefaultOptions()
	browserOpts.Headless = cfg.Browser.Headless
	browserOpts.MaxSessions = cfg.Browser.MaxSessions
	browserOpts.Timeout = cfg.Crawler.NavTimeout
	if len(cfg.Browser.UserAgents) > 0 {
		browserOpts.Pools.UserAgents = cfg.Browser.UserAgents
	}
	sessions, err := browser.NewSessionManager(browserOpts, logger)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.Crawler.MinSpacing, cfg.Crawler.MaxSpacing, cfg.Crawler.HourlyCap)
	crawlEngine := engine.New(limiter, sessions, engine.Options{
		NavTimeout: cfg.Crawler.NavTimeout,
		NavRetries: cfg.Crawler.NavRetries,
	}, logger)

	registry := adapters.NewRegistry()
	metrics := worker.NewMetrics()
	pool := worker.NewPool(q, crawlEngine, registry, productSink, metrics, worker.Options{
		JobTimeout:    cfg.Crawler.JobTimeout,
		ShutdownGrace: cfg.Server.ShutdownTimeout,
	}, logger)
	pool.Start(cfg.Crawler.Concurrency)

	svc := service.New(q, pool, logger)
	router := api.NewRouter(api.NewHandlers(svc, logger), metrics.Registry)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutdown signal received", "signal", s.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	pool.Stop(true)
	if err := crawlEngine.Shutdown(); err != nil {
		logger.Error("browser shutdown failed", "error", err)
	}
	if err := q.Close(); err != nil {
		logger.Error("queue close failed", "error", err)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
