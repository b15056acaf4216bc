package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"link-tracker/internal/config"
	"link-tracker/internal/enrichment"
	httpHandler "link-tracker/internal/handler/http"
	"link-tracker/internal/notify"
	"link-tracker/internal/queue"
	"link-tracker/internal/ratelimit"
	"link-tracker/internal/repository"
	"link-tracker/internal/repository/filestore"
	"link-tracker/internal/repository/postgres"
	rediscache "link-tracker/internal/repository/redis"
	"link-tracker/internal/service"
	"link-tracker/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

// closers run in reverse order on shutdown
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) closeAll(log *logger.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Error("Shutdown step failed", "error", err)
		}
	}
}

func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger.New(cfg.App.LogLevel, cfg.App.LogFormat), nil
}

// openStore picks PostgreSQL when DATABASE_URL is set, else the JSON file
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger, cl *closers) (repository.RedirectRepository, error) {
	if cfg.Storage.DatabaseURL == "" {
		log.Info("Using file store", "path", cfg.Storage.StoreFile)
		return filestore.New(cfg.Storage.StoreFile, cfg.Storage.MaxHitsPerSlug, log.Logger), nil
	}

	pool, err := postgres.InitDB(ctx, cfg.Storage.DatabaseURL, cfg.Storage.MaxOpenConns, cfg.Storage.MaxIdleConns, cfg.Storage.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	cl.add(func() error { pool.Close(); return nil })

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	log.Info("Using PostgreSQL store")
	return postgres.NewRedirectRepository(pool, cfg.Storage.MaxHitsPerSlug), nil
}

func openRedis(ctx context.Context, cfg *config.Config, cl *closers) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	client, err := rediscache.InitRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	cl.add(client.Close)
	return client, nil
}

func streamConfig(cfg *config.Config) queue.RedisStreamConfig {
	return queue.RedisStreamConfig{
		ConsumerGroup: cfg.Redis.ConsumerGroup,
		ClaimAfter:    queue.ClaimAfterFor(cfg.Enrichment.Timeout, cfg.Enrichment.RetryDelay),
	}
}

func newGeolocator(cfg *config.Config, log *logger.Logger, cl *closers) enrichment.Geolocator {
	if cfg.Notify.GeoIPDB != "" {
		geo, err := enrichment.NewMaxMindGeolocator(cfg.Notify.GeoIPDB)
		if err == nil {
			cl.add(geo.Close)
			return geo
		}
		log.Warn("GeoIP database unavailable, using HTTP lookups", "error", err)
	}
	return enrichment.NewHTTPGeolocator(cfg.Notify.IPInfoToken, cfg.Notify.GeoTimeout)
}

func newEnrichmentWorker(cfg *config.Config, log *logger.Logger) *enrichment.Worker {
	runner := enrichment.NewCommandRunner(
		cfg.Enrichment.ToolDir,
		cfg.Enrichment.ToolCommand,
		cfg.Storage.ResultsDir,
		cfg.Enrichment.Timeout,
		log.Logger,
	)
	return enrichment.NewWorker(runner, enrichment.NewResultStore(cfg.Storage.ResultsDir), cfg.Enrichment.RetryDelay, log.Logger)
}

func runServer(parent context.Context, withWorker bool) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	log.Info("Starting link tracker",
		"environment", cfg.App.Environment,
		"port", cfg.Server.Port,
		"public_base", cfg.Tracker.PublicBase,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cl closers
	defer cl.closeAll(log)

	repo, err := openStore(ctx, cfg, log, &cl)
	if err != nil {
		return err
	}
	redisClient, err := openRedis(ctx, cfg, &cl)
	if err != nil {
		return err
	}

	// Redis backs the cache, the limiter and the job stream; without it each
	// falls back to an in-process equivalent
	var (
		cache   repository.RedirectCache = repository.NoopCache{}
		limiter httpHandler.RateLimiter
		jobs    *queue.Queue
	)
	if redisClient != nil {
		cache = rediscache.NewCache(redisClient, cfg.Redis.CacheTTL)
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.App.RateLimitPerMinute, time.Minute)
		if jobs, err = queue.NewRedisStream(redisClient, streamConfig(cfg), log.Logger); err != nil {
			return err
		}
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.App.RateLimitPerMinute, time.Minute)
		cl.add(func() error { memLimiter.Close(); return nil })
		limiter = memLimiter
		jobs = queue.NewGoChannel(log.Logger)
		withWorker = true
	}
	cl.add(jobs.Close)
	if !cfg.App.RateLimitEnabled {
		limiter = nil
	}

	var workerDone <-chan struct{}
	consumeCtx, stopConsume := context.WithCancel(context.Background())
	defer stopConsume()
	if withWorker {
		if workerDone, err = jobs.Consume(consumeCtx, newEnrichmentWorker(cfg, log).Handle); err != nil {
			return err
		}
		log.Info("Enrichment worker running in-process")
	}

	var sink notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	} else {
		log.Warn("No webhook configured, notifications go to disk", "dir", cfg.Storage.ResultsDir)
	}
	dispatcher := notify.NewDispatcher(
		cfg.Notify.Workers,
		cfg.Notify.QueueSize,
		sink,
		newGeolocator(cfg, log, &cl),
		notify.NewFallbackWriter(cfg.Storage.ResultsDir),
		log.Logger,
	)

	converter := service.NewConversionService(repo, service.NewSlugMinter(repo), cfg.Tracker.PublicBase, cfg.Tracker.AppendAllowlist, log.Logger)
	tracker := service.NewCaptureService(repo, cache, dispatcher, jobs, cfg.Tracker.InterstitialWait, log.Logger)
	handler := httpHandler.NewHandler(converter, tracker, cfg.Tracker.HookToken, log.Logger)

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: httpHandler.NewRouter(handler, log.Logger, httpHandler.RouterOptions{
			Limiter:       limiter,
			EnableMetrics: cfg.App.EnableMetrics,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("Notifications lost on shutdown", "error", err)
	}
	stopConsume()
	if workerDone != nil {
		<-workerDone
	}

	log.Info("Server exited gracefully")
	return nil
}

func runWorker(parent context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cfg.Redis.URL == "" {
		return errors.New("worker requires REDIS_URL")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cl closers
	defer cl.closeAll(log)

	client, err := openRedis(ctx, cfg, &cl)
	if err != nil {
		return err
	}
	jobs, err := queue.NewRedisStream(client, streamConfig(cfg), log.Logger)
	if err != nil {
		return err
	}
	cl.add(jobs.Close)

	done, err := jobs.Consume(ctx, newEnrichmentWorker(cfg, log).Handle)
	if err != nil {
		return err
	}
	log.Info("Enrichment worker started", "consumer_group", cfg.Redis.ConsumerGroup, "tool_dir", cfg.Enrichment.ToolDir)

	<-ctx.Done()
	log.Info("Stopping enrichment worker...")
	<-done
	return nil
}
