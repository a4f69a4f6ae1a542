package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fixly/internal/api"
	"fixly/internal/config"
	"fixly/internal/database"
	"fixly/internal/events"
	"fixly/internal/export"
	"fixly/internal/logging"
	"fixly/internal/metrics"
	"fixly/internal/registry"
	"fixly/internal/service"
	"fixly/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	serviceRegistry := initRegistry(db, redisClient, &logger)

	ledger, err := export.NewLedger(cfg.Exports.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Exports.Path).Msg("init export ledger")
		return err
	}

	retryPolicy := worker.RetryPolicy{
		MaxRetries:    cfg.Worker.MaxRetries,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
	exportWorker := worker.NewExportWorker(
		db, ledger, redisClient, retryPolicy,
		time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second,
		cfg.Worker.BatchSize,
		nil,
	)
	go exportWorker.Start(ctx)

	eventBus := events.NewEventBus()
	subscribeBookingEvents(eventBus, &logger)

	bookingService := service.NewBookingLifecycle(db, serviceRegistry, eventBus, exportWorker, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, bookingService, &logger)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("booking API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create exports directory")
		return err
	}
	return nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := registry.NewRedisClient(cfg.Redis)
	if err := registry.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initRegistry builds the read-through cache over the catalog tables. With
// redis available the memory cache acts as the failover tier.
func initRegistry(db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *registry.CachedRegistry {
	memCache := registry.NewMemoryCache(registry.DefaultTTL)
	if redisClient == nil {
		return registry.NewCachedRegistry(memCache, db, logger)
	}

	redisCache := registry.NewRedisCache(redisClient, registry.DefaultTTL)
	failover := registry.NewFailoverCache(redisCache, memCache, logger)
	return registry.NewCachedRegistry(failover, db, logger)
}

func subscribeBookingEvents(eventBus *events.EventBus, logger *zerolog.Logger) {
	eventBus.Subscribe(events.EventBookingCreated, func(event *events.Event) error {
		metrics.IncBookingCreated()
		return nil
	})

	countTransition := func(event *events.Event) error {
		var payload events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			logger.Warn().Err(err).Str("event_type", event.Type).Msg("decode event payload")
			return err
		}
		metrics.IncTransition(payload.Status)
		return nil
	}
	eventBus.Subscribe(events.EventBookingStatusChanged, countTransition)
	eventBus.Subscribe(events.EventBookingJobStarted, countTransition)
	eventBus.Subscribe(events.EventBookingQuoteRevised, countTransition)
	eventBus.Subscribe(events.EventBookingRevisionResolved, countTransition)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
