// cmd/notification-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notification-pipeline/internal/api"
	"notification-pipeline/internal/broadcast"
	"notification-pipeline/internal/channels"
	"notification-pipeline/internal/common/aws"
	"notification-pipeline/internal/common/config"
	"notification-pipeline/internal/common/database"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/observability"
	"notification-pipeline/internal/consumer"
	"notification-pipeline/internal/dispatch"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/pipeline"
	"notification-pipeline/internal/pipeline/decoder"
	"notification-pipeline/internal/pipeline/factory"
	"notification-pipeline/internal/service"
	"notification-pipeline/internal/store"
)

type repository interface {
	store.NotificationRepository
	store.ContactLookup
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification service...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	var repo repository
	switch cfg.Database.Driver {
	case config.DriverMemory:
		repo = store.NewMemoryStore()
		zapLog.Warn("Using in-memory notification store; data is lost on restart")
	default:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		if cfg.Database.Postgres.AutoMigrate {
			if err := store.InitSchema(ctx, pg.DB); err != nil {
				zapLog.Fatal("schema migration failed", zap.Error(err))
			}
			zapLog.Info("Notification schema applied")
		}
		repo = store.NewPostgresStore(pg.DB)
	}

	// --- Booking log ---
	block := config.GetDuration(cfg.Stream.BlockMs)
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis, block)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	source, err := consumer.NewRedisStreamSource(ctx, rdb.Client, consumer.StreamOptions{
		Stream:            cfg.Stream.Name,
		Group:             cfg.Stream.Group,
		Consumer:          cfg.Stream.Consumer,
		PayloadField:      cfg.Stream.PayloadField,
		BatchSize:         int64(cfg.Stream.BatchSize),
		Block:             block,
		RedeliverInterval: config.GetDuration(cfg.Stream.RedeliverInterval),
		MaxDeliveries:     int64(cfg.Stream.MaxDeliveries),
		DeadLetterStream:  cfg.Stream.DeadLetterStream,
	}, log)
	if err != nil {
		zapLog.Fatal("stream consumer setup failed", zap.Error(err))
	}

	// --- Delivery channels ---
	email, push, err := buildChannels(ctx, cfg, repo, log)
	if err != nil {
		zapLog.Fatal("channel setup failed", zap.Error(err))
	}
	coordinator := dispatch.NewCoordinator(
		dispatch.NewRegistry(email, push),
		config.GetDuration(cfg.Pipeline.DispatchTimeout),
		log,
	)

	bus := broadcast.NewBroadcaster(broadcast.Options{
		BufferSize: cfg.Broadcast.BufferSize,
		Overflow:   broadcast.OverflowPolicy(cfg.Broadcast.OverflowPolicy),
		KeepAlive:  config.GetDuration(cfg.Broadcast.KeepAliveInterval),
	}, log)

	// --- Pipeline ---
	persistRetry := pipeline.RetryConfig{
		MaxRetries: cfg.Pipeline.PersistMaxRetries,
		BaseDelay:  config.GetDuration(cfg.Pipeline.PersistRetryBaseDelay),
		MaxDelay:   config.GetDuration(cfg.Pipeline.PersistRetryMaxDelay),
	}
	ackRetry := persistRetry
	ackRetry.MaxRetries = cfg.Pipeline.AckMaxRetries

	p := pipeline.New(pipeline.Config{
		Concurrency:    cfg.Pipeline.Concurrency,
		PersistTimeout: config.GetDuration(cfg.Pipeline.PersistTimeout),
		PersistRetry:   persistRetry,
		AckRetry:       ackRetry,
	}, pipeline.Deps{
		Source:     source,
		Decoder:    decoder.New(),
		Factory:    factory.New(models.Channel(cfg.Pipeline.DefaultChannel)),
		Repository: repo,
		Dispatcher: coordinator,
		Publisher:  bus,
		Metrics:    obs,
	}, log)

	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- p.Run(ctx)
	}()

	// --- HTTP ---
	svc := service.NewNotificationService(repo, log)
	server := api.NewServer(api.Config{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, svc, bus, map[string]api.CheckFunc{
		"redis": rdb.Ping,
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining pipeline...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	select {
	case err := <-pipelineDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			zapLog.Error("Pipeline stopped with error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		zapLog.Warn("Pipeline did not drain before the shutdown deadline")
	}

	// Ends open SSE streams so Shutdown does not wait on them.
	bus.Close()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Notification service stopped")
}

// buildChannels returns nil for a disabled channel.
func buildChannels(ctx context.Context, cfg *config.Config, contacts store.ContactLookup, log logger.Logger) (channels.Channel, channels.Channel, error) {
	var email, push channels.Channel

	if ec := cfg.Notifications.Email; ec.Enabled {
		timeout := config.GetDuration(ec.Timeout)
		switch ec.Provider {
		case config.ProviderSES:
			client, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				return nil, nil, fmt.Errorf("ses client: %w", err)
			}
			email = channels.NewSESEmail(client, contacts, ec.FromEmail, timeout, log)
		default:
			email = channels.NewMockEmail(config.GetDuration(ec.Latency), timeout, log)
		}
	}

	if pc := cfg.Notifications.Push; pc.Enabled {
		timeout := config.GetDuration(pc.Timeout)
		switch pc.Provider {
		case config.ProviderSNS:
			client, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				return nil, nil, fmt.Errorf("sns client: %w", err)
			}
			push = channels.NewSNSPush(client, contacts, timeout, log)
		default:
			push = channels.NewMockPush(config.GetDuration(pc.Latency), timeout, log)
		}
	}

	return email, push, nil
}
