package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/printit/orderdesk/internal/api"
	"github.com/printit/orderdesk/internal/config"
	"github.com/printit/orderdesk/internal/database"
	"github.com/printit/orderdesk/internal/feed"
	"github.com/printit/orderdesk/internal/jobs"
	"github.com/printit/orderdesk/internal/lifecycle"
	"github.com/printit/orderdesk/internal/models"
	"github.com/printit/orderdesk/internal/orderstore"
	"github.com/printit/orderdesk/internal/outbox"
	"github.com/printit/orderdesk/internal/repository"
	"github.com/printit/orderdesk/pkg/circuitbreaker"
	"github.com/printit/orderdesk/pkg/kafka"
	"github.com/printit/orderdesk/pkg/logger"
	"github.com/printit/orderdesk/pkg/middleware"
	"github.com/printit/orderdesk/pkg/retry"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync(l) }()

	l.Info("Starting orderdesk", "env", cfg.Env, "store", cfg.Store.URL)

	store := orderstore.NewClient(orderstore.Config{
		BaseURL:      cfg.Store.URL,
		FilesBaseURL: cfg.Store.FilesURL,
		Timeout:      cfg.Store.Timeout,
		PageSize:     cfg.Store.PageSize,
		MaxAttempts:  3,
		Backoff:      retry.NewDefaultExponentialBackoff(),
		Breaker: circuitbreaker.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	}, l)

	var (
		db        *database.Database
		repo      *repository.OutboxRepository
		recorder  lifecycle.Recorder
		processor *outbox.Processor
		producer  *kafka.Producer
	)

	if cfg.Lifecycle.JournalEnabled {
		db, err = database.New(cfg.GetDBConnString(), l)
		if err != nil {
			l.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.RunMigrations(migrateCtx)
		cancel()
		if err != nil {
			l.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}

		repo = repository.NewOutboxRepository(db, l)
		recorder = outbox.NewRecorder(repo)

		var handler outbox.MessageHandler = outbox.NewLoggingHandler(l)
		if len(cfg.Kafka.Brokers) > 0 {
			producer, err = kafka.NewProducer(cfg.Kafka.Brokers, l)
			if err != nil {
				l.Warn("Kafka unavailable, journal events will only be logged", "error", err)
			} else {
				handler = outbox.NewKafkaHandler(producer, cfg.Kafka.LifecycleTopic, l)
			}
		}

		processor = outbox.NewProcessor(repo, outbox.ProcessorConfig{
			PollingInterval: time.Second,
			BatchSize:       50,
			MaxRetries:      5,
		}, l)
		for _, eventType := range models.LifecycleEventTypes {
			processor.RegisterHandler(eventType, handler)
		}
		processor.Start()
	}

	manager := lifecycle.NewManager(store, recorder, lifecycle.Config{
		IntentTimeout: cfg.Lifecycle.IntentTimeout,
	}, l)

	initCtx, cancel := context.WithTimeout(context.Background(), cfg.Lifecycle.IntentTimeout)
	if err := manager.Refresh(initCtx); err != nil {
		// The resync job and the refresh endpoint retry later.
		l.Warn("Initial order load failed", "error", err)
	}
	cancel()

	var consumer *kafka.Consumer
	if cfg.Lifecycle.FeedEnabled && len(cfg.Kafka.Brokers) > 0 {
		consumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, l)
		if err != nil {
			l.Warn("Order feed disabled", "error", err)
			consumer = nil
		} else {
			consumer.RegisterHandler(cfg.Kafka.OrdersTopic, feed.NewHandler(manager, l))
			if err := consumer.Start(); err != nil {
				l.Error("Failed to start order feed consumer", "error", err)
				os.Exit(1)
			}
		}
	}

	resync := jobs.NewResyncJob(manager, cfg.Lifecycle.ResyncSchedule, cfg.Lifecycle.IntentTimeout, l)
	if err := resync.Start(); err != nil {
		l.Error("Failed to start resync job", "error", err)
		os.Exit(1)
	}

	rateLimiter := middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
		GlobalMaxTokens:  200,
		GlobalRefillRate: 100,
		IPMaxTokens:      40,
		IPRefillRate:     20,
		IPIdleTTL:        10 * time.Minute,
	}, l)

	endpointLimiter := middleware.NewEndpointRateLimiterMiddleware(50, 25, l)
	for _, intent := range []string{"accept", "reject", "cancel", "mark-paid"} {
		endpointLimiter.SetLimit(fmt.Sprintf("POST:/api/v1/orders/{id}/%s", intent), 10, 5)
	}
	endpointLimiter.SetLimit("PUT:/api/v1/orders/{id}/quotation", 10, 5)
	endpointLimiter.SetLimit("POST:/api/v1/orders/refresh", 2, 0.2)

	deps := api.Deps{
		Orders:              manager,
		Breaker:             store.Breaker(),
		RateLimiter:         rateLimiter,
		EndpointRateLimiter: endpointLimiter,
	}
	if repo != nil {
		deps.Journal = repo
	}

	server := api.NewServer(cfg.Port, deps, l)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
	}

	resync.Stop()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			l.Error("Failed to stop order feed consumer", "error", err)
		}
	}

	if processor != nil {
		processor.Stop()
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			l.Error("Failed to close Kafka producer", "error", err)
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			l.Error("Failed to close database", "error", err)
		}
	}

	l.Info("Server exiting")
}
