// Package main is the entry point for the stockledger background worker.
// It relays movement events from the outbox table to Kafka.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockledger/internal/infrastructure/messaging/kafka"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("STOCKLEDGER_DOTENV"))
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockledger outbox worker")

	if cfg.DB.InMemory() {
		log.Fatal("the outbox worker needs PostgreSQL, db.driver is memory")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("kafka.brokers is empty")
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DB.ConnectionString())
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.ApplicationName = cfg.App.Name + "-worker"

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	producer, err := kafka.NewSyncProducer(kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		ClientID: cfg.Kafka.ClientID,
		Acks:     cfg.Kafka.Acks,
		Retries:  cfg.Kafka.Retries,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		log.Fatalw("failed to create kafka producer", "error", err)
	}

	handler := kafka.NewOutboxHandler(producer, cfg.Kafka.Topic)
	defer func() {
		if err := handler.Close(); err != nil {
			log.Warnw("failed to close kafka producer", "error", err)
		}
	}()

	txManager := postgres.NewTxManager(pool)
	worker := NewWorker(
		postgres.NewOutboxRelay(txManager, handler, cfg.Outbox.BatchSize, cfg.Outbox.MaxRetries),
		cfg.Outbox,
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Relay is the outbox surface the worker drives.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
	PurgePublished(ctx context.Context, retention time.Duration) (int64, error)
}

// Worker polls the outbox and runs periodic housekeeping.
type Worker struct {
	relay Relay
	cfg   config.OutboxConfig
	log   *logger.Logger
}

// NewWorker creates a worker.
func NewWorker(relay Relay, cfg config.OutboxConfig, log *logger.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Worker{
		relay: relay,
		cfg:   cfg,
		log:   log.WithComponent("outbox"),
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately
// by another poll so a backlog drains without waiting for the ticker.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n < w.cfg.BatchSize {
			return
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if moved, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("failed to move outbox messages to DLQ", "error", err)
	} else if moved > 0 {
		w.log.Warnw("moved undeliverable outbox messages to DLQ", "count", moved)
	}

	if w.cfg.Retention <= 0 {
		return
	}
	if purged, err := w.relay.PurgePublished(ctx, w.cfg.Retention); err != nil {
		w.log.Errorw("failed to purge published outbox messages", "error", err)
	} else if purged > 0 {
		w.log.Infow("purged published outbox messages", "count", purged)
	}
}
