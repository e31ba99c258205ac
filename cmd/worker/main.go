// Package main is the entry point for the stockpos background worker.
// It relays alert events from the outbox to Kafka and sweeps expiry alerts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockpos/internal/app"
	"stockpos/internal/config"
	appctx "stockpos/internal/core/context"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/infrastructure/broker"
	"stockpos/internal/infrastructure/storage/postgres"
	"stockpos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage != config.StoragePostgres {
		fmt.Println("worker requires STORAGE=postgres")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stockpos worker")

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize services", "error", err)
	}
	defer services.Close()

	w := &Worker{
		ledger: services.Ledger,
		pool:   services.Pool,
		cfg:    cfg,
		log:    log.WithComponent("worker"),
	}
	if len(cfg.KafkaBrokers) > 0 {
		w.publisher = broker.NewKafkaPublisher(broker.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		defer w.publisher.Close()
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox relay disabled")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the periodic jobs.
type Worker struct {
	ledger    *ledger.Service
	pool      *postgres.Pool
	publisher *broker.KafkaPublisher
	cfg       *config.Config
	log       *logger.Logger
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	// background jobs act as the system user
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: appctx.SystemActor, IsAdmin: true})
	ctx = logger.WithLogger(ctx, w.log)

	var relay *postgres.OutboxRelay
	if w.publisher != nil {
		relay = postgres.NewOutboxRelay(w.pool, w.cfg.OutboxBatchSize, postgres.OutboxHandlerFunc(w.deliver))
	}

	outboxTicker := time.NewTicker(w.cfg.OutboxInterval)
	defer outboxTicker.Stop()
	sweepTicker := time.NewTicker(w.cfg.AlertSweepInterval)
	defer sweepTicker.Stop()
	dlqTicker := time.NewTicker(time.Hour)
	defer dlqTicker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-outboxTicker.C:
			if relay == nil {
				continue
			}
			n, err := relay.ProcessBatch(ctx)
			if err != nil {
				w.log.Errorw("outbox batch failed", "error", err)
				continue
			}
			if n > 0 {
				w.log.Debugw("relayed outbox batch", "count", n)
			}
		case <-dlqTicker.C:
			if relay == nil {
				continue
			}
			n, err := relay.MoveToDLQ(ctx)
			if err != nil {
				w.log.Errorw("move to DLQ failed", "error", err)
			} else if n > 0 {
				w.log.Warnw("moved failed outbox messages to DLQ", "count", n)
			}
		case <-sweepTicker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, msg *postgres.OutboxMessage) error {
	return w.publisher.Publish(ctx, broker.Message{
		Key:       msg.AggregateID.String(),
		EventType: msg.EventType,
		Payload:   msg.Payload,
		At:        msg.CreatedAt,
	})
}

func (w *Worker) sweep(ctx context.Context) {
	changed, err := w.ledger.SweepAlerts(ctx, 200)
	if err != nil {
		w.log.Errorw("alert sweep failed", "error", err)
		return
	}
	if changed > 0 {
		w.log.Infow("alert sweep changed records", "count", changed)
	}
}
