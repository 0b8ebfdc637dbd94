package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/charge-gateway/internal/application/dispatch"
	"github.com/cassiomorais/charge-gateway/internal/bootstrap"
	"github.com/cassiomorais/charge-gateway/internal/infrastructure/kafka"
	"github.com/cassiomorais/charge-gateway/internal/repository/postgres"
	"github.com/cassiomorais/charge-gateway/pkg/retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "charge-gateway-worker", "gateway_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Kafka producer ---
	outboxCfg := app.Config.Outbox
	producer, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*kafka.Producer, error) {
		return kafka.NewProducer(app.Config.Kafka.Brokers, outboxCfg.SendTimeout)
	})
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to connect to Kafka")
	}
	defer producer.Close()

	dispatcher := dispatch.NewDispatcher(
		txManager,
		outboxRepo,
		producer,
		dispatch.Config{
			Topic:           outboxCfg.Topic,
			BatchSize:       outboxCfg.BatchSize,
			PublishInterval: outboxCfg.PublishInterval,
			SendTimeout:     outboxCfg.SendTimeout,
			MaxAttempts:     outboxCfg.MaxAttempts,
			BaseBackoff:     outboxCfg.BaseBackoff,
			MaxBackoff:      outboxCfg.MaxBackoff,
		},
		app.Metrics,
		app.Logger,
	)

	app.Logger.Info().
		Str("topic", outboxCfg.Topic).
		Int("dispatchers", app.Config.Worker.Dispatchers).
		Dur("interval", outboxCfg.PublishInterval).
		Msg("Worker started, draining outbox...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// Skip-locked claims keep concurrent dispatcher loops on disjoint batches.
	for i := 0; i < app.Config.Worker.Dispatchers; i++ {
		g.Go(func() error {
			return dispatcher.Run(gCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
