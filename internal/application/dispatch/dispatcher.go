package dispatch

import (
	"context"
	"time"

	"github.com/cassiomorais/charge-gateway/internal/domain/outbox"
	"github.com/cassiomorais/charge-gateway/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Publisher publishes one message to the bus and waits for broker
// acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// TransactionManager is the transaction port (same shape as the charge side).
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config holds dispatcher tunables.
type Config struct {
	Topic           string
	BatchSize       int
	PublishInterval time.Duration
	SendTimeout     time.Duration
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

// Stats summarizes one publish batch.
type Stats struct {
	Sent  int
	Retry int
	Dead  int
}

// Dispatcher drains the outbox to the bus. Claims use skip-locked selects,
// so multiple dispatcher instances dequeue disjoint batches; the claimed
// rows stay locked until the batch transaction commits.
type Dispatcher struct {
	txManager TransactionManager
	outbox    outbox.Repository
	publisher Publisher
	cfg       Config
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	txManager TransactionManager,
	outboxRepo outbox.Repository,
	publisher Publisher,
	cfg Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		txManager: txManager,
		outbox:    outboxRepo,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run publishes batches on the configured interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		stats, err := d.PublishBatch(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("Outbox publish batch failed")
			continue
		}
		if stats.Sent+stats.Retry+stats.Dead > 0 {
			d.logger.Info().
				Int("sent", stats.Sent).
				Int("retry", stats.Retry).
				Int("dead", stats.Dead).
				Str("topic", d.cfg.Topic).
				Msg("Outbox publish batch done")
		}
	}
}

// PublishBatch claims one batch and publishes it sequentially within a
// single transaction, so the claim locks are held until every status update
// is committed.
func (d *Dispatcher) PublishBatch(ctx context.Context) (Stats, error) {
	var stats Stats

	err := d.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		batch, err := d.outbox.ClaimBatch(txCtx,
			[]outbox.Status{outbox.StatusNew, outbox.StatusRetry},
			time.Now().UTC(),
			d.cfg.BatchSize,
		)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, e := range batch {
			if pubErr := d.publish(ctx, e); pubErr != nil {
				// A failed event never fails the batch; record the error and
				// move on.
				if e.AttemptCount+1 >= d.cfg.MaxAttempts {
					e.MarkDead(pubErr.Error())
					stats.Dead++
					d.metrics.OutboxDead.Inc()
					d.logger.Error().
						Str("event_id", e.ID.String()).
						Int("attempts", e.AttemptCount).
						Err(pubErr).
						Msg("Outbox event moved to DEAD")
				} else {
					backoff := Backoff(d.cfg.BaseBackoff, d.cfg.MaxBackoff, e.AttemptCount+1)
					e.MarkRetry(pubErr.Error(), backoff)
					stats.Retry++
					d.metrics.OutboxRetry.Inc()
					d.logger.Warn().
						Str("event_id", e.ID.String()).
						Int("attempt", e.AttemptCount).
						Time("next_attempt_at", *e.NextAttemptAt).
						Err(pubErr).
						Msg("Outbox event publish failed")
				}
			} else {
				e.MarkSent()
				stats.Sent++
				d.metrics.OutboxSent.Inc()
			}

			if err := d.outbox.Update(txCtx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (d *Dispatcher) publish(ctx context.Context, e *outbox.Event) error {
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.publisher.Publish(pubCtx, d.cfg.Topic, e.EventKey, e.Payload)
}
