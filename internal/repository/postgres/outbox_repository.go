package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/charge-gateway/internal/domain/outbox"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, event_key, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at, sent_at`

// OutboxRepository implements outbox.Repository using PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Insert creates a new outbox event inside the business transaction.
func (r *OutboxRepository) Insert(ctx context.Context, e *outbox.Event) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO outbox_events (`+outboxColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, e.EventKey, e.Payload,
		string(e.Status), e.AttemptCount, e.NextAttemptAt, e.LastError,
		e.CreatedAt, e.UpdatedAt, e.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ClaimBatch selects up to limit due events in the given statuses, oldest
// first, skipping rows locked by concurrent dispatchers. The rows stay locked
// until the current transaction ends, which is what makes multi-instance
// dispatch safe.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, statuses []outbox.Status, now time.Time, limit int) ([]*outbox.Event, error) {
	strStatuses := make([]string, len(statuses))
	for i, s := range statuses {
		strStatuses[i] = string(s)
	}

	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events
		 WHERE status = ANY($1)
		   AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		 ORDER BY created_at ASC
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`, strStatuses, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var events []*outbox.Event
	for rows.Next() {
		e := &outbox.Event{}
		var status string
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.EventKey,
			&e.Payload, &status, &e.AttemptCount, &e.NextAttemptAt, &e.LastError,
			&e.CreatedAt, &e.UpdatedAt, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Status = outbox.Status(status)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Update persists status transitions for a claimed event.
func (r *OutboxRepository) Update(ctx context.Context, e *outbox.Event) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox_events
		 SET status = $1, attempt_count = $2, next_attempt_at = $3, last_error = $4, updated_at = $5, sent_at = $6
		 WHERE id = $7`,
		string(e.Status), e.AttemptCount, e.NextAttemptAt, e.LastError, e.UpdatedAt, e.SentAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update outbox event: %w", err)
	}
	return nil
}
