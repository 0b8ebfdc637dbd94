package outbox

import (
	"context"
	"time"
)

// Repository persists outbox events.
type Repository interface {
	// Insert creates a new outbox event (inside the business transaction).
	Insert(ctx context.Context, e *Event) error

	// ClaimBatch selects up to limit events whose status is in statuses and
	// whose next_attempt_at is null or due, ordered by created_at ascending,
	// skipping rows locked by concurrent dispatchers. The returned rows stay
	// locked for the current transaction.
	ClaimBatch(ctx context.Context, statuses []Status, now time.Time, limit int) ([]*Event, error)

	// Update persists status transitions for a claimed event.
	Update(ctx context.Context, e *Event) error
}
