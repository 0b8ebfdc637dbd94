package idempotency

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists idempotency records with row-level locking.
type Repository interface {
	// FindForUpdate returns the record for (scope, key) holding a row-level
	// write lock for the current transaction, or nil when absent.
	FindForUpdate(ctx context.Context, scope, key string) (*Record, error)

	// InsertInProgress persists a new IN_PROGRESS record. Returns
	// ErrDuplicateIdempotencyKey when (scope, key) already exists.
	InsertInProgress(ctx context.Context, rec *Record) error

	// MarkCompleted transitions IN_PROGRESS -> COMPLETED storing the response.
	MarkCompleted(ctx context.Context, id uuid.UUID, httpStatus int, responseBody, paymentID string) error

	// Touch updates updated_at only.
	Touch(ctx context.Context, id uuid.UUID) error
}
