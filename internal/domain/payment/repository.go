package payment

import "context"

// Repository persists payments.
type Repository interface {
	// Create inserts a new payment. Returns ErrDuplicateIdempotencyKey when
	// the idempotency_key unique constraint is violated.
	Create(ctx context.Context, p *Payment) error

	// GetByID retrieves a payment by its ID. Returns ErrPaymentNotFound when absent.
	GetByID(ctx context.Context, id string) (*Payment, error)

	// FindByIdempotencyKey retrieves a payment by idempotency key, or nil when absent.
	FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// ListByCustomer lists payments for a customer, newest first.
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*Payment, error)
}
