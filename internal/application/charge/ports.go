package charge

import (
	"context"

	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AdvisoryLocker serializes racing first-time requests for a (scope, key)
// before an idempotency row exists. Must be called inside a transaction; the
// lock is released when the transaction ends.
type AdvisoryLocker interface {
	Lock(ctx context.Context, scope, key string) error
}

// PaymentProcessor is the external processor abstraction. The stub
// implementation always authorizes.
type PaymentProcessor interface {
	Authorize(ctx context.Context, idempotencyKey string, req Request) (*payment.Payment, error)
}

// CachedResponse is the value stored in the response cache for a completed
// (scope, key).
type CachedResponse struct {
	RequestHash  string `json:"requestHash"`
	HTTPStatus   int    `json:"httpStatus"`
	ResponseBody string `json:"responseBody"`
}

// ResponseCache is a best-effort read-through accelerator. It is never
// authoritative: a miss is resolved against the idempotency store.
type ResponseCache interface {
	Get(ctx context.Context, scope, key string) (*CachedResponse, error)
	Put(ctx context.Context, scope, key string, resp CachedResponse) error
}
