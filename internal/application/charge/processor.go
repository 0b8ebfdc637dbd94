package charge

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/charge-gateway/internal/domain/errors"
	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
)

// StubProcessor is a deterministic processor for local development and
// tests. It always authorizes.
type StubProcessor struct{}

// NewStubProcessor creates a new StubProcessor.
func NewStubProcessor() *StubProcessor {
	return &StubProcessor{}
}

// Authorize creates an authorized payment for the charge.
func (s *StubProcessor) Authorize(_ context.Context, idempotencyKey string, req Request) (*payment.Payment, error) {
	return payment.NewAuthorized(
		idempotencyKey,
		req.CustomerID,
		req.Amount,
		req.Currency,
		req.PaymentMethodToken,
		req.Description,
	)
}

// BreakerProcessor wraps a PaymentProcessor with a circuit breaker so a
// misbehaving external processor sheds load instead of tying up workers.
type BreakerProcessor struct {
	inner   PaymentProcessor
	breaker *gobreaker.CircuitBreaker[*payment.Payment]
}

// NewBreakerProcessor wraps inner with a circuit breaker.
func NewBreakerProcessor(name string, inner PaymentProcessor) *BreakerProcessor {
	return &BreakerProcessor{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker[*payment.Payment](gobreaker.Settings{
			Name:        name,
			MaxRequests: 10,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 10 && failureRatio >= 0.6
			},
		}),
	}
}

// Authorize delegates to the wrapped processor through the breaker.
func (b *BreakerProcessor) Authorize(ctx context.Context, idempotencyKey string, req Request) (*payment.Payment, error) {
	p, err := b.breaker.Execute(func() (*payment.Payment, error) {
		return b.inner.Authorize(ctx, idempotencyKey, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
		}
		return nil, err
	}
	return p, nil
}
