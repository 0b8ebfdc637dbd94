package payment

import (
	"time"

	"github.com/cassiomorais/charge-gateway/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the payment status.
type Status string

const (
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusFailed     Status = "FAILED"
)

// Payment represents a single accepted charge. Rows are written exactly once
// per accepted charge and never updated afterwards; the unique constraint on
// idempotency_key is the last line of defense against double effects.
type Payment struct {
	ID                 string
	IdempotencyKey     string
	CustomerID         string
	Amount             int64 // minor units
	Currency           string
	PaymentMethodToken string
	Description        *string
	Status             Status
	CreatedAt          time.Time
}

// NewAuthorized creates an authorized payment for the given charge.
func NewAuthorized(idempotencyKey, customerID string, amount int64, currency, paymentMethodToken string, description *string) (*Payment, error) {
	if idempotencyKey == "" {
		return nil, errors.NewValidationError("idempotency_key", "cannot be empty")
	}
	if customerID == "" {
		return nil, errors.NewValidationError("customer_id", "cannot be empty")
	}
	if amount <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	if currency == "" {
		return nil, errors.NewValidationError("currency", "cannot be empty")
	}
	if paymentMethodToken == "" {
		return nil, errors.NewValidationError("payment_method_token", "cannot be empty")
	}

	return &Payment{
		ID:                 uuid.New().String(),
		IdempotencyKey:     idempotencyKey,
		CustomerID:         customerID,
		Amount:             amount,
		Currency:           currency,
		PaymentMethodToken: paymentMethodToken,
		Description:        description,
		Status:             StatusAuthorized,
		CreatedAt:          time.Now().UTC(),
	}, nil
}
