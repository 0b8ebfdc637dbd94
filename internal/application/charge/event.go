package charge

import (
	"time"

	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
	"github.com/google/uuid"
)

// PaymentChargedEvent is the payload published to the bus when a payment is
// authorized. Stored in the outbox and drained asynchronously.
type PaymentChargedEvent struct {
	SchemaVersion  string    `json:"schemaVersion"`
	EventID        string    `json:"eventId"`
	OccurredAt     time.Time `json:"occurredAt"`
	PaymentID      string    `json:"paymentId"`
	IdempotencyKey string    `json:"idempotencyKey"`
	CustomerID     string    `json:"customerId"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	Description    *string   `json:"description"`
}

// NewPaymentChargedEvent builds the event for an authorized payment.
func NewPaymentChargedEvent(p *payment.Payment) PaymentChargedEvent {
	return PaymentChargedEvent{
		SchemaVersion:  "1",
		EventID:        uuid.New().String(),
		OccurredAt:     time.Now().UTC(),
		PaymentID:      p.ID,
		IdempotencyKey: p.IdempotencyKey,
		CustomerID:     p.CustomerID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		Description:    p.Description,
	}
}
