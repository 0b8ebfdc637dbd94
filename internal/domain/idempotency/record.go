package idempotency

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the idempotency record status in the state machine.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Record is the coordinator's state for one (scope, key). A unique constraint
// on (scope, idempotency_key) guarantees at most one record per pair.
type Record struct {
	ID             uuid.UUID
	Scope          string
	IdempotencyKey string
	RequestHash    string
	Status         Status
	HTTPStatus     *int
	ResponseBody   *string
	PaymentID      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewInProgress creates an IN_PROGRESS record for a first-time request.
func NewInProgress(scope, key, requestHash string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:             uuid.New(),
		Scope:          scope,
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Status:         StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsSameHash reports whether the record was created for the same request payload.
func (r *Record) IsSameHash(requestHash string) bool {
	return r.RequestHash == requestHash
}

// IsStale reports whether an IN_PROGRESS record is old enough to be recovered
// by a later caller holding the advisory lock. Completed records are never stale.
func (r *Record) IsStale(maxAge time.Duration) bool {
	if r.Status != StatusInProgress {
		return false
	}
	last := r.CreatedAt
	if r.UpdatedAt.After(last) {
		last = r.UpdatedAt
	}
	return time.Since(last) > maxAge
}

// Complete transitions the record to COMPLETED with the stored response.
func (r *Record) Complete(httpStatus int, responseBody, paymentID string) {
	r.Status = StatusCompleted
	r.HTTPStatus = &httpStatus
	r.ResponseBody = &responseBody
	r.PaymentID = &paymentID
	r.UpdatedAt = time.Now().UTC()
}
