package idempotency_test

import (
	"testing"
	"time"

	"github.com/cassiomorais/charge-gateway/internal/domain/idempotency"
)

func TestNewInProgress(t *testing.T) {
	rec := idempotency.NewInProgress("payments:charge", "k1", "hash-1")
	if rec.Status != idempotency.StatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.Scope != "payments:charge" || rec.IdempotencyKey != "k1" {
		t.Errorf("unexpected scope/key: %s/%s", rec.Scope, rec.IdempotencyKey)
	}
	if !rec.IsSameHash("hash-1") {
		t.Error("expected matching hash")
	}
	if rec.IsSameHash("hash-2") {
		t.Error("expected hash mismatch")
	}
}

func TestIsStale_FreshInProgress(t *testing.T) {
	rec := idempotency.NewInProgress("payments:charge", "k1", "h")
	if rec.IsStale(30 * time.Second) {
		t.Error("fresh IN_PROGRESS record must not be stale")
	}
}

func TestIsStale_OldInProgress(t *testing.T) {
	rec := idempotency.NewInProgress("payments:charge", "k1", "h")
	rec.CreatedAt = time.Now().Add(-2 * time.Minute)
	rec.UpdatedAt = rec.CreatedAt
	if !rec.IsStale(30 * time.Second) {
		t.Error("old IN_PROGRESS record must be stale")
	}
}

func TestIsStale_UsesLatestOfCreatedAndUpdated(t *testing.T) {
	rec := idempotency.NewInProgress("payments:charge", "k1", "h")
	rec.CreatedAt = time.Now().Add(-2 * time.Minute)
	rec.UpdatedAt = time.Now().Add(-5 * time.Second)
	if rec.IsStale(30 * time.Second) {
		t.Error("recently touched record must not be stale")
	}
}

func TestIsStale_CompletedNeverStale(t *testing.T) {
	rec := idempotency.NewInProgress("payments:charge", "k1", "h")
	rec.Complete(201, `{"paymentId":"p1"}`, "p1")
	rec.CreatedAt = time.Now().Add(-time.Hour)
	rec.UpdatedAt = rec.CreatedAt
	if rec.IsStale(30 * time.Second) {
		t.Error("COMPLETED record must never be stale")
	}
}

func TestComplete(t *testing.T) {
	rec := idempotency.NewInProgress("payments:charge", "k1", "h")
	rec.Complete(201, `{"paymentId":"p1"}`, "p1")

	if rec.Status != idempotency.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", rec.Status)
	}
	if rec.HTTPStatus == nil || *rec.HTTPStatus != 201 {
		t.Errorf("expected http status 201, got %v", rec.HTTPStatus)
	}
	if rec.ResponseBody == nil || *rec.ResponseBody != `{"paymentId":"p1"}` {
		t.Errorf("unexpected response body: %v", rec.ResponseBody)
	}
	if rec.PaymentID == nil || *rec.PaymentID != "p1" {
		t.Errorf("unexpected payment id: %v", rec.PaymentID)
	}
}
