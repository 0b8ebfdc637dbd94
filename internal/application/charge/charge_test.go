package charge_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/charge-gateway/internal/application/charge"
	domainErrors "github.com/cassiomorais/charge-gateway/internal/domain/errors"
	"github.com/cassiomorais/charge-gateway/internal/domain/idempotency"
	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
	"github.com/cassiomorais/charge-gateway/internal/testutil"
	"github.com/cassiomorais/charge-gateway/pkg/canonical"
)

const testScope = "payments:charge"

type fixture struct {
	uc          *charge.UseCase
	idempotency *testutil.MockIdempotencyRepository
	payments    *testutil.MockPaymentRepository
	outbox      *testutil.MockOutboxRepository
	cache       *testutil.MockResponseCache
	locker      *testutil.MockAdvisoryLocker
}

func newFixture() *fixture {
	f := &fixture{
		idempotency: testutil.NewMockIdempotencyRepository(),
		payments:    testutil.NewMockPaymentRepository(),
		outbox:      testutil.NewMockOutboxRepository(),
		cache:       testutil.NewMockResponseCache(),
		locker:      testutil.NewMockAdvisoryLocker(),
	}
	f.uc = charge.NewUseCase(
		testutil.NewMockTransactionManager(),
		f.locker,
		f.idempotency,
		f.payments,
		f.outbox,
		charge.NewStubProcessor(),
		f.cache,
		testutil.NewTestMetrics(),
		testutil.NewTestLogger(),
		testScope,
		30*time.Second,
	)
	return f
}

func chargeRequest(amount int64) charge.Request {
	return charge.Request{
		CustomerID:         "c1",
		Amount:             amount,
		Currency:           "PLN",
		PaymentMethodToken: "pm_1",
	}
}

func mustHash(t *testing.T, req charge.Request) string {
	t.Helper()
	h, err := canonical.Hash(req)
	if err != nil {
		t.Fatalf("hash request: %v", err)
	}
	return h
}

func TestExecute_FirstCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)

	res, err := f.uc.Execute(ctx, "k1", mustHash(t, req), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HTTPStatus != 201 {
		t.Errorf("expected 201, got %d", res.HTTPStatus)
	}
	if res.Replayed {
		t.Error("first charge must not be marked replayed")
	}
	if f.payments.Count() != 1 {
		t.Errorf("expected 1 payment, got %d", f.payments.Count())
	}

	var resp charge.Response
	if err := json.Unmarshal([]byte(res.Body), &resp); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	if resp.Amount != 100 || resp.Currency != "PLN" || resp.Status != string(payment.StatusAuthorized) {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.PaymentID != res.PaymentID {
		t.Errorf("result payment id %s does not match body %s", res.PaymentID, resp.PaymentID)
	}

	rec := f.idempotency.Get(testScope, "k1")
	if rec == nil || rec.Status != idempotency.StatusCompleted {
		t.Fatalf("expected completed idempotency record, got %+v", rec)
	}
	if rec.PaymentID == nil || *rec.PaymentID != res.PaymentID {
		t.Error("record payment id not linked")
	}
}

func TestExecute_OutboxEventWrittenWithPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)

	res, err := f.uc.Execute(ctx, "k1", mustHash(t, req), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := f.outbox.Events()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 outbox event, got %d", len(events))
	}
	e := events[0]
	if e.EventType != "PaymentCharged" || e.AggregateType != "Payment" {
		t.Errorf("unexpected event type: %s/%s", e.AggregateType, e.EventType)
	}
	if e.EventKey != res.PaymentID {
		t.Errorf("expected event key %s, got %s", res.PaymentID, e.EventKey)
	}

	var evt charge.PaymentChargedEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		t.Fatalf("unmarshal event payload: %v", err)
	}
	if evt.PaymentID != res.PaymentID || evt.IdempotencyKey != "k1" || evt.Amount != 100 {
		t.Errorf("unexpected event payload: %+v", evt)
	}
	if evt.SchemaVersion != "1" {
		t.Errorf("expected schema version 1, got %s", evt.SchemaVersion)
	}
}

func TestExecute_Replay_SameBodyBytes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)
	hash := mustHash(t, req)

	first, err := f.uc.Execute(ctx, "k1", hash, req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	second, err := f.uc.Execute(ctx, "k1", hash, req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Replayed {
		t.Error("expected replay marker on second call")
	}
	if second.Body != first.Body {
		t.Errorf("replayed body differs:\n%s\n%s", first.Body, second.Body)
	}
	if f.payments.Count() != 1 {
		t.Errorf("expected 1 payment after replay, got %d", f.payments.Count())
	}
	if len(f.outbox.Events()) != 1 {
		t.Errorf("expected 1 outbox event after replay, got %d", len(f.outbox.Events()))
	}
}

func TestExecute_Replay_ServedFromCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)
	hash := mustHash(t, req)

	first, err := f.uc.Execute(ctx, "k1", hash, req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	// Poison the store; a cache hit must not touch it.
	f.idempotency.FindForUpdateFunc = func(context.Context, string, string) (*idempotency.Record, error) {
		t.Fatal("store must not be consulted on a cache hit")
		return nil, nil
	}

	second, err := f.uc.Execute(ctx, "k1", hash, req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.Body != first.Body || !second.Replayed {
		t.Error("expected cached replay with identical body")
	}
	if second.PaymentID != first.PaymentID {
		t.Errorf("expected payment id %s from cached body, got %s", first.PaymentID, second.PaymentID)
	}
}

func TestExecute_HashConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	req1 := chargeRequest(100)
	if _, err := f.uc.Execute(ctx, "k2", mustHash(t, req1), req1); err != nil {
		t.Fatalf("first call: %v", err)
	}

	req2 := chargeRequest(200)
	_, err := f.uc.Execute(ctx, "k2", mustHash(t, req2), req2)
	if !errors.Is(err, domainErrors.ErrHashConflict) {
		t.Fatalf("expected ErrHashConflict, got %v", err)
	}
	if f.payments.Count() != 1 {
		t.Errorf("conflict must not create payments, got %d", f.payments.Count())
	}
}

func TestExecute_HashConflict_FromCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	req1 := chargeRequest(100)
	if _, err := f.uc.Execute(ctx, "k2", mustHash(t, req1), req1); err != nil {
		t.Fatalf("first call: %v", err)
	}

	req2 := chargeRequest(200)
	_, err := f.uc.Execute(ctx, "k2", mustHash(t, req2), req2)
	if !errors.Is(err, domainErrors.ErrHashConflict) {
		t.Fatalf("expected ErrHashConflict from cache hit, got %v", err)
	}
}

func TestExecute_InProgressConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)
	hash := mustHash(t, req)

	f.idempotency.Add(idempotency.NewInProgress(testScope, "k3", hash))

	_, err := f.uc.Execute(ctx, "k3", hash, req)
	if !errors.Is(err, domainErrors.ErrInProgressConflict) {
		t.Fatalf("expected ErrInProgressConflict, got %v", err)
	}
	if f.payments.Count() != 0 {
		t.Error("conflict must not create payments")
	}
}

func TestExecute_StaleInProgress_PaymentExists(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)
	hash := mustHash(t, req)

	// Simulate a crash after the payment committed but before the record
	// was completed.
	p, err := payment.NewAuthorized("k4", "c1", 100, "PLN", "pm_1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.payments.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	rec := idempotency.NewInProgress(testScope, "k4", hash)
	rec.CreatedAt = time.Now().Add(-5 * time.Minute)
	rec.UpdatedAt = rec.CreatedAt
	f.idempotency.Add(rec)

	res, err := f.uc.Execute(ctx, "k4", hash, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Replayed {
		t.Error("recovery from committed payment must be a replay")
	}
	if res.PaymentID != p.ID {
		t.Errorf("expected payment %s, got %s", p.ID, res.PaymentID)
	}
	if f.payments.Count() != 1 {
		t.Errorf("expected 1 payment, got %d", f.payments.Count())
	}

	stored := f.idempotency.Get(testScope, "k4")
	if stored.Status != idempotency.StatusCompleted {
		t.Errorf("expected record completed after recovery, got %s", stored.Status)
	}
}

func TestExecute_StaleInProgress_NoPayment_RunsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)
	hash := mustHash(t, req)

	// Crash before any business effect committed.
	rec := idempotency.NewInProgress(testScope, "k5", hash)
	rec.CreatedAt = time.Now().Add(-5 * time.Minute)
	rec.UpdatedAt = rec.CreatedAt
	f.idempotency.Add(rec)

	res, err := f.uc.Execute(ctx, "k5", hash, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Replayed {
		t.Error("fresh execution after recovery must not be a replay")
	}
	if f.payments.Count() != 1 {
		t.Errorf("expected exactly 1 payment, got %d", f.payments.Count())
	}
	if len(f.outbox.Events()) != 1 {
		t.Errorf("expected exactly 1 outbox event, got %d", len(f.outbox.Events()))
	}
}

func TestExecute_InsertRace_RetriesAndReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)
	hash := mustHash(t, req)

	// First attempt: the record does not exist yet, but the insert loses a
	// race with a concurrent winner whose transaction commits in between.
	var once sync.Once
	f.idempotency.InsertInProgressFunc = func(insCtx context.Context, rec *idempotency.Record) error {
		raced := false
		once.Do(func() {
			winner, err := payment.NewAuthorized("k6", "c1", 100, "PLN", "pm_1", nil)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.payments.Create(insCtx, winner); err != nil {
				t.Fatal(err)
			}
			body, _ := json.Marshal(charge.ResponseFrom(winner))
			winRec := idempotency.NewInProgress(testScope, "k6", hash)
			winRec.Complete(201, string(body), winner.ID)
			f.idempotency.Add(winRec)
			raced = true
		})
		if raced {
			return domainErrors.ErrDuplicateIdempotencyKey
		}
		f.idempotency.InsertInProgressFunc = nil
		return f.idempotency.InsertInProgress(insCtx, rec)
	}

	res, err := f.uc.Execute(ctx, "k6", hash, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Replayed {
		t.Error("losing the insert race must resolve to a replay")
	}
	if f.payments.Count() != 1 {
		t.Errorf("expected exactly 1 payment, got %d", f.payments.Count())
	}
}

func TestExecute_ConcurrentSameKey_SinglePayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(777)
	hash := mustHash(t, req)

	// The mock tx manager serializes per key the way the advisory lock
	// would: one global mutex is enough for a single key.
	var gate sync.Mutex
	f.locker.LockFunc = func(context.Context, string, string) error {
		return nil
	}
	txm := testutil.NewMockTransactionManager()
	txm.WithTransactionFunc = func(txCtx context.Context, fn func(context.Context) error) error {
		gate.Lock()
		defer gate.Unlock()
		return fn(txCtx)
	}
	f.uc = charge.NewUseCase(
		txm, f.locker, f.idempotency, f.payments, f.outbox,
		charge.NewStubProcessor(), f.cache,
		testutil.NewTestMetrics(), testutil.NewTestLogger(),
		testScope, 30*time.Second,
	)

	const n = 8
	results := make([]*charge.Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.uc.Execute(ctx, "k7", hash, req)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if results[i].Body != results[0].Body {
			t.Errorf("request %d returned different body bytes", i)
		}
		if !results[i].Replayed {
			fresh++
		}
	}
	if fresh != 1 {
		t.Errorf("expected exactly 1 non-replayed response, got %d", fresh)
	}
	if f.payments.Count() != 1 {
		t.Errorf("expected exactly 1 payment, got %d", f.payments.Count())
	}
}

func TestExecute_ProcessorFailure_NoStateChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)
	hash := mustHash(t, req)

	boom := errors.New("processor down")
	f.uc = charge.NewUseCase(
		testutil.NewMockTransactionManager(), f.locker, f.idempotency, f.payments, f.outbox,
		failingProcessor{err: boom}, f.cache,
		testutil.NewTestMetrics(), testutil.NewTestLogger(),
		testScope, 30*time.Second,
	)

	if _, err := f.uc.Execute(ctx, "k8", hash, req); !errors.Is(err, boom) {
		t.Fatalf("expected processor error, got %v", err)
	}
	if f.payments.Count() != 0 {
		t.Error("failed charge must not persist a payment")
	}
	if len(f.outbox.Events()) != 0 {
		t.Error("failed charge must not persist an outbox event")
	}
}

type failingProcessor struct{ err error }

func (p failingProcessor) Authorize(context.Context, string, charge.Request) (*payment.Payment, error) {
	return nil, p.err
}

func TestExecute_AcquiresAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := chargeRequest(100)

	if _, err := f.uc.Execute(ctx, "k9", mustHash(t, req), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acquired := f.locker.Acquired()
	if len(acquired) != 1 || acquired[0] != testScope+"|k9" {
		t.Errorf("expected advisory lock on %s|k9, got %v", testScope, acquired)
	}
}
