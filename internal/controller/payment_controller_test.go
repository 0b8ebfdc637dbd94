package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cassiomorais/charge-gateway/internal/application/charge"
	"github.com/cassiomorais/charge-gateway/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	router   *chi.Mux
	payments *testutil.MockPaymentRepository
	outbox   *testutil.MockOutboxRepository
}

func newControllerFixture() *controllerFixture {
	payments := testutil.NewMockPaymentRepository()
	outboxRepo := testutil.NewMockOutboxRepository()

	uc := charge.NewUseCase(
		testutil.NewMockTransactionManager(),
		testutil.NewMockAdvisoryLocker(),
		testutil.NewMockIdempotencyRepository(),
		payments,
		outboxRepo,
		charge.NewStubProcessor(),
		testutil.NewMockResponseCache(),
		testutil.NewTestMetrics(),
		testutil.NewTestLogger(),
		"payments:charge",
		30*time.Second,
	)

	h := NewPaymentController(uc, payments)
	r := chi.NewRouter()
	r.Post("/api/payments/charges", h.Charge)
	r.Get("/api/payments", h.ListPayments)
	r.Get("/api/payments/{id}", h.GetPayment)

	return &controllerFixture{router: r, payments: payments, outbox: outboxRepo}
}

func (f *controllerFixture) charge(t *testing.T, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/charges", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"customerId":"c1","amount":100,"currency":"PLN","paymentMethodToken":"pm_1"}`

func TestCharge_FirstRequest(t *testing.T) {
	f := newControllerFixture()

	rec := f.charge(t, "k1", validBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp charge.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c1", resp.CustomerID)
	assert.Equal(t, int64(100), resp.Amount)
	assert.Equal(t, "AUTHORIZED", resp.Status)

	assert.Equal(t, "/api/payments/"+resp.PaymentID, rec.Header().Get("Location"))
	assert.Equal(t, "k1", rec.Header().Get(IdempotencyKeyHeader))
	assert.NotEmpty(t, rec.Header().Get(IdempotencyRequestHashHeader))
	assert.Empty(t, rec.Header().Get(IdempotencyReplayedHeader))

	assert.Equal(t, 1, f.payments.Count())
	assert.Len(t, f.outbox.Events(), 1)
}

func TestCharge_Replay(t *testing.T) {
	f := newControllerFixture()

	first := f.charge(t, "k1", validBody)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.charge(t, "k1", validBody)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(IdempotencyReplayedHeader))
	assert.Equal(t, first.Body.String(), second.Body.String(), "replay must return identical body bytes")
	assert.Equal(t, 1, f.payments.Count())
}

func TestCharge_HashConflict(t *testing.T) {
	f := newControllerFixture()

	first := f.charge(t, "k2", validBody)
	require.Equal(t, http.StatusCreated, first.Code)

	conflicting := `{"customerId":"c1","amount":200,"currency":"PLN","paymentMethodToken":"pm_1"}`
	second := f.charge(t, "k2", conflicting)
	require.Equal(t, http.StatusConflict, second.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &errResp))
	assert.Equal(t, "idempotency_key_conflict", errResp.Code)
	assert.Equal(t, 1, f.payments.Count())
}

func TestCharge_MissingKey(t *testing.T) {
	f := newControllerFixture()
	rec := f.charge(t, "", validBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCharge_MalformedKey(t *testing.T) {
	f := newControllerFixture()

	rec := f.charge(t, "bad key with spaces", validBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.charge(t, strings.Repeat("x", 129), validBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCharge_InvalidBody(t *testing.T) {
	f := newControllerFixture()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing customer", `{"amount":100,"currency":"PLN","paymentMethodToken":"pm_1"}`},
		{"zero amount", `{"customerId":"c1","amount":0,"currency":"PLN","paymentMethodToken":"pm_1"}`},
		{"negative amount", `{"customerId":"c1","amount":-5,"currency":"PLN","paymentMethodToken":"pm_1"}`},
		{"missing currency", `{"customerId":"c1","amount":100,"paymentMethodToken":"pm_1"}`},
		{"missing token", `{"customerId":"c1","amount":100,"currency":"PLN"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.charge(t, "k3", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, 0, f.payments.Count())
}

func TestGetPayment(t *testing.T) {
	f := newControllerFixture()

	created := f.charge(t, "k4", validBody)
	require.Equal(t, http.StatusCreated, created.Code)
	var createdResp charge.Response
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdResp))

	req := httptest.NewRequest(http.MethodGet, "/api/payments/"+createdResp.PaymentID, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp charge.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, createdResp.PaymentID, resp.PaymentID)
}

func TestGetPayment_NotFound(t *testing.T) {
	f := newControllerFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/payments/nope", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPayments(t *testing.T) {
	f := newControllerFixture()

	require.Equal(t, http.StatusCreated, f.charge(t, "k5", validBody).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/payments?customer_id=c1", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []charge.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
}

func TestListPayments_MissingCustomer(t *testing.T) {
	f := newControllerFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
