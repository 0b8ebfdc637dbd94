package controller

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cassiomorais/charge-gateway/internal/application/charge"
	domainErrors "github.com/cassiomorais/charge-gateway/internal/domain/errors"
	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
	"github.com/cassiomorais/charge-gateway/pkg/canonical"
	"github.com/go-chi/chi/v5"
)

const (
	// IdempotencyKeyHeader carries the client-supplied idempotency key.
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// IdempotencyReplayedHeader marks a replayed response.
	IdempotencyReplayedHeader = "X-Idempotency-Replayed"
	// IdempotencyRequestHashHeader returns the request hash for debugging.
	IdempotencyRequestHashHeader = "X-Idempotency-Request-Hash"
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	chargeUC    *charge.UseCase
	paymentRepo payment.Repository
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(chargeUC *charge.UseCase, paymentRepo payment.Repository) *PaymentController {
	return &PaymentController{
		chargeUC:    chargeUC,
		paymentRepo: paymentRepo,
	}
}

// Charge handles POST /api/payments/charges
func (h *PaymentController) Charge(w http.ResponseWriter, r *http.Request) {
	key, err := normalizeKey(r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeError(w, err)
		return
	}

	var req ChargeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	chargeReq := charge.Request{
		CustomerID:         req.CustomerID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		PaymentMethodToken: req.PaymentMethodToken,
		Description:        req.Description,
	}

	// The hash is computed once here at the edge and passed down.
	requestHash, err := canonical.Hash(chargeReq)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.chargeUC.Execute(r.Context(), key, requestHash, chargeReq)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotencyKeyHeader, key)
	w.Header().Set(IdempotencyRequestHashHeader, requestHash)
	if result.Replayed {
		w.Header().Set(IdempotencyReplayedHeader, "true")
	}
	if result.HTTPStatus == http.StatusCreated && result.PaymentID != "" {
		w.Header().Set("Location", "/api/payments/"+result.PaymentID)
	}
	w.WriteHeader(result.HTTPStatus)
	// The stored bytes are written verbatim so replays are byte-identical.
	w.Write([]byte(result.Body))
}

// GetPayment handles GET /api/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.paymentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, charge.ResponseFrom(p))
}

// ListPayments handles GET /api/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeError(w, domainErrors.NewValidationError("customer_id", "query parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	payments, err := h.paymentRepo.ListByCustomer(r.Context(), customerID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]charge.Response, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, charge.ResponseFrom(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func normalizeKey(raw string) (string, error) {
	k := strings.TrimSpace(raw)
	if k == "" {
		return "", domainErrors.NewValidationError(IdempotencyKeyHeader, "header is required")
	}
	if !idempotencyKeyPattern.MatchString(k) {
		return "", domainErrors.NewValidationError(IdempotencyKeyHeader, "allowed characters [A-Za-z0-9._:-], max length 128")
	}
	return k, nil
}
