package charge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/charge-gateway/internal/domain/errors"
	"github.com/cassiomorais/charge-gateway/internal/domain/idempotency"
	"github.com/cassiomorais/charge-gateway/internal/domain/outbox"
	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
	"github.com/cassiomorais/charge-gateway/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const (
	aggregateType    = "Payment"
	paymentEventType = "PaymentCharged"
)

// Request holds the input for an idempotent charge.
type Request struct {
	CustomerID         string  `json:"customerId"`
	Amount             int64   `json:"amount"`
	Currency           string  `json:"currency"`
	PaymentMethodToken string  `json:"paymentMethodToken"`
	Description        *string `json:"description,omitempty"`
}

// Result is the outcome of an idempotent charge: the stored response bytes
// plus the replay marker. Body is byte-identical across replays of the same
// (scope, key).
type Result struct {
	HTTPStatus int
	Body       string
	Replayed   bool
	PaymentID  string
}

// Response is the API payload stored for replay.
type Response struct {
	PaymentID   string    `json:"paymentId"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	CustomerID  string    `json:"customerId"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ResponseFrom maps a payment to the API response.
func ResponseFrom(p *payment.Payment) Response {
	return Response{
		PaymentID:   p.ID,
		Status:      string(p.Status),
		Amount:      p.Amount,
		Currency:    p.Currency,
		CustomerID:  p.CustomerID,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

// UseCase orchestrates the idempotent charge: advisory lock, row lock,
// replay/conflict decision, business effect and outbox write in one
// transaction.
type UseCase struct {
	txManager   TransactionManager
	locker      AdvisoryLocker
	idempotency idempotency.Repository
	payments    payment.Repository
	outbox      outbox.Repository
	processor   PaymentProcessor
	cache       ResponseCache
	metrics     *observability.Metrics
	logger      zerolog.Logger

	scope      string
	staleAfter time.Duration
}

// NewUseCase creates a new charge UseCase.
func NewUseCase(
	txManager TransactionManager,
	locker AdvisoryLocker,
	idempotencyRepo idempotency.Repository,
	paymentRepo payment.Repository,
	outboxRepo outbox.Repository,
	processor PaymentProcessor,
	cache ResponseCache,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	scope string,
	staleAfter time.Duration,
) *UseCase {
	return &UseCase{
		txManager:   txManager,
		locker:      locker,
		idempotency: idempotencyRepo,
		payments:    paymentRepo,
		outbox:      outboxRepo,
		processor:   processor,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		scope:       scope,
		staleAfter:  staleAfter,
	}
}

// Execute charges idempotently. requestHash must be computed over req by the
// caller (the HTTP edge) so it is hashed exactly once.
func (uc *UseCase) Execute(ctx context.Context, key, requestHash string, req Request) (*Result, error) {
	// Fast path: replay from cache without opening a transaction. Cache
	// errors degrade to a miss.
	if cached, err := uc.cache.Get(ctx, uc.scope, key); err == nil && cached != nil {
		if cached.RequestHash != requestHash {
			uc.metrics.IdempotencyConflict.WithLabelValues("hash").Inc()
			return nil, domainErrors.ErrHashConflict
		}
		uc.metrics.IdempotencyReplayed.Inc()
		return resultFromStored(cached.HTTPStatus, cached.ResponseBody, true), nil
	} else if err != nil {
		uc.logger.Warn().Err(err).Str("key", key).Msg("Response cache read failed, falling back to store")
	}

	res, err := uc.executeTx(ctx, key, requestHash, req)
	if errors.Is(err, domainErrors.ErrDuplicateIdempotencyKey) {
		// A concurrent winner inserted first; its transaction has committed,
		// so a single re-entry resolves to a replay or a conflict.
		uc.logger.Info().Str("key", key).Msg("Lost insert race, retrying read path")
		res, err = uc.executeTx(ctx, key, requestHash, req)
	}
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrHashConflict):
			uc.metrics.IdempotencyConflict.WithLabelValues("hash").Inc()
		case errors.Is(err, domainErrors.ErrInProgressConflict):
			uc.metrics.IdempotencyConflict.WithLabelValues("in_progress").Inc()
		}
		return nil, err
	}

	// Populate the cache only after a successful commit, best-effort.
	if cacheErr := uc.cache.Put(ctx, uc.scope, key, CachedResponse{
		RequestHash:  requestHash,
		HTTPStatus:   res.HTTPStatus,
		ResponseBody: res.Body,
	}); cacheErr != nil {
		uc.logger.Warn().Err(cacheErr).Str("key", key).Msg("Response cache write failed")
	}

	if res.Replayed {
		uc.metrics.IdempotencyReplayed.Inc()
	} else {
		uc.metrics.IdempotencyCreated.Inc()
	}
	return res, nil
}

// executeTx runs the coordinator algorithm in a single database transaction.
func (uc *UseCase) executeTx(ctx context.Context, key, requestHash string, req Request) (*Result, error) {
	var res *Result

	err := uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// Serialize all requests for this (scope, key), including the
		// pre-row window where FOR UPDATE has nothing to lock.
		if err := uc.locker.Lock(txCtx, uc.scope, key); err != nil {
			return err
		}

		rec, err := uc.idempotency.FindForUpdate(txCtx, uc.scope, key)
		if err != nil {
			return err
		}

		if rec != nil {
			if !rec.IsSameHash(requestHash) {
				return domainErrors.ErrHashConflict
			}

			if rec.Status == idempotency.StatusCompleted {
				res = resultFromRecord(rec)
				return nil
			}

			// IN_PROGRESS: recover stale entries (process crash etc.)
			if !rec.IsStale(uc.staleAfter) {
				// Should not occur under advisory-lock serialization; return
				// 409 so the client retries with the same key.
				return domainErrors.ErrInProgressConflict
			}

			uc.logger.Warn().Str("scope", uc.scope).Str("key", key).Msg("Recovering stale IN_PROGRESS idempotency record")
			if err := uc.idempotency.Touch(txCtx, rec.ID); err != nil {
				return err
			}

			// If the payment committed before the crash, complete the record
			// from it instead of re-running the business operation.
			existing, err := uc.payments.FindByIdempotencyKey(txCtx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				body, err := marshalResponse(existing)
				if err != nil {
					return err
				}
				if err := uc.idempotency.MarkCompleted(txCtx, rec.ID, http.StatusCreated, body, existing.ID); err != nil {
					return err
				}
				res = &Result{HTTPStatus: http.StatusCreated, Body: body, Replayed: true, PaymentID: existing.ID}
				return nil
			}
			// No payment committed: safe to re-run using the existing record.
		} else {
			rec = idempotency.NewInProgress(uc.scope, key, requestHash)
			// The insert is flushed here so a concurrent insert that bypassed
			// the advisory lock surfaces as a unique violation now.
			if err := uc.idempotency.InsertInProgress(txCtx, rec); err != nil {
				return err
			}
		}

		p, err := uc.processor.Authorize(txCtx, key, req)
		if err != nil {
			return err
		}
		if err := uc.payments.Create(txCtx, p); err != nil {
			return err
		}

		evt := NewPaymentChargedEvent(p)
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal payment charged event: %w", err)
		}
		// event_key = payment id so downstream partitioning groups
		// per-payment events.
		if err := uc.outbox.Insert(txCtx, outbox.NewEvent(aggregateType, p.ID, paymentEventType, p.ID, payload)); err != nil {
			return err
		}

		body, err := marshalResponse(p)
		if err != nil {
			return err
		}
		if err := uc.idempotency.MarkCompleted(txCtx, rec.ID, http.StatusCreated, body, p.ID); err != nil {
			return err
		}

		res = &Result{HTTPStatus: http.StatusCreated, Body: body, Replayed: false, PaymentID: p.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func marshalResponse(p *payment.Payment) (string, error) {
	body, err := json.Marshal(ResponseFrom(p))
	if err != nil {
		return "", fmt.Errorf("marshal payment response: %w", err)
	}
	return string(body), nil
}

func resultFromRecord(rec *idempotency.Record) *Result {
	status := http.StatusCreated
	if rec.HTTPStatus != nil {
		status = *rec.HTTPStatus
	}
	body := ""
	if rec.ResponseBody != nil {
		body = *rec.ResponseBody
	}
	res := resultFromStored(status, body, true)
	if rec.PaymentID != nil {
		res.PaymentID = *rec.PaymentID
	}
	return res
}

// resultFromStored rebuilds a Result from stored response bytes, recovering
// the payment id for the Location header.
func resultFromStored(httpStatus int, body string, replayed bool) *Result {
	res := &Result{HTTPStatus: httpStatus, Body: body, Replayed: replayed}
	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err == nil {
		res.PaymentID = resp.PaymentID
	}
	return res
}
