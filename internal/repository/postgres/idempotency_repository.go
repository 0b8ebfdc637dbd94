package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/charge-gateway/internal/domain/errors"
	"github.com/cassiomorais/charge-gateway/internal/domain/idempotency"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// IdempotencyRepository implements idempotency.Repository using PostgreSQL.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository creates a new IdempotencyRepository.
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// FindForUpdate returns the record for (scope, key) locked FOR UPDATE, or nil.
func (r *IdempotencyRepository) FindForUpdate(ctx context.Context, scope, key string) (*idempotency.Record, error) {
	rec := &idempotency.Record{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, scope, idempotency_key, request_hash, status, http_status, response_body, payment_id, created_at, updated_at
		 FROM idempotency_records
		 WHERE scope = $1 AND idempotency_key = $2
		 FOR UPDATE`, scope, key,
	).Scan(&rec.ID, &rec.Scope, &rec.IdempotencyKey, &rec.RequestHash, &status,
		&rec.HTTPStatus, &rec.ResponseBody, &rec.PaymentID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find idempotency record for update: %w", err)
	}
	rec.Status = idempotency.Status(status)
	return rec, nil
}

// InsertInProgress persists a new IN_PROGRESS record.
func (r *IdempotencyRepository) InsertInProgress(ctx context.Context, rec *idempotency.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_records
		 (id, scope, idempotency_key, request_hash, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Scope, rec.IdempotencyKey, rec.RequestHash, string(rec.Status), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domainErrors.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// MarkCompleted transitions IN_PROGRESS -> COMPLETED storing the response.
// Idempotent on the same completion values.
func (r *IdempotencyRepository) MarkCompleted(ctx context.Context, id uuid.UUID, httpStatus int, responseBody, paymentID string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE idempotency_records
		 SET status = $1, http_status = $2, response_body = $3, payment_id = $4, updated_at = $5
		 WHERE id = $6`,
		string(idempotency.StatusCompleted), httpStatus, responseBody, paymentID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark idempotency record completed: %w", err)
	}
	return nil
}

// Touch updates updated_at only, refreshing the staleness clock.
func (r *IdempotencyRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE idempotency_records SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touch idempotency record: %w", err)
	}
	return nil
}
