package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker serializes work for a (scope, key) pair using Postgres
// transaction-scoped advisory locks.
//
// Row locks only work after a row exists; during the first request for a
// given idempotency key, concurrent requests could race to INSERT. The
// advisory lock serializes them in the pre-row window. Locks are released
// automatically when the enclosing transaction ends.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLocker creates a new AdvisoryLocker.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

// Lock acquires a transaction-scoped advisory lock for (scope, key). It must
// run inside a transaction started by TxManager; pg_advisory_xact_lock taken
// on a bare pool connection is released as soon as that single statement's
// implicit transaction ends, so it would serialize nothing. Blocks until the lock
// is granted; re-acquiring within the same transaction is a no-op.
func (l *AdvisoryLocker) Lock(ctx context.Context, scope, key string) error {
	id := LockID(scope, key)
	if _, err := ConnFromCtx(ctx, l.pool).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, id); err != nil {
		return fmt.Errorf("acquire advisory lock for %s|%s: %w", scope, key, err)
	}
	return nil
}

// LockID derives the 64-bit advisory lock id for (scope, key): the first
// 8 bytes of SHA-256(scope || "|" || key) interpreted as a signed integer.
func LockID(scope, key string) int64 {
	sum := sha256.Sum256([]byte(scope + "|" + key))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
