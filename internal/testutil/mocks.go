package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/charge-gateway/internal/application/charge"
	domainErrors "github.com/cassiomorais/charge-gateway/internal/domain/errors"
	"github.com/cassiomorais/charge-gateway/internal/domain/idempotency"
	"github.com/cassiomorais/charge-gateway/internal/domain/outbox"
	"github.com/cassiomorais/charge-gateway/internal/domain/payment"
	"github.com/google/uuid"
)

// --- Transaction Manager Mock ---

// MockTransactionManager runs the function without a real transaction.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Advisory Locker Mock ---

// MockAdvisoryLocker records lock acquisitions.
type MockAdvisoryLocker struct {
	mu       sync.Mutex
	acquired []string

	LockFunc func(ctx context.Context, scope, key string) error
}

func NewMockAdvisoryLocker() *MockAdvisoryLocker {
	return &MockAdvisoryLocker{}
}

func (m *MockAdvisoryLocker) Lock(ctx context.Context, scope, key string) error {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, scope, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired = append(m.acquired, scope+"|"+key)
	return nil
}

func (m *MockAdvisoryLocker) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquired...)
}

// --- Idempotency Repository Mock ---

// MockIdempotencyRepository is an in-memory idempotency.Repository.
type MockIdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record

	FindForUpdateFunc    func(ctx context.Context, scope, key string) (*idempotency.Record, error)
	InsertInProgressFunc func(ctx context.Context, rec *idempotency.Record) error
	MarkCompletedFunc    func(ctx context.Context, id uuid.UUID, httpStatus int, responseBody, paymentID string) error
	TouchFunc            func(ctx context.Context, id uuid.UUID) error
}

func NewMockIdempotencyRepository() *MockIdempotencyRepository {
	return &MockIdempotencyRepository{records: make(map[string]*idempotency.Record)}
}

func recKey(scope, key string) string { return scope + "|" + key }

func (m *MockIdempotencyRepository) FindForUpdate(ctx context.Context, scope, key string) (*idempotency.Record, error) {
	if m.FindForUpdateFunc != nil {
		return m.FindForUpdateFunc(ctx, scope, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(scope, key)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MockIdempotencyRepository) InsertInProgress(ctx context.Context, rec *idempotency.Record) error {
	if m.InsertInProgressFunc != nil {
		return m.InsertInProgressFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recKey(rec.Scope, rec.IdempotencyKey)
	if _, exists := m.records[k]; exists {
		return domainErrors.ErrDuplicateIdempotencyKey
	}
	cp := *rec
	m.records[k] = &cp
	return nil
}

func (m *MockIdempotencyRepository) MarkCompleted(ctx context.Context, id uuid.UUID, httpStatus int, responseBody, paymentID string) error {
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(ctx, id, httpStatus, responseBody, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Complete(httpStatus, responseBody, paymentID)
			return nil
		}
	}
	return nil
}

func (m *MockIdempotencyRepository) Touch(ctx context.Context, id uuid.UUID) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			rec.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

// Add seeds a record, bypassing insert semantics.
func (m *MockIdempotencyRepository) Add(rec *idempotency.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recKey(rec.Scope, rec.IdempotencyKey)] = rec
}

// Get returns the stored record, or nil.
func (m *MockIdempotencyRepository) Get(scope, key string) *idempotency.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[recKey(scope, key)]
}

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment
	byKey    map[string]*payment.Payment

	CreateFunc               func(ctx context.Context, p *payment.Payment) error
	GetByIDFunc              func(ctx context.Context, id string) (*payment.Payment, error)
	FindByIdempotencyKeyFunc func(ctx context.Context, key string) (*payment.Payment, error)
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*payment.Payment),
		byKey:    make(map[string]*payment.Payment),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[p.IdempotencyKey]; exists {
		return domainErrors.ErrDuplicateIdempotencyKey
	}
	m.payments[p.ID] = p
	m.byKey[p.IdempotencyKey] = p
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return p, nil
}

func (m *MockPaymentRepository) FindByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	if m.FindByIdempotencyKeyFunc != nil {
		return m.FindByIdempotencyKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (m *MockPaymentRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*payment.Payment
	for _, p := range m.payments {
		if p.CustomerID == customerID {
			result = append(result, p)
		}
	}
	return result, nil
}

// Count returns the number of stored payments.
func (m *MockPaymentRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is an in-memory outbox.Repository.
type MockOutboxRepository struct {
	mu     sync.Mutex
	events []*outbox.Event

	InsertFunc     func(ctx context.Context, e *outbox.Event) error
	ClaimBatchFunc func(ctx context.Context, statuses []outbox.Status, now time.Time, limit int) ([]*outbox.Event, error)
	UpdateFunc     func(ctx context.Context, e *outbox.Event) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, e *outbox.Event) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MockOutboxRepository) ClaimBatch(ctx context.Context, statuses []outbox.Status, now time.Time, limit int) ([]*outbox.Event, error) {
	if m.ClaimBatchFunc != nil {
		return m.ClaimBatchFunc(ctx, statuses, now, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed := make(map[outbox.Status]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var batch []*outbox.Event
	for _, e := range m.events {
		if len(batch) >= limit {
			break
		}
		if !allowed[e.Status] {
			continue
		}
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			continue
		}
		batch = append(batch, e)
	}
	return batch, nil
}

func (m *MockOutboxRepository) Update(ctx context.Context, e *outbox.Event) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, e)
	}
	return nil
}

// Events returns the stored events.
func (m *MockOutboxRepository) Events() []*outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Event(nil), m.events...)
}

// --- Response Cache Mock ---

// MockResponseCache is an in-memory charge.ResponseCache.
type MockResponseCache struct {
	mu      sync.Mutex
	entries map[string]charge.CachedResponse

	GetFunc func(ctx context.Context, scope, key string) (*charge.CachedResponse, error)
	PutFunc func(ctx context.Context, scope, key string, resp charge.CachedResponse) error
}

func NewMockResponseCache() *MockResponseCache {
	return &MockResponseCache{entries: make(map[string]charge.CachedResponse)}
}

func (m *MockResponseCache) Get(ctx context.Context, scope, key string) (*charge.CachedResponse, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, scope, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.entries[scope+"|"+key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (m *MockResponseCache) Put(ctx context.Context, scope, key string, resp charge.CachedResponse) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, scope, key, resp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[scope+"|"+key] = resp
	return nil
}

// --- Publisher Mock ---

// PublishedMessage records one Publish call.
type PublishedMessage struct {
	Topic   string
	Key     string
	Payload []byte
}

// MockPublisher is an in-memory dispatch.Publisher.
type MockPublisher struct {
	mu       sync.Mutex
	messages []PublishedMessage

	PublishFunc func(ctx context.Context, topic, key string, payload []byte) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, topic, key, payload); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, PublishedMessage{Topic: topic, Key: key, Payload: payload})
	return nil
}

// Messages returns the recorded publishes.
func (m *MockPublisher) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.messages...)
}
