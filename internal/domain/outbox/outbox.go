package outbox

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Status represents the delivery state of an outbox event.
type Status string

const (
	StatusNew   Status = "NEW"
	StatusRetry Status = "RETRY"
	StatusSent  Status = "SENT"
	StatusDead  Status = "DEAD"
)

// maxErrorLen bounds last_error, in characters, so a noisy broker cannot
// bloat the row.
const maxErrorLen = 2000

// Event is one pending delivery to the bus. Created in the same transaction
// as the business row it describes; terminal states (SENT, DEAD) are never
// re-attempted by the dispatcher.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	EventKey      string
	Payload       []byte
	Status        Status
	AttemptCount  int
	NextAttemptAt *time.Time
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SentAt        *time.Time
}

// NewEvent creates a NEW outbox event ready for insertion.
func NewEvent(aggregateType, aggregateID, eventType, eventKey string, payload []byte) *Event {
	now := time.Now().UTC()
	return &Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventKey:      eventKey,
		Payload:       payload,
		Status:        StatusNew,
		AttemptCount:  0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkSent records a successful, acknowledged publish.
func (e *Event) MarkSent() {
	now := time.Now().UTC()
	e.Status = StatusSent
	e.SentAt = &now
	e.NextAttemptAt = nil
	e.LastError = nil
	e.UpdatedAt = now
}

// MarkRetry records a failed publish and schedules the next attempt.
func (e *Event) MarkRetry(errMsg string, backoff time.Duration) {
	now := time.Now().UTC()
	next := now.Add(backoff)
	e.Status = StatusRetry
	e.AttemptCount++
	e.NextAttemptAt = &next
	msg := truncateError(errMsg)
	e.LastError = &msg
	e.UpdatedAt = now
}

// MarkDead moves the event to the terminal DEAD state after the retry budget
// is exhausted. Requires manual operator action to resurrect.
func (e *Event) MarkDead(errMsg string) {
	now := time.Now().UTC()
	e.Status = StatusDead
	e.AttemptCount++
	e.NextAttemptAt = nil
	msg := truncateError(errMsg)
	e.LastError = &msg
	e.UpdatedAt = now
}

func truncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}
	return string([]rune(msg)[:maxErrorLen])
}
