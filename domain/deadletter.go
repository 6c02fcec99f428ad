package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DropReason describes why the drainer discarded a queued request.
type DropReason string

const (
	// DropExpired marks an entry that outlived the queue age ceiling.
	DropExpired DropReason = "expired"
	// DropRetriesExhausted marks an entry that failed its last allowed replay.
	DropRetriesExhausted DropReason = "retries_exhausted"
)

// DeadLetterRepository records queued requests that were dropped without being delivered.
// It is optional: stores that do not implement it simply lose dropped entries.
type DeadLetterRepository interface {
	// InsertDeadLetter saves a record of a dropped entry.
	InsertDeadLetter(ctx context.Context, letter *DeadLetter) error
	// GetDeadLetters returns all recorded entries, oldest first.
	GetDeadLetters(ctx context.Context) ([]*DeadLetter, error)
}

// DeadLetter is the record of a queued request the drainer gave up on.
type DeadLetter struct {
	ID             uuid.UUID  // Identifier of the original queued request.
	Method         string     // HTTP method of the original request.
	Path           string     // Target path of the original request.
	IdempotencyKey string     // Idempotency key the request was sent with.
	RetryCount     int        // Failed replays before the entry was dropped.
	Reason         DropReason // Why the entry was dropped.
	EnqueuedAt     time.Time  // When the request was deferred.
	DroppedAt      time.Time  // When the drainer dropped it.
}

// NewDeadLetter builds the record for req dropped at droppedAt.
func NewDeadLetter(req QueuedRequest, reason DropReason, droppedAt time.Time) *DeadLetter {
	return &DeadLetter{
		ID:             req.ID,
		Method:         req.Method,
		Path:           req.Path,
		IdempotencyKey: req.IdempotencyKey,
		RetryCount:     req.RetryCount,
		Reason:         reason,
		EnqueuedAt:     req.EnqueuedAt,
		DroppedAt:      droppedAt,
	}
}
