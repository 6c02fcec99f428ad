package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// QueueKey is the well-known storage key under which the ordered queue of
// QueuedRequest records is persisted.
const QueueKey = "queued_requests"

// QueueRepository persists the ordered sequence of deferred mutating requests.
// Implementations must survive process restarts and must not de-duplicate entries.
type QueueRepository interface {
	// Enqueue appends the request to the end of the queue.
	Enqueue(ctx context.Context, req QueuedRequest) error

	// All returns the queued requests in FIFO order.
	// An empty queue returns an empty slice and a nil error.
	All(ctx context.Context) ([]QueuedRequest, error)

	// ReplaceAll atomically replaces the queue content with reqs.
	// Readers never observe a partially written sequence.
	ReplaceAll(ctx context.Context, reqs []QueuedRequest) error
}

// QueuedRequest is a serializable record of one deferred mutating call.
type QueuedRequest struct {
	ID             uuid.UUID   `json:"id"`              // Unique identifier of the entry.
	Method         string      `json:"method"`          // One of POST, PUT, PATCH or DELETE.
	Path           string      `json:"path"`            // Target path relative to the API base URL, including any query.
	Header         http.Header `json:"headers"`         // Request headers, without credentials.
	Body           []byte      `json:"body,omitempty"`  // Request payload.
	IdempotencyKey string      `json:"idempotency_key"` // Sent as the Idempotency-Key header on every attempt.
	EnqueuedAt     time.Time   `json:"enqueued_at"`     // Time the entry was deferred.
	RetryCount     int         `json:"retry_count"`     // Number of failed replays so far.
}

// Expired reports whether the entry is older than maxAge at now.
func (q QueuedRequest) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.EnqueuedAt) > maxAge
}

// Clone returns a deep copy of the entry so callers can mutate it freely.
func (q QueuedRequest) Clone() QueuedRequest {
	clone := q
	clone.Header = q.Header.Clone()
	if q.Body != nil {
		clone.Body = append([]byte(nil), q.Body...)
	}
	return clone
}

// IsMutating reports whether method is intended to change server-side state.
// Any method that is not a pure read is mutating.
func IsMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}
