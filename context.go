package jobcue

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request ID (uuid.UUID), also sent as X-Request-ID
	RequestIDKey contextKey = "RequestID"
	// RequestTimeKey is the context key for the time (time.Time) the request entered the pipeline
	RequestTimeKey contextKey = "RequestTime"
	// ReplayKey is the context key for the queued entry ID (uuid.UUID) when the request is a replay
	ReplayKey contextKey = "Replay"
)

// ContextWithRequestID returns a new request with a request ID in the context
func ContextWithRequestID(req *http.Request, requestID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), RequestIDKey, requestID)
	return req.WithContext(ctx)
}

// RequestIDFromContext returns the request ID from the context if it exists
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey).(uuid.UUID)
	return id, ok
}

// ContextWithRequestTime returns a new request with the request time in the context
func ContextWithRequestTime(req *http.Request, requestTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), RequestTimeKey, requestTime)
	return req.WithContext(ctx)
}

// RequestTimeFromContext returns the request time from the context if it exists
func RequestTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(RequestTimeKey).(time.Time)
	return timestamp, ok
}

// ContextWithReplay marks ctx as carrying the replay of the queued entry id
func ContextWithReplay(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ReplayKey, id)
}

// ReplayFromContext returns the queued entry ID if the request is a replay
func ReplayFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ReplayKey).(uuid.UUID)
	return id, ok
}
