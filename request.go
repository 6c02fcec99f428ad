package jobcue

import (
	"net/http"

	"github.com/MODJayden/jobcue/domain"
)

// RequestSpec describes a call against the API. Path is relative to the
// configured base URL and may carry a query string.
type RequestSpec struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is a fully read server response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Status is the outcome of Execute when no error is returned.
type Status int

const (
	// StatusSucceeded means the server answered 2xx.
	StatusSucceeded Status = iota
	// StatusQueued means the request was persisted for a later replay.
	StatusQueued
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Result is returned by Execute. Response is set for StatusSucceeded and
// Queued for StatusQueued.
type Result struct {
	Status   Status
	Response *Response
	Queued   *domain.QueuedRequest
}
