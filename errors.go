package jobcue

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConnectivity is returned when a request that cannot be deferred is
	// issued while the network is unreachable. The queue is left untouched.
	ErrNoConnectivity = errors.New("no connectivity")

	// ErrAuthExpired is returned when the server answers 401. The stored
	// credential has already been cleared when the caller sees it.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrTransport wraps failures to obtain any response from the server
	ErrTransport = errors.New("transport failure")

	// ErrIncompleteResponse is returned when the server answered but its body
	// could not be read or decoded. The request is never deferred since the
	// server has already handled it.
	ErrIncompleteResponse = errors.New("incomplete response")

	// ErrDrainInProgress is returned by Drain when another drain is running
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrInvalidRequest is returned when a RequestSpec cannot be turned into an HTTP request
	ErrInvalidRequest = errors.New("invalid request")
)

// StatusError is returned for non-2xx responses other than 401.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
