package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

// Client errors.
var (
	ErrBroadcastRejected = errors.New("broadcast rejected")
	// ErrNotSent marks a broadcast that never reached the node: the
	// breaker refused it, the client was closed or the indexer rate
	// limited it. The transaction was not relayed.
	ErrNotSent = errors.New("broadcast not sent")
	ErrClientClosed      = errors.New("indexer client closed")
	ErrMalformedResponse = errors.New("malformed indexer response")
)

// APIError is returned when the indexer answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("indexer returned status %d: %s", e.StatusCode, e.Message)
}

// BroadcastError carries the remote detail of a rejected broadcast.
type BroadcastError struct {
	StatusCode int
	Detail     string
}

func (e *BroadcastError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("broadcast rejected: %s", e.Detail)
	}
	return fmt.Sprintf("broadcast rejected (status %d): %s", e.StatusCode, e.Detail)
}

// Unwrap makes errors.Is(err, ErrBroadcastRejected) hold.
func (e *BroadcastError) Unwrap() error { return ErrBroadcastRejected }

// IsTransient reports whether err is a failure that may clear up on its
// own: timeouts, rate limiting, server errors or an open circuit breaker.
// A rejected broadcast is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrBroadcastRejected) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var transportErr *transportError
	return errors.As(err, &transportErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// transportError marks a request that never produced an HTTP response.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
