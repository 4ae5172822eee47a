package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/screener/client"
)

// EmptyQueryMessage is the inline message shown for a blank submission.
const EmptyQueryMessage = "Please enter a question about a stock."

// UnreachableMessage is shown when the service could not be reached and
// no better explanation is available.
const UnreachableMessage = "could not reach the analysis service"

// ErrSuperseded is returned by Submit when a newer submission (or a recall)
// replaced the request before its response arrived. The response is
// discarded without any state change.
var ErrSuperseded = errors.New("query: superseded by a newer submission")

// ValidationError rejects a submission before any request is issued.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TransportError is a user-visible request failure: a network error, a
// non-2xx response, or an explicit error reported inside the payload.
type TransportError struct {
	// Status is the HTTP status, or 0 when no response was received or the
	// failure was reported in a successful response body.
	Status int
	// Message is the text shown to the user.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *TransportError) Error() string { return e.Message }

func (e *TransportError) Unwrap() error { return e.Err }

// Failure kinds, used as metric buckets.
const (
	kindHTTPStatus   = "http_status"
	kindTimeout      = "timeout"
	kindCanceled     = "canceled"
	kindNetwork      = "network"
	kindPayloadError = "payload_error"
)

// classify maps a service error to the user-visible TransportError and its
// failure kind.
func classify(err error) (*TransportError, string) {
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.Detail
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", statusErr.Code)
		}
		return &TransportError{Status: statusErr.Code, Message: msg, Err: err}, kindHTTPStatus
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Message: "the analysis service did not respond in time", Err: err}, kindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &TransportError{Message: "request canceled", Err: err}, kindCanceled
	}
	return &TransportError{Message: UnreachableMessage, Err: err}, kindNetwork
}
