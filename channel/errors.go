package channel

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/indigo-web/keel/http/status"
)

var (
	// ErrCommitted is reported to write callbacks racing a commit carrying
	// response metadata against an already committed response.
	ErrCommitted = errors.New("committed")
	// ErrHeld reports that another goroutine already holds the exchange.
	ErrHeld = errors.New("illegal state: channel is already being handled")
	// ErrAsyncTimeout is the cause recorded when an async context expires
	// without being resolved by its listeners.
	ErrAsyncTimeout = errors.New("async context timeout")
	// ErrUnsupportedContinuation is returned by the default Continue100 hook.
	ErrUnsupportedContinuation = errors.New("100-continue is not supported by this transport")
)

// IllegalStateError reports a state machine transition requested from a
// state that does not permit it.
type IllegalStateError struct {
	State string
}

func (e *IllegalStateError) Error() string {
	return "illegal state: " + e.State
}

func illegalState(state string) error {
	return &IllegalStateError{State: state}
}

// noStack reports failures which are routine enough to be logged without a
// stack trace: malformed requests, socket-level errors and timeouts.
func noStack(err error) bool {
	var (
		bad     *status.BadMessage
		netErr  net.Error
		opErr   *net.OpError
		pathErr *os.PathError
	)

	switch {
	case errors.As(err, &bad):
		return true
	case errors.As(err, &netErr), errors.As(err, &opErr), errors.As(err, &pathErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe):
		return true
	case errors.Is(err, os.ErrDeadlineExceeded):
		return true
	}

	return false
}

// errorStatus picks the response status an error dispatch should produce
// for the failure, defaulting to 500.
func errorStatus(err error) status.Code {
	var (
		httpErr status.HTTPError
		bad     *status.BadMessage
	)

	switch {
	case errors.As(err, &bad):
		return bad.Code
	case errors.As(err, &httpErr):
		return httpErr.Code
	}

	return status.InternalServerError
}
