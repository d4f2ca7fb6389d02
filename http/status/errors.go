package status

import "errors"

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

var (
	ErrCloseConnection = NewError(InternalServerError, "actively closing the connection")
	ErrShutdown        = errors.New("graceful shutdown")

	ErrBadRequest              = NewError(BadRequest, "bad request")
	ErrTooLongRequestLine      = NewError(BadRequest, "request line is too long")
	ErrBadChunk                = NewError(BadRequest, "malformed chunk-encoded data")
	ErrNotFound                = NewError(NotFound, "not found")
	ErrInternalServerError     = NewError(InternalServerError, "internal server error")
	ErrMethodNotImplemented    = NewError(NotImplemented, "request method is not supported")
	ErrBodyTooLarge            = NewError(RequestEntityTooLarge, "request body is too large")
	ErrHeaderFieldsTooLarge    = NewError(HeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders          = NewError(HeaderFieldsTooLarge, "too many headers")
	ErrURITooLong              = NewError(RequestURITooLong, "request URI too long")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrRequestTimeout          = NewError(RequestTimeout, "request timeout")
	ErrLengthRequired          = NewError(LengthRequired, "length required")
)

// BadMessage signals a malformed request, detected at parse time or during
// a failed write. The code is always within the 4xx-5xx range: anything
// outside is clamped to 400 by NewBadMessage.
type BadMessage struct {
	Reason string
	Cause  error
	Code   Code
}

// NewBadMessage builds a BadMessage, clamping out-of-range codes to 400.
func NewBadMessage(code Code, reason string, cause error) *BadMessage {
	if code < 400 || code > 599 {
		cause = &BadMessage{Code: code, Reason: reason, Cause: cause}
		code = BadRequest
	}

	return &BadMessage{
		Code:   code,
		Reason: reason,
		Cause:  cause,
	}
}

func (b *BadMessage) Error() string {
	if len(b.Reason) > 0 {
		return b.Reason
	}

	return string(Text(b.Code))
}

func (b *BadMessage) Unwrap() error {
	return b.Cause
}

// quiet wraps internal signal errors which must be suppressed from ordinary
// logging. It stays invisible to errors.Is/As lookups of the wrapped error's
// users via Unwrap.
type quiet struct {
	error
}

// Quiet marks an error as an internal signal not worth logging above debug.
func Quiet(err error) error {
	return quiet{err}
}

func (q quiet) Unwrap() error {
	return q.error
}

// IsQuiet reports whether any error in the chain was marked via Quiet.
func IsQuiet(err error) bool {
	for err != nil {
		if _, ok := err.(quiet); ok {
			return true
		}

		err = errors.Unwrap(err)
	}

	return false
}
