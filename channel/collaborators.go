package channel

import (
	"net"
	"time"

	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/http/method"
	"github.com/indigo-web/keel/http/status"
	"github.com/indigo-web/keel/kv"
)

// Callback completes a non-blocking operation. A nil error means success.
// Nil callbacks are legal and simply dropped.
type Callback func(err error)

func (c Callback) Done(err error) {
	if c != nil {
		c(err)
	}
}

// Transport is the wire side of the exchange: it renders and ships response
// frames. meta is non-nil only on the committing call.
type Transport interface {
	Send(request *http.Request, meta *http.ResponseMeta, content []byte, last bool, cb Callback)
	Abort(err error)
	OnCompleted()
}

// Endpoint abstracts the underlying socket.
type Endpoint interface {
	IdleTimeout() time.Duration
	SetIdleTimeout(d time.Duration)
	IsOpen() bool
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	// Connection exposes the raw connection, nil for synthetic endpoints.
	Connection() net.Conn
}

// Executor reschedules the channel loop on some other goroutine.
type Executor interface {
	Execute(task func())
}

// GoExecutor runs every task on a fresh goroutine.
type GoExecutor struct{}

func (GoExecutor) Execute(task func()) {
	go task()
}

// Scheduler arranges one-shot timers for async timeouts. The returned cancel
// is idempotent.
type Scheduler interface {
	Schedule(d time.Duration, task func()) (cancel func())
}

// TimerScheduler is the stdlib-timer backed Scheduler.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, task func()) (cancel func()) {
	t := time.AfterFunc(d, task)
	return func() { t.Stop() }
}

// Server is the application entry point. Handle is invoked for ordinary
// dispatches, HandleAsync for async resumptions. Stopped gates the driver
// loop during shutdown.
type Server interface {
	Handle(ch *Channel) error
	HandleAsync(ch *Channel) error
	Stopped() bool
}

// ServerFunc adapts a plain handler function to Server.
type ServerFunc func(ch *Channel) error

func (f ServerFunc) Handle(ch *Channel) error      { return f(ch) }
func (f ServerFunc) HandleAsync(ch *Channel) error { return f(ch) }
func (f ServerFunc) Stopped() bool                 { return false }

// ErrorHandler renders error pages. It is optional: absent one, the channel
// sends minimal responses.
type ErrorHandler interface {
	// ErrorPageForMethod reports whether the method deserves an error page body.
	ErrorPageForMethod(m method.Method) bool
	// Handle runs the error page dispatch. The response status is already set.
	Handle(ch *Channel, request *http.Request, response *http.Response) error
	// BadMessageError renders a minimal body for parse-time failures. May
	// append headers (e.g. Content-Type) to outHeaders.
	BadMessageError(code status.Code, reason string, outHeaders *kv.Storage) []byte
}

// Customizer inspects or adjusts the exchange before the handler runs. A
// customizer that marks the request handled short-circuits the dispatch.
type Customizer interface {
	Customize(request *http.Request, response *http.Response) error
}

// CustomizerFunc adapts a function to Customizer.
type CustomizerFunc func(request *http.Request, response *http.Response) error

func (f CustomizerFunc) Customize(request *http.Request, response *http.Response) error {
	return f(request, response)
}
