package channel

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/indigo-web/keel/config"
	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/http/method"
	"github.com/indigo-web/keel/http/proto"
	"github.com/indigo-web/keel/http/status"
	"github.com/indigo-web/keel/kv"
)

// Channel drives a single HTTP exchange on a connection. It is fed passively
// by the parser through the On* entry points and actively advances the
// request/response lifecycle by pulling actions from its state machine,
// possibly suspending and resuming over multiple Run invocations.
type Channel struct {
	conf      *config.Config
	endpoint  Endpoint
	transport Transport
	executor  Executor
	scheduler Scheduler
	server    Server

	errorHandler ErrorHandler
	combined     Listener
	transient    []Listener
	customizers  []Customizer

	state    *StateMachine
	input    InputPort
	queue    *ContentQueue
	output   *Output
	request  *http.Request
	response *http.Response

	committedMeta *http.ResponseMeta
	async         *AsyncContext

	requests       atomic.Int64
	oldIdleTimeout time.Duration

	readCallback  func()
	writeCallback func()

	// OnContinue is consulted when the application touches the body of a
	// request carrying Expect: 100-continue. Transport bindings override it;
	// the default refuses.
	OnContinue func(available int) error

	// PrepareUpgrade is consulted during completion. An implementation may
	// install an upgrade replacement connection and report false to let the
	// 101 go out through the normal completion path; it reports true only when
	// it scheduled an error response instead, which breaks out of completion.
	PrepareUpgrade func() bool

	debug bool
}

// Options wires a Channel to its collaborators. Endpoint, Transport and
// Server are mandatory; the rest defaults sensibly.
type Options struct {
	Config       *config.Config
	Endpoint     Endpoint
	Transport    Transport
	Executor     Executor
	Scheduler    Scheduler
	Server       Server
	ErrorHandler ErrorHandler
	Listener     Listener
	Customizers  []Customizer

	// Input overrides the default queue-backed input port with a
	// protocol-specific one.
	Input InputPort
	// OnDemand is installed into the default input port to request more
	// content from the transport.
	OnDemand func()
}

func New(opts Options) *Channel {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Executor == nil {
		opts.Executor = GoExecutor{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}

	ch := &Channel{
		conf:         opts.Config,
		endpoint:     opts.Endpoint,
		transport:    opts.Transport,
		executor:     opts.Executor,
		scheduler:    opts.Scheduler,
		server:       opts.Server,
		errorHandler: opts.ErrorHandler,
		combined:     opts.Listener,
		customizers:  opts.Customizers,
		state:        NewStateMachine(),
		request:      http.NewRequest(),
		response:     http.NewResponse(),
		debug:        opts.Config.Channel.Debug,
	}
	ch.output = newOutput(ch)

	if opts.Input != nil {
		ch.input = opts.Input
	} else {
		ch.queue = NewContentQueue(opts.OnDemand, ch.OnContentProducible)
		ch.input = ch.queue
	}

	ch.OnContinue = func(int) error { return ErrUnsupportedContinuation }

	return ch
}

func (ch *Channel) Request() *http.Request          { return ch.request }
func (ch *Channel) Response() *http.Response        { return ch.response }
func (ch *Channel) Output() *Output                 { return ch.output }
func (ch *Channel) Input() InputPort                { return ch.input }
func (ch *Channel) State() *StateMachine            { return ch.state }
func (ch *Channel) Endpoint() Endpoint              { return ch.endpoint }
func (ch *Channel) CommittedMeta() *http.ResponseMeta { return ch.committedMeta }

// BytesWritten returns bytes delivered to the transport after interception.
func (ch *Channel) BytesWritten() int64 { return ch.output.Written() }

// Requests returns the number of exchanges handled on this connection.
func (ch *Channel) Requests() int64 { return ch.requests.Load() }

func (ch *Channel) IsCommitted() bool  { return ch.state.IsResponseCommitted() }
func (ch *Channel) IsPersistent() bool { return ch.endpoint.IsOpen() }

// SetReadCallback registers the notification invoked by ActionReadCallback.
func (ch *Channel) SetReadCallback(fn func()) { ch.readCallback = fn }

// SetWriteCallback registers the notification invoked by ActionWriteCallback.
func (ch *Channel) SetWriteCallback(fn func()) { ch.writeCallback = fn }

// AddListener registers a transient per-exchange listener. The list is
// bounded; registrations above the cap are refused.
//
// Deprecated: register a combined listener through Options.Listener instead.
func (ch *Channel) AddListener(l Listener) bool {
	if len(ch.transient) >= ch.conf.Channel.MaxTransientListeners {
		return false
	}

	ch.transient = append(ch.transient, l)
	return true
}

// Run advances the channel loop for one scheduling quantum.
func (ch *Channel) Run() {
	ch.Handle()
}

// Handle pulls actions from the state machine and executes them until the
// exchange suspends or terminates. True is returned if the channel is not
// suspended.
func (ch *Channel) Handle() bool {
	action, err := ch.state.Handling()
	if err != nil {
		if ch.debug {
			log.Printf("debug: handle refused: %v", err)
		}
		return false
	}

loop:
	for !ch.server.Stopped() {
		if ch.debug {
			log.Printf("debug: action %s state=%s", action, ch.state)
		}

		switch action {
		case ActionTerminated:
			ch.OnCompleted()
			break loop

		case ActionWait:
			// resumption is external: content arrival, write completion,
			// async dispatch or timeout
			break loop

		default:
			if err := ch.executeAction(action); err != nil {
				ch.handleException(err)
			}
		}

		action = ch.state.Unhandle()
	}

	return action != ActionWait
}

func (ch *Channel) executeAction(action Action) error {
	switch action {
	case ActionDispatch:
		if !ch.request.HasMeta() {
			return illegalState("dispatch without request metadata")
		}

		return ch.dispatch(http.DispatcherRequest, ch.dispatchRequest)

	case ActionAsyncDispatch:
		return ch.dispatch(http.DispatcherAsync, func() error {
			return ch.server.HandleAsync(ch)
		})

	case ActionAsyncTimeout:
		return ch.executeAsyncTimeout()

	case ActionAsyncError:
		return ch.state.TakeAsyncError()

	case ActionSendError:
		ch.executeSendError()
		return nil

	case ActionReadCallback:
		return protect(func() error {
			if ch.readCallback != nil {
				ch.readCallback()
			}
			return nil
		})

	case ActionWriteCallback:
		return protect(func() error {
			if ch.writeCallback != nil {
				ch.writeCallback()
			}
			return nil
		})

	case ActionComplete:
		return ch.executeComplete()

	default:
		return illegalState("unknown action " + action.String())
	}
}

func (ch *Channel) dispatchRequest() error {
	for _, c := range ch.customizers {
		if err := c.Customize(ch.request, ch.response); err != nil {
			return err
		}
		if ch.request.Handled() {
			return nil
		}
	}

	return ch.server.Handle(ch)
}

func (ch *Channel) dispatch(d http.Dispatcher, target func() error) error {
	ch.request.SetHandled(false)
	ch.output.reopen()
	ch.request.SetDispatcher(d)
	ch.notify().OnBeforeDispatch(ch.request)

	err := protect(target)
	if err != nil {
		ch.notify().OnDispatchFailure(ch.request, err)
	}

	ch.notify().OnAfterDispatch(ch.request)
	ch.request.SetDispatcher(http.DispatcherNone)

	return err
}

func (ch *Channel) executeAsyncTimeout() error {
	ctx := ch.async
	if ctx != nil {
		for _, fn := range ctx.onTimeout {
			listener := fn
			_ = protect(func() error {
				listener(ctx)
				return nil
			})
		}
	}

	if ch.state.AfterTimeout() {
		// nobody resolved the expiry: fall through to the error path
		return ErrAsyncTimeout
	}

	return nil
}

func (ch *Channel) executeSendError() {
	err := protect(ch.trySendError)
	if err == nil {
		return
	}

	if ch.debug {
		log.Printf("debug: could not perform error dispatch, aborting: %v", err)
	}

	if ch.state.IsResponseCommitted() {
		ch.Abort(err)
		return
	}

	// last resort: a minimal response; SendResponseAndComplete aborts on its
	// own failures
	ch.response.ResetContent()
	ch.SendResponseAndComplete()
}

func (ch *Channel) trySendError() error {
	// the response code and reason cannot be trusted at this point, as they
	// could have been modified after the error was scheduled
	ch.response.ResetContent()

	code, ok := ch.request.Attribute(http.AttrErrorStatusCode).(status.Code)
	if !ok || code == 0 {
		code = status.InternalServerError
	}
	ch.response.Code(code)

	// consume leftover content of the failed dispatch now: by COMPLETE the
	// response will already be committed
	ch.EnsureConsumeAllOrNotPersistent()

	if status.HasNoBody(code) || ch.errorHandler == nil || !ch.errorHandler.ErrorPageForMethod(ch.request.Method) {
		ch.SendResponseAndComplete()
		return nil
	}

	return ch.dispatch(http.DispatcherError, func() error {
		err := ch.errorHandler.Handle(ch, ch.request, ch.response)
		ch.request.SetHandled(true)
		return err
	})
}

func (ch *Channel) executeComplete() error {
	if !ch.state.IsResponseCommitted() {
		if !ch.request.Handled() && !ch.output.IsClosed() {
			// the request was not actually handled
			return ch.SendError(status.NotFound, "not handled")
		}

		// indicate Connection: close if we can't consume all
		if ch.response.StatusCode() >= 200 {
			ch.EnsureConsumeAllOrNotPersistent()
		}
	}

	// RFC 7230, section 3.3
	if !ch.request.IsHead() &&
		ch.response.StatusCode() != status.NotModified &&
		!ch.contentComplete() {
		if ch.sendErrorOrAbort("insufficient content written") {
			return nil
		}
	}

	// a sendError scheduled by the upgrade preparation also breaks out here
	if ch.checkAndPrepareUpgrade() {
		return nil
	}

	ch.output.CompleteOutput(func(err error) {
		ch.completed(err)
	})

	return nil
}

// contentComplete accounts buffered-but-unsent body in: CompleteOutput will
// still flush it.
func (ch *Channel) contentComplete() bool {
	written := ch.output.Written()
	if !ch.state.IsResponseCommitted() {
		written += int64(len(ch.response.Body()))
	}

	return ch.response.ContentComplete(written)
}

func (ch *Channel) checkAndPrepareUpgrade() bool {
	return ch.PrepareUpgrade != nil && ch.PrepareUpgrade()
}

// SendError schedules the generation of an error response. Legal only while
// the response is uncommitted.
func (ch *Channel) SendError(code status.Code, reason string) error {
	ch.request.SetAttribute(http.AttrErrorStatusCode, code)
	if len(reason) > 0 {
		ch.request.SetAttribute(http.AttrErrorCause, status.NewError(code, reason))
	}

	return ch.state.SendError()
}

// sendErrorOrAbort reports true if an error response was scheduled, false if
// the exchange had to be aborted instead.
func (ch *Channel) sendErrorOrAbort(message string) bool {
	if ch.state.IsResponseCommitted() {
		ch.Abort(errors.New(message))
		return false
	}

	if err := ch.SendError(status.InternalServerError, message); err != nil {
		ch.Abort(err)
		return false
	}

	return true
}

// handleException classifies and recovers a failure raised by action
// execution: quiet and shutdown failures are logged at debug, routine wire
// failures without a stack, everything else loudly. Committed exchanges are
// aborted; uncommitted ones go down the SEND_ERROR path.
func (ch *Channel) handleException(failure error) {
	switch {
	case status.IsQuiet(failure) || ch.server.Stopped():
		if ch.debug {
			log.Printf("debug: %s: %v", ch.request.Path, failure)
		}
	case noStack(failure) || errors.Is(failure, ErrAsyncTimeout):
		log.Printf("warning: handling %s failed: %v", ch.request.Path, failure)
	default:
		log.Printf("error: handling %s failed: %+v", ch.request.Path, failure)
	}

	ch.notify().OnRequestFailure(ch.request, failure)

	if ch.state.IsResponseCommitted() {
		ch.Abort(failure)
		return
	}

	ch.request.SetAttribute(http.AttrErrorStatusCode, errorStatus(failure))
	ch.request.SetAttribute(http.AttrErrorCause, failure)
	ch.state.SetAsyncError(failure)

	reschedule, err := ch.state.OnError()
	if err != nil {
		ch.Abort(failure)
		return
	}
	if reschedule {
		ch.execute()
	}
}

// EnsureConsumeAllOrNotPersistent makes the response framing honest about
// unread request content: if the input cannot be drained without blocking,
// HTTP/1.0 responses lose their keep-alive tokens and HTTP/1.1 responses
// gain Connection: close.
func (ch *Channel) EnsureConsumeAllOrNotPersistent() {
	switch ch.request.Proto {
	case proto.HTTP10:
		if ch.input.ConsumeAll() {
			return
		}

		ch.rewriteConnection(false)

	case proto.HTTP11:
		if ch.input.ConsumeAll() {
			return
		}

		ch.rewriteConnection(true)
	}
}

func (ch *Channel) rewriteConnection(ensureClose bool) {
	headers := ch.response.Headers()

	var tokens []string
	for _, value := range headers.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if len(token) == 0 || strings.EqualFold(token, "keep-alive") {
				continue
			}

			tokens = append(tokens, token)
		}
	}

	if ensureClose && !containsFold(tokens, "close") {
		tokens = append(tokens, "close")
	}

	if len(tokens) == 0 {
		headers.Remove("Connection")
		return
	}

	headers.Set("Connection", strings.Join(tokens, ", "))
}

func containsFold(tokens []string, want string) bool {
	for _, token := range tokens {
		if strings.EqualFold(token, want) {
			return true
		}
	}

	return false
}

// StartAsync suspends the exchange. Allowed only during an active dispatch.
func (ch *Channel) StartAsync() (*AsyncContext, error) {
	if err := ch.state.StartAsync(); err != nil {
		return nil, err
	}

	// a suspended request is by definition taken care of
	ch.request.SetHandled(true)

	ctx := &AsyncContext{ch: ch}
	ctx.SetTimeout(ch.conf.HTTP.AsyncTimeout)
	ch.async = ctx

	return ctx, nil
}

// Async returns the current async context, nil outside of a suspension.
func (ch *Channel) Async() *AsyncContext {
	return ch.async
}

// Write sends response content, committing on the first call. Non-blocking.
func (ch *Channel) Write(content []byte, last bool, cb Callback) {
	ch.output.Write(content, last, cb)
}

// sendResponse is the single committing point of the exchange: every write
// funnels through it. meta must be non-nil only when the caller pre-built
// the response head (bad message responses); otherwise it is snapshotted
// from the Response on the committing call.
func (ch *Channel) sendResponse(meta *http.ResponseMeta, content []byte, last bool, cb Callback) bool {
	committing := ch.state.CommitResponse()

	if ch.debug {
		log.Printf("debug: sendResponse meta=%v len=%d last=%t committing=%t",
			meta != nil, len(content), last, committing)
	}

	switch {
	case committing:
		// let listeners adjust the response before it freezes
		ch.notify().OnResponseBegin(ch.request)

		if meta == nil {
			meta = ch.response.Meta(ch.request.Proto)
		}
		ch.committedMeta = meta

		if status.IsInformational(meta.Code) {
			ch.transport.Send(ch.request, meta, nil, false, ch.send1xxCallback(cb))
		} else {
			ch.transport.Send(ch.request, meta, content, last, ch.sendCallback(cb, content, true, last))
		}

	case meta == nil:
		// an ordinary post-commit write
		ch.transport.Send(ch.request, nil, content, last, ch.sendCallback(cb, content, false, last))

	default:
		cb.Done(ErrCommitted)
	}

	return committing
}

// SendResponse sends and blocks until the transport confirms. Failures abort
// the exchange and propagate to the caller.
func (ch *Channel) SendResponse(meta *http.ResponseMeta, content []byte, last bool) error {
	done := make(chan error, 1)
	ch.sendResponse(meta, content, last, func(err error) { done <- err })

	if err := <-done; err != nil {
		if ch.debug {
			log.Printf("debug: unable to send response: %v", err)
		}
		ch.Abort(err)
		return err
	}

	return nil
}

// SendInformational emits a 1xx interim response without freezing the
// output: the final response commits later as usual.
func (ch *Channel) SendInformational(code status.Code, cb Callback) {
	meta := &http.ResponseMeta{
		Proto:         ch.request.Proto,
		Code:          code,
		Status:        status.Text(code),
		Headers:       kv.New(),
		ContentLength: 0,
	}

	ch.sendResponse(meta, nil, false, cb)
}

// SendResponseAndComplete commits whatever the response holds and completes
// the exchange once the write is confirmed.
func (ch *Channel) SendResponseAndComplete() {
	ch.request.SetHandled(true)
	ch.state.Completing()
	ch.output.markClosed()

	if err := protect(func() error {
		ch.sendResponse(nil, ch.response.Body(), true, func(err error) {
			ch.completed(err)
		})
		return nil
	}); err != nil {
		ch.Abort(err)
	}
}

func (ch *Channel) sendCallback(cb Callback, content []byte, commit, last bool) Callback {
	length := len(content)

	return func(err error) {
		if err == nil {
			ch.output.addWritten(length)

			if commit {
				ch.notify().OnResponseCommit(ch.request)
			}
			if length > 0 {
				ch.notify().OnResponseContent(ch.request, content)
			}
			if last && ch.state.CompleteResponse() {
				ch.notify().OnResponseEnd(ch.request)
			}

			cb.Done(nil)
			return
		}

		if ch.debug {
			log.Printf("debug: commit failed: %v", err)
		}

		var bad *status.BadMessage
		if errors.As(err, &bad) {
			// the response itself was unsendable: attempt a minimal 500,
			// then report the original failure and abort
			ch.transport.Send(ch.request, minimalErrorMeta(ch.request.Proto), nil, true, func(error) {
				ch.Abort(err)
				cb.Done(err)
			})
			return
		}

		ch.Abort(err)
		cb.Done(err)
	}
}

func (ch *Channel) send1xxCallback(cb Callback) Callback {
	return func(err error) {
		if err != nil {
			ch.Abort(err)
			cb.Done(err)
			return
		}

		if ch.state.PartialResponse() {
			cb.Done(nil)
		} else {
			cb.Done(illegalState("informational response after commit"))
		}
	}
}

func minimalErrorMeta(p proto.Proto) *http.ResponseMeta {
	return &http.ResponseMeta{
		Proto:         p,
		Code:          status.InternalServerError,
		Status:        status.Text(status.InternalServerError),
		Headers:       kv.New().Set("Connection", "close"),
		ContentLength: 0,
	}
}

// Continue100 is invoked by transport bindings when the application touches
// the body of a request carrying Expect: 100-continue.
func (ch *Channel) Continue100(available int) error {
	return ch.OnContinue(available)
}

// IsExpecting100Continue reports whether the request asked for an interim
// 100 before sending its body.
func (ch *Channel) IsExpecting100Continue() bool {
	return strings.EqualFold(ch.request.Headers.Value("Expect"), "100-continue")
}

// Abort terminally cancels the exchange: the response failure is announced
// once and the transport drops the connection. Idempotent, callable from any
// goroutine.
func (ch *Channel) Abort(err error) {
	if ch.state.AbortResponse() {
		ch.notify().OnResponseFailure(ch.request, err)
		ch.transport.Abort(err)
	}
}

//
// parser-driven entry points
//

// OnRequest installs the parsed request line and headers, starting the
// exchange.
func (ch *Channel) OnRequest(m method.Method, path string, p proto.Proto, headers *kv.Storage, contentLength int64) {
	ch.requests.Add(1)
	ch.request.SetTimestamp(time.Now())

	if ch.conf.HTTP.SendDateHeader && !ch.response.Headers().Has("Date") {
		ch.response.Headers().Add("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	idle := ch.conf.HTTP.RequestIdleTimeout
	ch.oldIdleTimeout = ch.endpoint.IdleTimeout()
	if idle >= 0 && idle != ch.oldIdleTimeout {
		ch.endpoint.SetIdleTimeout(idle)
	}

	ch.request.SetMeta(m, path, p, headers)
	ch.request.ContentLength = contentLength
	ch.request.Remote = ch.endpoint.RemoteAddr()

	ch.notify().OnRequestBegin(ch.request)

	if ch.debug {
		log.Printf("debug: request %s %s %s", m, path, p)
	}
}

// OnContent delivers a parsed request content chunk. Returns whether the
// channel loop was rescheduled to serve a pending application read.
func (ch *Channel) OnContent(chunk http.Chunk) bool {
	ch.notify().OnRequestContent(ch.request, chunk.Data)

	if ch.queue != nil {
		return ch.queue.Push(chunk)
	}

	return false
}

// OnContentComplete signals the end of request content, before trailers.
func (ch *Channel) OnContentComplete() {
	ch.notify().OnRequestContentEnd(ch.request)
}

// OnTrailers appends the parsed trailer section to the request.
func (ch *Channel) OnTrailers(trailers *kv.Storage) {
	ch.request.Trailers = trailers
	ch.notify().OnRequestTrailers(ch.request)
}

// OnRequestComplete marks the input EOF. Returns whether the channel needs
// rescheduling.
func (ch *Channel) OnRequestComplete() bool {
	result := ch.input.Eof()
	ch.notify().OnRequestEnd(ch.request)
	return result
}

// OnBadMessage recovers a parse-time failure: if the exchange can still be
// taken, a minimal synthetic response is sent and the exchange completed.
// Otherwise the failure is returned for the caller to handle.
func (ch *Channel) OnBadMessage(bad *status.BadMessage) error {
	ch.notify().OnRequestFailure(ch.request, bad)

	action, err := ch.state.Handling()
	if err != nil {
		ch.Abort(err)
		return bad
	}

	defer func() {
		if err := protect(func() error { ch.OnCompleted(); return nil }); err != nil {
			log.Printf("debug: unable to complete bad message: %v", err)
			ch.Abort(err)
		}
	}()

	if action == ActionDispatch {
		fields := kv.New()
		var content []byte
		if ch.errorHandler != nil {
			content = ch.errorHandler.BadMessageError(bad.Code, bad.Reason, fields)
		}

		meta := &http.ResponseMeta{
			Proto:         proto.HTTP11,
			Code:          bad.Code,
			Status:        status.Status(bad.Reason),
			Headers:       fields,
			ContentLength: int64(len(content)),
		}

		if err := ch.SendResponse(meta, content, true); err != nil && ch.debug {
			log.Printf("debug: unable to send bad message response: %v", err)
		}
	}

	return nil
}

// input-side entry points, delegating to the port

func (ch *Channel) NeedContent() bool            { return ch.input.NeedContent() }
func (ch *Channel) ProduceContent() http.Chunk   { return ch.input.ProduceContent() }
func (ch *Channel) Failed(err error) bool        { return ch.input.Failed(err) }
func (ch *Channel) FailAllContent(err error) bool { return ch.input.FailAllContent(err) }

// OnContentProducible wakes the loop for a pending application read.
// Returns whether the loop was rescheduled.
func (ch *Channel) OnContentProducible() bool {
	if ch.state.OnReadReady() {
		ch.execute()
		return true
	}

	return false
}

// OnWritePossible is its output twin, fired by transports with actual
// write backpressure.
func (ch *Channel) OnWritePossible() bool {
	if ch.state.OnWriteReady() {
		ch.execute()
		return true
	}

	return false
}

func (ch *Channel) completed(err error) {
	if ch.state.Completed(err) {
		ch.execute()
	}
}

// OnCompleted finishes the exchange: the endpoint idle timeout is restored,
// the final listener event fires and the transport is told to move on.
func (ch *Channel) OnCompleted() {
	if ch.debug {
		log.Printf("debug: completed %s written=%d", ch.request.Path, ch.BytesWritten())
	}

	idle := ch.conf.HTTP.RequestIdleTimeout
	if idle >= 0 && ch.endpoint.IdleTimeout() != ch.oldIdleTimeout {
		ch.endpoint.SetIdleTimeout(ch.oldIdleTimeout)
	}

	ch.notify().OnComplete(ch.request)
	ch.transport.OnCompleted()
}

// Recycle resets the channel for the next exchange on a persistent
// connection.
func (ch *Channel) Recycle() {
	if ch.async != nil {
		ch.async.stopTimer()
		ch.async = nil
	}

	ch.request.Reset()
	ch.response.Reset()
	ch.committedMeta = nil
	ch.oldIdleTimeout = 0
	ch.transient = ch.transient[:0]
	ch.readCallback = nil
	ch.writeCallback = nil
	ch.input.Recycle()
	ch.output.recycle()
	ch.state.Recycle()
}

func (ch *Channel) execute() {
	ch.executor.Execute(ch.Run)
}

// protect converts panics of the target into errors, so that application
// failures flow through the ordinary recovery path.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn()
}
