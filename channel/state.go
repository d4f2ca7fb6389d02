package channel

import (
	"sync"
)

// The per-exchange state vector. The request state tracks where the exchange
// is in its lifecycle, the async state tracks the servlet-style suspension
// protocol, the output state tracks the commit pipeline.
type (
	requestState uint8
	asyncState   uint8
	outputState  uint8
)

const (
	stateIdle requestState = iota
	stateDispatched
	stateAsyncWait
	stateCompleting
	stateCompleted
)

const (
	asyncNone asyncState = iota
	asyncStarted
	asyncDispatch
	asyncExpiring
	asyncExpired
	asyncComplete
	asyncErrored
)

const (
	outputOpen outputState = iota
	outputCommitted
	outputCompleted
	outputAborted
)

var requestStateNames = [...]string{
	stateIdle:       "IDLE",
	stateDispatched: "DISPATCHED",
	stateAsyncWait:  "ASYNC",
	stateCompleting: "COMPLETING",
	stateCompleted:  "COMPLETED",
}

// StateMachine arbitrates the next Action for a channel. It is the single
// synchronization point of the exchange: at most one goroutine advances the
// channel at a time, all the others only submit events here and possibly get
// told to reschedule the loop via the Executor.
type StateMachine struct {
	mu sync.Mutex

	request requestState
	async   asyncState
	output  outputState

	// handling is set while some goroutine owns the driver loop.
	handling bool
	// terminated is set once ActionTerminated was produced; nothing else may
	// be produced until Recycle.
	terminated bool

	sendError     bool
	asyncErr      error
	asyncErrReady bool
	timeoutFired  bool
	readReady     bool
	writeReady    bool

	completionErr error
}

func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// Handling is invoked when a goroutine (re-)enters processing of the
// exchange. It fails if the exchange is already held.
func (s *StateMachine) Handling() (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handling {
		return ActionWait, ErrHeld
	}
	if s.terminated {
		return ActionWait, illegalState("terminated")
	}

	s.handling = true
	action := s.nextAction()
	if action == ActionWait {
		s.handling = false
	}

	return action, nil
}

// Unhandle is invoked after an action completed; it yields the next one.
// ActionWait releases the exchange: resumption requires an external event.
func (s *StateMachine) Unhandle() Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.handling {
		return ActionWait
	}

	action := s.nextAction()
	if action == ActionWait {
		s.handling = false
	}

	return action
}

// nextAction must be called under the lock with the exchange held.
func (s *StateMachine) nextAction() Action {
	if s.terminated {
		return ActionWait
	}

	if s.request == stateCompleted {
		s.terminated = true
		s.handling = false
		return ActionTerminated
	}

	if s.sendError {
		s.sendError = false
		if s.output == outputOpen {
			s.request = stateDispatched
			return ActionSendError
		}
		// the response slipped out while the error was pending: nothing to
		// generate anymore, fall through to ordinary completion
	}

	if s.asyncErrReady {
		s.asyncErrReady = false
		s.request = stateDispatched
		return ActionAsyncError
	}

	if s.timeoutFired {
		s.timeoutFired = false
		s.async = asyncExpiring
		return ActionAsyncTimeout
	}

	if s.readReady {
		s.readReady = false
		return ActionReadCallback
	}

	if s.writeReady {
		s.writeReady = false
		return ActionWriteCallback
	}

	switch s.request {
	case stateIdle:
		s.request = stateDispatched
		return ActionDispatch

	case stateDispatched:
		switch s.async {
		case asyncStarted, asyncExpiring:
			s.request = stateAsyncWait
			return ActionWait
		case asyncDispatch:
			s.async = asyncNone
			return ActionAsyncDispatch
		default:
			s.async = asyncNone
			s.request = stateCompleting
			return ActionComplete
		}

	case stateAsyncWait:
		switch s.async {
		case asyncDispatch:
			s.async = asyncNone
			s.request = stateDispatched
			return ActionAsyncDispatch
		case asyncComplete:
			s.async = asyncNone
			s.request = stateCompleting
			return ActionComplete
		default:
			return ActionWait
		}

	case stateCompleting:
		return ActionWait

	default:
		return ActionWait
	}
}

// StartAsync suspends the exchange. Allowed only during an active dispatch.
func (s *StateMachine) StartAsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.handling || s.request != stateDispatched {
		return illegalState("startAsync outside of dispatch: " + requestStateNames[s.request])
	}
	if s.async != asyncNone && s.async != asyncExpiring {
		return illegalState("async already started")
	}

	s.async = asyncStarted
	return nil
}

// AsyncDispatch resumes a suspended exchange. Returns whether the channel
// loop must be rescheduled.
func (s *StateMachine) AsyncDispatch() (reschedule bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.async {
	case asyncStarted, asyncExpiring, asyncErrored:
		s.async = asyncDispatch
		return !s.handling, nil
	default:
		return false, illegalState("dispatch without startAsync")
	}
}

// AsyncComplete finishes a suspended exchange without a further dispatch.
func (s *StateMachine) AsyncComplete() (reschedule bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.async {
	case asyncStarted, asyncExpiring, asyncExpired, asyncErrored:
		s.async = asyncComplete
		return !s.handling, nil
	default:
		return false, illegalState("complete without startAsync")
	}
}

// OnTimeoutFired records the expiry of the async timer. The delivery is
// cooperative: an ActionAsyncTimeout is produced, it never preempts an
// active dispatch.
func (s *StateMachine) OnTimeoutFired() (reschedule bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.async != asyncStarted {
		return false
	}

	s.timeoutFired = true
	return !s.handling
}

// AfterTimeout is consulted once the timeout listeners returned. True means
// none of them resolved the exchange and the error path must follow.
func (s *StateMachine) AfterTimeout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.async != asyncExpiring {
		return false
	}

	s.async = asyncExpired
	return true
}

// OnError schedules the error path for the failure. While suspended, the
// failure is delivered through ActionAsyncError; otherwise a SendError
// action follows. Fails once the response is committed or the exchange is
// past recovery: the caller must abort then.
func (s *StateMachine) OnError() (reschedule bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != outputOpen {
		return false, illegalState("response committed")
	}
	if s.sendError || s.request == stateCompleted || s.request == stateCompleting || s.terminated {
		return false, illegalState("error already pending or exchange done")
	}

	if s.request == stateAsyncWait && (s.async == asyncStarted || s.async == asyncExpiring) {
		s.async = asyncErrored
		s.asyncErrReady = true
	} else {
		s.sendError = true
	}

	return !s.handling, nil
}

// SetAsyncError stores the captured throwable delivered by ActionAsyncError.
func (s *StateMachine) SetAsyncError(err error) {
	s.mu.Lock()
	s.asyncErr = err
	s.mu.Unlock()
}

// TakeAsyncError returns and clears the captured async failure.
func (s *StateMachine) TakeAsyncError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.asyncErr
	s.asyncErr = nil
	return err
}

// SendError schedules an ActionSendError. Legal only while uncommitted.
func (s *StateMachine) SendError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != outputOpen {
		return illegalState("response committed")
	}

	s.sendError = true
	return nil
}

// IsSendError reports whether an error response generation is pending.
func (s *StateMachine) IsSendError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendError
}

// OnReadReady records input readiness. Returns whether to reschedule.
func (s *StateMachine) OnReadReady() (reschedule bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readReady = true
	return !s.handling && !s.terminated
}

// OnWriteReady records output readiness. Returns whether to reschedule.
func (s *StateMachine) OnWriteReady() (reschedule bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeReady = true
	return !s.handling && !s.terminated
}

// CommitResponse atomically transitions the output to committed. True is
// returned exactly once per exchange, on the transition.
func (s *StateMachine) CommitResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != outputOpen {
		return false
	}

	s.output = outputCommitted
	return true
}

// PartialResponse reverts an informational commit, reopening the output so
// the final response can commit later.
func (s *StateMachine) PartialResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != outputCommitted {
		return false
	}

	s.output = outputOpen
	return true
}

// CompleteResponse transitions committed output to completed.
func (s *StateMachine) CompleteResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != outputCommitted {
		return false
	}

	s.output = outputCompleted
	return true
}

// AbortResponse transitions the output to aborted, from any state. True on
// the transition, false if it was aborted already.
func (s *StateMachine) AbortResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output == outputAborted {
		return false
	}

	s.output = outputAborted
	return true
}

// Completing marks the exchange as finishing its output, so that the driver
// stops producing Complete actions for it.
func (s *StateMachine) Completing() {
	s.mu.Lock()
	s.request = stateCompleting
	s.mu.Unlock()
}

// Completed records the completion of the output side. The next action the
// machine produces is ActionTerminated. Returns whether to reschedule.
func (s *StateMachine) Completed(err error) (reschedule bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completionErr = err
	s.request = stateCompleted
	return !s.handling && !s.terminated
}

func (s *StateMachine) CompletionErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completionErr
}

func (s *StateMachine) IsResponseCommitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output != outputOpen
}

func (s *StateMachine) IsResponseCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output == outputCompleted
}

func (s *StateMachine) IsAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output == outputAborted
}

func (s *StateMachine) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request == stateCompleted
}

func (s *StateMachine) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request == stateIdle
}

func (s *StateMachine) IsAsyncStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.async != asyncNone
}

// Recycle resets the machine for the next exchange on the connection.
func (s *StateMachine) Recycle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.request = stateIdle
	s.async = asyncNone
	s.output = outputOpen
	s.handling = false
	s.terminated = false
	s.sendError = false
	s.asyncErr = nil
	s.asyncErrReady = false
	s.timeoutFired = false
	s.readReady = false
	s.writeReady = false
	s.completionErr = nil
}

func (s *StateMachine) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return requestStateNames[s.request]
}
