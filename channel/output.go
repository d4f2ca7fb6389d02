package channel

import (
	"sync/atomic"
)

// Output is the commit/send side of the exchange. All writes funnel into
// Channel.sendResponse, which owns the commit protocol; Output tracks the
// open/closed status and the post-interception byte accounting.
type Output struct {
	ch *Channel

	// written counts bytes confirmed by the transport after successful write
	// completion. Updated on the completion goroutine, read by anyone.
	written atomic.Int64

	closed atomic.Bool
}

func newOutput(ch *Channel) *Output {
	return &Output{ch: ch}
}

// Write sends a content chunk, committing the response on the first call.
// Non-blocking: cb fires once the transport confirmed or refused the write.
func (o *Output) Write(content []byte, last bool, cb Callback) {
	if last {
		o.closed.Store(true)
	}

	o.ch.sendResponse(nil, content, last, cb)
}

// CompleteOutput closes the output. If nothing was written yet, the buffered
// response body (possibly empty) is committed as the whole content.
func (o *Output) CompleteOutput(cb Callback) {
	if o.closed.Swap(true) {
		// already closed by a last write; nothing more to send
		if o.ch.state.CompleteResponse() {
			o.ch.notify().OnResponseEnd(o.ch.request)
		}
		cb.Done(nil)
		return
	}

	o.ch.sendResponse(nil, o.ch.response.Body(), true, cb)
}

// ResetContent discards buffered content. Legal only while the response is
// still open.
func (o *Output) ResetContent() error {
	if o.ch.state.IsResponseCommitted() {
		return illegalState("committed")
	}

	o.ch.response.ResetContent()
	return nil
}

// Written returns bytes confirmed written, post-interception.
func (o *Output) Written() int64 {
	return o.written.Load()
}

func (o *Output) addWritten(n int) {
	o.written.Add(int64(n))
}

// IsClosed reports whether the output was closed by a last write or by
// CompleteOutput.
func (o *Output) IsClosed() bool {
	return o.closed.Load()
}

func (o *Output) markClosed() {
	o.closed.Store(true)
}

// reopen resets the closed status ahead of a dispatch, letting error pages
// write after a failed handler closed the stream.
func (o *Output) reopen() {
	o.closed.Store(false)
}

func (o *Output) recycle() {
	o.written.Store(0)
	o.closed.Store(false)
}
