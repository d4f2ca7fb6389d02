package channel

import (
	"sync"

	"github.com/indigo-web/keel/http"
)

// InputPort is the capability set the channel requires from a
// protocol-specific input source. HTTP/1, HTTP/2 and HTTP/3 bindings each
// provide their own implementation; ContentQueue below is the shared
// queue-backed one.
type InputPort interface {
	// NeedContent reports whether a chunk is immediately available. If not,
	// more content is demanded from the transport and the producible
	// notification fires once some arrives.
	NeedContent() bool
	// ProduceContent returns the next available chunk without blocking, or a
	// zero chunk when none is ready. Once a special chunk was produced, all
	// subsequent calls produce the same special chunk.
	ProduceContent() http.Chunk
	// FailAllContent terminally fails the input, dropping queued chunks.
	// True is reported if EOF had already been seen, i.e. nothing more will
	// ever arrive.
	FailAllContent(err error) bool
	// Eof marks end-of-input. True is reported if the channel has to be
	// rescheduled because an application read was pending.
	Eof() bool
	// Failed fails the input. True is reported if the channel has to be
	// rescheduled.
	Failed(err error) bool
	// ConsumeAll drains remaining input without blocking. True iff EOF was
	// reached with no error.
	ConsumeAll() bool
	// Recycle resets the port for the next exchange.
	Recycle()
}

// ContentQueue bridges a parser which pushes content as it arrives and an
// application which pulls it on demand. Chunks are delivered in arrival
// order; a special terminal chunk is never reordered before earlier data.
type ContentQueue struct {
	mu sync.Mutex

	chunks  []http.Chunk
	special http.Chunk
	eofSeen bool

	// demand is set while the application waits for content. At most one
	// demand is outstanding: repeated NeedContent calls are idempotent.
	demand bool

	// onDemand asks the transport for more content. Optional.
	onDemand func()
	// producible wakes the channel when content arrives for a pending
	// demand. Returns whether the loop was rescheduled.
	producible func() bool
}

func NewContentQueue(onDemand func(), producible func() bool) *ContentQueue {
	return &ContentQueue{
		onDemand:   onDemand,
		producible: producible,
	}
}

// Bind installs the wake-up callbacks after construction, for ports whose
// channel does not exist yet at queue construction time.
func (q *ContentQueue) Bind(onDemand func(), producible func() bool) {
	q.mu.Lock()
	q.onDemand = onDemand
	q.producible = producible
	q.mu.Unlock()
}

func (q *ContentQueue) NeedContent() bool {
	q.mu.Lock()
	if q.available() {
		q.mu.Unlock()
		return true
	}
	if q.demand {
		q.mu.Unlock()
		return false
	}

	q.demand = true
	demand := q.onDemand
	q.mu.Unlock()

	if demand != nil {
		demand()
	}

	// the demand may have been satisfied synchronously
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.available() {
		q.demand = false
		return true
	}

	return false
}

func (q *ContentQueue) available() bool {
	return len(q.chunks) > 0 || q.special.Special()
}

func (q *ContentQueue) ProduceContent() http.Chunk {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) > 0 {
		chunk := q.chunks[0]
		q.chunks = q.chunks[1:]
		return chunk
	}

	return q.special
}

// Push enqueues a data chunk arrived from the parser. Returns whether the
// channel loop was rescheduled to serve a pending demand.
func (q *ContentQueue) Push(chunk http.Chunk) bool {
	q.mu.Lock()

	if q.special.Special() {
		// terminal state reached: late data is dropped
		q.mu.Unlock()
		return false
	}

	q.chunks = append(q.chunks, chunk)
	return q.wakeLocked()
}

func (q *ContentQueue) Eof() bool {
	q.mu.Lock()

	q.eofSeen = true
	if !q.special.Special() {
		q.special = http.EOFChunk()
	}

	return q.wakeLocked()
}

func (q *ContentQueue) Failed(err error) bool {
	q.mu.Lock()

	if !q.special.Special() || q.special.EOF {
		q.special = http.ErrorChunk(err)
	}

	return q.wakeLocked()
}

// wakeLocked releases the lock and fires the producible notification if a
// demand was pending.
func (q *ContentQueue) wakeLocked() bool {
	wake := q.demand
	q.demand = false
	producible := q.producible
	q.mu.Unlock()

	if wake && producible != nil {
		return producible()
	}

	return false
}

func (q *ContentQueue) FailAllContent(err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.chunks = nil
	if q.special.EOF {
		return true
	}

	q.special = http.ErrorChunk(err)
	return q.eofSeen
}

// ConsumeAll drains queued chunks without ever touching the transport: a
// blocking read here could stall completion. True only if EOF was already
// reached cleanly.
func (q *ContentQueue) ConsumeAll() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.chunks = nil
	return q.special.EOF
}

func (q *ContentQueue) Recycle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.chunks = nil
	q.special = http.Chunk{}
	q.eofSeen = false
	q.demand = false
}
