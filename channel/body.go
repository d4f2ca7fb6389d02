package channel

import (
	"errors"
	"io"
)

// ErrContentNotReady is returned by BodyReader when no content is available
// and the input port cannot produce any synchronously. Register a read
// callback and retry once it fires.
var ErrContentNotReady = errors.New("content not ready")

// BodyReader adapts the demand-driven input port to io.Reader for
// applications that prefer pull-style body access. With a synchronous port
// (HTTP/1) reads complete in place; with a purely asynchronous one a read
// may fail with ErrContentNotReady.
type BodyReader struct {
	ch        *Channel
	leftover  []byte
	eof       bool
	continued bool
	err       error
}

func NewBodyReader(ch *Channel) *BodyReader {
	return &BodyReader{ch: ch}
}

func (b *BodyReader) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if len(b.leftover) > 0 {
		n := copy(p, b.leftover)
		b.leftover = b.leftover[n:]
		return n, nil
	}
	if b.eof {
		return 0, io.EOF
	}

	if !b.continued && b.ch.IsExpecting100Continue() {
		b.continued = true
		if err := b.ch.Continue100(len(p)); err != nil && !errors.Is(err, ErrUnsupportedContinuation) {
			b.err = err
			return 0, err
		}
	}

	for {
		if !b.ch.NeedContent() {
			return 0, ErrContentNotReady
		}

		chunk := b.ch.ProduceContent()
		switch {
		case chunk.Err != nil:
			b.err = chunk.Err
			return 0, chunk.Err
		case chunk.EOF:
			b.eof = true
			return 0, io.EOF
		case chunk.Zero():
			// demand satisfied concurrently and consumed elsewhere; retry
			continue
		}

		n := copy(p, chunk.Data)
		b.leftover = chunk.Data[n:]
		return n, nil
	}
}
