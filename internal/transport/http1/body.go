package http1

import (
	"io"

	"github.com/indigo-web/chunkedbody"

	"github.com/indigo-web/keel/http/status"
)

// bodyFeeder turns raw socket reads into request body chunks: either by
// counting down a declared Content-Length or by decoding chunked transfer
// encoding.
type bodyFeeder struct {
	chunkedParser *chunkedbody.Parser
	remaining     int64
	received      int64
	maxBodySize   int64
	chunked       bool
	done          bool
}

func newBodyFeeder(maxBodySize int64) *bodyFeeder {
	return &bodyFeeder{
		chunkedParser: chunkedbody.NewParser(chunkedbody.DefaultSettings()),
		maxBodySize:   maxBodySize,
		done:          true,
	}
}

func (b *bodyFeeder) init(head Head) {
	b.chunked = head.Chunked
	b.remaining = head.ContentLength
	b.received = 0
	b.done = false
}

// Feed consumes a read. chunks are views into data; extra is whatever
// belongs to the next request on the wire.
func (b *bodyFeeder) Feed(data []byte) (chunks [][]byte, extra []byte, done bool, err error) {
	if b.done {
		return nil, data, true, nil
	}

	if b.chunked {
		return b.feedChunked(data)
	}

	return b.feedPlain(data)
}

func (b *bodyFeeder) feedPlain(data []byte) (chunks [][]byte, extra []byte, done bool, err error) {
	if b.remaining == 0 {
		b.done = true
		return nil, data, true, nil
	}

	if len(data) == 0 {
		return nil, nil, false, nil
	}

	piece := data
	if int64(len(piece)) >= b.remaining {
		piece, extra = data[:b.remaining], data[b.remaining:]
		b.remaining = 0
		b.done = true
	} else {
		b.remaining -= int64(len(piece))
	}

	if err := b.account(int64(len(piece))); err != nil {
		return nil, nil, false, err
	}

	return [][]byte{piece}, extra, b.done, nil
}

func (b *bodyFeeder) feedChunked(data []byte) (chunks [][]byte, extra []byte, done bool, err error) {
	for len(data) > 0 {
		chunk, rest, err := b.chunkedParser.Parse(data, false)
		switch err {
		case nil:
		case io.EOF:
			b.done = true
			if len(chunk) > 0 {
				chunks = append(chunks, chunk)
			}
			return chunks, rest, true, nil
		default:
			return nil, nil, false, status.NewBadMessage(
				status.BadRequest, "malformed chunk-encoded data", err,
			)
		}

		if len(chunk) > 0 {
			if err := b.account(int64(len(chunk))); err != nil {
				return nil, nil, false, err
			}

			chunks = append(chunks, chunk)
		}

		data = rest
	}

	return chunks, nil, false, nil
}

func (b *bodyFeeder) account(n int64) error {
	b.received += n
	if b.maxBodySize > 0 && b.received > b.maxBodySize {
		return status.ErrBodyTooLarge
	}

	return nil
}
