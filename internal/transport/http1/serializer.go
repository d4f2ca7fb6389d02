package http1

import (
	"strconv"
	"strings"

	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/http/proto"
	"github.com/indigo-web/keel/http/status"
)

// framing of the response entity on the wire.
type framing uint8

const (
	framingNone framing = iota
	framingIdentity
	framingChunked
)

var chunkedFinalizer = []byte("0\r\n\r\n")

// Serializer renders response heads and entity frames into a reusable
// buffer. It is not safe for concurrent use: the owning connection
// serializes all writes.
type Serializer struct {
	buff []byte
}

func NewSerializer(buff []byte) *Serializer {
	return &Serializer{buff: buff[:0]}
}

// Head renders the status line and headers. Content-Length and
// Transfer-Encoding are computed from the framing decision, never copied
// from the header storage.
func (s *Serializer) Head(meta *http.ResponseMeta, mode framing, contentLength int64) []byte {
	s.buff = s.buff[:0]

	s.renderStatusLine(meta)

	for _, header := range meta.Headers.Expose() {
		if isFramingHeader(header.Key) {
			continue
		}

		s.buff = append(s.buff, header.Key...)
		s.colonsp()
		s.buff = append(s.buff, header.Value...)
		s.crlf()
	}

	switch mode {
	case framingIdentity:
		s.buff = append(s.buff, "Content-Length: "...)
		s.buff = strconv.AppendInt(s.buff, contentLength, 10)
		s.crlf()
	case framingChunked:
		s.buff = append(s.buff, "Transfer-Encoding: chunked"...)
		s.crlf()
	}

	s.crlf()

	return s.buff
}

// Chunk renders a single entity frame for the chosen framing.
func (s *Serializer) Chunk(content []byte, mode framing) []byte {
	if mode != framingChunked {
		return content
	}

	s.buff = s.buff[:0]
	s.buff = strconv.AppendUint(s.buff, uint64(len(content)), 16)
	s.crlf()
	s.buff = append(s.buff, content...)
	s.crlf()

	return s.buff
}

// Finalizer returns the terminating frame of a chunked response.
func (s *Serializer) Finalizer() []byte {
	return chunkedFinalizer
}

func (s *Serializer) renderStatusLine(meta *http.ResponseMeta) {
	protocol := meta.Proto
	if protocol == proto.Unknown {
		protocol = proto.HTTP11
	}

	s.buff = append(s.buff, protocol.String()...)
	s.sp()
	s.buff = strconv.AppendInt(s.buff, int64(meta.Code), 10)
	s.sp()

	text := meta.Status
	if len(text) == 0 {
		text = status.Text(meta.Code)
	}
	s.buff = append(s.buff, text...)
	s.crlf()
}

func (s *Serializer) sp() {
	s.buff = append(s.buff, ' ')
}

func (s *Serializer) colonsp() {
	s.buff = append(s.buff, ':', ' ')
}

func (s *Serializer) crlf() {
	s.buff = append(s.buff, '\r', '\n')
}

func isFramingHeader(key string) bool {
	return strings.EqualFold(key, "Content-Length") ||
		strings.EqualFold(key, "Transfer-Encoding")
}
