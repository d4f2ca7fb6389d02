package http1

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/indigo-web/utils/uf"

	"github.com/indigo-web/keel/config"
	"github.com/indigo-web/keel/http/method"
	"github.com/indigo-web/keel/http/proto"
	"github.com/indigo-web/keel/http/status"
	"github.com/indigo-web/keel/kv"
)

var crlfcrlf = []byte("\r\n\r\n")

// Head is the parsed request line and header section.
type Head struct {
	Method        method.Method
	Path          string
	Proto         proto.Proto
	Headers       *kv.Storage
	ContentLength int64
	Chunked       bool
	Close         bool
}

// Parser accumulates the request head across reads and parses it once the
// terminating empty line arrives. Everything past the head is returned as
// extra, belonging to the body or to the next request.
type Parser struct {
	cfg     *config.Config
	buff    []byte
	headers *kv.Storage
	head    Head
}

func NewParser(cfg *config.Config) *Parser {
	return &Parser{
		cfg:     cfg,
		headers: kv.NewPrealloc(8),
	}
}

// Parse consumes a read. done reports whether the head is complete; the
// error, when non-nil, is always a *status.BadMessage.
func (p *Parser) Parse(data []byte) (done bool, extra []byte, err error) {
	// fast path: a whole head in a single read, no accumulation needed
	var head []byte
	if len(p.buff) == 0 {
		if idx := bytes.Index(data, crlfcrlf); idx != -1 {
			head, extra = data[:idx], data[idx+len(crlfcrlf):]
		}
	}

	if head == nil {
		p.buff = append(p.buff, data...)
		idx := bytes.Index(p.buff, crlfcrlf)
		if idx == -1 {
			if len(p.buff) > p.cfg.HTTP.MaxRequestHeadSize {
				return false, nil, status.NewBadMessage(
					status.HeaderFieldsTooLarge, "too large headers section", nil,
				)
			}

			return false, nil, nil
		}

		head, extra = p.buff[:idx], p.buff[idx+len(crlfcrlf):]
	}

	if len(head) > p.cfg.HTTP.MaxRequestHeadSize {
		return false, nil, status.NewBadMessage(
			status.HeaderFieldsTooLarge, "too large headers section", nil,
		)
	}

	if err = p.parseHead(head); err != nil {
		return false, nil, err
	}

	return true, extra, nil
}

// Head exposes the parse result. Valid only after Parse reported done.
func (p *Parser) Head() Head {
	return p.head
}

func (p *Parser) Reset() {
	// the previous head's extra may still alias buff through the client's
	// pending tail, so the accumulator cannot be reused in place
	p.buff = nil
	p.headers = kv.NewPrealloc(8)
	p.head = Head{}
}

func (p *Parser) parseHead(head []byte) error {
	line, rest, _ := bytes.Cut(head, []byte("\r\n"))
	if len(line) > p.cfg.HTTP.MaxRequestLineSize {
		return status.NewBadMessage(status.RequestURITooLong, "request URI too long", nil)
	}

	if err := p.parseRequestLine(line); err != nil {
		return err
	}

	if err := p.parseHeaders(rest); err != nil {
		return err
	}

	return p.parseFraming()
}

func (p *Parser) parseRequestLine(line []byte) error {
	methodToken, rest, ok := bytes.Cut(line, []byte(" "))
	if !ok {
		return status.NewBadMessage(status.BadRequest, "malformed request line", nil)
	}

	pathToken, protoToken, ok := bytes.Cut(rest, []byte(" "))
	if !ok || len(pathToken) == 0 {
		return status.NewBadMessage(status.BadRequest, "malformed request line", nil)
	}

	m := method.Parse(uf.B2S(methodToken))
	if m == method.Unknown {
		return status.NewBadMessage(status.NotImplemented, "request method is not supported", nil)
	}

	protocol := proto.FromBytes(protoToken)
	if protocol == proto.Unknown {
		return status.NewBadMessage(status.HTTPVersionNotSupported, "HTTP version not supported", nil)
	}

	p.head.Method = m
	p.head.Path = string(pathToken)
	p.head.Proto = protocol

	return nil
}

func (p *Parser) parseHeaders(section []byte) error {
	for len(section) > 0 {
		var line []byte
		line, section, _ = bytes.Cut(section, []byte("\r\n"))

		key, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || len(key) == 0 || bytes.IndexByte(key, ' ') != -1 {
			return status.NewBadMessage(status.BadRequest, "malformed header line", nil)
		}

		p.headers.Add(string(key), string(bytes.TrimSpace(value)))
	}

	p.head.Headers = p.headers

	return nil
}

func (p *Parser) parseFraming() error {
	p.head.ContentLength = 0
	p.head.Chunked = false

	for _, token := range p.headers.Values("Transfer-Encoding") {
		if strings.EqualFold(strings.TrimSpace(token), "chunked") {
			p.head.Chunked = true
		}
	}

	if raw, found := p.headers.Get("Content-Length"); found {
		if p.head.Chunked {
			return status.NewBadMessage(status.BadRequest, "both Content-Length and chunked", nil)
		}

		length, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || length < 0 {
			return status.NewBadMessage(status.BadRequest, "malformed Content-Length", err)
		}

		p.head.ContentLength = length
	}

	if p.head.Chunked {
		p.head.ContentLength = -1
	}

	for _, token := range p.headers.Values("Connection") {
		if strings.EqualFold(strings.TrimSpace(token), "close") {
			p.head.Close = true
		}
	}

	return nil
}
