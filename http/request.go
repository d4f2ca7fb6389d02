package http

import (
	"net"
	"time"

	"github.com/indigo-web/keel/http/method"
	"github.com/indigo-web/keel/http/proto"
	"github.com/indigo-web/keel/kv"
)

type (
	Headers = *kv.Storage
	Header  = kv.Pair
)

// Dispatcher tells the application which path the current activation came
// through: an ordinary request dispatch, an async resumption or an error
// page dispatch.
type Dispatcher uint8

const (
	DispatcherNone Dispatcher = iota
	DispatcherRequest
	DispatcherAsync
	DispatcherError
)

// AttrErrorStatusCode is the request attribute consulted by the error
// dispatch to pick the status of the generated error response.
const AttrErrorStatusCode = "keel.error.status_code"

// AttrErrorCause carries the failure which caused the error dispatch.
const AttrErrorCause = "keel.error.cause"

// AttrUpgradeConnection holds the replacement connection serving function
// installed by an accepted upgrade handshake, of type func(net.Conn).
const AttrUpgradeConnection = "keel.upgrade.connection"

// Request represents a single HTTP request on a connection. It is owned by
// the exchange and recycled in-place between requests of a persistent
// connection.
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// Path is the raw request target.
	Path string
	// Proto is the protocol version the request arrived with.
	Proto proto.Proto
	// Headers holds non-normalized header pairs, even though lookup is case-insensitive.
	Headers Headers
	// Trailers are appended once after the last content chunk, if the request had any.
	Trailers Headers
	// ContentLength is the declared request body length, -1 when unknown (chunked).
	ContentLength int64
	// Remote holds the remote address. Please note that this is generally not a good
	// parameter to identify a user, because there might be proxies in the middle.
	Remote net.Addr

	timestamp  time.Time
	attributes map[string]any
	dispatcher Dispatcher
	handled    bool
	hasMeta    bool
}

func NewRequest() *Request {
	return &Request{
		Proto:         proto.HTTP11,
		Headers:       kv.New(),
		ContentLength: -1,
	}
}

// SetMeta installs the parsed request line and headers. After it, the request
// metadata is immutable except trailers appended once.
func (r *Request) SetMeta(m method.Method, path string, protocol proto.Proto, headers Headers) {
	r.Method = m
	r.Path = path
	r.Proto = protocol
	r.Headers = headers
	r.hasMeta = true
}

func (r *Request) HasMeta() bool {
	return r.hasMeta
}

func (r *Request) Timestamp() time.Time {
	return r.timestamp
}

func (r *Request) SetTimestamp(t time.Time) {
	r.timestamp = t
}

// Attribute returns a request-scoped attribute value, nil if absent.
func (r *Request) Attribute(key string) any {
	return r.attributes[key]
}

func (r *Request) SetAttribute(key string, value any) {
	if r.attributes == nil {
		r.attributes = make(map[string]any)
	}

	r.attributes[key] = value
}

func (r *Request) RemoveAttribute(key string) {
	delete(r.attributes, key)
}

// Handled reports whether some dispatch target took responsibility for the
// request. An unhandled request with untouched output results in 404.
func (r *Request) Handled() bool {
	return r.handled
}

func (r *Request) SetHandled(handled bool) {
	r.handled = handled
}

func (r *Request) Dispatcher() Dispatcher {
	return r.dispatcher
}

func (r *Request) SetDispatcher(d Dispatcher) {
	r.dispatcher = d
}

func (r *Request) IsHead() bool {
	return r.Method == method.HEAD
}

// Reset prepares the request for the next exchange on the connection.
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.Path = ""
	r.Proto = proto.HTTP11
	if r.Headers != nil {
		r.Headers.Clear()
	}
	r.Trailers = nil
	r.ContentLength = -1
	r.timestamp = time.Time{}
	r.attributes = nil
	r.dispatcher = DispatcherNone
	r.handled = false
	r.hasMeta = false
}
