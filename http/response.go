package http

import (
	json "github.com/json-iterator/go"

	"github.com/indigo-web/keel/http/proto"
	"github.com/indigo-web/keel/http/status"
	"github.com/indigo-web/keel/kv"
)

// why 7? Inherited gut feeling: a handful of headers fits most responses.
const preallocRespHeaders = 7

// Response is the mutable response side of an exchange. Status and headers
// stay editable until the response is committed; after that the channel
// works off the frozen ResponseMeta snapshot and the builder must not be
// consulted for framing anymore.
type Response struct {
	code          status.Code
	statusText    status.Status
	headers       *kv.Storage
	body          []byte
	contentLength int64
}

func NewResponse() *Response {
	return &Response{
		code:          status.OK,
		headers:       kv.NewPrealloc(preallocRespHeaders),
		contentLength: -1,
	}
}

// Code sets a response code.
func (r *Response) Code(code status.Code) *Response {
	r.code = code
	return r
}

func (r *Response) StatusCode() status.Code {
	return r.code
}

// Status sets a custom status text. Usually totally ignored by clients, so
// there is actually no reason to use this except rare diagnostics.
func (r *Response) Status(text status.Status) *Response {
	r.statusText = text
	return r
}

func (r *Response) StatusText() status.Status {
	if len(r.statusText) > 0 {
		return r.statusText
	}

	return status.Text(r.code)
}

// Header appends header values to a key.
func (r *Response) Header(key string, values ...string) *Response {
	for i := range values {
		r.headers.Add(key, values[i])
	}

	return r
}

// Headers exposes the mutable header storage.
func (r *Response) Headers() *kv.Storage {
	return r.headers
}

// String sets the response's buffered body to the passed string.
func (r *Response) String(body string) *Response {
	r.body = append(r.body[:0], body...)
	return r
}

// Bytes sets the response's buffered body to the passed slice WITHOUT COPYING.
func (r *Response) Bytes(body []byte) *Response {
	r.body = body
	return r
}

// Write implements io.Writer over the buffered body. It always returns
// n=len(b) and err=nil.
func (r *Response) Write(b []byte) (n int, err error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

// TryJSON renders a model into the buffered body, setting the Content-Type.
func (r *Response) TryJSON(model any) (*Response, error) {
	r.body = r.body[:0]
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	r.headers.Set("Content-Type", "application/json")

	return r, err
}

// JSON does the same as TryJSON does, swallowing the render error into a 500.
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Code(status.InternalServerError)
	}

	return resp
}

// Body exposes the buffered body accumulated before commit.
func (r *Response) Body() []byte {
	return r.body
}

// DeclareContentLength pins the value the Content-Length header will carry.
// Negative means undeclared.
func (r *Response) DeclareContentLength(n int64) *Response {
	r.contentLength = n
	return r
}

func (r *Response) DeclaredContentLength() int64 {
	return r.contentLength
}

// ContentComplete reports whether written bytes satisfy the declared length.
func (r *Response) ContentComplete(written int64) bool {
	return r.contentLength < 0 || r.contentLength == written
}

// ResetContent discards buffered content and content-describing state,
// keeping the remaining headers. Legal only while the response is open.
func (r *Response) ResetContent() {
	r.body = r.body[:0]
	r.contentLength = -1
	r.headers.Remove("Content-Type")
	r.headers.Remove("Content-Length")
}

// Reset prepares the response for the next exchange on the connection.
func (r *Response) Reset() {
	r.code = status.OK
	r.statusText = ""
	r.headers.Clear()
	r.body = r.body[:0]
	r.contentLength = -1
}

// Meta snapshots the committed response line and headers. The snapshot is
// frozen: the transport owns it from the commit on.
func (r *Response) Meta(protocol proto.Proto) *ResponseMeta {
	return &ResponseMeta{
		Proto:         protocol,
		Code:          r.code,
		Status:        r.StatusText(),
		Headers:       r.headers.Clone(),
		ContentLength: r.contentLength,
	}
}

// ResponseMeta is the committed, immutable response head.
type ResponseMeta struct {
	Headers       *kv.Storage
	Status        status.Status
	ContentLength int64
	Code          status.Code
	Proto         proto.Proto
}
