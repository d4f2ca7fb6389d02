package dummy

import (
	"io"
	"net"
	"time"

	"github.com/indigo-web/utils/unreader"
)

// CircularClient is a client that on every read-operation returns the same
// data as it was initialised with. Used in tests and benchmarks.
type CircularClient struct {
	unreader        *unreader.Unreader
	data            [][]byte
	written         []byte
	pointer         int
	closed, oneTime bool
}

func NewCircularClient(data ...[]byte) *CircularClient {
	return &CircularClient{
		unreader: new(unreader.Unreader),
		data:     data,
		pointer:  -1,
	}
}

func (c *CircularClient) Read() ([]byte, error) {
	if c.closed {
		return nil, io.EOF
	}

	return c.unreader.PendingOr(func() ([]byte, error) {
		if c.oneTime && c.pointer == len(c.data)-1 {
			c.closed = true
			return nil, io.EOF
		}

		c.pointer++

		if c.pointer == len(c.data) {
			c.pointer = 0
		}

		return c.data[c.pointer], nil
	})
}

func (c *CircularClient) Unread(takeback []byte) {
	c.unreader.Unread(takeback)
}

func (*CircularClient) SetTimeout(time.Duration) {}

func (c *CircularClient) Write(b []byte) error {
	c.written = append(c.written, b...)
	return nil
}

// Written exposes everything the server wrote into the connection.
func (c *CircularClient) Written() []byte {
	return c.written
}

func (c *CircularClient) Conn() net.Conn {
	return NewNopConn()
}

func (*CircularClient) Remote() net.Addr {
	return nil
}

func (c *CircularClient) Close() error {
	c.closed = true
	return nil
}

// OneTime makes the client return io.EOF after the data was served once.
func (c *CircularClient) OneTime() *CircularClient {
	c.oneTime = true
	return c
}
