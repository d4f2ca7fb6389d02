package http1

import (
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/indigo-web/keel/channel"
	"github.com/indigo-web/keel/config"
	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/http/proto"
	"github.com/indigo-web/keel/http/status"
	"github.com/indigo-web/keel/internal/server/tcp"
)

// Options assembles a connection's collaborators.
type Options struct {
	Config       *config.Config
	Server       channel.Server
	ErrorHandler channel.ErrorHandler
	Listener     channel.Listener
	Customizers  []channel.Customizer
	Executor     channel.Executor
	Scheduler    channel.Scheduler
}

// Conn serves HTTP/1.x exchanges on a single connection. It is the
// transport, the endpoint and the input port of its channel at once: the
// read loop feeds the parser, parser events feed the channel, and the
// channel's writes come back here to be framed onto the wire.
type Conn struct {
	cfg        *config.Config
	raw        net.Conn
	client     tcp.Client
	ch         *channel.Channel
	parser     *Parser
	feeder     *bodyFeeder
	serializer *Serializer
	queue      *channel.ContentQueue

	done chan error

	head            Head
	mode            framing
	bodyForbidden   bool
	bodyEventsFired bool
	persistent      bool
	idle            time.Duration
	closed          atomic.Bool

	replacement func(net.Conn)
}

func NewConn(raw net.Conn, client tcp.Client, opts Options) *Conn {
	if opts.Config == nil {
		opts.Config = config.Default()
	}

	c := &Conn{
		cfg:        opts.Config,
		raw:        raw,
		client:     client,
		parser:     NewParser(opts.Config),
		feeder:     newBodyFeeder(opts.Config.HTTP.MaxBodySize),
		serializer: NewSerializer(make([]byte, 0, opts.Config.NET.WriteBufferSize)),
		done:       make(chan error, 1),
		idle:       opts.Config.NET.ReadTimeout,
	}

	port := &inputPort{conn: c}
	c.queue = channel.NewContentQueue(nil, nil)
	port.queue = c.queue

	c.ch = channel.New(channel.Options{
		Config:       opts.Config,
		Endpoint:     c,
		Transport:    c,
		Executor:     opts.Executor,
		Scheduler:    opts.Scheduler,
		Server:       opts.Server,
		ErrorHandler: opts.ErrorHandler,
		Listener:     opts.Listener,
		Customizers:  opts.Customizers,
		Input:        port,
	})

	c.queue.Bind(c.demand, c.ch.OnContentProducible)
	c.ch.PrepareUpgrade = c.prepareUpgrade
	c.ch.OnContinue = c.continue100

	return c
}

// Channel exposes the channel driving this connection.
func (c *Conn) Channel() *channel.Channel {
	return c.ch
}

// Serve runs exchanges until the connection stops being persistent, is
// aborted or upgraded.
func (c *Conn) Serve() {
	for {
		if !c.readHead() {
			_ = c.Close()
			return
		}

		c.ch.OnRequest(
			c.head.Method, c.head.Path, c.head.Proto, c.head.Headers, c.head.ContentLength,
		)
		c.ch.Handle()

		// the loop may have suspended; the exchange signals through the
		// transport completion either way
		<-c.done

		if c.replacement != nil {
			replacement := c.replacement
			c.replacement = nil
			replacement(c.raw)
			return
		}

		if !c.isPersistent() {
			_ = c.Close()
			return
		}

		c.recycle()
	}
}

// ServeOnce processes a single exchange; used by tests.
func (c *Conn) ServeOnce() bool {
	if !c.readHead() {
		return false
	}

	c.ch.OnRequest(
		c.head.Method, c.head.Path, c.head.Proto, c.head.Headers, c.head.ContentLength,
	)
	c.ch.Handle()
	<-c.done

	persistent := c.isPersistent()
	c.recycle()

	return persistent && c.replacement == nil
}

func (c *Conn) readHead() bool {
	for {
		data, err := c.client.Read()
		if err != nil || len(data) == 0 {
			// deadline exceeded or the peer is gone: nothing to answer to
			return false
		}

		done, extra, err := c.parser.Parse(data)
		if err != nil {
			bad, ok := err.(*status.BadMessage)
			if !ok {
				bad = status.NewBadMessage(status.BadRequest, err.Error(), err)
			}

			_ = c.ch.OnBadMessage(bad)
			return false
		}
		if !done {
			continue
		}

		if len(extra) > 0 {
			c.client.Unread(extra)
		}
		c.head = c.parser.Head()
		c.feeder.init(c.head)
		c.bodyEventsFired = false
		c.persistent = c.requestKeepAlive()

		return true
	}
}

func (c *Conn) requestKeepAlive() bool {
	if c.head.Close {
		return false
	}
	if proto.Persistent(c.head.Proto) {
		return true
	}

	// HTTP/1.0 persists only on an explicit keep-alive token
	for _, value := range c.head.Headers.Values("Connection") {
		if strings.EqualFold(strings.TrimSpace(value), "keep-alive") {
			return true
		}
	}

	return false
}

func (c *Conn) isPersistent() bool {
	if !c.persistent || c.closed.Load() {
		return false
	}
	if !c.drained() {
		// body bytes would masquerade as the next request head
		return false
	}
	if c.mode == framingNone && !c.bodyForbidden {
		// close-delimited response body
		return false
	}

	if meta := c.ch.CommittedMeta(); meta != nil {
		for _, value := range meta.Headers.Values("Connection") {
			for _, token := range strings.Split(value, ",") {
				if strings.EqualFold(strings.TrimSpace(token), "close") {
					return false
				}
			}
		}
	}

	return true
}

// drained reports whether the request body was fully consumed. The exchange
// is over by now, so no channel events fire here: only the zero-length tail
// of a bodiless request can still complete.
func (c *Conn) drained() bool {
	if c.feeder.done {
		return true
	}

	_, extra, done, err := c.feeder.Feed(nil)
	if err != nil || !done {
		return false
	}

	if len(extra) > 0 {
		c.client.Unread(extra)
	}
	c.bodyEventsFired = true

	return true
}

func (c *Conn) recycle() {
	c.ch.Recycle()
	c.parser.Reset()
	c.mode = framingNone
	c.bodyForbidden = false
	c.head = Head{}
}

//
// body plumbing
//

// demand is installed as the queue's onDemand: it performs one bounded read
// and pushes whatever body content it yields.
func (c *Conn) demand() {
	if c.feeder.done {
		c.pump(nil)
		return
	}

	data, err := c.client.Read()
	if err != nil {
		c.ch.Failed(err)
		return
	}

	c.pump(data)
}

// pump feeds raw bytes through the body decoder into the channel.
func (c *Conn) pump(data []byte) {
	chunks, extra, done, err := c.feeder.Feed(data)

	for _, piece := range chunks {
		chunk := http.DataChunk(piece, false)
		c.ch.OnContent(chunk)
		c.queue.Push(chunk)
	}

	if err != nil {
		c.ch.Failed(err)
		return
	}

	if done && !c.bodyEventsFired {
		c.bodyEventsFired = true
		if len(extra) > 0 {
			c.client.Unread(extra)
		}
		c.ch.OnContentComplete()
		c.ch.OnRequestComplete()
	}
}

// inputPort adapts the shared content queue to this connection: demand
// triggers synchronous reads, and completion-time draining never touches
// the socket.
type inputPort struct {
	conn  *Conn
	queue *channel.ContentQueue
}

func (p *inputPort) NeedContent() bool              { return p.queue.NeedContent() }
func (p *inputPort) ProduceContent() http.Chunk     { return p.queue.ProduceContent() }
func (p *inputPort) FailAllContent(err error) bool  { return p.queue.FailAllContent(err) }
func (p *inputPort) Eof() bool                      { return p.queue.Eof() }
func (p *inputPort) Failed(err error) bool          { return p.queue.Failed(err) }
func (p *inputPort) Recycle()                       { p.queue.Recycle() }

func (p *inputPort) ConsumeAll() bool {
	// a zero feed completes bodiless requests; anything still on the socket
	// would require a blocking read and fails the drain instead
	if !p.conn.feeder.done || !p.conn.bodyEventsFired {
		p.conn.pump(nil)
	}

	return p.queue.ConsumeAll()
}

//
// channel.Transport
//

func (c *Conn) Send(req *http.Request, meta *http.ResponseMeta, content []byte, last bool, cb channel.Callback) {
	var err error

	if meta != nil {
		if status.IsInformational(meta.Code) {
			err = c.client.Write(c.serializer.Head(meta, framingNone, 0))
			cb.Done(err)
			return
		}

		c.bodyForbidden = req.IsHead() || status.HasNoBody(meta.Code)
		c.mode, err = c.commitHead(req, meta, content, last)
		if err != nil {
			cb.Done(err)
			return
		}
	}

	if !c.bodyForbidden && len(content) > 0 {
		err = c.client.Write(c.serializer.Chunk(content, c.mode))
	}
	if err == nil && last && c.mode == framingChunked && !c.bodyForbidden {
		err = c.client.Write(c.serializer.Finalizer())
	}

	cb.Done(err)
}

func (c *Conn) commitHead(req *http.Request, meta *http.ResponseMeta, content []byte, last bool) (framing, error) {
	var (
		mode          framing
		contentLength int64
	)

	switch {
	case status.HasNoBody(meta.Code):
		mode = framingNone
	case meta.ContentLength >= 0:
		mode, contentLength = framingIdentity, meta.ContentLength
	case last:
		mode, contentLength = framingIdentity, int64(len(content))
	case req.Proto == proto.HTTP11:
		mode = framingChunked
	default:
		// HTTP/1.0 without a length: delimit the body by closing
		mode = framingNone
		c.persistent = false
	}

	return mode, c.client.Write(c.serializer.Head(meta, mode, contentLength))
}

func (c *Conn) Abort(err error) {
	c.persistent = false
	_ = c.Close()
}

func (c *Conn) OnCompleted() {
	select {
	case c.done <- nil:
	default:
	}
}

//
// channel.Endpoint
//

func (c *Conn) IdleTimeout() time.Duration {
	return c.idle
}

func (c *Conn) SetIdleTimeout(d time.Duration) {
	c.idle = d
	c.client.SetTimeout(d)
}

func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

func (c *Conn) LocalAddr() net.Addr {
	if c.raw == nil {
		return nil
	}
	return c.raw.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.client.Remote()
}

func (c *Conn) Connection() net.Conn {
	return c.raw
}

func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	return c.client.Close()
}

//
// hooks
//

// prepareUpgrade installs the replacement connection of an accepted upgrade
// handshake before the 101 goes out, so the server is ready for data the
// client sends immediately after the response.
func (c *Conn) prepareUpgrade() bool {
	replacement, ok := c.ch.Request().Attribute(http.AttrUpgradeConnection).(func(net.Conn))
	if !ok {
		return false
	}

	if c.ch.Response().StatusCode() != status.SwitchingProtocols {
		c.ch.Request().RemoveAttribute(http.AttrUpgradeConnection)
		_ = c.ch.SendError(status.InternalServerError, "broken upgrade handshake")
		return true
	}

	c.replacement = replacement
	return false
}

func (c *Conn) continue100(int) error {
	if c.head.Proto == proto.HTTP10 {
		return nil
	}

	var result error
	c.ch.SendInformational(status.Continue, func(err error) { result = err })
	return result
}
