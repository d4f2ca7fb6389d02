package http1

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indigo-web/keel/channel"
	"github.com/indigo-web/keel/config"
	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/internal/server/tcp/dummy"
)

type syncExecutor struct{}

func (syncExecutor) Execute(task func()) { task() }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.SendDateHeader = false
	return cfg
}

func newTestConn(client *dummy.CircularClient, cfg *config.Config, handler func(ch *channel.Channel) error) *Conn {
	return NewConn(dummy.NewNopConn(), client, Options{
		Config:   cfg,
		Server:   channel.ServerFunc(handler),
		Executor: syncExecutor{},
	})
}

func TestConnSimpleExchange(t *testing.T) {
	client := dummy.NewCircularClient([]byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n"))
	conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
		ch.Request().SetHandled(true)
		ch.Response().String("hello")
		return nil
	})

	require.True(t, conn.ServeOnce())
	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello",
		string(client.Written()),
	)
}

func TestConnListenerOrder(t *testing.T) {
	rec := &orderListener{}
	client := dummy.NewCircularClient([]byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n"))

	conn := NewConn(dummy.NewNopConn(), client, Options{
		Config:   testConfig(),
		Listener: rec,
		Executor: syncExecutor{},
		Server: channel.ServerFunc(func(ch *channel.Channel) error {
			ch.Request().SetHandled(true)
			ch.Response().String("hello")
			return nil
		}),
	})

	require.True(t, conn.ServeOnce())
	require.Equal(t, []string{
		"RequestBegin",
		"BeforeDispatch", "AfterDispatch",
		"RequestContentEnd", "RequestEnd",
		"ResponseBegin", "ResponseCommit", "ResponseContent", "ResponseEnd",
		"Complete",
	}, rec.events)
}

type orderListener struct {
	channel.NopListener
	events []string
}

func (o *orderListener) OnRequestBegin(*http.Request)            { o.events = append(o.events, "RequestBegin") }
func (o *orderListener) OnBeforeDispatch(*http.Request)          { o.events = append(o.events, "BeforeDispatch") }
func (o *orderListener) OnAfterDispatch(*http.Request)           { o.events = append(o.events, "AfterDispatch") }
func (o *orderListener) OnRequestContentEnd(*http.Request)       { o.events = append(o.events, "RequestContentEnd") }
func (o *orderListener) OnRequestEnd(*http.Request)              { o.events = append(o.events, "RequestEnd") }
func (o *orderListener) OnResponseBegin(*http.Request)           { o.events = append(o.events, "ResponseBegin") }
func (o *orderListener) OnResponseCommit(*http.Request)          { o.events = append(o.events, "ResponseCommit") }
func (o *orderListener) OnResponseContent(*http.Request, []byte) { o.events = append(o.events, "ResponseContent") }
func (o *orderListener) OnResponseEnd(*http.Request)             { o.events = append(o.events, "ResponseEnd") }
func (o *orderListener) OnComplete(*http.Request)                { o.events = append(o.events, "Complete") }

func TestConnEchoBody(t *testing.T) {
	t.Run("content-length", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("POST /echo HTTP/1.1\r\nContent-Length: 13\r\n\r\nHello, world!"),
		)
		conn := newTestConn(client, testConfig(), echoHandler)

		require.True(t, conn.ServeOnce())
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, world!",
			string(client.Written()),
		)
	})

	t.Run("dispersed body", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("POST /echo HTTP/1.1\r\nContent-Length: 13\r\n\r\n"),
			[]byte("Hello, "),
			[]byte("world!"),
		)
		conn := newTestConn(client, testConfig(), echoHandler)

		require.True(t, conn.ServeOnce())
		require.True(t, strings.HasSuffix(string(client.Written()), "Hello, world!"))
	})

	t.Run("chunked body", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"),
			[]byte("7\r\nHello, \r\n6\r\nworld!\r\n0\r\n\r\n"),
		)
		conn := newTestConn(client, testConfig(), echoHandler)

		require.True(t, conn.ServeOnce())
		require.True(t, strings.HasSuffix(string(client.Written()), "Hello, world!"))
	})
}

func echoHandler(ch *channel.Channel) error {
	body, err := io.ReadAll(channel.NewBodyReader(ch))
	if err != nil {
		return err
	}

	ch.Request().SetHandled(true)
	ch.Response().Bytes(body)
	return nil
}

func TestConnNotFound(t *testing.T) {
	client := dummy.NewCircularClient([]byte("GET /nowhere HTTP/1.1\r\n\r\n"))
	conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
		return nil
	})

	require.True(t, conn.ServeOnce())
	require.True(t, strings.HasPrefix(string(client.Written()), "HTTP/1.1 404 Not Found\r\n"))
}

func TestConnHandlerFailure(t *testing.T) {
	client := dummy.NewCircularClient([]byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n"))
	conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
		panic("boom")
	})

	// the entity was drained, so the connection survives the failure
	require.True(t, conn.ServeOnce())
	require.True(t, strings.HasPrefix(string(client.Written()), "HTTP/1.1 500 Internal Server Error\r\n"))
}

func TestConnPersistence(t *testing.T) {
	t.Run("pipelined requests on one connection", func(t *testing.T) {
		client := dummy.NewCircularClient([]byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n"))
		conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
			ch.Request().SetHandled(true)
			ch.Response().String("ok")
			return nil
		})

		for i := 0; i < 3; i++ {
			require.True(t, conn.ServeOnce())
		}

		require.Equal(t, 3, strings.Count(string(client.Written()), "HTTP/1.1 200 OK"))
	})

	t.Run("unread body forces close", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("POST /x HTTP/1.1\r\nContent-Length: 1024\r\n\r\n"),
			make([]byte, 1024),
		)
		conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
			ch.Request().SetHandled(true)
			ch.Response().String("short")
			return nil
		})

		require.False(t, conn.ServeOnce())
		require.Contains(t, string(client.Written()), "Connection: close")
	})

	t.Run("connection close token is honored", func(t *testing.T) {
		client := dummy.NewCircularClient([]byte("GET /x HTTP/1.1\r\nConnection: close\r\n\r\n"))
		conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
			ch.Request().SetHandled(true)
			return nil
		})

		require.False(t, conn.ServeOnce())
	})

	t.Run("HTTP/1.0 closes by default", func(t *testing.T) {
		client := dummy.NewCircularClient([]byte("GET /x HTTP/1.0\r\n\r\n"))
		conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
			ch.Request().SetHandled(true)
			ch.Response().String("ok")
			return nil
		})

		require.False(t, conn.ServeOnce())
	})

	t.Run("HTTP/1.0 keep-alive persists", func(t *testing.T) {
		client := dummy.NewCircularClient([]byte("GET /x HTTP/1.0\r\nConnection: keep-alive\r\n\r\n"))
		conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
			ch.Request().SetHandled(true)
			ch.Response().String("ok")
			return nil
		})

		require.True(t, conn.ServeOnce())
	})
}

func TestConnHead(t *testing.T) {
	client := dummy.NewCircularClient([]byte("HEAD /x HTTP/1.1\r\nHost: h\r\n\r\n"))
	conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
		ch.Request().SetHandled(true)
		ch.Response().String("hello").DeclareContentLength(5)
		return nil
	})

	require.True(t, conn.ServeOnce())
	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n",
		string(client.Written()),
	)
}

func TestConnBadMessage(t *testing.T) {
	t.Run("overlong request line yields 414", func(t *testing.T) {
		cfg := testConfig()
		cfg.HTTP.MaxRequestLineSize = 32

		client := dummy.NewCircularClient(
			[]byte("GET /" + strings.Repeat("a", 128) + " HTTP/1.1\r\n\r\n"),
		).OneTime()
		conn := newTestConn(client, cfg, func(ch *channel.Channel) error {
			t.Fatal("the handler must never run")
			return nil
		})

		require.False(t, conn.ServeOnce())
		require.True(t, strings.HasPrefix(string(client.Written()), "HTTP/1.1 414 "))
	})

	t.Run("unsupported version yields 505", func(t *testing.T) {
		client := dummy.NewCircularClient([]byte("GET / HTTP/4.2\r\n\r\n")).OneTime()
		conn := newTestConn(client, testConfig(), nil)

		require.False(t, conn.ServeOnce())
		require.True(t, strings.HasPrefix(string(client.Written()), "HTTP/1.1 505 "))
	})
}

func TestConnExpectContinue(t *testing.T) {
	client := dummy.NewCircularClient(
		[]byte("POST /x HTTP/1.1\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n"),
		[]byte("hello"),
	)
	conn := newTestConn(client, testConfig(), echoHandler)

	require.True(t, conn.ServeOnce())
	written := string(client.Written())
	require.True(t, strings.HasPrefix(written, "HTTP/1.1 100 Continue\r\n\r\n"))
	require.Contains(t, written, "HTTP/1.1 200 OK")
	require.True(t, strings.HasSuffix(written, "hello"))
}

func TestConnChunkedResponse(t *testing.T) {
	client := dummy.NewCircularClient([]byte("GET /stream HTTP/1.1\r\nHost: h\r\n\r\n"))
	conn := newTestConn(client, testConfig(), func(ch *channel.Channel) error {
		ch.Request().SetHandled(true)
		ch.Write([]byte("first"), false, nil)
		ch.Write([]byte("second"), true, nil)
		return nil
	})

	require.True(t, conn.ServeOnce())
	written := string(client.Written())
	require.Contains(t, written, "Transfer-Encoding: chunked")
	require.Contains(t, written, "5\r\nfirst\r\n")
	require.Contains(t, written, "6\r\nsecond\r\n")
	require.True(t, strings.HasSuffix(written, "0\r\n\r\n"))
}
