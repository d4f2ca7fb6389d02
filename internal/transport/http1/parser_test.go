package http1

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"

	"github.com/indigo-web/keel/config"
	"github.com/indigo-web/keel/http/method"
	"github.com/indigo-web/keel/http/proto"
	"github.com/indigo-web/keel/http/status"
)

func feed(t *testing.T, p *Parser, data []byte, by int) (extra []byte) {
	t.Helper()

	for len(data) > 0 {
		piece := data
		if by > 0 && by < len(piece) {
			piece = piece[:by]
		}
		data = data[len(piece):]

		done, rest, err := p.Parse(piece)
		require.NoError(t, err)
		if done {
			require.Empty(t, data, "head completed before all data was fed")
			return rest
		}
	}

	t.Fatal("head never completed")
	return nil
}

func TestParserSimpleRequest(t *testing.T) {
	p := NewParser(config.Default())

	extra := feed(t, p, []byte("GET /path HTTP/1.1\r\nHost: h\r\nAccept: */*\r\n\r\ntail"), 0)
	require.Equal(t, "tail", string(extra))

	head := p.Head()
	require.Equal(t, method.GET, head.Method)
	require.Equal(t, "/path", head.Path)
	require.Equal(t, proto.HTTP11, head.Proto)
	require.Equal(t, "h", head.Headers.Value("Host"))
	require.Equal(t, "*/*", head.Headers.Value("accept"))
	require.EqualValues(t, 0, head.ContentLength)
	require.False(t, head.Chunked)
	require.False(t, head.Close)
}

func TestParserDispersedFeed(t *testing.T) {
	for _, by := range []int{1, 2, 3, 7} {
		t.Run(fmt.Sprintf("by %d bytes", by), func(t *testing.T) {
			p := NewParser(config.Default())
			feed(t, p, []byte("POST /submit HTTP/1.0\r\nContent-Length: 13\r\n\r\n"), by)

			head := p.Head()
			require.Equal(t, method.POST, head.Method)
			require.Equal(t, proto.HTTP10, head.Proto)
			require.EqualValues(t, 13, head.ContentLength)
		})
	}
}

func TestParserRandomHeaders(t *testing.T) {
	p := NewParser(config.Default())

	var (
		raw  strings.Builder
		want [][2]string
	)
	raw.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < 20; i++ {
		key, value := uniuri.New(), uniuri.New()
		want = append(want, [2]string{key, value})
		raw.WriteString(key + ": " + value + "\r\n")
	}
	raw.WriteString("\r\n")

	feed(t, p, []byte(raw.String()), 5)

	head := p.Head()
	for _, pair := range want {
		require.Equal(t, pair[1], head.Headers.Value(pair[0]))
	}
}

func TestParserFraming(t *testing.T) {
	t.Run("chunked", func(t *testing.T) {
		p := NewParser(config.Default())
		feed(t, p, []byte("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"), 0)

		head := p.Head()
		require.True(t, head.Chunked)
		require.EqualValues(t, -1, head.ContentLength)
	})

	t.Run("connection close", func(t *testing.T) {
		p := NewParser(config.Default())
		feed(t, p, []byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n"), 0)
		require.True(t, p.Head().Close)
	})
}

func TestParserErrors(t *testing.T) {
	parse := func(raw string, cfg *config.Config) error {
		if cfg == nil {
			cfg = config.Default()
		}

		p := NewParser(cfg)
		for len(raw) > 0 {
			piece := raw
			raw = ""

			done, _, err := p.Parse([]byte(piece))
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		return errors.New("incomplete")
	}

	badCode := func(err error) status.Code {
		var bad *status.BadMessage
		require.ErrorAs(t, err, &bad)
		return bad.Code
	}

	t.Run("unknown method", func(t *testing.T) {
		err := parse("BREW /pot HTTP/1.1\r\n\r\n", nil)
		require.Equal(t, status.NotImplemented, badCode(err))
	})

	t.Run("unsupported protocol", func(t *testing.T) {
		err := parse("GET / HTTP/9.3\r\n\r\n", nil)
		require.Equal(t, status.HTTPVersionNotSupported, badCode(err))
	})

	t.Run("malformed request line", func(t *testing.T) {
		err := parse("GET\r\n\r\n", nil)
		require.Equal(t, status.BadRequest, badCode(err))
	})

	t.Run("content-length alongside chunked", func(t *testing.T) {
		err := parse("POST / HTTP/1.1\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n", nil)
		require.Equal(t, status.BadRequest, badCode(err))
	})

	t.Run("malformed content-length", func(t *testing.T) {
		err := parse("POST / HTTP/1.1\r\nContent-Length: five\r\n\r\n", nil)
		require.Equal(t, status.BadRequest, badCode(err))
	})

	t.Run("overlong request line", func(t *testing.T) {
		cfg := config.Default()
		cfg.HTTP.MaxRequestLineSize = 32

		err := parse("GET /"+strings.Repeat("a", 64)+" HTTP/1.1\r\n\r\n", cfg)
		require.Equal(t, status.RequestURITooLong, badCode(err))
	})

	t.Run("overlong head", func(t *testing.T) {
		cfg := config.Default()
		cfg.HTTP.MaxRequestHeadSize = 64

		err := parse("GET / HTTP/1.1\r\nPadding: "+strings.Repeat("a", 128)+"\r\n\r\n", cfg)
		require.Equal(t, status.HeaderFieldsTooLarge, badCode(err))
	})
}

func TestParserReset(t *testing.T) {
	p := NewParser(config.Default())

	feed(t, p, []byte("GET /first HTTP/1.1\r\n\r\n"), 0)
	require.Equal(t, "/first", p.Head().Path)

	p.Reset()

	feed(t, p, []byte("GET /second HTTP/1.1\r\n\r\n"), 0)
	require.Equal(t, "/second", p.Head().Path)
	require.False(t, p.Head().Headers.Has("Host"))
}
