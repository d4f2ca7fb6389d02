package config

import (
	"time"
)

type (
	HTTP struct {
		// RequestIdleTimeout overrides the endpoint idle timeout for the span of
		// a single exchange. Negative leaves the endpoint value untouched.
		RequestIdleTimeout time.Duration
		// AsyncTimeout is the default expiry of a started async context.
		AsyncTimeout time.Duration
		// SendDateHeader makes the channel stamp a Date header on responses
		// that don't carry one already.
		SendDateHeader bool
		// MaxRequestHeadSize bounds the request line and headers together.
		MaxRequestHeadSize int
		// MaxRequestLineSize bounds the request line alone. Overflowing it
		// yields 414 instead of 431.
		MaxRequestLineSize int
		// MaxBodySize bounds the request body. Zero means unlimited.
		MaxBodySize int64
	}

	NET struct {
		// ReadBufferSize is a size of buffer in bytes which will be used to read
		// from the socket.
		ReadBufferSize int
		// ReadTimeout controls the maximal lifetime of IDLE connections. If no
		// data was received in this period of time, the connection is closed.
		ReadTimeout time.Duration
		// WriteBufferSize stores the serialized response head before transmission.
		WriteBufferSize int
		// MaxConns caps the number of simultaneously served connections.
		// Zero means unlimited.
		MaxConns int
	}

	Channel struct {
		// MaxTransientListeners bounds the deprecated per-exchange listener
		// list. Registrations above the cap are refused.
		MaxTransientListeners int
		// Debug enables verbose logging of state transitions and swallowed
		// listener failures.
		Debug bool
	}
)

// Config holds settings used across keel, mainly timeouts, limits and
// pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to
// initialize the config manually, as zero values of some fields are not
// usable directly.
type Config struct {
	HTTP    HTTP
	NET     NET
	Channel Channel
}

// Default returns a well-balanced default config.
func Default() *Config {
	return &Config{
		HTTP: HTTP{
			RequestIdleTimeout: 30 * time.Second,
			AsyncTimeout:       30 * time.Second,
			SendDateHeader:     true,
			MaxRequestHeadSize: 16 * 1024,
			MaxRequestLineSize: 8 * 1024,
			MaxBodySize:        512 * 1024 * 1024,
		},
		NET: NET{
			ReadBufferSize:  4 * 1024,
			ReadTimeout:     90 * time.Second,
			WriteBufferSize: 2 * 1024,
		},
		Channel: Channel{
			MaxTransientListeners: 8,
		},
	}
}
