package keel

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"golang.org/x/net/netutil"

	"github.com/indigo-web/keel/channel"
	"github.com/indigo-web/keel/config"
	"github.com/indigo-web/keel/http/status"
	"github.com/indigo-web/keel/internal/server/tcp"
	"github.com/indigo-web/keel/internal/transport/http1"
)

type ListenerConstructor func(network, addr string) (net.Listener, error)

// App wires listeners, configuration and the channel stack together. It is
// the embedder-facing entry: construct, tune, and Serve with a handler.
type App struct {
	host        string
	hooks       hooks
	listeners   []Listener
	cfg         *config.Config
	combined    channel.Listener
	errHandler  channel.ErrorHandler
	customizers []channel.Customizer
	errCh       chan error
}

// New returns a new App instance bound to the address.
func New(addr string) *App {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		panic(fmt.Errorf("keel: listen: bad addr: %v", err))
	}

	app := &App{
		host:       host,
		cfg:        config.Default(),
		errHandler: DefaultErrorHandler{},
		errCh:      make(chan error),
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		panic(fmt.Errorf("keel: listen: bad port: %v", err))
	}

	return app.Listen(uint16(p))
}

// Tune replaces the default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// NotifyOnStart calls the callback at the moment when all the servers are
// started. However, it isn't strongly guaranteed that they'll be able to
// accept new connections immediately.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback at the moment when all the servers are
// down and all the clients already disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Listen adds a listener on the port.
func (a *App) Listen(port uint16, optionalConstructor ...ListenerConstructor) *App {
	constructor := optional(optionalConstructor, net.Listen)

	a.listeners = append(a.listeners, Listener{
		Port:        port,
		Constructor: constructor,
	})

	return a
}

// Observe installs the combined channel listener, notified at every exchange
// phase of every connection.
func (a *App) Observe(l channel.Listener) *App {
	a.combined = l
	return a
}

// ErrorHandler replaces the default error page renderer.
func (a *App) ErrorHandler(h channel.ErrorHandler) *App {
	a.errHandler = h
	return a
}

// Use appends customizers run before every dispatch.
func (a *App) Use(customizers ...channel.Customizer) *App {
	a.customizers = append(a.customizers, customizers...)
	return a
}

// Serve starts the application with the handler.
func (a *App) Serve(server channel.Server) error {
	servers, err := a.getServers(server)
	if err != nil {
		return err
	}

	return a.run(servers)
}

// ServeFunc is Serve for a plain handler function.
func (a *App) ServeFunc(handler func(ch *channel.Channel) error) error {
	return a.Serve(channel.ServerFunc(handler))
}

func (a *App) getServers(server channel.Server) ([]*tcp.Server, error) {
	servers := make([]*tcp.Server, len(a.listeners))

	for i, listener := range a.listeners {
		addr := net.JoinHostPort(a.host, strconv.Itoa(int(listener.Port)))
		sock, err := listener.Constructor("tcp", addr)
		if err != nil {
			return nil, err
		}

		if a.cfg.NET.MaxConns > 0 {
			sock = netutil.LimitListener(sock, a.cfg.NET.MaxConns)
		}

		servers[i] = tcp.NewServer(sock, a.newConnCallback(server))
	}

	return servers, nil
}

func (a *App) newConnCallback(server channel.Server) func(net.Conn) {
	return func(conn net.Conn) {
		client := tcp.NewClient(conn, a.cfg.NET.ReadTimeout, make([]byte, a.cfg.NET.ReadBufferSize))
		http1.NewConn(conn, client, http1.Options{
			Config:       a.cfg,
			Server:       server,
			ErrorHandler: a.errHandler,
			Listener:     a.combined,
			Customizers:  a.customizers,
		}).Serve()
	}
}

func (a *App) run(servers []*tcp.Server) error {
	var failSilently atomic.Bool

	for _, server := range servers {
		go func(server *tcp.Server) {
			err := server.Start()

			if failSilently.Swap(true) {
				return
			}

			a.errCh <- err
		}(server)
	}

	callIfNotNil(a.hooks.OnStart)
	err := <-a.errCh
	if err == status.ErrShutdown {
		// stop accepting new clients, let the old ones finish
		for _, server := range servers {
			_ = server.GracefulShutdown()
		}
	}

	for _, server := range servers {
		_ = server.Stop()
	}
	callIfNotNil(a.hooks.OnStop)

	return err
}

// GracefulStop stops accepting new connections, but keeps serving old ones.
//
// NOTE: the call isn't blocking, the server keeps working after it returns.
func (a *App) GracefulStop() {
	a.errCh <- status.ErrShutdown
}

// Stop stops the whole application immediately.
func (a *App) Stop() {
	a.errCh <- status.ErrCloseConnection
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}

type Listener struct {
	Port        uint16
	Constructor ListenerConstructor
}

func optional[T any](optionals []T, otherwise T) T {
	if len(optionals) == 0 {
		return otherwise
	}

	return optionals[0]
}
