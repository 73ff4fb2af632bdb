package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/reactor"
)

// Server binds listeners that share one loop.
type Server struct {
	loop     *reactor.Loop
	log      *slog.Logger
	detacher Detacher
	resolver Resolver

	mu         sync.Mutex
	listeners  []*Listener
	bound      map[string]*Listener
	terminated bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		s.log = logging.OrNop(log)
	}
}

// WithDetacher sets the process placement used for listeners with more
// than one worker.
func WithDetacher(d Detacher) ServerOption {
	return func(s *Server) {
		s.detacher = d
	}
}

// WithResolver sets the reverse resolver used when Options.ResolveHostname
// is on. Defaults to net.DefaultResolver.
func WithResolver(r Resolver) ServerOption {
	return func(s *Server) {
		s.resolver = r
	}
}

// NewServer creates a server whose connections run on loop.
func NewServer(loop *reactor.Loop, opts ...ServerOption) *Server {
	s := &Server{
		loop:  loop,
		log:   logging.Nop(),
		bound: make(map[string]*Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds bind:port and starts accepting. Bind failures, including an
// address this server already holds, are returned as *BindError before any
// connection is accepted. Port 0 binds an ephemeral port.
func (s *Server) Listen(bind string, port int, opts Options, onConnect ConnectFunc) (*Listener, error) {
	if onConnect == nil {
		return nil, ErrNoConnectCallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return nil, ErrTerminated
	}
	if opts.Workers > 1 && s.detacher == nil {
		return nil, ErrNoDetacher
	}

	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	if port != 0 {
		if _, ok := s.bound[addr]; ok {
			return nil, &BindError{Addr: addr, Err: ErrAlreadyListening}
		}
	}

	lc := net.ListenConfig{}
	if opts.ReusePort {
		lc.Control = reusePort
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	if opts.Backlog > 0 {
		if err := setBacklog(ln, opts.Backlog); err != nil {
			_ = ln.Close()
			return nil, &BindError{Addr: addr, Err: fmt.Errorf("set backlog: %w", err)}
		}
	}

	key := addr
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		key = net.JoinHostPort(bind, strconv.Itoa(tcp.Port))
	}
	name := opts.Name
	if name == "" {
		name = key
	}

	l := newListener(name, bind, ln, opts, s.loop, s.log, s.resolver, onConnect)
	run := func() error {
		l.start()
		return nil
	}
	if opts.Workers > 1 {
		err = s.detacher.Detach(opts.Workers, run)
	} else {
		err = run()
	}
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("tcpserver: start listener %s: %w", name, err)
	}

	s.listeners = append(s.listeners, l)
	s.bound[key] = l

	keepalive := "unlimited"
	if opts.Keepalive != nil {
		keepalive = opts.Keepalive.String()
	}
	s.log.Info("listening", logging.KeyListener, name, "addr", ln.Addr().String(), "keepalive", keepalive, "workers", max(opts.Workers, 1))
	return l, nil
}

// Listeners returns the listeners bound so far.
func (s *Server) Listeners() []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Listener(nil), s.listeners...)
}

// Shutdown detaches every listener: accepting and reading stop, sockets
// stay open.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, l := range s.Listeners() {
		if err := l.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every listener and its connections.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for _, l := range s.Listeners() {
		if err := l.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}

// Terminate closes everything still open, releases every registry and the
// listener list. Listen fails with ErrTerminated afterwards.
func (s *Server) Terminate(ctx context.Context) error {
	s.mu.Lock()
	s.terminated = true
	listeners := s.listeners
	s.listeners = nil
	s.bound = make(map[string]*Listener)
	s.mu.Unlock()

	var errs []error
	for _, l := range listeners {
		if err := l.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", l.name, err))
		}
		if err := l.terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate %s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}
