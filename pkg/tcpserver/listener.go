package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/reactor"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ConnInfo is a snapshot of one connection, safe to use off the loop.
type ConnInfo struct {
	ID           string    `json:"id"`
	Peer         Peer      `json:"peer"`
	ConnectedAt  time.Time `json:"connectedAt"`
	State        string    `json:"state"`
	IdleSeconds  int       `json:"idleSeconds"`
	Writing      bool      `json:"writing"`
	BytesIn      int64     `json:"bytesIn"`
	BytesOut     int64     `json:"bytesOut"`
	LastActivity time.Time `json:"lastActivity"`
}

// Listener accepts connections on one bound socket.
type Listener struct {
	name      string
	bind      string
	ln        net.Listener
	opts      Options
	loop      *reactor.Loop
	log       *slog.Logger
	inst      *instruments
	resolver  Resolver
	onConnect ConnectFunc

	// Owned by the loop.
	registry *Registry

	reaper     *reactor.Timer
	startOnce  sync.Once
	started    atomic.Bool
	acceptDone chan struct{}
	detached   atomic.Bool
	closed     atomic.Bool
}

func newListener(name, bind string, ln net.Listener, opts Options, loop *reactor.Loop, log *slog.Logger, resolver Resolver, onConnect ConnectFunc) *Listener {
	if !opts.ResolveHostname {
		resolver = nil
	} else if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Listener{
		name:       name,
		bind:       bind,
		ln:         ln,
		opts:       opts,
		loop:       loop,
		log:        log.With(logging.KeyListener, name),
		inst:       newInstruments(name),
		resolver:   resolver,
		onConnect:  onConnect,
		registry:   NewRegistry(),
		acceptDone: make(chan struct{}),
	}
}

// Name returns the listener's label.
func (l *Listener) Name() string { return l.name }

// Bind returns the configured bind address.
func (l *Listener) Bind() string { return l.bind }

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Port returns the bound port, useful after listening on port 0.
func (l *Listener) Port() int {
	if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Options returns the options the listener was created with.
func (l *Listener) Options() Options { return l.opts }

// start arms the reaper and the accept goroutine.
func (l *Listener) start() {
	l.startOnce.Do(func() {
		l.started.Store(true)
		l.reaper = l.loop.Every(KeepaliveCheckInterval, func() error {
			l.sweep()
			return nil
		})
		go l.acceptLoop()
	})
}

func (l *Listener) acceptLoop() {
	defer close(l.acceptDone)

	var delay time.Duration
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() || l.detached.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			l.inst.connError("accept")
			l.log.Warn("accept failed, retrying", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		l.setup(nc)
	}
}

// setup prepares an accepted socket off the loop and hands it to the loop
// for registration.
func (l *Listener) setup(nc net.Conn) {
	if l.opts.LingerTimeout != nil {
		if tcp, ok := nc.(*net.TCPConn); ok {
			if err := tcp.SetLinger(int(*l.opts.LingerTimeout / time.Second)); err != nil {
				l.log.Debug("failed to set linger", "error", err)
			}
		}
	}

	peer := resolvePeer(context.Background(), nc.RemoteAddr(), l.resolver)
	c := newConn(newConnID(), nc, l.loop, l.log, l.inst, peer, l.opts.ReadBufferSize)
	if err := l.loop.Post(func() error { return l.register(c) }); err != nil {
		_ = nc.Close()
	}
}

func (l *Listener) register(c *Conn) error {
	if l.closed.Load() {
		_ = c.nc.Close()
		return nil
	}
	if err := l.registry.Add(c); err != nil {
		_ = c.nc.Close()
		return fmt.Errorf("tcpserver: register connection %s: %w", c.id, err)
	}
	c.onClosed = l.forget
	l.inst.accepted()
	c.log.Debug("connection accepted", "protocol", c.peer.Protocol, "host", c.peer.Host)

	if err := c.open(l.onConnect); err != nil {
		return err
	}
	if l.detached.Load() {
		c.detach()
	}
	return nil
}

func (l *Listener) forget(c *Conn) {
	if l.registry.Remove(c.id) {
		l.inst.active(-1)
	}
}

// ConnectionCount returns the number of registered connections.
func (l *Listener) ConnectionCount(ctx context.Context) (int, error) {
	var n int
	err := l.onLoop(ctx, func() error {
		n = l.registry.Len()
		return nil
	})
	return n, err
}

// ListConnections returns a snapshot of the registered connections, ordered
// by id.
func (l *Listener) ListConnections(ctx context.Context) ([]ConnInfo, error) {
	var infos []ConnInfo
	err := l.onLoop(ctx, func() error {
		ids := l.registry.IDs()
		infos = make([]ConnInfo, 0, len(ids))
		for _, id := range ids {
			c, _ := l.registry.Get(id)
			infos = append(infos, ConnInfo{
				ID:           c.id,
				Peer:         c.peer,
				ConnectedAt:  c.connectedAt,
				State:        c.state.String(),
				IdleSeconds:  c.IdleSeconds(),
				Writing:      c.writing,
				BytesIn:      c.bytesIn,
				BytesOut:     c.bytesOut,
				LastActivity: c.lastActivity,
			})
		}
		return nil
	})
	return infos, err
}

// CloseConnection closes one connection by id, draining queued output.
func (l *Listener) CloseConnection(ctx context.Context, id string) error {
	return l.onLoop(ctx, func() error {
		c, ok := l.registry.Get(id)
		if !ok {
			return ErrConnectionNotFound
		}
		return c.Close()
	})
}

// Shutdown stops accepting and stops reading from every connection without
// closing any socket. Output already queued is still written.
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.detached.Swap(true) {
		return nil
	}
	if l.reaper != nil {
		l.reaper.Stop()
	}
	if d, ok := l.ln.(interface{ SetDeadline(time.Time) error }); ok {
		_ = d.SetDeadline(time.Now())
	}
	return l.onLoop(ctx, func() error {
		for _, id := range l.registry.IDs() {
			c, _ := l.registry.Get(id)
			c.detach()
		}
		return nil
	})
}

// Close closes the listening socket and every registered connection.
// Connections with queued output drain first. Calling Close again does
// nothing.
func (l *Listener) Close(ctx context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	if l.reaper != nil {
		l.reaper.Stop()
	}
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	if lerr := l.onLoop(ctx, func() error {
		for _, id := range l.registry.IDs() {
			c, _ := l.registry.Get(id)
			_ = c.Close()
		}
		return nil
	}); lerr != nil {
		return lerr
	}

	if l.started.Load() {
		select {
		case <-l.acceptDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.log.Info("listener closed")
	return err
}

// terminate force-closes whatever is still draining and empties the
// registry.
func (l *Listener) terminate(ctx context.Context) error {
	return l.onLoop(ctx, func() error {
		for _, id := range l.registry.IDs() {
			c, _ := l.registry.Get(id)
			_ = c.closeNow()
		}
		l.registry.reset()
		return nil
	})
}

// onLoop runs fn on the loop and waits for it. Before the loop has started,
// or after it has stopped, nothing else touches loop state and fn runs on
// the caller.
func (l *Listener) onLoop(ctx context.Context, fn func() error) error {
	if !l.loop.Started() {
		return fn()
	}
	err := l.loop.Do(ctx, fn)
	if errors.Is(err, reactor.ErrStopped) {
		select {
		case <-l.loop.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn()
	}
	return err
}

func newConnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
