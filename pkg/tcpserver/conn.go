package tcpserver

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logwire/logwire/pkg/framing"
	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/reactor"
)

// State is the lifecycle state of a Conn.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ConnectFunc is called on the loop for every accepted connection. An error
// closes the connection.
type ConnectFunc func(c *Conn) error

// MessageFunc receives raw chunks or delimited messages on the loop. The
// slice is owned by the callee. An error closes the connection.
type MessageFunc func(data []byte) error

// Conn wraps one accepted TCP connection. Apart from ID, Peer and
// ConnectedAt, its methods must be called on the loop goroutine.
type Conn struct {
	id          string
	nc          net.Conn
	loop        *reactor.Loop
	log         *slog.Logger
	inst        *instruments
	peer        Peer
	connectedAt time.Time
	readSize    int

	state        State
	idle         time.Duration
	writing      bool
	closing      bool
	onRead       MessageFunc
	framer       *framing.Framer
	onClosed     func(*Conn)
	queued       uint64
	bytesIn      int64
	bytesOut     int64
	lastActivity time.Time

	out      *outbox
	detached atomic.Bool
}

func newConn(id string, nc net.Conn, loop *reactor.Loop, log *slog.Logger, inst *instruments, peer Peer, readSize int) *Conn {
	if readSize <= 0 {
		readSize = DefaultReadBufferSize
	}
	now := time.Now()
	return &Conn{
		id:           id,
		nc:           nc,
		loop:         loop,
		log:          log.With(logging.KeyConnID, id, logging.KeyRemoteAddr, peer.String()),
		inst:         inst,
		peer:         peer,
		connectedAt:  now,
		lastActivity: now,
		readSize:     readSize,
		state:        StateConnecting,
		out:          newOutbox(),
	}
}

// ID returns the connection's registry key.
func (c *Conn) ID() string { return c.id }

// Peer returns the remote address information.
func (c *Conn) Peer() Peer { return c.peer }

// ConnectedAt returns when the connection was accepted.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// LocalAddr returns the local socket address.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// State returns the lifecycle state.
func (c *Conn) State() State { return c.state }

// Writing reports whether queued output has not yet been written.
func (c *Conn) Writing() bool { return c.writing }

// Closing reports whether Close has been requested.
func (c *Conn) Closing() bool { return c.closing }

// Closed reports whether the socket has been closed.
func (c *Conn) Closed() bool { return c.state == StateClosed }

// IdleSeconds returns the idle time counted by the keepalive reaper.
func (c *Conn) IdleSeconds() int { return int(c.idle / time.Second) }

// OnData installs the read callback. With a nil or empty delimiter fn gets
// raw chunks as they arrive. Otherwise chunks go through a framing.Framer
// and fn gets one call per delimited message, without the delimiter.
func (c *Conn) OnData(delimiter []byte, fn MessageFunc) {
	if len(delimiter) == 0 {
		c.framer = nil
		c.onRead = fn
		return
	}

	c.framer = framing.New(delimiter)
	c.onRead = func(data []byte) error {
		for _, msg := range c.framer.Feed(data) {
			c.inst.message(len(msg))
			if err := fn(msg); err != nil {
				return err
			}
		}
		return nil
	}
}

// Write queues a copy of p for sending and returns immediately.
func (c *Conn) Write(p []byte) (int, error) {
	if c.state == StateClosed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	c.writing = true
	c.queued++
	c.out.push(bytes.Clone(p), c.queued)
	return len(p), nil
}

// Close closes the connection, or starts draining it when output is still
// queued; it then closes once the output has been written. Calling Close on
// a closing or closed connection does nothing.
func (c *Conn) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.closing = true
	if c.writing {
		c.state = StateDraining
		return nil
	}
	return c.closeNow()
}

// closeNow closes the socket regardless of queued output.
func (c *Conn) closeNow() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	c.closing = true
	c.writing = false
	c.out.close()
	err := c.nc.Close()
	c.log.Debug("connection closed", "bytes_in", c.bytesIn, "bytes_out", c.bytesOut)
	if c.onClosed != nil {
		c.onClosed(c)
	}
	return err
}

// open moves the connection to Open, runs the connect callback and starts
// socket I/O.
func (c *Conn) open(onConnect ConnectFunc) error {
	c.state = StateOpen
	if onConnect != nil {
		if err := invoke(func() error { return onConnect(c) }); err != nil {
			c.inst.connError("callback")
			_ = c.closeNow()
			return &CallbackError{ConnID: c.id, Remote: c.peer.String(), Err: err}
		}
	}
	if c.state == StateClosed {
		return nil
	}
	go c.readLoop()
	go c.writeLoop()
	return nil
}

// detach stops delivering reads without closing the socket. Queued output
// keeps draining.
func (c *Conn) detach() {
	if c.state == StateClosed || c.detached.Swap(true) {
		return
	}
	_ = c.nc.SetReadDeadline(time.Now())
}

func (c *Conn) handleRead(data []byte) error {
	if c.state == StateClosed || c.detached.Load() {
		return nil
	}
	c.idle = 0
	c.bytesIn += int64(len(data))
	c.lastActivity = time.Now()
	c.inst.received(len(data))

	if c.onRead == nil {
		c.log.Debug("no read callback installed, dropping data", "bytes", len(data))
		return nil
	}
	if err := invoke(func() error { return c.onRead(data) }); err != nil {
		c.inst.connError("callback")
		_ = c.closeNow()
		return &CallbackError{ConnID: c.id, Remote: c.peer.String(), Err: err}
	}
	return nil
}

func (c *Conn) handleReadError(err error) {
	if c.state == StateClosed {
		return
	}
	if errors.Is(err, io.EOF) {
		c.log.Debug("peer closed connection")
	} else {
		c.inst.connError("read")
		c.log.Debug("read failed", "error", err)
	}
	_ = c.Close()
}

// handleWriteComplete runs after the writer handed everything up to seq to
// the kernel.
func (c *Conn) handleWriteComplete(seq uint64, n int) {
	if c.state == StateClosed {
		return
	}
	c.bytesOut += int64(n)
	c.lastActivity = time.Now()
	if seq != c.queued {
		return
	}
	c.writing = false
	if c.closing {
		_ = c.closeNow()
	}
}

func (c *Conn) handleWriteError(err error) {
	if c.state == StateClosed {
		return
	}
	c.inst.connError("write")
	c.log.Debug("write failed", "error", err)
	_ = c.closeNow()
}

func (c *Conn) readLoop() {
	buf := make([]byte, c.readSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			data := bytes.Clone(buf[:n])
			if c.loop.Post(func() error { return c.handleRead(data) }) != nil {
				return
			}
		}
		if err != nil {
			if c.detached.Load() && errors.Is(err, os.ErrDeadlineExceeded) {
				return
			}
			_ = c.loop.Post(func() error {
				c.handleReadError(err)
				return nil
			})
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.out.wake:
		case <-c.out.done:
			return
		}
		for {
			bufs, seq, n := c.out.take()
			if len(bufs) == 0 {
				break
			}
			nb := net.Buffers(bufs)
			if _, err := nb.WriteTo(c.nc); err != nil {
				_ = c.loop.Post(func() error {
					c.handleWriteError(err)
					return nil
				})
				return
			}
			if c.loop.Post(func() error {
				c.handleWriteComplete(seq, n)
				return nil
			}) != nil {
				return
			}
		}
	}
}

// invoke runs fn, turning a panic into an error.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &reactor.PanicError{Value: r}
		}
	}()
	return fn()
}

// outbox hands queued writes from the loop to the writer goroutine.
type outbox struct {
	mu     sync.Mutex
	bufs   [][]byte
	size   int
	seq    uint64
	wake   chan struct{}
	done   chan struct{}
	closed sync.Once
}

func newOutbox() *outbox {
	return &outbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (o *outbox) push(p []byte, seq uint64) {
	o.mu.Lock()
	o.bufs = append(o.bufs, p)
	o.size += len(p)
	o.seq = seq
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// take removes everything queued and returns it with the sequence number of
// the last write and the byte count.
func (o *outbox) take() ([][]byte, uint64, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	bufs, seq, n := o.bufs, o.seq, o.size
	o.bufs, o.size = nil, 0
	return bufs, seq, n
}

func (o *outbox) close() {
	o.closed.Do(func() {
		close(o.done)
	})
}
