// Package wsout streams events to a WebSocket endpoint as JSON text frames.
//
// Emit only queues the batch; frames are written by the output's own
// goroutine so a stalled peer never blocks the caller.
package wsout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/logwire/logwire/pkg/emit"
	"github.com/logwire/logwire/pkg/logging"
)

// DefaultTimeout bounds dialing and each frame write.
const DefaultTimeout = 5 * time.Second

// Output is an emit.Output writing to one WebSocket connection. A failed
// write drops the connection; the next batch redials once.
type Output struct {
	url       string
	timeout   time.Duration
	queueSize int
	log       *slog.Logger
	queue     *emit.Queue

	mu   sync.Mutex
	conn *websocket.Conn
}

// Option configures an Output.
type Option func(*Output)

// WithLogger sets the output logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Output) {
		o.log = logging.OrNop(log)
	}
}

// WithTimeout sets the dial and write timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithQueueSize sets how many batches are buffered for sending.
func WithQueueSize(n int) Option {
	return func(o *Output) {
		o.queueSize = n
	}
}

// Dial connects to url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...Option) (*Output, error) {
	o := &Output{url: url, timeout: DefaultTimeout, log: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	conn, err := o.dial(ctx)
	if err != nil {
		return nil, err
	}
	o.conn = conn
	o.queue = emit.NewQueue("websocket", o.send,
		emit.WithQueueLogger(o.log),
		emit.WithQueueSize(o.queueSize),
		emit.WithDrainTimeout(o.timeout),
	)
	return o, nil
}

func (o *Output) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsout: dial %s: %w", o.url, err)
	}
	return conn, nil
}

// Emit queues the batch, one text frame per event, and continues the
// chain. Batches that do not fit in the queue are dropped and counted.
func (o *Output) Emit(tag string, es emit.EventStream, chain emit.Chain) error {
	o.queue.Enqueue(tag, es)
	return chain.Next()
}

// Dropped returns the number of events dropped because the queue was full.
func (o *Output) Dropped() uint64 { return o.queue.Dropped() }

func (o *Output) send(ctx context.Context, tag string, es emit.EventStream) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conn == nil {
		conn, err := o.dial(ctx)
		if err != nil {
			return err
		}
		o.log.Info("reconnected to websocket endpoint", "url", o.url)
		o.conn = conn
	}

	for _, ev := range es {
		payload, err := emit.MarshalEvent(tag, ev)
		if err != nil {
			return fmt.Errorf("wsout: encode event: %w", err)
		}
		wctx, cancel := context.WithTimeout(ctx, o.timeout)
		err = o.conn.Write(wctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			_ = o.conn.CloseNow()
			o.conn = nil
			return fmt.Errorf("wsout: write to %s: %w", o.url, err)
		}
	}
	return nil
}

// Close sends what is still queued, then a normal closure, and releases
// the connection.
func (o *Output) Close() error {
	_ = o.queue.Close()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return nil
	}
	err := o.conn.Close(websocket.StatusNormalClosure, "shutting down")
	o.conn = nil
	return err
}
