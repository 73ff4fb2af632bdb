package emit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/metrics"
)

// DefaultQueueSize is the number of batches a Queue buffers.
const DefaultQueueSize = 1024

// SendFunc delivers one batch. ctx is cancelled when a closing Queue gives
// up on draining.
type SendFunc func(ctx context.Context, tag string, es EventStream) error

type batch struct {
	tag string
	es  EventStream
}

// Queue hands batches to a SendFunc running on its own goroutine, so
// outputs doing network I/O never block the caller. When the buffer is
// full, batches are dropped and counted.
type Queue struct {
	name  string
	send  SendFunc
	log   *slog.Logger
	drain time.Duration

	mu      sync.RWMutex
	closed  bool
	batches chan batch

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
	warned  atomic.Bool

	dropVec *metrics.CounterVec
	failVec *metrics.CounterVec
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger for delivery failures and drops.
func WithQueueLogger(log *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.log = logging.OrNop(log)
	}
}

// WithQueueSize sets how many batches are buffered.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.batches = make(chan batch, n)
		}
	}
}

// WithDrainTimeout bounds how long Close waits for buffered batches.
func WithDrainTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.drain = d
		}
	}
}

// NewQueue starts the delivery goroutine. name labels metrics and logs.
func NewQueue(name string, send SendFunc, opts ...QueueOption) *Queue {
	q := &Queue{
		name:    name,
		send:    send,
		log:     logging.Nop(),
		drain:   5 * time.Second,
		batches: make(chan batch, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	if metrics.OutputDropped != nil {
		q.dropVec, _ = metrics.OutputDropped.WithLabels(name)
	}
	if metrics.OutputErrors != nil {
		q.failVec, _ = metrics.OutputErrors.WithLabels(name)
	}
	go q.run()
	return q
}

// Enqueue buffers a copy of es without blocking. It reports false when the
// batch was dropped because the queue is full or closed.
func (q *Queue) Enqueue(tag string, es EventStream) bool {
	if len(es) == 0 {
		return true
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.closed {
		select {
		case q.batches <- batch{tag: tag, es: es.Dup()}:
			return true
		default:
		}
	}
	q.drop(len(es))
	if q.warned.CompareAndSwap(false, true) {
		q.log.Warn("output queue full, dropping events", "output", q.name)
	}
	return false
}

// Dropped returns the number of events dropped so far.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Failed returns the number of events whose delivery failed.
func (q *Queue) Failed() uint64 { return q.failed.Load() }

// Len returns the number of buffered batches.
func (q *Queue) Len() int { return len(q.batches) }

func (q *Queue) drop(n int) {
	q.dropped.Add(uint64(n))
	if q.dropVec != nil {
		_ = q.dropVec.Add(float64(n))
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for b := range q.batches {
		if q.ctx.Err() != nil {
			q.drop(len(b.es))
			continue
		}
		if err := q.send(q.ctx, b.tag, b.es); err != nil {
			q.failed.Add(uint64(len(b.es)))
			if q.failVec != nil {
				_ = q.failVec.Add(float64(len(b.es)))
			}
			q.log.Warn("output delivery failed", "output", q.name, "tag", b.tag, "events", len(b.es), "error", err)
		}
	}
}

// Close stops accepting batches and waits for the buffered ones to be
// delivered. After the drain timeout the in-flight send is cancelled and
// the rest are dropped.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.batches)
	q.mu.Unlock()

	timer := time.NewTimer(q.drain)
	defer timer.Stop()
	select {
	case <-q.done:
	case <-timer.C:
		q.cancel()
		<-q.done
	}
	q.cancel()
	return nil
}
