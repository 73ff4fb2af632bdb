package reactor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/logwire/logwire/pkg/logging"
)

// DefaultQueueSize is the number of tasks that can be pending before Post
// blocks.
const DefaultQueueSize = 1024

// Task is a unit of work executed on the loop goroutine.
type Task func() error

// Loop is a single-goroutine task executor. See the package documentation.
type Loop struct {
	tasks     chan Task
	quit      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
	running   atomic.Bool
	queueSize int
	log       *slog.Logger
	fault     func(error)
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithFaultHandler sets the function that receives errors returned by, or
// panics raised in, posted tasks. It runs on the loop goroutine.
func WithFaultHandler(fn func(error)) Option {
	return func(l *Loop) {
		l.fault = fn
	}
}

// WithQueueSize sets the task queue capacity.
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.queueSize = n
		}
	}
}

// New creates a loop. It does nothing until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		queueSize: DefaultQueueSize,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fault == nil {
		l.fault = func(err error) {
			l.log.Error("reactor task failed", "error", err)
		}
	}
	l.tasks = make(chan Task, l.queueSize)
	return l
}

// Run executes tasks on the calling goroutine until ctx is done or Stop is
// called. It returns ctx.Err() when the context ends the loop, nil after
// Stop.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		l.Stop()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return nil
		case t := <-l.tasks:
			l.dispatch(t)
		}
	}
}

// Stop ends Run. Tasks still queued are dropped. Safe to call multiple times.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
}

// Started reports whether Run has been called.
func (l *Loop) Started() bool {
	return l.started.Load()
}

// Running reports whether Run is executing.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues t for execution on the loop goroutine. It blocks while the
// queue is full and returns ErrStopped once the loop has been stopped.
func (l *Loop) Post(t Task) error {
	select {
	case <-l.quit:
		return ErrStopped
	default:
	}

	select {
	case l.tasks <- t:
		return nil
	case <-l.quit:
		return ErrStopped
	}
}

// Do runs t on the loop goroutine and waits for its result. Errors and
// panics from t are returned to the caller instead of the fault handler.
func (l *Loop) Do(ctx context.Context, t Task) error {
	res := make(chan error, 1)
	if err := l.Post(func() error {
		res <- call(t)
		return nil
	}); err != nil {
		return err
	}

	select {
	case err := <-res:
		return err
	case <-l.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) dispatch(t Task) {
	if err := call(t); err != nil {
		l.fault(err)
	}
}

func call(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return t()
}
