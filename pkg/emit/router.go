package emit

import (
	"sync"
	"time"
)

// Router accepts events for delivery.
type Router interface {
	Emit(tag string, t time.Time, r Record) error
	EmitArray(tag string, events []Event) error
	EmitStream(tag string, es EventStream) error
}

// Emitter forwards to a Router that can be replaced at runtime. It is safe
// for concurrent use.
type Emitter struct {
	mu     sync.RWMutex
	router Router
}

// NewEmitter returns an Emitter forwarding to r, which may be nil until
// Reconfigure.
func NewEmitter(r Router) *Emitter {
	return &Emitter{router: r}
}

// Reconfigure points the emitter at r.
func (e *Emitter) Reconfigure(r Router) {
	e.mu.Lock()
	e.router = r
	e.mu.Unlock()
}

func (e *Emitter) current() (Router, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.router == nil {
		return nil, ErrNoRouter
	}
	return e.router, nil
}

// Emit sends one record.
func (e *Emitter) Emit(tag string, t time.Time, r Record) error {
	router, err := e.current()
	if err != nil {
		return err
	}
	return router.Emit(tag, t, r)
}

// EmitArray sends a slice of events.
func (e *Emitter) EmitArray(tag string, events []Event) error {
	router, err := e.current()
	if err != nil {
		return err
	}
	return router.EmitArray(tag, events)
}

// EmitStream sends a batch.
func (e *Emitter) EmitStream(tag string, es EventStream) error {
	router, err := e.current()
	if err != nil {
		return err
	}
	return router.EmitStream(tag, es)
}
