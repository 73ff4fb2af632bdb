package emit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/metrics"
)

// Route sends events whose tag matches Pattern to Outputs.
type Route struct {
	Pattern string
	Outputs []Output
}

type route struct {
	pattern string
	glob    string
	outputs []Output
}

// Table is a Router that delivers each batch to the first route whose
// pattern matches its tag. Tags nothing matches are dropped with a warning,
// once per tag.
type Table struct {
	routes []route
	log    *slog.Logger

	mu    sync.RWMutex
	cache map[string]*route
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithLogger sets the table logger.
func WithLogger(log *slog.Logger) TableOption {
	return func(t *Table) {
		t.log = logging.OrNop(log)
	}
}

// NewTable builds a routing table. Routes are tried in order.
func NewTable(routes []Route, opts ...TableOption) (*Table, error) {
	t := &Table{
		log:   logging.Nop(),
		cache: make(map[string]*route),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, r := range routes {
		if !ValidPattern(r.Pattern) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, r.Pattern)
		}
		t.routes = append(t.routes, route{pattern: r.Pattern, glob: tagPath(r.Pattern), outputs: r.Outputs})
	}
	return t, nil
}

// ValidPattern reports whether pattern is a well-formed tag pattern.
func ValidPattern(pattern string) bool {
	return pattern != "" && doublestar.ValidatePattern(tagPath(pattern))
}

// MatchTag reports whether a dot-separated tag matches pattern.
func MatchTag(pattern, tag string) bool {
	ok, err := doublestar.Match(tagPath(pattern), tagPath(tag))
	return err == nil && ok
}

func tagPath(s string) string {
	return strings.ReplaceAll(s, ".", "/")
}

// lookup returns the route for tag, or nil. Results are cached per tag.
func (t *Table) lookup(tag string) *route {
	t.mu.RLock()
	r, ok := t.cache[tag]
	t.mu.RUnlock()
	if ok {
		return r
	}

	path := tagPath(tag)
	for i := range t.routes {
		if matched, _ := doublestar.Match(t.routes[i].glob, path); matched {
			r = &t.routes[i]
			break
		}
	}

	t.mu.Lock()
	t.cache[tag] = r
	t.mu.Unlock()
	if r == nil {
		t.log.Warn("no route matches tag, dropping events", "tag", tag)
	}
	return r
}

// Emit routes one record.
func (t *Table) Emit(tag string, ts time.Time, rec Record) error {
	return t.EmitStream(tag, EventStream{{Time: ts, Record: rec}})
}

// EmitArray routes a slice of events.
func (t *Table) EmitArray(tag string, events []Event) error {
	return t.EmitStream(tag, EventStream(events))
}

// EmitStream routes a batch.
func (t *Table) EmitStream(tag string, es EventStream) error {
	if len(es) == 0 {
		return nil
	}
	r := t.lookup(tag)
	if r == nil {
		return nil
	}
	if metrics.EventsEmitted != nil {
		if vec, err := metrics.EventsEmitted.WithLabels(tag); err == nil {
			_ = vec.Add(float64(len(es)))
		}
	}
	if err := NewOutputChain(r.outputs, tag, es, NullChain).Next(); err != nil {
		return fmt.Errorf("emit %s via %q: %w", tag, r.pattern, err)
	}
	return nil
}

// Close closes every output that implements io.Closer.
func (t *Table) Close() error {
	var errs []error
	for _, r := range t.routes {
		errs = append(errs, closeOutputs(r.outputs))
	}
	return errors.Join(errs...)
}

func closeOutputs(outputs []Output) error {
	var errs []error
	for _, out := range outputs {
		if c, ok := out.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
