package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Stdout writes one line per event: "<time> <tag>: <json record>".
type Stdout struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdout writes to w, or os.Stdout when w is nil.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w}
}

// Emit writes es and continues the chain.
func (s *Stdout) Emit(tag string, es EventStream, chain Chain) error {
	s.mu.Lock()
	for _, ev := range es {
		rec, err := json.Marshal(ev.Record)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("stdout: encode record: %w", err)
		}
		if _, err := fmt.Fprintf(s.w, "%s %s: %s\n", ev.Time.Format(time.RFC3339Nano), tag, rec); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("stdout: %w", err)
		}
	}
	s.mu.Unlock()
	return chain.Next()
}
