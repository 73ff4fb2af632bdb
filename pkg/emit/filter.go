package emit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/logwire/logwire/pkg/logging"
)

// Filter passes copies of the events for which an expression is true to
// its own outputs, then continues the chain with the full batch.
//
// The expression sees tag (string), time (time.Time) and record (map), for
// example:
//
//	record.level in ["error", "fatal"] && tag startsWith "app."
type Filter struct {
	expression string
	program    *vm.Program
	outputs    []Output
	log        *slog.Logger
}

// NewFilter compiles expression. It must evaluate to a bool.
func NewFilter(expression string, outputs ...Output) (*Filter, error) {
	program, err := expr.Compile(expression, expr.Env(filterEnv("", Event{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("filter: compile %q: %w", expression, err)
	}
	return &Filter{
		expression: expression,
		program:    program,
		outputs:    outputs,
		log:        logging.Nop(),
	}, nil
}

// SetLogger sets the logger for evaluation failures.
func (f *Filter) SetLogger(log *slog.Logger) {
	f.log = logging.OrNop(log)
}

func filterEnv(tag string, ev Event) map[string]any {
	rec := map[string]any(ev.Record)
	if rec == nil {
		rec = map[string]any{}
	}
	return map[string]any{
		"tag":    tag,
		"time":   ev.Time,
		"record": rec,
		"now":    time.Now,
	}
}

// Match evaluates the expression for one event. Evaluation errors count as
// no match.
func (f *Filter) Match(tag string, ev Event) bool {
	out, err := expr.Run(f.program, filterEnv(tag, ev))
	if err != nil {
		f.log.Debug("filter evaluation failed", "expression", f.expression, "tag", tag, "error", err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// Emit sends the matching events to the filter's outputs and continues the
// chain.
func (f *Filter) Emit(tag string, es EventStream, chain Chain) error {
	var matched EventStream
	for _, ev := range es {
		if f.Match(tag, ev) {
			matched = append(matched, ev)
		}
	}
	if len(matched) > 0 {
		if err := NewOutputChain(f.outputs, tag, matched.Dup(), NullChain).Next(); err != nil {
			return err
		}
	}
	return chain.Next()
}

// Close closes the filter's outputs.
func (f *Filter) Close() error {
	return closeOutputs(f.outputs)
}
