package emit

// Output consumes event batches. Implementations call chain.Next once they
// have handled es so the rest of the chain runs.
type Output interface {
	Emit(tag string, es EventStream, chain Chain) error
}

// OutputFunc adapts a function to Output.
type OutputFunc func(tag string, es EventStream, chain Chain) error

// Emit calls f.
func (f OutputFunc) Emit(tag string, es EventStream, chain Chain) error {
	return f(tag, es, chain)
}

// Chain hands a batch to the next output.
type Chain interface {
	Next() error
}

type nullChain struct{}

func (nullChain) Next() error { return nil }

// NullChain ends every chain.
var NullChain Chain = nullChain{}

// OutputChain calls each output in turn with the same batch, then
// continues with the chain it was created with.
type OutputChain struct {
	outputs []Output
	tag     string
	es      EventStream
	offset  int
	next    Chain
}

// NewOutputChain returns a chain over outputs. A nil next ends with
// NullChain.
func NewOutputChain(outputs []Output, tag string, es EventStream, next Chain) *OutputChain {
	if next == nil {
		next = NullChain
	}
	return &OutputChain{outputs: outputs, tag: tag, es: es, next: next}
}

// Next emits to the next output, or continues with the outer chain once all
// outputs have run.
func (c *OutputChain) Next() error {
	if c.offset >= len(c.outputs) {
		return c.next.Next()
	}
	out := c.outputs[c.offset]
	c.offset++
	return out.Emit(c.tag, c.es, c)
}

// CopyOutputChain is an OutputChain that gives every output except the last
// its own copy of the batch.
type CopyOutputChain struct {
	OutputChain
}

// NewCopyOutputChain returns a copying chain over outputs.
func NewCopyOutputChain(outputs []Output, tag string, es EventStream, next Chain) *CopyOutputChain {
	return &CopyOutputChain{OutputChain: *NewOutputChain(outputs, tag, es, next)}
}

// Next emits to the next output.
func (c *CopyOutputChain) Next() error {
	if c.offset >= len(c.outputs) {
		return c.next.Next()
	}
	out := c.outputs[c.offset]
	c.offset++
	es := c.es
	if c.offset < len(c.outputs) {
		es = es.Dup()
	}
	return out.Emit(c.tag, es, c)
}
