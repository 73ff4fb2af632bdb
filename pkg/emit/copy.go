package emit

// Copy sends every batch to each of its outputs, each with its own copy of
// the events, then continues the chain.
type Copy struct {
	outputs []Output
}

// NewCopy returns a Copy over outputs.
func NewCopy(outputs ...Output) *Copy {
	return &Copy{outputs: outputs}
}

// Outputs returns the children.
func (c *Copy) Outputs() []Output { return c.outputs }

// Emit runs the children through a CopyOutputChain that continues with
// chain.
func (c *Copy) Emit(tag string, es EventStream, chain Chain) error {
	return NewCopyOutputChain(c.outputs, tag, es, chain).Next()
}

// Close closes the children.
func (c *Copy) Close() error {
	return closeOutputs(c.outputs)
}
