package emit

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/logwire/logwire/pkg/logging"
)

const schemaResource = "record.schema.json"

// Schema passes events whose record validates against a JSON Schema
// (draft 2020-12) to its own outputs, then continues the chain with the full
// batch.
type Schema struct {
	schema  *jsonschema.Schema
	outputs []Output
	log     *slog.Logger
}

// NewSchema compiles the schema document in src.
func NewSchema(src []byte, outputs ...Output) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaResource, bytes.NewReader(src)); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	s, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &Schema{schema: s, outputs: outputs, log: logging.Nop()}, nil
}

// LoadSchema reads and compiles the schema file at path.
func LoadSchema(path string, outputs ...Output) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return NewSchema(src, outputs...)
}

// SetLogger sets the logger for rejected records.
func (s *Schema) SetLogger(log *slog.Logger) {
	s.log = logging.OrNop(log)
}

// Check validates one record.
func (s *Schema) Check(rec Record) error {
	if rec == nil {
		rec = Record{}
	}
	return s.schema.Validate(map[string]any(rec))
}

// Emit sends the conforming events to the schema's outputs and continues
// the chain.
func (s *Schema) Emit(tag string, es EventStream, chain Chain) error {
	var valid EventStream
	for _, ev := range es {
		if err := s.Check(ev.Record); err != nil {
			s.log.Debug("record rejected by schema", "tag", tag, "error", err)
			continue
		}
		valid = append(valid, ev)
	}
	if len(valid) > 0 {
		if err := NewOutputChain(s.outputs, tag, valid, NullChain).Next(); err != nil {
			return err
		}
	}
	return chain.Next()
}

// Close closes the schema's outputs.
func (s *Schema) Close() error {
	return closeOutputs(s.outputs)
}
