package storage

import "fmt"

// Error is a simple error type for sentinel errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

const (
	// ErrNotRegularFile is wrapped by LoadError when the path exists but is
	// not a regular file.
	ErrNotRegularFile = Error("not a regular file")

	// ErrNotObject is wrapped by LoadError when the file holds valid JSON
	// that is not an object.
	ErrNotObject = Error("top-level JSON value is not an object")
)

// LoadError reports a failure reading or parsing the backing file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("storage: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failure serializing or writing the backing file.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("storage: save %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
