package reactor

import "fmt"

// Error is a simple error type for loop errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

var (
	// ErrStopped is returned when posting to a loop that has been stopped.
	ErrStopped = Error("reactor: loop stopped")

	// ErrAlreadyRunning is returned by Run when the loop is already running.
	ErrAlreadyRunning = Error("reactor: loop already running")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("reactor: task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
