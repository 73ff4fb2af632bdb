package tcpserver

import "fmt"

// Error is a simple error type for sentinel errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

var (
	// ErrClosed is returned when writing to a closed connection.
	ErrClosed = Error("tcpserver: connection closed")

	// ErrConnectionNotFound is returned when a connection id is not in the
	// listener's registry.
	ErrConnectionNotFound = Error("tcpserver: connection not found")

	// ErrDuplicateConnection is returned when a registry already holds a
	// connection with the same id.
	ErrDuplicateConnection = Error("tcpserver: duplicate connection id")

	// ErrAlreadyListening is wrapped in a BindError when the address and
	// port are already bound by the same server.
	ErrAlreadyListening = Error("tcpserver: address already registered by this server")

	// ErrTerminated is returned by Listen after Terminate.
	ErrTerminated = Error("tcpserver: server terminated")

	// ErrNoDetacher is returned when a listener asks for worker processes
	// but the server has no Detacher.
	ErrNoDetacher = Error("tcpserver: workers > 1 requires a process detacher")

	// ErrNoConnectCallback is returned by Listen without a connect callback.
	ErrNoConnectCallback = Error("tcpserver: connect callback is required")
)

// BindError reports that a listener could not acquire its address. It is
// returned synchronously from Listen.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("tcpserver: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// CallbackError reports a connect or read callback failure. The connection
// has already been closed when the error reaches the loop's fault handler.
type CallbackError struct {
	ConnID string
	Remote string
	Err    error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("tcpserver: callback failed on connection %s (%s): %v", e.ConnID, e.Remote, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }
