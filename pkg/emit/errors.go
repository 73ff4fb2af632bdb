package emit

// Error is a simple error type for sentinel errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

const (
	// ErrNoRouter is returned by an Emitter that has no router yet.
	ErrNoRouter = Error("emit: no router configured")

	// ErrInvalidPattern is returned for a malformed route pattern.
	ErrInvalidPattern = Error("emit: invalid tag pattern")
)
