package tcpserver

import "time"

// KeepaliveCheckInterval is the period of the keepalive reaper. Idle time is
// counted in steps of this interval.
const KeepaliveCheckInterval = time.Second

// DefaultReadBufferSize is the size of each connection's read buffer.
const DefaultReadBufferSize = 64 * 1024

// Options configure a listener.
type Options struct {
	// Name labels the listener in logs and metrics. Defaults to bind:port.
	Name string

	// Keepalive is the idle ceiling after which the reaper closes a
	// connection. Nil means unlimited.
	Keepalive *time.Duration

	// LingerTimeout, when set, enables SO_LINGER with this timeout on
	// accepted sockets. A zero timeout makes close send RST instead of FIN,
	// keeping closed sockets out of TIME_WAIT.
	LingerTimeout *time.Duration

	// Backlog is the pending-accept queue depth. Zero keeps the platform
	// default.
	Backlog int

	// ReusePort sets SO_REUSEPORT so independent worker processes can bind
	// the same address.
	ReusePort bool

	// Workers is the number of processes the listener runs in. Values above
	// one need a Detacher on the server.
	Workers int

	// ResolveHostname enables reverse DNS for peer addresses. Lookups run
	// off the loop; a failure yields the sentinel host name.
	ResolveHostname bool

	// ReadBufferSize is the per-connection read buffer size.
	ReadBufferSize int
}

// Duration returns a pointer to d, for the optional Options fields.
func Duration(d time.Duration) *time.Duration {
	return &d
}

// Detacher places a listener in worker processes. Detach is called once per
// listener with the configured worker count and must call run in every
// process that should accept connections. Supervising those processes is
// the detacher's business.
type Detacher interface {
	Detach(workers int, run func() error) error
}

// InProcess runs listeners in the current process.
type InProcess struct{}

// Detach calls run once.
func (InProcess) Detach(_ int, run func() error) error {
	return run()
}
