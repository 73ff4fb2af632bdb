package tcpserver

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/reactor"
)

// pipeConn returns an open Conn over net.Pipe with no I/O goroutines, for
// driving the state machine by hand.
func pipeConn(t *testing.T, id string) *Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	c := newConn(id, server, reactor.New(), logging.Nop(), nil, Peer{Protocol: "tcp4", Addr: "127.0.0.1", Port: 4000, Host: "127.0.0.1"}, 0)
	c.state = StateOpen
	return c
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestConn_CloseWhenIdle(t *testing.T) {
	c := pipeConn(t, "a")
	closed := 0
	c.onClosed = func(*Conn) { closed++ }

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.True(t, c.Closing())
	assert.True(t, c.Closed())

	require.NoError(t, c.Close())
	assert.Equal(t, 1, closed)
}

func TestConn_CloseWhileWritingDrains(t *testing.T) {
	c := pipeConn(t, "a")
	closed := 0
	c.onClosed = func(*Conn) { closed++ }

	_, err := c.Write([]byte("first"))
	require.NoError(t, err)
	_, err = c.Write([]byte("second"))
	require.NoError(t, err)
	assert.True(t, c.Writing())

	require.NoError(t, c.Close())
	assert.Equal(t, StateDraining, c.State())
	require.NoError(t, c.Close())
	assert.Equal(t, StateDraining, c.State())

	// A completion for an earlier write leaves the later one in flight.
	c.handleWriteComplete(1, 5)
	assert.Equal(t, StateDraining, c.State())
	assert.True(t, c.Writing())

	c.handleWriteComplete(2, 6)
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.Writing())
	assert.Equal(t, 1, closed)

	c.handleWriteComplete(2, 6)
	assert.Equal(t, 1, closed)
}

func TestConn_WriteCompletionWithoutClose(t *testing.T) {
	c := pipeConn(t, "a")
	_, err := c.Write([]byte("x"))
	require.NoError(t, err)

	c.handleWriteComplete(1, 1)
	assert.False(t, c.Writing())
	assert.Equal(t, StateOpen, c.State())
}

func TestConn_WriteAfterClose(t *testing.T) {
	c := pipeConn(t, "a")
	require.NoError(t, c.Close())

	n, err := c.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, n)
}

func TestConn_WriteCopiesInput(t *testing.T) {
	c := pipeConn(t, "a")
	p := []byte("abc")
	_, err := c.Write(p)
	require.NoError(t, err)
	p[0] = 'z'

	bufs, seq, n := c.out.take()
	require.Len(t, bufs, 1)
	assert.Equal(t, "abc", string(bufs[0]))
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, 3, n)
}

func TestConn_ReadResetsIdle(t *testing.T) {
	c := pipeConn(t, "a")
	var got []string
	c.OnData([]byte("\n"), func(msg []byte) error {
		got = append(got, string(msg))
		return nil
	})

	c.idle = 3 * time.Second
	require.NoError(t, c.handleRead([]byte("one\ntw")))
	assert.Zero(t, c.IdleSeconds())
	require.NoError(t, c.handleRead([]byte("o\n")))
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestConn_ReadAfterCloseIgnored(t *testing.T) {
	c := pipeConn(t, "a")
	calls := 0
	c.OnData(nil, func([]byte) error {
		calls++
		return nil
	})
	require.NoError(t, c.Close())

	require.NoError(t, c.handleRead([]byte("data")))
	assert.Zero(t, calls)
}

func TestConn_ReadCallbackFailureForceCloses(t *testing.T) {
	c := pipeConn(t, "a")
	boom := errors.New("boom")
	c.OnData(nil, func([]byte) error { return boom })

	_, err := c.Write([]byte("pending"))
	require.NoError(t, err)

	err = c.handleRead([]byte("x"))
	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "a", cbErr.ConnID)
	assert.Equal(t, "127.0.0.1:4000", cbErr.Remote)
	assert.ErrorIs(t, err, boom)

	// Pending output is discarded.
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.Writing())
}

func TestConn_ReadCallbackPanic(t *testing.T) {
	c := pipeConn(t, "a")
	c.OnData([]byte("\n"), func([]byte) error { panic("bad input") })

	err := c.handleRead([]byte("x\n"))
	var pe *reactor.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StateClosed, c.State())
}

func TestConn_ReadErrorClosesGracefully(t *testing.T) {
	c := pipeConn(t, "a")
	_, err := c.Write([]byte("pending"))
	require.NoError(t, err)

	c.handleReadError(errors.New("reset"))
	assert.Equal(t, StateDraining, c.State())

	c.handleWriteError(errors.New("broken pipe"))
	assert.Equal(t, StateClosed, c.State())
}

func TestConn_DetachedDropsReads(t *testing.T) {
	c := pipeConn(t, "a")
	calls := 0
	c.OnData(nil, func([]byte) error {
		calls++
		return nil
	})

	c.detach()
	require.NoError(t, c.handleRead([]byte("x")))
	assert.Zero(t, calls)
	assert.Equal(t, StateOpen, c.State())
}
