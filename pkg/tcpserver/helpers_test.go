package tcpserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logwire/logwire/pkg/reactor"
)

// faults collects errors raised to the loop's fault handler.
type faults chan error

func startLoop(t *testing.T) (*reactor.Loop, faults) {
	t.Helper()
	errs := make(faults, 64)
	loop := reactor.New(reactor.WithFaultHandler(func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(func() {
		loop.Stop()
		<-loop.Done()
	})
	require.Eventually(t, loop.Running, time.Second, time.Millisecond)
	return loop, errs
}

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, faults) {
	t.Helper()
	loop, errs := startLoop(t)
	srv := NewServer(loop, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Terminate(ctx)
	})
	return srv, errs
}

func listenLocal(t *testing.T, srv *Server, opts Options, onConnect ConnectFunc) *Listener {
	t.Helper()
	l, err := srv.Listen("127.0.0.1", 0, opts, onConnect)
	require.NoError(t, err)
	return l
}

func dial(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", l.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// collect returns a connect callback that sends every message to the
// returned channel.
func collect(delimiter string) (ConnectFunc, chan string) {
	msgs := make(chan string, 64)
	return func(c *Conn) error {
		var delim []byte
		if delimiter != "" {
			delim = []byte(delimiter)
		}
		c.OnData(delim, func(data []byte) error {
			msgs <- string(data)
			return nil
		})
		return nil
	}, msgs
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func recvFault(t *testing.T, errs faults) error {
	t.Helper()
	select {
	case err := <-errs:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for fault")
		return nil
	}
}

// expectClosed waits until the server side of c has gone away.
func expectClosed(t *testing.T, c net.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 64)
	for {
		_, err := c.Read(buf)
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.Fatal("connection was not closed by the server")
		}
		return
	}
}
