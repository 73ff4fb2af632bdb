//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package tcpserver

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePort is a net.ListenConfig Control function setting SO_REUSEPORT.
func reusePort(_, _ string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}); err != nil {
		return err
	}
	return serr
}

// setBacklog calls listen(2) again on a bound socket to resize its accept
// queue; the Go runtime always listens with the system maximum.
func setBacklog(ln net.Listener, backlog int) error {
	sc, ok := ln.(syscall.Conn)
	if !ok {
		return nil
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var lerr error
	if err := rc.Control(func(fd uintptr) {
		lerr = unix.Listen(int(fd), backlog)
	}); err != nil {
		return err
	}
	return lerr
}
