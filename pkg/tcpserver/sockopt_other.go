//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package tcpserver

import (
	"errors"
	"net"
	"syscall"
)

func reusePort(_, _ string, _ syscall.RawConn) error {
	return errors.New("SO_REUSEPORT is not supported on this platform")
}

func setBacklog(_ net.Listener, _ int) error {
	return nil
}
