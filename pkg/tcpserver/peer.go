package tcpserver

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

// Sentinel peer values used when the remote address cannot be determined.
const (
	UnknownPeer          = "?"
	NameResolutionFailed = "name resolution failed"
)

// resolveTimeout bounds a reverse lookup on the accept goroutine.
const resolveTimeout = 2 * time.Second

// Peer describes the remote end of a connection. Resolution is best effort
// and never fails connection setup.
type Peer struct {
	Protocol string
	Addr     string
	Port     int
	Host     string
}

// String returns host:port, or "?" when the address is unknown.
func (p Peer) String() string {
	if p.Addr == UnknownPeer {
		return UnknownPeer
	}
	return net.JoinHostPort(p.Addr, strconv.Itoa(p.Port))
}

// Resolver performs reverse lookups. net.DefaultResolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

func unknownPeer() Peer {
	return Peer{Protocol: UnknownPeer, Addr: UnknownPeer, Host: NameResolutionFailed}
}

// resolvePeer builds a Peer from a socket's remote address. With a resolver
// it also looks up the host name; without one the host is the address.
func resolvePeer(ctx context.Context, addr net.Addr, r Resolver) Peer {
	if addr == nil {
		return unknownPeer()
	}

	var ip net.IP
	var port int
	if tcp, ok := addr.(*net.TCPAddr); ok {
		ip, port = tcp.IP, tcp.Port
	} else {
		host, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return unknownPeer()
		}
		if port, err = strconv.Atoi(portStr); err != nil {
			return unknownPeer()
		}
		ip = net.ParseIP(host)
	}
	if ip == nil {
		return unknownPeer()
	}

	p := Peer{Protocol: "tcp6", Addr: ip.String(), Port: port, Host: ip.String()}
	if ip.To4() != nil {
		p.Protocol = "tcp4"
	}
	if r == nil {
		return p
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	names, err := r.LookupAddr(ctx, p.Addr)
	if err != nil || len(names) == 0 {
		p.Host = NameResolutionFailed
		return p
	}
	p.Host = strings.TrimSuffix(names[0], ".")
	return p
}
