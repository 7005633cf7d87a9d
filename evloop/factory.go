//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evloop

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/muxio-project/muxio"
	"golang.org/x/sys/unix"
)

// SocketFactory is a [muxio.SocketFactory] creating non-blocking,
// close-on-exec sockets suitable for watching with a [Watcher].
//
// Construct using [NewSocketFactory] and pass it to engines that support
// routing socket creation through the embedder.
type SocketFactory struct{}

var _ muxio.SocketFactory = &SocketFactory{}

// NewSocketFactory creates a [*SocketFactory].
func NewSocketFactory() *SocketFactory {
	return &SocketFactory{}
}

// Open implements [muxio.SocketFactory].
func (f *SocketFactory) Open(network, address string) (muxio.Socket, error) {
	var socketType int
	switch {
	case strings.HasPrefix(network, "tcp"):
		socketType = unix.SOCK_STREAM
	case strings.HasPrefix(network, "udp"):
		socketType = unix.SOCK_DGRAM
	default:
		return 0, fmt.Errorf("evloop: unsupported network: %s", network)
	}
	domain, err := addressFamily(address)
	if err != nil {
		return 0, err
	}
	fd, err := unix.Socket(domain, socketType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("evloop: socket: %w", err)
	}
	return muxio.Socket(fd), nil
}

// Close implements [muxio.SocketFactory].
func (f *SocketFactory) Close(socket muxio.Socket) error {
	if err := unix.Close(int(socket)); err != nil {
		return fmt.Errorf("evloop: close: %w", err)
	}
	return nil
}

// addressFamily maps a host:port address to an address family, defaulting
// to IPv4 when the host is not a literal IP address.
func addressFamily(address string) (int, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return unix.AF_INET, nil
	}
	if addr.Is6() && !addr.Is4In6() {
		return unix.AF_INET6, nil
	}
	return unix.AF_INET, nil
}
