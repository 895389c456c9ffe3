//go:build linux
// +build linux

// File: udp/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket setup and sendto via golang.org/x/sys/unix.

package udp

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-udp/api"
	"github.com/momentics/hioload-udp/reactor"
)

// openSocket creates, configures and binds a non-blocking UDP socket.
//
// On failure after descriptor creation the returned socket is non-nil
// and still live, so the caller's close sequence can reap it.
func openSocket(loop *reactor.Loop, logger *zap.Logger, bind netip.AddrPort, broadcast bool) (*Socket, error) {
	family := unix.AF_INET
	if bind.Addr().IsValid() && bind.Addr().Is6() && !bind.Addr().Is4In6() {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	s := &Socket{
		loop:   loop,
		logger: logger,
		fd:     fd,
		family: family,
		bound:  bind,
	}

	sa := bindSockaddr(bind, family)

	// For IPv6, attempt a dual-stack-restricted bind first and fall back
	// to an unrestricted one if the option is rejected.
	bindErr := error(unix.EINVAL)
	if family == unix.AF_INET6 {
		if bindErr = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); bindErr == nil {
			bindErr = unix.Bind(fd, sa)
		}
	}
	if bindErr == unix.EINVAL || bindErr == unix.ENOTSUP {
		if family == unix.AF_INET6 {
			_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
		}
		bindErr = unix.Bind(fd, sa)
	}
	if bindErr != nil {
		return s, fmt.Errorf("bind %s: %w", bind, bindErr)
	}

	if broadcast {
		logger.Debug("udp socket: enabling broadcast", zap.Stringer("addr", bind))
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			return s, fmt.Errorf("set SO_BROADCAST: %w", err)
		}
	}

	// Resolve the actual bound address; required when an ephemeral port
	// was requested.
	name, err := unix.Getsockname(fd)
	if err != nil {
		return s, fmt.Errorf("getsockname: %w", err)
	}
	bound, got4, err := addrOfSockaddr(name)
	if err != nil {
		return s, err
	}
	if got4 != (family == unix.AF_INET) {
		return s, api.ErrAddrFamilyMismatch
	}
	s.bound = bound

	return s, nil
}

// sendtoFd transmits one datagram on a non-blocking descriptor.
func sendtoFd(fd, family int, data []byte, dst netip.AddrPort) error {
	return unix.Sendto(fd, data, 0, destSockaddr(dst, family))
}

// trySendto performs one true non-blocking transmit attempt. It reports
// success only; any failure, would-block included, makes the caller fall
// through to the queued path.
func trySendto(fd, family int, data []byte, dst netip.AddrPort) bool {
	return unix.Sendto(fd, data, unix.MSG_DONTWAIT, destSockaddr(dst, family)) == nil
}

func closeFd(fd int) error {
	return unix.Close(fd)
}

func bindSockaddr(ap netip.AddrPort, family int) unix.Sockaddr {
	if family == unix.AF_INET {
		sa := &unix.SockaddrInet4{Port: int(ap.Port())}
		if a := ap.Addr(); a.IsValid() && (a.Is4() || a.Is4In6()) {
			sa.Addr = a.As4()
		}
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port())}
	if a := ap.Addr(); a.IsValid() {
		sa.Addr = a.As16()
	}
	return sa
}

// destSockaddr builds the destination sockaddr in the socket's family,
// mapping IPv4 destinations on dual-stack sockets.
func destSockaddr(dst netip.AddrPort, family int) unix.Sockaddr {
	if family == unix.AF_INET {
		sa := &unix.SockaddrInet4{Port: int(dst.Port())}
		if a := dst.Addr(); a.Is4() || a.Is4In6() {
			sa.Addr = a.As4()
		}
		return sa
	}
	return &unix.SockaddrInet6{Port: int(dst.Port()), Addr: dst.Addr().As16()}
}

func addrOfSockaddr(sa unix.Sockaddr) (ap netip.AddrPort, is4 bool, err error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), true, nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)), false, nil
	default:
		return netip.AddrPort{}, false, fmt.Errorf("unexpected sockaddr %T", sa)
	}
}
