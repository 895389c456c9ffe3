//go:build !linux
// +build !linux

// File: udp/socket_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stubs for platforms without a native socket implementation.

package udp

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/momentics/hioload-udp/api"
	"github.com/momentics/hioload-udp/reactor"
)

func openSocket(loop *reactor.Loop, logger *zap.Logger, bind netip.AddrPort, broadcast bool) (*Socket, error) {
	return nil, api.ErrNotSupported
}

func sendtoFd(fd, family int, data []byte, dst netip.AddrPort) error {
	return api.ErrNotSupported
}

func trySendto(fd, family int, data []byte, dst netip.AddrPort) bool {
	return false
}

func closeFd(fd int) error {
	return api.ErrNotSupported
}
