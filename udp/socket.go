// File: udp/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event-loop owned UDP socket handle. Platform-specific syscalls live in
// socket_linux.go; other platforms get stubs.

package udp

import (
	"net/netip"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-udp/api"
	"github.com/momentics/hioload-udp/reactor"
)

// Socket is a bound UDP socket owned by an event loop. After a
// successful open, only the loop goroutine may submit sends; the raw
// descriptor is additionally usable for non-blocking fast-path sends
// from any goroutine.
type Socket struct {
	loop    *reactor.Loop
	logger  *zap.Logger
	fd      int
	family  int
	bound   netip.AddrPort
	closing atomic.Bool
}

// Fd returns the native descriptor for fast-path use.
func (s *Socket) Fd() int { return s.fd }

// Addr returns the resolved bound address.
func (s *Socket) Addr() netip.AddrPort { return s.bound }

// IsClosing reports whether AsyncClose has been requested.
func (s *Socket) IsClosing() bool { return s.closing.Load() }

// AsyncSend submits one datagram. Must be called from the loop
// goroutine. A non-nil return means the submission itself failed and
// done will never be invoked; otherwise done is invoked later on the
// loop goroutine with the transmit status.
func (s *Socket) AsyncSend(data []byte, dst netip.AddrPort, done func(err error)) error {
	if s.closing.Load() {
		return api.ErrSocketClosing
	}
	err := sendtoFd(s.fd, s.family, data, dst)
	s.loop.Defer(func() { done(err) })
	return nil
}

// AsyncClose closes the descriptor on the loop goroutine and then
// invokes done there. Repeated calls are no-ops; only the first done
// callback is delivered.
func (s *Socket) AsyncClose(done func()) {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	if err := s.loop.Post(func() {
		if err := closeFd(s.fd); err != nil {
			s.logger.Warn("udp socket: close failed", zap.Error(err))
		}
		s.loop.Defer(done)
	}); err != nil {
		// Loop already stopped; close inline.
		_ = closeFd(s.fd)
		done()
	}
}
