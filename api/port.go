// File: api/port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Port lifecycle contracts shared by network port implementations and
// their owners.

package api

import "net/netip"

// Port is a bound network endpoint owned by an event loop.
type Port interface {
	// Open binds the port and makes it ready for IO.
	Open() error

	// Addr returns the resolved bound address. Before a successful Open
	// it returns the configured bind address.
	Addr() netip.AddrPort
}

// CloseHandler receives the one-shot notification that a port finished
// its asynchronous close sequence and released all OS resources.
//
// The callback runs on the event loop goroutine.
type CloseHandler interface {
	HandleClosed(port Port)
}

// CloseHandlerFunc adapts a plain function to the CloseHandler interface.
type CloseHandlerFunc func(port Port)

// HandleClosed implements CloseHandler.
func (f CloseHandlerFunc) HandleClosed(port Port) { f(port) }
