// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Common error values used across the library.

package api

import "errors"

var (
	// ErrNotSupported is returned by platform stubs on operating systems
	// without a native socket implementation.
	ErrNotSupported = errors.New("operation not supported on this platform")

	// ErrSocketClosing is returned when an asynchronous send is submitted
	// to a socket that already entered its close sequence.
	ErrSocketClosing = errors.New("socket is closing")

	// ErrLoopStopped is returned when work is posted to an event loop
	// that has already been stopped.
	ErrLoopStopped = errors.New("event loop is stopped")

	// ErrAddrFamilyMismatch indicates that the address resolved after bind
	// does not belong to the requested address family.
	ErrAddrFamilyMismatch = errors.New("bound address family mismatch")
)
