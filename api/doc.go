// Package api
// Author: momentics <momentics@gmail.com>
//
// Shared contracts for the hioload-udp library: port lifecycle,
// close-handler notification, and common error values.
//
// Concrete implementations live in the packet, reactor and udp packages.
package api
