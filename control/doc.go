// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics registry for observability of network ports.
//
// Ports publish rate-limited counter snapshots here; consumers read
// them through immutable snapshot copies. Purely observational: nothing
// in this package influences send paths or timing.
package control
