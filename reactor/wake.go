// File: reactor/wake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe, coalescing async-wake primitive.

package reactor

import "sync/atomic"

// WakeHandle wakes the loop goroutine and runs a registered callback.
//
// Signal may be called from any goroutine, any number of times;
// redundant signals coalesce into a single callback invocation. The
// callback runs on the loop goroutine.
type WakeHandle struct {
	loop     *Loop
	cb       func()
	signaled atomic.Bool
	closing  atomic.Bool
}

// NewWake registers a wake handle with the loop. Safe to call before or
// after the loop starts running.
func (l *Loop) NewWake(cb func()) *WakeHandle {
	w := &WakeHandle{loop: l, cb: cb}
	l.addWake(w)
	return w
}

// Signal requests a callback invocation on the loop goroutine. Signals
// arriving while a previous one is still undelivered coalesce.
func (w *WakeHandle) Signal() {
	if !w.signaled.CompareAndSwap(false, true) {
		return
	}
	w.loop.ring()
}

// IsClosing reports whether AsyncClose has been requested.
func (w *WakeHandle) IsClosing() bool {
	return w.closing.Load()
}

// AsyncClose unregisters the handle and invokes done on the loop
// goroutine once no further callbacks can fire. Repeated calls are
// no-ops; only the first done callback is delivered.
func (w *WakeHandle) AsyncClose(done func()) {
	if !w.closing.CompareAndSwap(false, true) {
		return
	}
	if err := w.loop.Post(func() {
		w.loop.removeWake(w)
		w.loop.Defer(done)
	}); err != nil {
		// Loop already stopped: nothing can race with done anymore.
		w.loop.removeWake(w)
		done()
	}
}
