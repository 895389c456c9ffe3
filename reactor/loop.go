// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-udp/api"
)

const postedCapacity = 1024

// Loop is a single-goroutine task dispatcher. It owns every handle
// registered with it; handle callbacks, posted tasks and deferred
// completions all run serialized on the goroutine executing Run.
type Loop struct {
	logger *zap.Logger

	posted chan func()   // cross-goroutine task hand-off
	notify chan struct{} // coalesced wake doorbell

	// deferred holds loop-local follow-up work, such as asynchronous
	// send completions. Only the loop goroutine touches it, which keeps
	// the completion path free of locks and channel operations.
	deferred *queue.Queue

	wakesMu sync.Mutex
	wakes   atomic.Value // []*WakeHandle, copy-on-write

	quitOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
	running  atomic.Bool
}

// NewLoop creates a stopped loop. Call Run on a dedicated goroutine.
func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		logger:   logger,
		posted:   make(chan func(), postedCapacity),
		notify:   make(chan struct{}, 1),
		deferred: queue.New(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	l.wakes.Store([]*WakeHandle{})
	return l
}

// Run executes the dispatch loop until Stop is called. It returns
// immediately if the loop is already running.
func (l *Loop) Run() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		close(l.done)
		l.running.Store(false)
	}()

	l.logger.Debug("reactor: loop started")

	for {
		select {
		case <-l.quit:
			// Tasks already buffered must still run; a posted socket
			// close racing with Stop would otherwise leak its descriptor.
			l.drainPosted()
			l.drainDeferred()
			l.logger.Debug("reactor: loop stopped")
			return
		case fn := <-l.posted:
			fn()
		case <-l.notify:
			l.dispatchWakes()
		}
		l.drainDeferred()
	}
}

// Stop signals the loop to exit and waits for Run to return.
func (l *Loop) Stop() {
	l.quitOnce.Do(func() { close(l.quit) })
	if l.running.Load() {
		<-l.done
	}
}

// Post schedules fn on the loop goroutine. Safe for any goroutine.
// Posting after Stop fails with ErrLoopStopped.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.quit:
		return api.ErrLoopStopped
	default:
	}
	select {
	case l.posted <- fn:
		return nil
	case <-l.quit:
		return api.ErrLoopStopped
	}
}

// Defer schedules fn to run after the current dispatch round. It must
// only be called from the loop goroutine; that restriction is what lets
// the deferred queue stay unsynchronized.
func (l *Loop) Defer(fn func()) {
	l.deferred.Add(fn)
}

func (l *Loop) drainPosted() {
	for {
		select {
		case fn := <-l.posted:
			fn()
		default:
			return
		}
	}
}

func (l *Loop) drainDeferred() {
	for l.deferred.Length() > 0 {
		l.deferred.Remove().(func())()
	}
}

func (l *Loop) dispatchWakes() {
	wakes := l.wakes.Load().([]*WakeHandle)
	for _, w := range wakes {
		if w.closing.Load() {
			continue
		}
		if w.signaled.Swap(false) {
			w.cb()
		}
	}
}

func (l *Loop) addWake(w *WakeHandle) {
	l.wakesMu.Lock()
	defer l.wakesMu.Unlock()
	old := l.wakes.Load().([]*WakeHandle)
	wakes := make([]*WakeHandle, len(old)+1)
	copy(wakes, old)
	wakes[len(old)] = w
	l.wakes.Store(wakes)
}

func (l *Loop) removeWake(w *WakeHandle) {
	l.wakesMu.Lock()
	defer l.wakesMu.Unlock()
	old := l.wakes.Load().([]*WakeHandle)
	wakes := make([]*WakeHandle, 0, len(old))
	for _, h := range old {
		if h != w {
			wakes = append(wakes, h)
		}
	}
	l.wakes.Store(wakes)
}

// ring the doorbell; redundant rings coalesce into one wakeup.
func (l *Loop) ring() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}
