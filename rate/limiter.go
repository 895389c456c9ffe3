// File: rate/limiter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interval rate limiter gating periodic work such as statistics logging.

package rate

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Limiter allows at most one event per period. The first call to Allow
// always succeeds. Safe for concurrent use.
type Limiter struct {
	clock    clock.Clock
	period   time.Duration
	deadline atomic.Int64 // unix nanos of the next allowed event
}

// NewLimiter creates a limiter driven by the wall clock.
func NewLimiter(period time.Duration) *Limiter {
	return NewLimiterWithClock(period, clock.New())
}

// NewLimiterWithClock creates a limiter driven by the given clock.
// Tests pass a clock.Mock to control time.
func NewLimiterWithClock(period time.Duration, c clock.Clock) *Limiter {
	l := &Limiter{clock: c, period: period}
	// The first Allow must succeed even for clocks starting before the
	// unix epoch.
	l.deadline.Store(math.MinInt64)
	return l
}

// Allow reports whether the rate-limited event may fire now and, if so,
// arms the next deadline.
func (l *Limiter) Allow() bool {
	now := l.clock.Now().UnixNano()
	for {
		deadline := l.deadline.Load()
		if now < deadline {
			return false
		}
		if l.deadline.CompareAndSwap(deadline, now+int64(l.period)) {
			return true
		}
	}
}
