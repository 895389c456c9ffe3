// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counter registry for port observability.
// Exposes typed counters in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds named int64 counters published by ports.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]int64
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]int64),
	}
}

// Set sets or updates a counter.
func (mr *MetricsRegistry) Set(key string, value int64) {
	mr.mu.Lock()
	mr.counters[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Get returns one counter value and whether it has been published.
func (mr *MetricsRegistry) Get(key string) (int64, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	v, ok := mr.counters[key]
	return v, ok
}

// Updated returns the time of the most recent Set.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// GetSnapshot returns a copy of the latest counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.counters))
	for k, v := range mr.counters {
		out[k] = v
	}
	return out
}
