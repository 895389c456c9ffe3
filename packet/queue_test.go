package packet_test

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-udp/packet"
)

func TestQueueFIFO(t *testing.T) {
	q := packet.NewQueue()
	require.Nil(t, q.TryPopExclusive())

	p1, p2, p3 := packet.New(), packet.New(), packet.New()
	q.PushBack(p1)
	q.PushBack(p2)
	q.PushBack(p3)

	require.Same(t, p1, q.TryPopExclusive())
	require.Same(t, p2, q.TryPopExclusive())
	require.Same(t, p3, q.TryPopExclusive())
	require.Nil(t, q.TryPopExclusive())
}

// Drains to empty between rounds so the stub re-append branch of the
// pop is exercised repeatedly.
func TestQueueStubRecycle(t *testing.T) {
	q := packet.NewQueue()
	pp := packet.New()

	for i := 0; i < 1000; i++ {
		q.PushBack(pp)
		require.Same(t, pp, q.TryPopExclusive())
		require.Nil(t, q.TryPopExclusive())
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := packet.NewQueue()
	const producers = 8
	const perProducer = 10000
	total := int64(producers * perProducer)

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.PushBack(packet.New())
			}
		}()
	}

	var received int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := make(map[*packet.Packet]bool, total)
		for atomic.LoadInt64(&received) < total {
			pp := q.TryPopExclusive()
			if pp == nil {
				// Spurious empty is legitimate under concurrent
				// pushes; retrying plays the role of the wake signal.
				runtime.Gosched()
				continue
			}
			if seen[pp] {
				t.Error("packet popped twice")
				return
			}
			seen[pp] = true
			atomic.AddInt64(&received, 1)
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("timeout: received %d/%d", atomic.LoadInt64(&received), total)
	}
	require.EqualValues(t, total, atomic.LoadInt64(&received))
	require.Nil(t, q.TryPopExclusive())
}
