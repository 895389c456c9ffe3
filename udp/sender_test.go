//go:build linux
// +build linux

package udp_test

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-udp/api"
	"github.com/momentics/hioload-udp/control"
	"github.com/momentics/hioload-udp/packet"
	"github.com/momentics/hioload-udp/reactor"
	"github.com/momentics/hioload-udp/udp"
)

const waitFor = 5 * time.Second
const tick = time.Millisecond

func startLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	loop := reactor.NewLoop(zaptest.NewLogger(t))
	go loop.Run()
	t.Cleanup(loop.Stop)
	return loop
}

// startReceiver binds a loopback UDP socket and collects incoming
// payloads on a channel.
func startReceiver(t *testing.T) (netip.AddrPort, <-chan []byte) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	received := make(chan []byte, 64)
	go func() {
		buf := make([]byte, 2048)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			received <- data
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).AddrPort(), received
}

func newPort(t *testing.T, loop *reactor.Loop, nonblocking bool) *udp.SenderPort {
	t.Helper()
	return udp.NewSenderPort(loop, udp.SenderConfig{
		BindAddr:    netip.MustParseAddrPort("127.0.0.1:0"),
		NonBlocking: nonblocking,
	}, zaptest.NewLogger(t))
}

func newPacket(pool *packet.Pool, dst netip.AddrPort, payload string) *packet.Packet {
	pp := pool.Get()
	pp.SetUDP(packet.UDP{DstAddr: dst})
	pp.SetData([]byte(payload))
	return pp
}

type closeWaiter struct{ ch chan struct{} }

func newCloseWaiter() *closeWaiter { return &closeWaiter{ch: make(chan struct{})} }

func (w *closeWaiter) HandleClosed(api.Port) { close(w.ch) }

func (w *closeWaiter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-w.ch:
	case <-time.After(waitFor):
		t.Fatal("close handler never fired")
	}
}

func closePort(t *testing.T, port *udp.SenderPort) {
	t.Helper()
	w := newCloseWaiter()
	if port.AsyncClose(w) {
		w.wait(t)
	}
	port.Destroy()
}

func TestSenderPortEphemeralOpen(t *testing.T) {
	loop := startLoop(t)
	dst, received := startReceiver(t)

	port := newPort(t, loop, false)
	require.NoError(t, port.Open())
	require.NotZero(t, port.Addr().Port(), "ephemeral port must resolve to a concrete one")

	pool := packet.NewPool()
	for _, payload := range []string{"one", "two", "three"} {
		pp := newPacket(pool, dst, payload)
		port.Write(pp)
		pp.Release()
	}

	require.Eventually(t, func() bool {
		s := port.Stats()
		return s.Sent == 3 && s.Pending == 0
	}, waitFor, tick)

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case data := <-received:
			got[string(data)] = true
		case <-time.After(waitFor):
			t.Fatalf("received %d/3 datagrams", i)
		}
	}
	require.Len(t, got, 3)

	closePort(t, port)
}

func TestSenderPortFastPath(t *testing.T) {
	loop := startLoop(t)
	dst, received := startReceiver(t)

	port := newPort(t, loop, true)
	require.NoError(t, port.Open())

	pool := packet.NewPool()
	pp := newPacket(pool, dst, "fast")
	port.Write(pp)

	// Fast-path success returns ownership immediately: no queueing, no
	// extra reference, nothing pending.
	s := port.Stats()
	require.EqualValues(t, 1, s.Sent)
	require.EqualValues(t, 0, s.SentQueued)
	require.EqualValues(t, 0, s.Pending)
	require.EqualValues(t, 1, pp.Refs())
	pp.Release()

	select {
	case data := <-received:
		require.Equal(t, "fast", string(data))
	case <-time.After(waitFor):
		t.Fatal("datagram never arrived")
	}

	closePort(t, port)
}

// With the fast path disabled every write takes the deferred path; the
// datagram must still be submitted without any further Write call.
func TestSenderPortDeferredDelivery(t *testing.T) {
	loop := startLoop(t)
	dst, received := startReceiver(t)

	port := newPort(t, loop, false)
	require.NoError(t, port.Open())

	pool := packet.NewPool()
	pp := newPacket(pool, dst, "deferred")
	port.Write(pp)

	require.Eventually(t, func() bool {
		s := port.Stats()
		return s.SentQueued == 1 && s.Pending == 0
	}, waitFor, tick)

	select {
	case data := <-received:
		require.Equal(t, "deferred", string(data))
	case <-time.After(waitFor):
		t.Fatal("datagram never arrived")
	}

	// Queue and in-flight references have retired; only ours remains.
	require.Eventually(t, func() bool { return pp.Refs() == 1 }, waitFor, tick)
	pp.Release()

	closePort(t, port)
}

// A failed non-blocking transmit attempt must fall through to the
// queued path, and while that send is pending every later write must
// skip the fast path even though it would succeed.
func TestSenderPortFastPathSuppressedWhilePending(t *testing.T) {
	loop := startLoop(t)
	dst, received := startReceiver(t)

	port := newPort(t, loop, true)
	require.NoError(t, port.Open())

	// Stall the loop so queued packets stay pending.
	gate := make(chan struct{})
	require.NoError(t, loop.Post(func() { <-gate }))

	pool := packet.NewPool()

	// Destination port zero makes sendto fail, so the fast path is
	// attempted and rejected; the packet must land on the queue.
	bad := newPacket(pool, netip.AddrPortFrom(dst.Addr(), 0), "rejected")
	port.Write(bad)
	bad.Release()

	s := port.Stats()
	require.EqualValues(t, 1, s.Pending)
	require.EqualValues(t, 0, s.Sent)

	// This transmit would succeed, but a send is pending: queued path.
	pp := newPacket(pool, dst, "after")
	port.Write(pp)
	pp.Release()

	s = port.Stats()
	require.EqualValues(t, 2, s.Pending)
	require.EqualValues(t, 0, s.Sent)

	close(gate)

	require.Eventually(t, func() bool {
		s := port.Stats()
		return s.SentQueued == 2 && s.Pending == 0
	}, waitFor, tick)

	select {
	case data := <-received:
		require.Equal(t, "after", string(data))
	case <-time.After(waitFor):
		t.Fatal("datagram never arrived")
	}

	closePort(t, port)
}

// Close must not complete while a send is still pending; the last
// completion triggers it.
func TestSenderPortCloseWaitsForPending(t *testing.T) {
	loop := startLoop(t)
	dst, _ := startReceiver(t)

	port := newPort(t, loop, false)
	require.NoError(t, port.Open())

	// Stall the loop so the queued packet stays pending.
	gate := make(chan struct{})
	require.NoError(t, loop.Post(func() { <-gate }))

	pool := packet.NewPool()
	pp := newPacket(pool, dst, "pending")
	port.Write(pp)
	pp.Release()
	require.EqualValues(t, 1, port.Stats().Pending)

	w := newCloseWaiter()
	require.True(t, port.AsyncClose(w))

	select {
	case <-w.ch:
		t.Fatal("close handler fired with a send still pending")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	w.wait(t)
	require.EqualValues(t, 0, port.Stats().Pending)
	port.Destroy()
}

func TestSenderPortWriteAfterCloseRequestPanics(t *testing.T) {
	loop := startLoop(t)
	dst, _ := startReceiver(t)

	port := newPort(t, loop, false)
	require.NoError(t, port.Open())

	w := newCloseWaiter()
	closing := port.AsyncClose(w)

	pool := packet.NewPool()
	pp := newPacket(pool, dst, "late")
	require.PanicsWithValue(t, "udp sender: attempt to use stopped sender",
		func() { port.Write(pp) })
	pp.Release()

	if closing {
		w.wait(t)
	}
	port.Destroy()
}

func TestSenderPortDoubleAsyncClosePanics(t *testing.T) {
	loop := startLoop(t)

	port := newPort(t, loop, false)
	require.NoError(t, port.Open())

	w := newCloseWaiter()
	require.True(t, port.AsyncClose(w))
	require.Panics(t, func() { port.AsyncClose(newCloseWaiter()) })

	w.wait(t)
	port.Destroy()
}

func TestSenderPortAsyncCloseBeforeOpen(t *testing.T) {
	loop := startLoop(t)

	port := newPort(t, loop, false)
	require.False(t, port.AsyncClose(newCloseWaiter()),
		"an unopened port is already fully closed")
	port.Destroy()
}

func TestSenderPortDestroyWithPendingPanics(t *testing.T) {
	loop := startLoop(t)
	dst, _ := startReceiver(t)

	port := newPort(t, loop, false)
	require.NoError(t, port.Open())

	gate := make(chan struct{})
	require.NoError(t, loop.Post(func() { <-gate }))

	pool := packet.NewPool()
	pp := newPacket(pool, dst, "held")
	port.Write(pp)
	pp.Release()

	require.Panics(t, func() { port.Destroy() })

	close(gate)
	closePort(t, port)
}

func TestSenderPortMetricsPublished(t *testing.T) {
	loop := startLoop(t)
	dst, _ := startReceiver(t)

	port := newPort(t, loop, false)
	metrics := control.NewMetricsRegistry()
	port.AttachMetrics(metrics)
	require.NoError(t, port.Open())

	pool := packet.NewPool()
	pp := newPacket(pool, dst, "metered")
	port.Write(pp)
	pp.Release()

	// The first write always passes the rate limiter.
	_, ok := metrics.Get("udp_sender.sent")
	require.True(t, ok)

	closePort(t, port)
}
