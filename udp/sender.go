// File: udp/sender.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Asynchronous outbound UDP port. Producers on any goroutine hand
// datagrams over a lock-free queue to the event loop, which owns the
// socket and performs all submissions and the close sequence.

package udp

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-udp/api"
	"github.com/momentics/hioload-udp/control"
	"github.com/momentics/hioload-udp/packet"
	"github.com/momentics/hioload-udp/rate"
	"github.com/momentics/hioload-udp/reactor"
)

// statsLogInterval limits how often Write logs the send counters.
const statsLogInterval = 20 * time.Second

// Ensure compile-time interface compliance.
var _ api.Port = (*SenderPort)(nil)

// SenderConfig is fixed at construction.
type SenderConfig struct {
	// BindAddr is the local address to bind. A zero port requests an
	// ephemeral port; an invalid address means IPv4 unspecified.
	BindAddr netip.AddrPort

	// Broadcast enables SO_BROADCAST on the socket.
	Broadcast bool

	// NonBlocking enables the fast path: a synchronous non-blocking
	// transmit attempt on the writer's goroutine before queueing.
	NonBlocking bool
}

// SenderStats is a point-in-time snapshot of the port counters.
type SenderStats struct {
	// Sent counts datagrams handed to the OS, both paths.
	Sent uint32
	// SentQueued counts datagrams submitted through the deferred path.
	SentQueued uint32
	// Pending counts sends submitted to the OS but not yet completed.
	Pending int32
}

// SenderPort sends UDP datagrams without ever blocking the writer.
//
// Lifecycle: Constructed -> Open -> Closing -> Closed. Open and all
// internal callbacks run on the event loop goroutine; Write may be
// called from any goroutine while the port is open. After AsyncClose
// the port drains in-flight sends, closes both its handles and notifies
// the registered handler exactly once.
type SenderPort struct {
	cfg    SenderConfig
	loop   *reactor.Loop
	logger *zap.Logger

	handlerMu    sync.Mutex
	closeHandler api.CloseHandler

	queue *packet.Queue
	wake  *reactor.WakeHandle
	sock  *Socket
	fd    int

	bound netip.AddrPort

	wakeLive atomic.Bool
	sockLive atomic.Bool

	pending    atomic.Int32
	sent       atomic.Uint32
	sentQueued atomic.Uint32

	stopped atomic.Bool
	closed  atomic.Bool

	limiter *rate.Limiter
	metrics *control.MetricsRegistry
}

// NewSenderPort creates an unbound port attached to the loop. A nil
// logger disables logging.
func NewSenderPort(loop *reactor.Loop, cfg SenderConfig, logger *zap.Logger) *SenderPort {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &SenderPort{
		cfg:     cfg,
		loop:    loop,
		logger:  logger,
		queue:   packet.NewQueue(),
		bound:   cfg.BindAddr,
		limiter: rate.NewLimiter(statsLogInterval),
	}
	p.stopped.Store(true)
	return p
}

// AttachMetrics publishes rate-limited counter snapshots into reg.
// Must be called before Open.
func (p *SenderPort) AttachMetrics(reg *control.MetricsRegistry) {
	p.metrics = reg
}

// Addr returns the resolved bound address.
func (p *SenderPort) Addr() netip.AddrPort {
	return p.bound
}

// Open registers the wake handle, then creates, configures and binds
// the socket. Any failure is returned to the caller without retry;
// handles that came up stay live so AsyncClose can reap them.
func (p *SenderPort) Open() error {
	p.wake = p.loop.NewWake(p.drain)
	p.wakeLive.Store(true)

	sock, err := openSocket(p.loop, p.logger, p.cfg.BindAddr, p.cfg.Broadcast)
	if sock != nil {
		p.sock = sock
		p.sockLive.Store(true)
	}
	if err != nil {
		p.logger.Error("udp sender: open failed",
			zap.Stringer("addr", p.cfg.BindAddr), zap.Error(err))
		return fmt.Errorf("udp sender: open %s: %w", p.cfg.BindAddr, err)
	}

	p.fd = sock.Fd()
	p.bound = sock.Addr()

	p.logger.Info("udp sender: opened port", zap.Stringer("addr", p.bound))

	p.stopped.Store(false)
	return nil
}

// Write submits one datagram for transmission. It never blocks: the
// packet is either transmitted immediately through the fast path or
// queued for the event loop. Contract violations are programmer errors
// and panic.
func (p *SenderPort) Write(pp *packet.Packet) {
	if pp == nil {
		panic("udp sender: unexpected nil packet")
	}
	if pp.UDP() == nil {
		panic("udp sender: unexpected non-udp packet")
	}
	if len(pp.Data()) == 0 {
		panic("udp sender: unexpected packet without data")
	}
	if p.stopped.Load() {
		panic("udp sender: attempt to use stopped sender")
	}

	p.write(pp)

	p.reportStats()
}

func (p *SenderPort) write(pp *packet.Packet) {
	// The pending pre-increment and this check are deliberately not
	// atomic with each other: two racing writers may both skip the fast
	// path, which costs one reactor round-trip, never correctness.
	hadPending := p.pending.Add(1) > 1

	if !hadPending && p.tryNonblockingSend(pp) {
		p.pending.Add(-1)
		return
	}

	pp.Retain() // queue's reference, consumed by drain
	p.queue.PushBack(pp)

	// Always signal after a push: the drain loop may have just observed
	// a spurious empty pop, and only this wake guarantees it re-enters.
	p.wake.Signal()
}

// tryNonblockingSend is the fast path: one true non-blocking transmit
// attempt on the calling goroutine. On success the packet never touches
// the queue and no extra reference is taken.
func (p *SenderPort) tryNonblockingSend(pp *packet.Packet) bool {
	if !p.cfg.NonBlocking {
		return false
	}

	udp := pp.UDP()
	if !trySendto(p.fd, p.sock.family, pp.Data(), udp.DstAddr) {
		return false
	}

	num := p.sent.Add(1)
	p.logger.Debug("udp sender: sent packet non-blocking",
		zap.Uint32("num", num),
		zap.Stringer("src", p.bound),
		zap.Stringer("dst", udp.DstAddr),
		zap.Int("size", len(pp.Data())))
	return true
}

// drain is the wake callback. It runs on the loop goroutine and submits
// every packet currently visible in the queue.
//
// TryPopExclusive keeps this loop lock-free and wait-free. It may
// return nil while a concurrent push is mid-flight; since every push is
// followed by a wake signal, the loop re-enters and eventually observes
// the packet.
func (p *SenderPort) drain() {
	for {
		pp := p.queue.TryPopExclusive()
		if pp == nil {
			return
		}

		udp := pp.UDP()

		num := p.sent.Add(1)
		p.sentQueued.Add(1)

		p.logger.Debug("udp sender: sending packet",
			zap.Uint32("num", num),
			zap.Stringer("src", p.bound),
			zap.Stringer("dst", udp.DstAddr),
			zap.Int("size", len(pp.Data())))

		// Hold an extra reference for the duration of the flight; the
		// completion callback releases it.
		pp.Retain()

		if err := p.sock.AsyncSend(pp.Data(), udp.DstAddr, p.sendDone(pp)); err != nil {
			pp.Release() // undo the in-flight hold
			p.logger.Error("udp sender: send submission failed",
				zap.Stringer("dst", udp.DstAddr), zap.Error(err))
			pp.Release() // queue's reference
			p.retirePending()
			continue
		}

		pp.Release() // queue's reference; the in-flight hold remains
	}
}

// sendDone builds the completion callback for one in-flight packet. It
// runs on the loop goroutine when the OS reports the transmit status.
func (p *SenderPort) sendDone(pp *packet.Packet) func(err error) {
	return func(err error) {
		// The in-flight hold taken by drain must still be in place.
		if refs := pp.Refs(); refs < 1 {
			panic(fmt.Sprintf("udp sender: unexpected packet refcount in send completion: %d", refs))
		}

		pp.Retain() // callback's local handle

		pp.Release() // the in-flight hold taken by drain

		if err != nil {
			p.logger.Error("udp sender: can't send packet",
				zap.Stringer("src", p.bound),
				zap.Stringer("dst", pp.UDP().DstAddr),
				zap.Int("size", len(pp.Data())),
				zap.Error(err))
		}

		pp.Release() // local handle

		p.retirePending()
	}
}

// retirePending decrements the pending counter and, when the port is
// stopped and fully drained, begins the close sequence.
func (p *SenderPort) retirePending() {
	pending := p.pending.Add(-1)
	if pending < 0 {
		panic(fmt.Sprintf("udp sender: pending packet counter below zero: %d", pending))
	}
	if pending == 0 && p.stopped.Load() {
		p.startClosing()
	}
}

// AsyncClose registers the one-shot close handler and stops the port.
// It returns false when the port is already fully closed; the handler
// is then never invoked. Callers must not assume the close completed
// synchronously even when it returns false.
func (p *SenderPort) AsyncClose(handler api.CloseHandler) bool {
	p.handlerMu.Lock()
	if p.closeHandler != nil {
		p.handlerMu.Unlock()
		panic("udp sender: can't call AsyncClose twice")
	}
	p.closeHandler = handler
	p.handlerMu.Unlock()

	p.stopped.Store(true)

	if p.fullyClosed() {
		return false
	}

	if p.pending.Load() == 0 {
		p.startClosing()
	}

	return true
}

func (p *SenderPort) fullyClosed() bool {
	if !p.wakeLive.Load() && !p.sockLive.Load() {
		return true
	}
	return p.closed.Load()
}

// startClosing initiates the asynchronous close of both handles. It is
// idempotent: already-closing handles are skipped, and a fully closed
// port is a no-op.
func (p *SenderPort) startClosing() {
	if p.fullyClosed() {
		return
	}

	if p.sockLive.Load() && !p.sock.IsClosing() {
		p.logger.Info("udp sender: closing port", zap.Stringer("addr", p.bound))
		p.sock.AsyncClose(p.closeDone(&p.sockLive))
	}

	if p.wakeLive.Load() && !p.wake.IsClosing() {
		p.wake.AsyncClose(p.closeDone(&p.wakeLive))
	}
}

// closeDone builds the shared close-completion callback for one handle.
// Both callbacks run serialized on the loop goroutine; the second one
// to clear its flag fires the handler.
func (p *SenderPort) closeDone(live *atomic.Bool) func() {
	return func() {
		live.Store(false)

		if p.wakeLive.Load() || p.sockLive.Load() {
			return
		}

		p.logger.Info("udp sender: closed port", zap.Stringer("addr", p.bound))

		p.handlerMu.Lock()
		handler := p.closeHandler
		p.handlerMu.Unlock()
		if handler == nil {
			panic("udp sender: close completed without a registered handler")
		}

		p.closed.Store(true)
		handler.HandleClosed(p)
	}
}

// Destroy asserts the destruction precondition: both handles closed and
// no pending sends. Violations are caller bugs and panic.
func (p *SenderPort) Destroy() {
	if p.wakeLive.Load() || p.sockLive.Load() {
		panic("udp sender: sender was not fully closed before destroy")
	}
	if p.pending.Load() != 0 {
		panic("udp sender: packets weren't fully sent before destroy")
	}
}

// Stats returns a snapshot of the port counters.
func (p *SenderPort) Stats() SenderStats {
	return SenderStats{
		Sent:       p.sent.Load(),
		SentQueued: p.sentQueued.Load(),
		Pending:    p.pending.Load(),
	}
}

// reportStats logs the counters at most once per statsLogInterval.
// Purely observational; never influences the send paths.
func (p *SenderPort) reportStats() {
	if !p.limiter.Allow() {
		return
	}

	sent := p.sent.Load()
	sentNB := sent - p.sentQueued.Load()

	var nbRatio float64
	if sentNB != 0 {
		nbRatio = float64(sent) / float64(sentNB)
	}

	p.logger.Debug("udp sender: stats",
		zap.Uint32("total", sent),
		zap.Uint32("nb", sentNB),
		zap.Float64("nb_ratio", nbRatio))

	if p.metrics != nil {
		p.metrics.Set("udp_sender.sent", int64(sent))
		p.metrics.Set("udp_sender.sent_nb", int64(sentNB))
		p.metrics.Set("udp_sender.pending", int64(p.pending.Load()))
	}
}
