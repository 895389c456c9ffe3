package udp_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-udp/packet"
	"github.com/momentics/hioload-udp/reactor"
	"github.com/momentics/hioload-udp/udp"
)

// Contract violations panic before any socket is touched, so these
// cases run on every platform.
func TestWriteContractViolations(t *testing.T) {
	port := udp.NewSenderPort(reactor.NewLoop(nil), udp.SenderConfig{
		BindAddr: netip.MustParseAddrPort("127.0.0.1:0"),
	}, nil)

	t.Run("nil packet", func(t *testing.T) {
		require.PanicsWithValue(t, "udp sender: unexpected nil packet",
			func() { port.Write(nil) })
	})

	t.Run("missing udp metadata", func(t *testing.T) {
		pp := packet.New()
		pp.SetData([]byte("x"))
		require.PanicsWithValue(t, "udp sender: unexpected non-udp packet",
			func() { port.Write(pp) })
	})

	t.Run("empty payload", func(t *testing.T) {
		pp := packet.New()
		pp.SetUDP(packet.UDP{DstAddr: netip.MustParseAddrPort("127.0.0.1:9")})
		require.PanicsWithValue(t, "udp sender: unexpected packet without data",
			func() { port.Write(pp) })
	})

	t.Run("write before open", func(t *testing.T) {
		pp := packet.New()
		pp.SetUDP(packet.UDP{DstAddr: netip.MustParseAddrPort("127.0.0.1:9")})
		pp.SetData([]byte("x"))
		require.PanicsWithValue(t, "udp sender: attempt to use stopped sender",
			func() { port.Write(pp) })
	})
}
