package packet_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-udp/packet"
)

func TestPacketRefcountLifecycle(t *testing.T) {
	pool := packet.NewPool()

	pp := pool.Get()
	require.EqualValues(t, 1, pp.Refs())
	require.Nil(t, pp.UDP())
	require.Empty(t, pp.Data())

	pp.Retain()
	require.EqualValues(t, 2, pp.Refs())
	pp.Release()
	require.EqualValues(t, 1, pp.Refs())
	pp.Release()

	// A recycled packet comes back clean.
	next := pool.Get()
	require.EqualValues(t, 1, next.Refs())
	require.Nil(t, next.UDP())
	require.Empty(t, next.Data())
	next.Release()
}

func TestPacketReleaseBelowZeroPanics(t *testing.T) {
	pp := packet.New()
	pp.Release()
	require.Panics(t, func() { pp.Release() })
}

func TestPacketRetainAfterReleasePanics(t *testing.T) {
	pp := packet.New()
	pp.Release()
	require.Panics(t, func() { pp.Retain() })
}
