// File: packet/packet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package packet

import (
	"fmt"
	"net/netip"
	"sync/atomic"
)

// UDP carries the datagram addressing metadata of a packet.
type UDP struct {
	SrcAddr netip.AddrPort
	DstAddr netip.AddrPort
}

// Packet is a reference-counted datagram buffer.
//
// A packet starts with one reference owned by the creator. Every party
// that stores the packet beyond a single call must Retain it and Release
// it when done. When the last reference is released the packet returns
// to its pool, if any.
type Packet struct {
	next atomic.Pointer[Packet] // hand-off queue link, owned by Queue
	refs atomic.Int32

	pool   *Pool
	udp    UDP
	hasUDP bool
	data   []byte
}

// New creates a standalone packet with a single reference and no pool.
func New() *Packet {
	p := &Packet{}
	p.refs.Store(1)
	return p
}

// Retain increments the reference count.
func (p *Packet) Retain() {
	if p.refs.Add(1) <= 1 {
		panic("packet: retain of released packet")
	}
}

// Release decrements the reference count. Releasing the last reference
// recycles the packet into its pool.
func (p *Packet) Release() {
	refs := p.refs.Add(-1)
	if refs < 0 {
		panic(fmt.Sprintf("packet: refcount below zero: %d", refs))
	}
	if refs == 0 && p.pool != nil {
		p.pool.put(p)
	}
}

// Refs returns the current reference count. Intended for invariant
// checks; the value is stale the moment it is read.
func (p *Packet) Refs() int32 {
	return p.refs.Load()
}

// UDP returns the datagram metadata, or nil if the packet carries none.
func (p *Packet) UDP() *UDP {
	if !p.hasUDP {
		return nil
	}
	return &p.udp
}

// SetUDP attaches datagram metadata to the packet.
func (p *Packet) SetUDP(udp UDP) {
	p.udp = udp
	p.hasUDP = true
}

// Data returns the payload view.
func (p *Packet) Data() []byte {
	return p.data
}

// SetData sets the payload view. The packet does not copy the slice; it
// must stay valid until the last reference is released.
func (p *Packet) SetData(data []byte) {
	p.data = data
}

// reset prepares a recycled packet for reuse.
func (p *Packet) reset() {
	p.next.Store(nil)
	p.udp = UDP{}
	p.hasUDP = false
	p.data = nil
}
