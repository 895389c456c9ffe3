// File: packet/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// sync.Pool backed packet recycler.

package packet

import "sync"

// Pool recycles packets whose last reference has been released.
type Pool struct {
	pool sync.Pool
}

// NewPool creates an empty packet pool.
func NewPool() *Pool {
	pl := &Pool{}
	pl.pool.New = func() any {
		return &Packet{pool: pl}
	}
	return pl
}

// Get returns a fresh packet with a single reference owned by the caller.
func (pl *Pool) Get() *Packet {
	p := pl.pool.Get().(*Packet)
	p.refs.Store(1)
	return p
}

func (pl *Pool) put(p *Packet) {
	p.reset()
	pl.pool.Put(p)
}
