// File: packet/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Intrusive lock-free multi-producer/single-consumer packet queue,
// after Vyukov's MPSC scheme with a stub node.

package packet

import "sync/atomic"

// Queue is a lock-free MPSC queue of packets.
//
// Any number of producers may PushBack concurrently. Exactly one
// consumer may call TryPopExclusive. The pop is non-blocking and may
// spuriously report an empty queue while a concurrent push is between
// its tail swap and its link store. Callers must pair every push with a
// wake signal to the consumer, so a spurious empty pop is always
// followed by another drain attempt that observes the packet.
//
// The queue does not touch reference counts. The producer transfers one
// reference with each pushed packet; a successful pop hands that
// reference to the consumer.
type Queue struct {
	head *Packet // consumer-owned
	tail atomic.Pointer[Packet]
	stub Packet
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.head = &q.stub
	q.tail.Store(&q.stub)
	return q
}

// PushBack appends a packet. Safe for concurrent producers, wait-free.
func (q *Queue) PushBack(p *Packet) {
	p.next.Store(nil)
	prev := q.tail.Swap(p)
	// A consumer observing the swapped tail before this store sees the
	// queue in a transient state and reports empty; see TryPopExclusive.
	prev.next.Store(p)
}

// TryPopExclusive removes the oldest packet, or returns nil if the queue
// is empty or a push is mid-flight. Single consumer only.
func (q *Queue) TryPopExclusive() *Packet {
	head := q.head
	next := head.next.Load()

	if head == &q.stub {
		if next == nil {
			return nil // empty, or push in progress
		}
		q.head = next
		head = next
		next = next.next.Load()
	}

	if next != nil {
		q.head = next
		return head
	}

	if head != q.tail.Load() {
		// A producer swapped the tail but has not linked yet.
		return nil
	}

	// head is the last element; re-append the stub so the queue never
	// runs out of nodes, then complete the pop.
	q.PushBack(&q.stub)

	next = head.next.Load()
	if next != nil {
		q.head = next
		return head
	}
	return nil
}
