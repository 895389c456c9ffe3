// Package packet
// Author: momentics <momentics@gmail.com>
//
// Reference-counted datagram buffers and the lock-free hand-off queue
// bridging producer goroutines to a single event-loop consumer.
//
// Packets are shared between the writer, the hand-off queue and in-flight
// asynchronous sends via a manual reference count. The queue link is
// embedded in the packet itself, so the hot enqueue/dequeue path performs
// no allocations. See queue.go for the exclusive-pop contract.
package packet
