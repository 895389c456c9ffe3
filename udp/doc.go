// Package udp
// Author: momentics <momentics@gmail.com>
//
// Asynchronous outbound UDP port for real-time datagram pipelines.
//
// SenderPort never blocks the writer: each datagram is either sent
// immediately on the caller's goroutine through a non-blocking fast
// path, or handed to the event loop through a lock-free queue and
// submitted from there. Closing is asynchronous and waits for all
// in-flight sends to retire before releasing OS resources.
package udp
