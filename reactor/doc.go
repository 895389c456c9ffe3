// Package reactor
// Author: momentics <momentics@gmail.com>
//
// Single-goroutine event loop dispatching wake signals, posted tasks and
// deferred completions for asynchronous network ports.
//
// All callbacks run strictly serialized on the loop goroutine, so code
// confined to the loop needs no additional locking. Producers interact
// with the loop only through thread-safe entry points: WakeHandle.Signal
// and Loop.Post.
package reactor
