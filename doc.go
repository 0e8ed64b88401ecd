// Package evnet is an event-driven network application framework: it lets a
// program multiplex TCP, UDP, TLS, HTTP and WebSocket I/O across cooperatively
// scheduled worker goroutines, each driven by a single-threaded event loop with
// integrated timers.
//
// A Thread owns exactly one EventLoop and one EventController. All handlers
// registered on a Thread — timer callbacks, posted events, socket readiness
// callbacks — run to completion on that Thread's goroutine and never overlap
// with each other. Cross-thread communication happens only by posting Events.
//
// The higher-level HTTP and WebSocket protocol layers live in the evnet/http
// and evnet/ws subpackages, built on top of the TCPChannel primitives defined
// here.
package evnet
