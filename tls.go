package evnet

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// TCPClientTLSOption carries the tls.Config DialTLS uses for the client-side
// handshake.
type TCPClientTLSOption struct {
	Config *tls.Config
}

// DialTLS dials endpoints like TCPClient.Connect, then performs a TLS
// handshake over whichever connection succeeds first, handing handler a
// *TCPChannel whose reads and writes are transparently encrypted. This is
// the Go re-expression of the source's layered-socket TLS design: rather
// than a Socket subclass wrapping another Socket, Go's crypto/tls.Conn
// already wraps a net.Conn transparently, so the adapter's only job is
// dialing, handshaking off the loop goroutine, and handing back a
// TCPChannel built on top of the wrapped conn. No ecosystem TLS library
// appears anywhere in the retrieved corpus, so crypto/tls is used directly
// (see DESIGN.md). Each candidate endpoint gets its own fresh timeout budget
// covering both the dial and the handshake, rather than a single deadline
// shared across the whole list, per spec.md §4.6 ("arm a cancel timer at
// timeout_ms for this attempt").
func (c *TCPClient) DialTLS(endpoints []Endpoint, timeout time.Duration, opt TCPClientTLSOption, handler ConnectHandler) {
	if len(endpoints) == 0 {
		c.controller.loop.Push(NewEvent(TaskEventID, Task(func() {
			handler(nil, ErrNoEndpoints)
		})))
		return
	}

	parentCtx, cancel := context.WithCancel(context.Background())

	item := &tcpClientItem{id: c.id, client: c, cancel: cancel}
	c.controller.registerTCPClient(item)

	go func() {
		defer cancel()

		var lastErr error
		dialer := net.Dialer{}
		for _, ep := range endpoints {
			attemptCtx, cancelAttempt := context.WithTimeout(parentCtx, timeout)

			raw, err := dialer.DialContext(attemptCtx, "tcp", ep.String())
			if err != nil {
				timedOut := attemptCtx.Err() == context.DeadlineExceeded && parentCtx.Err() == nil
				cancelAttempt()
				if timedOut {
					lastErr = ErrTimeout
				} else {
					lastErr = err
				}
				if parentCtx.Err() != nil {
					break
				}
				continue
			}
			c.opt.applyPostCreate(raw)

			tlsConn := tls.Client(raw, opt.Config)
			hsErr := tlsConn.HandshakeContext(attemptCtx)
			timedOut := attemptCtx.Err() == context.DeadlineExceeded && parentCtx.Err() == nil
			cancelAttempt()
			if hsErr != nil {
				_ = raw.Close()
				if timedOut {
					lastErr = ErrTimeout
				} else {
					lastErr = hsErr
				}
				if parentCtx.Err() != nil {
					break
				}
				continue
			}

			if item.cancelled.Load() {
				_ = tlsConn.Close()
				c.controller.unregisterTCPClient(c.id)
				return
			}

			channel := newTCPChannel(c.controller, tlsConn)
			c.controller.loop.Push(NewEvent(TaskEventID, Task(func() {
				c.controller.unregisterTCPClient(c.id)
				c.controller.registerTCPChannel(&tcpChannelItem{id: channel.id, channel: channel})
				handler(channel, nil)
			})))
			return
		}

		c.controller.unregisterTCPClient(c.id)
		if item.cancelled.Load() {
			return
		}

		if lastErr == nil {
			lastErr = ErrCancelled
		}
		c.controller.loop.Push(NewEvent(TaskEventID, Task(func() {
			handler(nil, lastErr)
		})))
	}()
}
