package evnet

import (
	"net"
	"syscall"
	"time"
)

// SocketOption carries socket-level options that may be set before the
// underlying handle exists (spec.md §3: "options applied before create() are
// stored and replayed post-create"). Go's net package creates the handle
// as part of Listen/Dial, so SocketOption instead accumulates a list of
// deferred setters and replays them against the real connection/listener via
// platform-specific syscall access (golang.org/x/sys/unix on Linux) as soon
// as it exists.
type SocketOption struct {
	reuseAddress *bool
	keepAlive    *bool
	lingerOn     *bool
	lingerSec    uint16
	recvBuffSize *uint32
	sendBuffSize *uint32
	ipv6Only     *bool
	tcpNoDelay   *bool
	broadcast    *bool
}

func boolPtr(b bool) *bool { return &b }

// SetReuseAddress requests SO_REUSEADDR (and, on Linux, SO_REUSEPORT so
// multiple worker listeners can share one port, per spec.md §4.11's
// multi-worker server).
func (o *SocketOption) SetReuseAddress(on bool) { o.reuseAddress = boolPtr(on) }

// SetKeepAlive requests SO_KEEPALIVE.
func (o *SocketOption) SetKeepAlive(on bool) { o.keepAlive = boolPtr(on) }

// SetLinger requests SO_LINGER with the given timeout in seconds.
func (o *SocketOption) SetLinger(on bool, sec uint16) {
	o.lingerOn = boolPtr(on)
	o.lingerSec = sec
}

// SetReceiveBuffSize requests SO_RCVBUF.
func (o *SocketOption) SetReceiveBuffSize(size uint32) { o.recvBuffSize = &size }

// SetSendBuffSize requests SO_SNDBUF.
func (o *SocketOption) SetSendBuffSize(size uint32) { o.sendBuffSize = &size }

// SetIPv6Only records IPV6_V6ONLY in the option set. Neither
// applyListenConfig nor applyPostCreate applies it, so it has no effect on
// any socket.
func (o *SocketOption) SetIPv6Only(on bool) { o.ipv6Only = boolPtr(on) }

// SetTCPNoDelay requests TCP_NODELAY.
func (o *SocketOption) SetTCPNoDelay(on bool) { o.tcpNoDelay = boolPtr(on) }

// SetBroadcast requests SO_BROADCAST, relevant to UDP senders only.
func (o *SocketOption) SetBroadcast(on bool) { o.broadcast = boolPtr(on) }

// applyListenConfig returns a net.ListenConfig whose Control hook replays the
// reuse-address/buffer-size deferred options before bind(2), the pre-create
// half of spec.md §3's deferred-option contract.
func (o *SocketOption) applyListenConfig() net.ListenConfig {
	lc := net.ListenConfig{}
	if o.reuseAddress != nil || o.recvBuffSize != nil || o.sendBuffSize != nil {
		opts := *o
		lc.Control = func(network, address string, c syscall.RawConn) error {
			return applyPreBindOptions(network, c, opts)
		}
	}
	return lc
}

// applyPostCreate replays keepalive, linger, nodelay and the buffer sizes on
// an already-connected/accepted *net.TCPConn, and the buffer sizes and
// broadcast on a *net.UDPConn. ipv6-only is not replayed.
func (o *SocketOption) applyPostCreate(conn net.Conn) {
	switch c := conn.(type) {
	case *net.TCPConn:
		if o.keepAlive != nil {
			_ = c.SetKeepAlive(*o.keepAlive)
		}
		if o.lingerOn != nil {
			if *o.lingerOn {
				_ = c.SetLinger(int(o.lingerSec))
			} else {
				_ = c.SetLinger(0)
			}
		}
		if o.tcpNoDelay != nil {
			_ = c.SetNoDelay(*o.tcpNoDelay)
		}
		if o.recvBuffSize != nil {
			_ = c.SetReadBuffer(int(*o.recvBuffSize))
		}
		if o.sendBuffSize != nil {
			_ = c.SetWriteBuffer(int(*o.sendBuffSize))
		}
	case *net.UDPConn:
		if o.recvBuffSize != nil {
			_ = c.SetReadBuffer(int(*o.recvBuffSize))
		}
		if o.sendBuffSize != nil {
			_ = c.SetWriteBuffer(int(*o.sendBuffSize))
		}
		applyPlatformBroadcast(c, o.broadcast)
	}
}

// DefaultCloseTimeout is the default graceful-close timer duration
// (spec.md §4.6, "default 15 s").
const DefaultCloseTimeout = 15 * time.Second
