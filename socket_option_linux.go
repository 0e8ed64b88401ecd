//go:build linux

package evnet

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// applyPreBindOptions replays SO_REUSEADDR/SO_REUSEPORT and buffer sizes on
// the raw fd before bind(2), via the net.ListenConfig.Control hook (grounded
// on the asyncio package's syscall.RawConn.Control usage elsewhere in the
// retrieved corpus).
func applyPreBindOptions(network string, c syscall.RawConn, opts SocketOption) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		if opts.reuseAddress != nil && *opts.reuseAddress {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				setErr = e
				return
			}
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
				setErr = e
				return
			}
		}
		if opts.recvBuffSize != nil {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, int(*opts.recvBuffSize)); e != nil {
				setErr = e
				return
			}
		}
		if opts.sendBuffSize != nil {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, int(*opts.sendBuffSize)); e != nil {
				setErr = e
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return setErr
}

func applyPlatformBroadcast(c *net.UDPConn, broadcast *bool) {
	if broadcast == nil {
		return
	}
	raw, err := c.SyscallConn()
	if err != nil {
		return
	}
	val := 0
	if *broadcast {
		val = 1
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, val)
	})
}
