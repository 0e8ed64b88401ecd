//go:build !linux

package evnet

import (
	"net"
	"syscall"
)

// applyPreBindOptions is a no-op on platforms without a wired syscall
// backend; SetReuseAddress and buffer-size options are accepted but not
// applied. Extending this to BSD/Darwin would follow the same
// golang.org/x/sys/unix.SetsockoptInt pattern used in socket_option_linux.go
// with platform-specific constants.
func applyPreBindOptions(network string, c syscall.RawConn, opts SocketOption) error {
	return nil
}

func applyPlatformBroadcast(c *net.UDPConn, broadcast *bool) {}
