//go:build linux

package ajp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// tcpControl returns the listener socket hook applying opts.
func tcpControl(opts TCPOptions) func(network, address string, c syscall.RawConn) error {
	if !opts.ReusePort {
		return nil
	}
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		if err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}); err != nil {
			return err
		}
		return sockErr
	}
}
