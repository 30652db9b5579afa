//go:build !linux

package ajp

import (
	"errors"
	"syscall"
)

func tcpControl(opts TCPOptions) func(network, address string, c syscall.RawConn) error {
	if !opts.ReusePort {
		return nil
	}
	return func(_, _ string, _ syscall.RawConn) error {
		return errors.New("reuse_port is only supported on linux")
	}
}
