package ajp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/marmos91/ajpd/internal/logger"
)

// listen creates the listener for the configured transport.
func (s *AJPAdapter) listen(ctx context.Context) (net.Listener, error) {
	if s.config.Transport.Type == TransportUnix {
		return listenUnix(ctx, s.config.Unix)
	}

	lc := net.ListenConfig{
		KeepAlive: s.config.TCP.KeepAlive,
		Control:   tcpControl(s.config.TCP),
	}
	return lc.Listen(ctx, "tcp", s.endpoint())
}

// listenUnix listens on a unix socket, replacing a stale socket file left by
// a previous run.
func listenUnix(ctx context.Context, opts UnixOptions) (net.Listener, error) {
	if err := os.Remove(opts.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", opts.Path, err)
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "unix", opts.Path)
	if err != nil {
		return nil, err
	}

	if opts.Mode != 0 {
		if err := os.Chmod(opts.Path, fs.FileMode(opts.Mode)); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("chmod socket %s: %w", opts.Path, err)
		}
	}
	return l, nil
}

// configureSocket applies per-socket options to an accepted connection.
func (s *AJPAdapter) configureSocket(nc net.Conn) {
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tc.SetNoDelay(s.config.TCP.NoDelay); err != nil {
		logger.Debug("Failed to set TCP_NODELAY", "client", nc.RemoteAddr().String(), "error", err)
	}
}
