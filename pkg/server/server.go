// Package server runs a set of protocol adapters as one unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/ajpd/internal/logger"
	"github.com/marmos91/ajpd/pkg/adapter"
)

// ErrAlreadyServed is returned by Serve when called more than once.
var ErrAlreadyServed = errors.New("server: Serve already called")

// DefaultStopTimeout bounds adapter shutdown when Config.StopTimeout is 0.
const DefaultStopTimeout = 30 * time.Second

// Config configures a Server.
type Config struct {
	// StopTimeout bounds the time given to all adapters to stop.
	StopTimeout time.Duration
}

// Server orchestrates the lifecycle of protocol adapters.
//
// Adapters are registered with AddAdapter and started together by Serve.
// When the context is cancelled, or any adapter fails, every adapter is
// stopped in reverse registration order and Serve returns once all of them
// have exited.
//
// Thread safety:
// AddAdapter and Adapters are safe for concurrent use. Serve may be called
// once.
type Server struct {
	config Config

	adapters []adapter.Adapter

	mu     sync.RWMutex
	served bool
}

// New creates a server with no adapters.
func New(config Config) *Server {
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	return &Server{
		config:   config,
		adapters: make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter.
//
// Returns an error if a is nil, Serve has already been called, or another
// adapter already serves the same protocol or fixed port.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		// Port 0 binds an ephemeral port and cannot conflict.
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered adapter", "protocol", protocol, "port", port)

	return nil
}

// Serve starts all adapters and blocks until ctx is cancelled or an adapter
// fails.
//
// Returns:
//   - ctx.Err() after a shutdown requested through ctx
//   - the first adapter error, wrapped, if an adapter failed
//   - ErrAlreadyServed on a second call
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server", "adapters", len(adapters))

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting adapter", "protocol", protocol, "port", a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("Adapter stopped", "protocol", protocol, "error", err)
				}
				return
			}
			logger.Info("Adapter stopped", "protocol", protocol)
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "reason", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter failed, stopping all adapters", "protocol", adapterErr.protocol, "error", adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	wg.Wait()
	logger.Info("Server stopped")

	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.StopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping adapter", "protocol", adp.Protocol(), "error", err)
		}
	}
}

// Adapters returns a copy of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
