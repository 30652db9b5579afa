package ajp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/ajpd/internal/connector"
	"github.com/marmos91/ajpd/internal/logger"
	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
	"github.com/marmos91/ajpd/internal/ratelimiter"
	"github.com/marmos91/ajpd/pkg/metrics"
)

// AJPAdapter implements the adapter.Adapter interface for AJP/1.3.
//
// Every accepted socket is served by one goroutine that emulates a
// completion-based transport: a single read is issued, its completion is
// delivered to the connection handler, and the next read is issued only when
// the handler re-arms the socket. The adapter is also the handler's
// connector.Transport.
//
// Architecture:
// AJPAdapter -> ajpConn.serve -> connector.Handler -> ajp.Processor -> RequestHandler
//
// Shutdown:
//  1. The listener is closed and the request context is cancelled
//  2. Every socket with a request in progress is closed through the handler
//  3. Idle keep-alive sockets are woken and closed
//  4. Connection goroutines are awaited up to ShutdownTimeout
//  5. Remaining sockets are force-closed
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown runs at most once.
type AJPAdapter struct {
	config AJPConfig

	handler *connector.Handler
	metrics metrics.AJPMetrics
	limiter *ratelimiter.RateLimiter

	listenerMu sync.RWMutex
	listener   net.Listener
	ready      chan struct{}

	// activeConns tracks connection goroutines for graceful shutdown.
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	// connSemaphore limits concurrent sockets. nil when unlimited.
	connSemaphore chan struct{}

	// shutdownCtx is passed to every request and cancelled on shutdown.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection IDs to *ajpConn.
	activeConnections sync.Map
}

// New creates an AJP adapter serving requests with handler.
//
// Parameters:
//   - config: Endpoint configuration. Zero values are replaced by defaults.
//   - handler: Serves complete requests. nil installs ajp.EchoHandler.
//   - m: Metrics collector. nil disables collection.
//
// Returns an error if the configuration is invalid.
func New(config AJPConfig, handler ajpproto.RequestHandler, m metrics.AJPMetrics) (*AJPAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid AJP config: %w", err)
	}
	if m == nil {
		m = metrics.NewNoopAJPMetrics()
	}

	factory, err := ajpproto.NewProcessorFactory(ajpproto.Config{
		PacketSize:  config.PacketSize,
		MaxBodySize: config.MaxBodySize,
		Secret:      config.Secret,
		Handler:     handler,
		Metrics:     m,
	})
	if err != nil {
		return nil, fmt.Errorf("create processor factory: %w", err)
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	s := &AJPAdapter{
		config:         config,
		metrics:        m,
		limiter:        ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}

	hcfg := connector.HandlerConfig{
		Factory:        factory,
		Transport:      s,
		MaxProcessors:  config.Processors.MaxTotal,
		MaxIdle:        config.Processors.MaxIdle,
		RegistryShards: config.RegistryShards,
		Metrics:        m,
	}
	if config.OnUpgrade != nil {
		hcfg.Upgrade = s.upgrade
	}

	if s.handler, err = connector.NewHandler(hcfg); err != nil {
		cancelRequests()
		return nil, err
	}
	return s, nil
}

// Serve starts the AJP endpoint and blocks until shutdown.
//
// Shutdown is triggered by cancelling ctx or calling Stop. Serve returns nil
// after a clean shutdown, or an error if the listener could not be created
// or sockets had to be force-closed.
func (s *AJPAdapter) Serve(ctx context.Context) error {
	listener, err := s.listen(ctx)
	if err != nil {
		return fmt.Errorf("failed to create AJP listener on %s: %w", s.endpoint(), err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ready)

	// Stop may have run before the listener existed.
	if s.isShuttingDown() {
		_ = listener.Close()
		return s.gracefulShutdown()
	}

	logger.Info("AJP server listening", "address", listener.Addr().String(), "transport", s.config.Transport.Type)
	logger.Debug("AJP config",
		"max_connections", s.config.MaxConnections,
		"accept_rate", s.config.AcceptRate,
		"packet_size", s.config.PacketSize,
		"read_timeout", s.config.Timeouts.Read,
		"write_timeout", s.config.Timeouts.Write,
		"idle_timeout", s.config.Timeouts.Idle,
		"max_processors", s.config.Processors.MaxTotal,
		"max_idle_processors", s.config.Processors.MaxIdle)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("AJP shutdown signal received", "reason", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}
	if s.config.Processors.IdleTTL > 0 {
		go s.handler.Pool().RunTrimmer(s.shutdownCtx, s.config.Processors.TrimInterval, s.config.Processors.IdleTTL)
	}

	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting AJP connection", "error", err)
				continue
			}
		}

		if !s.admit(nc) {
			continue
		}
		s.configureSocket(nc)

		conn := newAJPConn(s, nc)

		s.activeConns.Add(1)
		current := s.connCount.Add(1)
		s.activeConnections.Store(conn.id, conn)

		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(current)
		logger.Debug("AJP connection accepted", "conn_id", conn.id, "client", nc.RemoteAddr().String(), "active", current)

		go func(c *ajpConn) {
			defer func() {
				s.activeConnections.Delete(c.id)
				remaining := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(remaining)
				logger.Debug("AJP connection closed", "conn_id", c.id, "active", remaining,
					"duration", time.Since(c.created))

				s.activeConns.Done()
			}()

			c.serve(s.shutdownCtx)
		}(conn)
	}
}

// admit applies the accept rate limit and the connection cap. Rejected
// sockets are closed.
func (s *AJPAdapter) admit(nc net.Conn) bool {
	reason := ""
	if !s.limiter.Allow() {
		reason = "rate_limited"
	} else if s.connSemaphore != nil {
		select {
		case s.connSemaphore <- struct{}{}:
		default:
			reason = "max_connections"
		}
	}
	if reason == "" {
		return true
	}

	s.metrics.RecordConnectionRejected(reason)
	logger.Warn("AJP connection rejected", "client", nc.RemoteAddr().String(), "reason", reason)
	_ = nc.Close()
	return false
}

// initiateShutdown starts the shutdown sequence. Safe to call more than once.
func (s *AJPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("AJP shutdown initiated")

		close(s.shutdown)

		s.listenerMu.RLock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing AJP listener", "error", err)
			}
		}
		s.listenerMu.RUnlock()

		s.cancelRequests()

		closed := s.handler.Shutdown()
		logger.Debug("Closed connections with requests in progress", "count", closed)

		s.wakeIdle()
	})
}

// wakeIdle interrupts blocked reads so idle sockets observe the shutdown.
func (s *AJPAdapter) wakeIdle() {
	now := time.Now()
	s.activeConnections.Range(func(_, value any) bool {
		c := value.(*ajpConn)
		if !c.detached.Load() {
			_ = c.nc.SetReadDeadline(now)
		}
		return true
	})
}

func (s *AJPAdapter) isShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// gracefulShutdown waits for connection goroutines to exit, up to
// ShutdownTimeout, then force-closes the remaining sockets.
func (s *AJPAdapter) gracefulShutdown() error {
	active := s.connCount.Load()
	logger.Info("AJP graceful shutdown: waiting for active connections",
		"active", active, "timeout", s.config.ShutdownTimeout)

	select {
	case <-s.waitConnections():
		logger.Info("AJP graceful shutdown complete")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("AJP shutdown timeout exceeded, forcing closure",
			"remaining", remaining, "timeout", s.config.ShutdownTimeout)

		s.forceCloseConnections()
		return fmt.Errorf("AJP shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *AJPAdapter) waitConnections() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes every tracked socket.
func (s *AJPAdapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(_, value any) bool {
		c := value.(*ajpConn)
		if c.detached.Load() {
			return true
		}
		c.close()
		s.metrics.RecordConnectionForceClosed()
		closed++
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed AJP connections", "count", closed)
	}
}

// Stop initiates shutdown and waits for connection goroutines until ctx is
// done. A nil ctx waits up to ShutdownTimeout.
func (s *AJPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.waitConnections():
		logger.Info("AJP graceful shutdown complete")
		return nil
	case <-ctx.Done():
		logger.Warn("AJP shutdown context cancelled", "remaining", s.connCount.Load(), "error", ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs connection and pool counters.
func (s *AJPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool := s.handler.Pool()
			logger.Info("AJP metrics",
				"active_connections", s.connCount.Load(),
				"bound", s.handler.Registry().Len(),
				"idle_processors", pool.Len(),
				"live_processors", pool.Live(),
				"created_processors", pool.Created())
		}
	}
}

// CloseSocket implements connector.Transport.
func (s *AJPAdapter) CloseSocket(conn connector.Connection) {
	if c, ok := conn.(*ajpConn); ok {
		c.close()
	}
}

// Rearm implements connector.Transport. The handler re-arms from within
// OnConnectionEvent, on the connection's own goroutine.
func (s *AJPAdapter) Rearm(conn connector.Connection) {
	if c, ok := conn.(*ajpConn); ok {
		c.rearmed = true
	}
}

// Detach implements connector.Transport. The socket stays open and is no
// longer tracked by the adapter.
func (s *AJPAdapter) Detach(conn connector.Connection) {
	if c, ok := conn.(*ajpConn); ok {
		c.detached.Store(true)
		s.activeConnections.Delete(c.id)
	}
}

// upgrade hands a detached socket to the configured UpgradeHandler.
func (s *AJPAdapter) upgrade(conn connector.Connection, p connector.Processor) {
	c, ok := conn.(*ajpConn)
	if !ok {
		return
	}

	var buffered []byte
	if ap, ok := p.(*ajpproto.Processor); ok {
		buffered = append(buffered, ap.Buffered()...)
	}
	_ = c.nc.SetDeadline(time.Time{})

	logger.Info("AJP connection upgraded", "conn_id", c.id, "client", c.nc.RemoteAddr().String())
	s.config.OnUpgrade(c.nc, buffered)
}

// GetActiveConnections returns the current number of open sockets.
func (s *AJPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Handler returns the connection handler driving this endpoint.
func (s *AJPAdapter) Handler() *connector.Handler {
	return s.handler
}

// Addr returns the listening address once Serve has created the listener,
// or nil before that.
func (s *AJPAdapter) Addr() net.Addr {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready is closed once the listener accepts connections.
func (s *AJPAdapter) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the TCP port. After Serve has bound an ephemeral port the
// actual port is reported.
func (s *AJPAdapter) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// Protocol returns "AJP".
func (s *AJPAdapter) Protocol() string {
	return "AJP"
}

func (s *AJPAdapter) endpoint() string {
	if s.config.Transport.Type == TransportUnix {
		return s.config.Unix.Path
	}
	return net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))
}
