package connector

import (
	"context"
	"fmt"

	"github.com/marmos91/ajpd/internal/logger"
	"github.com/marmos91/ajpd/pkg/metrics"
)

// HandlerConfig configures a connection Handler.
type HandlerConfig struct {
	// Factory constructs processors. Required.
	Factory ProcessorFactory

	// Transport performs socket operations on behalf of the handler. Required.
	Transport Transport

	// Upgrade receives connections whose processor reported StateUpgrade.
	// When nil an upgrade is treated as a processing error.
	Upgrade UpgradeFunc

	// MaxProcessors caps the number of live processors. New connections are
	// rejected with ErrProcessorUnavailable beyond it. 0 means no cap.
	MaxProcessors int

	// MaxIdle bounds the processor pool. 0 keeps every released processor.
	MaxIdle int

	// RegistryShards is the number of registry shards, rounded up to a power
	// of two. Default: 16
	RegistryShards int

	// Metrics receives handler and pool events. nil disables collection.
	Metrics metrics.AJPMetrics
}

// Handler binds connections to processors and releases them exactly once.
//
// A Handler is owned by one endpoint; its pool and registry live and die
// with it.
//
// Thread safety:
// OnConnectionEvent, ForceRelease and Shutdown are safe for concurrent use
// across connections. For a single connection the transport must not issue
// overlapping OnConnectionEvent calls.
type Handler struct {
	transport Transport
	upgrade   UpgradeFunc
	pool      *Pool
	registry  *Registry
	metrics   metrics.AJPMetrics
}

// NewHandler creates a Handler with an empty pool and registry.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopAJPMetrics()
	}
	if cfg.MaxProcessors > 0 && cfg.MaxIdle > cfg.MaxProcessors {
		return nil, fmt.Errorf("max idle processors (%d) exceeds max processors (%d)", cfg.MaxIdle, cfg.MaxProcessors)
	}

	pool, err := NewPool(PoolConfig{
		Factory:  cfg.Factory,
		MaxIdle:  cfg.MaxIdle,
		MaxTotal: cfg.MaxProcessors,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create processor pool: %w", err)
	}

	return &Handler{
		transport: cfg.Transport,
		upgrade:   cfg.Upgrade,
		pool:      pool,
		registry:  NewRegistry(cfg.RegistryShards),
		metrics:   cfg.Metrics,
	}, nil
}

// OnConnectionEvent handles one completion for conn.
//
// If conn has no processor yet, one is popped from the pool or constructed,
// bound and registered. The processor is then driven one step and its
// outcome applied:
//   - StateContinue: the socket is re-armed
//   - StateFinished: released, re-armed on keep-alive, closed otherwise
//   - StateError: released and closed
//   - StateUpgrade: deregistered without recycling and handed to Upgrade
//
// An EventError or EventTimeout always ends in a release with close: a
// timed-out connection is never kept bound or re-armed. An EventError or
// EventTimeout for a connection without a processor closes the socket
// without allocating one.
//
// Returns:
//   - ErrProcessorUnavailable (wrapped) if the connection was rejected
//   - the processor's Result.Err when the step failed
//   - nil otherwise
func (h *Handler) OnConnectionEvent(ctx context.Context, conn Connection, event Event) error {
	s, bound := h.registry.Lookup(conn.ID())
	if !bound {
		if event != EventData {
			logger.Debug("Closing idle connection", "conn_id", conn.ID(), "event", event.String())
			h.transport.CloseSocket(conn)
			return nil
		}

		var err error
		if s, err = h.bind(conn); err != nil {
			h.metrics.RecordConnectionRejected("no_processor")
			logger.Warn("Rejecting connection", "conn_id", conn.ID(), "client", conn.RemoteAddr(), "error", err)
			h.transport.CloseSocket(conn)
			return err
		}
	}

	res := h.process(ctx, s.proc, conn, event)
	if event == EventError && res.State != StateError {
		res = Result{State: StateError, Err: fmt.Errorf("transport error on %s", conn.ID())}
	}
	if event == EventTimeout && (res.State == StateContinue || res.State == StateFinished) {
		res = Result{State: StateFinished}
	}

	switch res.State {
	case StateContinue:
		h.transport.Rearm(conn)

	case StateFinished:
		h.release(conn, s, !res.KeepAlive, res.KeepAlive)

	case StateUpgrade:
		if h.upgrade == nil {
			logger.Warn("Upgrade requested without an upgrade hook", "conn_id", conn.ID())
			h.release(conn, s, true, false)
			return fmt.Errorf("upgrade not supported")
		}
		h.handOff(conn, s)

	default:
		if res.Err != nil {
			logger.Debug("Processing failed", "conn_id", conn.ID(), "event", event.String(), "error", res.Err)
		}
		h.release(conn, s, true, false)
		return res.Err
	}

	return nil
}

// ForceRelease releases conn after the transport found its socket gone.
// The processor, if any, is recycled with closing set. Releasing a
// connection without a processor is a no-op, so repeated calls are safe.
// ForceRelease never asks the transport to close or re-arm the socket.
func (h *Handler) ForceRelease(conn Connection) {
	h.release(conn, nil, true, false)
}

// CloseAll requests closure of every connection registered at call time and
// returns the number of close requests issued. Processors are recycled later
// by the transport's forced release.
func (h *Handler) CloseAll() int {
	conns := h.registry.Snapshot()
	for _, conn := range conns {
		h.transport.CloseSocket(conn)
	}
	return len(conns)
}

// Shutdown closes all registered connections. See CloseAll.
func (h *Handler) Shutdown() int {
	n := h.CloseAll()
	logger.Info("Connection handler shutdown", "closed", n, "idle_processors", h.pool.Len())
	return n
}

// Pool returns the handler's processor pool.
func (h *Handler) Pool() *Pool {
	return h.pool
}

// Registry returns the handler's connection registry.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// bind obtains a processor for conn and registers the binding.
func (h *Handler) bind(conn Connection) (*slot, error) {
	s, ok := h.pool.Pop()
	if !ok {
		var err error
		if s, err = h.pool.New(); err != nil {
			return nil, err
		}
		logger.Debug("Processor created", "slot", s.id, "conn_id", conn.ID())
	}

	s.conn = conn
	if err := h.registry.Bind(conn, s); err != nil {
		h.recycle(s, true)
		return nil, fmt.Errorf("bind %s: %w", conn.ID(), err)
	}
	return s, nil
}

// process runs one step, turning a panic into StateError so that a broken
// processor only takes its own connection down.
func (h *Handler) process(ctx context.Context, p Processor, conn Connection, event Event) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in processor", "conn_id", conn.ID(), "client", conn.RemoteAddr(), "panic", r)
			res = Result{State: StateError, Err: fmt.Errorf("processor panic: %v", r)}
		}
	}()
	return p.Process(ctx, conn, event)
}

// release is the single release routine behind ForceRelease (held == nil)
// and the cooperative path (held is the slot the caller drove).
//
// Registry.Remove arbitrates: only the caller that removed the binding
// recycles the processor. A forced release never touches the socket; a
// cooperative one re-arms it when requeue is set, or closes it when closing
// is set.
func (h *Handler) release(conn Connection, held *slot, closing, requeue bool) {
	forced := held == nil

	s, removed := h.registry.Remove(conn.ID())
	if removed {
		if held != nil && s != held {
			logger.Error("Registry binding does not match released processor",
				"conn_id", conn.ID(), "registered", s.id, "held", held.id)
		}
		h.recycle(s, closing)
		if forced {
			h.metrics.RecordRelease(metrics.ReleaseForced)
		} else {
			h.metrics.RecordRelease(metrics.ReleaseCooperative)
		}
	} else {
		h.metrics.RecordRelease(metrics.ReleaseNoop)
		logger.Debug("Release without registered processor", "conn_id", conn.ID(), "forced", forced)
	}

	if forced {
		return
	}
	if requeue {
		h.transport.Rearm(conn)
	} else if closing {
		h.transport.CloseSocket(conn)
	}
}

// recycle resets the processor and clears the back-reference before the
// slot is published to the pool.
func (h *Handler) recycle(s *slot, closing bool) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic while recycling processor", "slot", s.id, "panic", r)
			}
		}()
		s.proc.Recycle(closing)
	}()
	s.conn = nil
	h.pool.Push(s)
}

// handOff deregisters conn and passes it, with its processor, to the
// upgrade hook. The slot is marked detached and never pooled again.
func (h *Handler) handOff(conn Connection, s *slot) {
	h.registry.Remove(conn.ID())
	s.conn = nil
	h.pool.detach(s)
	h.metrics.RecordUpgrade()

	logger.Debug("Connection upgraded", "conn_id", conn.ID(), "slot", s.id)

	h.transport.Detach(conn)
	h.upgrade(conn, s.proc)
}
