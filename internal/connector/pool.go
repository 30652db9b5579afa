package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/ajpd/internal/logger"
	"github.com/marmos91/ajpd/pkg/metrics"
)

// PoolConfig configures a processor Pool.
type PoolConfig struct {
	// Factory constructs processors when the pool is empty. Required.
	Factory ProcessorFactory

	// MaxIdle bounds the number of idle processors kept for reuse.
	// 0 keeps every released processor.
	MaxIdle int

	// MaxTotal caps the number of live processors (pooled plus bound).
	// 0 means no cap.
	MaxTotal int

	// Metrics receives pool events. nil disables collection.
	Metrics metrics.AJPMetrics
}

// Pool is a LIFO free list of idle processors.
//
// Thread safety:
// All methods are safe for concurrent use. A slot's state moves between
// bound and idle only while mu is held, and callers reset the processor
// before Push, so Pop never returns a half-reset processor.
type Pool struct {
	factory  ProcessorFactory
	maxIdle  int
	maxTotal int
	metrics  metrics.AJPMetrics
	now      func() time.Time

	mu      sync.Mutex
	free    []*slot
	live    int
	created uint64
}

// NewPool creates an empty processor pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("processor factory is required")
	}
	if cfg.MaxIdle < 0 || cfg.MaxTotal < 0 {
		return nil, fmt.Errorf("invalid pool bounds: max_idle=%d max_total=%d", cfg.MaxIdle, cfg.MaxTotal)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopAJPMetrics()
	}

	return &Pool{
		factory:  cfg.Factory,
		maxIdle:  cfg.MaxIdle,
		maxTotal: cfg.MaxTotal,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}, nil
}

// Pop removes the most recently pushed idle slot and marks it bound.
// Like every pool mutation it publishes the idle gauge under mu.
// Returns false when the pool is empty.
func (p *Pool) Pop() (*slot, bool) {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return nil, false
	}
	s := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	s.state = slotBound
	p.metrics.SetIdleProcessors(n - 1)
	p.mu.Unlock()

	return s, true
}

// New constructs a fresh bound slot through the factory.
//
// Returns ErrProcessorUnavailable (wrapped) when MaxTotal live processors
// already exist or the factory fails.
func (p *Pool) New() (*slot, error) {
	p.mu.Lock()
	if p.maxTotal > 0 && p.live >= p.maxTotal {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: limit of %d processors reached", ErrProcessorUnavailable, p.maxTotal)
	}
	p.live++
	p.mu.Unlock()

	proc, err := p.factory()
	if err == nil && proc == nil {
		err = fmt.Errorf("factory returned nil processor")
	}
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrProcessorUnavailable, err)
	}

	p.mu.Lock()
	p.created++
	id := p.created
	p.mu.Unlock()

	p.metrics.RecordProcessorCreated()
	return &slot{id: id, proc: proc, state: slotBound}, nil
}

// Push returns a reset slot to the pool.
//
// The caller must have recycled the processor and cleared the slot's
// connection before calling Push. Returns false if the slot was not bound
// (already pooled, detached or retired) or if it was discarded because the
// pool holds MaxIdle idle slots.
func (p *Pool) Push(s *slot) bool {
	p.mu.Lock()
	if s.state != slotBound {
		state := s.state
		p.mu.Unlock()
		logger.Debug("Pool push ignored", "slot", s.id, "state", state.String())
		return false
	}
	if p.maxIdle > 0 && len(p.free) >= p.maxIdle {
		s.state = slotRetired
		p.live--
		p.mu.Unlock()
		p.metrics.RecordProcessorDiscarded()
		return false
	}
	s.state = slotIdle
	s.lastUsed = p.now()
	p.free = append(p.free, s)
	p.metrics.SetIdleProcessors(len(p.free))
	p.mu.Unlock()

	p.metrics.RecordProcessorRecycled()
	return true
}

// detach marks a bound slot as handed off. It stops counting toward MaxTotal
// and will never be pooled.
func (p *Pool) detach(s *slot) {
	p.mu.Lock()
	if s.state == slotBound {
		s.state = slotDetached
		p.live--
	}
	p.mu.Unlock()
}

// Trim drops idle slots that have not been used for longer than idleFor.
// Returns the number of slots dropped. idleFor <= 0 disables trimming.
func (p *Pool) Trim(idleFor time.Duration) int {
	if idleFor <= 0 {
		return 0
	}
	cutoff := p.now().Add(-idleFor)

	p.mu.Lock()
	// LIFO: the bottom of the stack holds the least recently used slots.
	n := 0
	for n < len(p.free) && p.free[n].lastUsed.Before(cutoff) {
		p.free[n].state = slotRetired
		n++
	}
	if n > 0 {
		remaining := copy(p.free, p.free[n:])
		for i := remaining; i < len(p.free); i++ {
			p.free[i] = nil
		}
		p.free = p.free[:remaining]
		p.live -= n
		p.metrics.SetIdleProcessors(len(p.free))
	}
	p.mu.Unlock()

	if n > 0 {
		p.metrics.RecordProcessorsTrimmed(n)
	}
	return n
}

// RunTrimmer calls Trim(idleFor) every interval until ctx is cancelled.
// Returns immediately when either duration is not positive.
func (p *Pool) RunTrimmer(ctx context.Context, interval, idleFor time.Duration) {
	if interval <= 0 || idleFor <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Trim(idleFor); n > 0 {
				logger.Debug("Trimmed idle processors", "count", n, "idle", p.Len())
			}
		}
	}
}

// Len returns the number of idle slots.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Live returns the number of processors that are pooled or bound.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Created returns the number of processors ever constructed.
func (p *Pool) Created() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// MaxIdle returns the idle bound (0 = unbounded).
func (p *Pool) MaxIdle() int {
	return p.maxIdle
}
