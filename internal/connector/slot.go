package connector

import "time"

type slotState uint8

const (
	// slotBound: owned by the goroutine driving conn.
	slotBound slotState = iota
	// slotIdle: sitting in the pool, conn is nil.
	slotIdle
	// slotDetached: handed off by an upgrade, never pooled again.
	slotDetached
	// slotRetired: dropped by the pool (overflow or trim).
	slotRetired
)

func (s slotState) String() string {
	switch s {
	case slotBound:
		return "bound"
	case slotIdle:
		return "idle"
	case slotDetached:
		return "detached"
	case slotRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// slot wraps a Processor with its binding. state and lastUsed are guarded by
// the owning Pool's mutex; conn is only touched by the goroutine that holds
// the slot while it is bound.
type slot struct {
	id       uint64
	proc     Processor
	conn     Connection
	state    slotState
	lastUsed time.Time
}
