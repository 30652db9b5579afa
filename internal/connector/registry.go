package connector

import (
	"sync"
	"sync/atomic"
)

// DefaultRegistryShards is used when NewRegistry is given a non-positive count.
const DefaultRegistryShards = 16

type binding struct {
	conn Connection
	slot *slot
}

type registryShard struct {
	mu       sync.RWMutex
	bindings map[string]binding
}

// Registry maps connection IDs to their bound slot.
//
// The map is split into a power-of-two number of shards, each with its own
// lock, so connections hashing to different shards never contend.
type Registry struct {
	shards []*registryShard
	mask   uint32
	count  atomic.Int64
}

// NewRegistry creates a registry with shards rounded up to a power of two.
func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultRegistryShards
	}
	n := nextPowerOfTwo(uint32(shards))

	r := &Registry{
		shards: make([]*registryShard, n),
		mask:   n - 1,
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{bindings: make(map[string]binding)}
	}
	return r
}

func (r *Registry) shard(id string) *registryShard {
	return r.shards[fnv32(id)&r.mask]
}

// Lookup returns the slot bound to the connection ID.
func (r *Registry) Lookup(id string) (*slot, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	b, ok := sh.bindings[id]
	sh.mu.RUnlock()
	return b.slot, ok
}

// Bind registers s for conn. Fails with ErrAlreadyBound if conn already has
// a binding.
func (r *Registry) Bind(conn Connection, s *slot) error {
	id := conn.ID()
	sh := r.shard(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.bindings[id]; exists {
		return ErrAlreadyBound
	}
	sh.bindings[id] = binding{conn: conn, slot: s}
	r.count.Add(1)
	return nil
}

// Remove deletes the binding for id and returns its slot. When several
// callers race to remove the same binding only the first gets ok == true.
func (r *Registry) Remove(id string) (*slot, bool) {
	sh := r.shard(id)

	sh.mu.Lock()
	b, ok := sh.bindings[id]
	if ok {
		delete(sh.bindings, id)
	}
	sh.mu.Unlock()

	if !ok {
		return nil, false
	}
	r.count.Add(-1)
	return b.slot, true
}

// Snapshot returns the connections registered at call time.
func (r *Registry) Snapshot() []Connection {
	conns := make([]Connection, 0, r.Len())
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, b := range sh.bindings {
			conns = append(conns, b.conn)
		}
		sh.mu.RUnlock()
	}
	return conns
}

// Len returns the number of bound connections.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// fnv32 is FNV-1a over the bytes of key.
func fnv32(key string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= prime32
	}
	return h
}

// nextPowerOfTwo returns the smallest power of two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
