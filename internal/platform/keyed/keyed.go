// Package keyed provides sharded per-key mutual exclusion. Trust score and
// compliance updates are serialized per uid / per app_id without a global lock.
package keyed

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 64

// Mutex serializes callers holding the same key. Distinct keys may map to the
// same shard; that only costs contention, never correctness.
type Mutex struct {
	shards []sync.Mutex
}

// NewMutex creates a sharded keyed mutex.
func NewMutex() *Mutex {
	return &Mutex{shards: make([]sync.Mutex, defaultShards)}
}

func (m *Mutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Lock acquires the shard lock for key.
func (m *Mutex) Lock(key string) {
	m.shard(key).Lock()
}

// Unlock releases the shard lock for key.
func (m *Mutex) Unlock(key string) {
	m.shard(key).Unlock()
}
