// Package engine contains the coordination core: the per-identity lock
// table, the lock-gated event queue, path classification, duplicate
// admission control, the lifecycle state machine, the archive/synthesis
// linker, and the single-consumer dispatcher.
package engine

import (
	"sync"
	"time"
)

// Clock supplies the current time. Injectable for deterministic expiry
// tests.
type Clock func() time.Time

// LockManager is a process-local advisory lock table: key → acquisition
// timestamp under a single mutex. A key is held by at most one in-flight
// operation. Locks do not protect against external writers touching the
// same file.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock Clock
}

// NewLockManager creates a lock table. A nil clock defaults to time.Now.
func NewLockManager(clock Clock) *LockManager {
	if clock == nil {
		clock = time.Now
	}
	return &LockManager{
		held:  make(map[string]time.Time),
		clock: clock,
	}
}

// Acquire atomically tests-and-inserts key. It returns false without
// blocking when the key is already held.
func (lm *LockManager) Acquire(key string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, ok := lm.held[key]; ok {
		return false
	}
	lm.held[key] = lm.clock()
	return true
}

// Release removes key if present.
func (lm *LockManager) Release(key string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.held, key)
}

// Held reports whether key is currently held.
func (lm *LockManager) Held(key string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, ok := lm.held[key]
	return ok
}

// PurgeExpired removes every key whose age exceeds maxAge and returns
// the purged keys. Run periodically to reclaim locks orphaned by a
// crashed consumer.
func (lm *LockManager) PurgeExpired(maxAge time.Duration) []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.clock()
	var purged []string
	for key, acquired := range lm.held {
		if now.Sub(acquired) > maxAge {
			delete(lm.held, key)
			purged = append(purged, key)
		}
	}
	return purged
}

// Len returns the number of held locks.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.held)
}

// Snapshot returns a copy of the lock table for inspection surfaces.
func (lm *LockManager) Snapshot() map[string]time.Time {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make(map[string]time.Time, len(lm.held))
	for k, v := range lm.held {
		out[k] = v
	}
	return out
}
