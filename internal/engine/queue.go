package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/halver/muninn/internal/models"
)

// KeyFunc computes the lock key for an event: the note id when the path
// resolves to a registered note, the path string before identity is
// known.
type KeyFunc func(models.Event) string

// Item is one queued event together with the lock key acquired for it.
// The consumer must release the key when processing finishes.
type Item struct {
	Event models.Event
	Key   string
}

// Queue is the FIFO buffer decoupling event production from the single
// consumer. Enqueue is gated by the lock table: an event whose key is
// already held is a duplicate notification for work in flight and is
// dropped.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	locks    *LockManager
	keyFn    KeyFunc
	wake     chan struct{}
	logger   *slog.Logger
}

// NewQueue creates a queue gated by locks. capacity <= 0 defaults to 1024.
func NewQueue(locks *LockManager, keyFn KeyFunc, capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		capacity: capacity,
		locks:    locks,
		keyFn:    keyFn,
		wake:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Enqueue acquires the event's lock key and pushes it. It never blocks:
// on a held key or a full queue the event is dropped (the latter also
// releases the key). Returns true when the event was queued.
func (q *Queue) Enqueue(ev models.Event) bool {
	key := q.keyFn(ev)
	if !q.locks.Acquire(key) {
		q.logger.Debug("queue: duplicate notification dropped",
			slog.String("key", key),
			slog.String("action", string(ev.Action)),
			slog.String("path", ev.Path))
		return false
	}

	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		q.locks.Release(key)
		q.logger.Warn("queue: full, event dropped",
			slog.String("path", ev.Path),
			slog.Int("capacity", q.capacity))
		return false
	}
	q.items = append(q.items, Item{Event: ev, Key: key})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Dequeue blocks until an item is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Item, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, false
		case <-q.wake:
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
