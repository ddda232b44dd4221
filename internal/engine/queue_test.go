package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/halver/muninn/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pathKey(ev models.Event) string { return "path:" + ev.Path }

func TestEnqueue_HeldLockIsNoop(t *testing.T) {
	locks := NewLockManager(nil)
	q := NewQueue(locks, pathKey, 16, discardLogger())

	ev := models.Event{Type: models.EventFile, Action: models.ActionModified, Path: "imports/a.md"}
	if !q.Enqueue(ev) {
		t.Fatal("first enqueue should succeed")
	}
	if q.Len() != 1 || locks.Len() != 1 {
		t.Fatalf("queue=%d locks=%d after first enqueue", q.Len(), locks.Len())
	}

	// Duplicate notification for work in flight: queue length and lock
	// table must be unchanged.
	if q.Enqueue(ev) {
		t.Error("enqueue with held key should be a no-op")
	}
	if q.Len() != 1 || locks.Len() != 1 {
		t.Errorf("queue=%d locks=%d, want 1/1", q.Len(), locks.Len())
	}
}

func TestEnqueue_FullQueueReleasesLock(t *testing.T) {
	locks := NewLockManager(nil)
	q := NewQueue(locks, pathKey, 1, discardLogger())

	q.Enqueue(models.Event{Path: "a.md", Action: models.ActionCreated, Type: models.EventFile})
	if q.Enqueue(models.Event{Path: "b.md", Action: models.ActionCreated, Type: models.EventFile}) {
		t.Fatal("enqueue into full queue should fail")
	}
	if locks.Held("path:b.md") {
		t.Error("lock must be released when the queue rejects the event")
	}
}

func TestDequeue_FIFO(t *testing.T) {
	locks := NewLockManager(nil)
	q := NewQueue(locks, pathKey, 16, discardLogger())

	q.Enqueue(models.Event{Path: "1.md", Action: models.ActionCreated, Type: models.EventFile})
	q.Enqueue(models.Event{Path: "2.md", Action: models.ActionCreated, Type: models.EventFile})

	ctx := context.Background()
	first, _ := q.Dequeue(ctx)
	second, _ := q.Dequeue(ctx)
	if first.Event.Path != "1.md" || second.Event.Path != "2.md" {
		t.Errorf("order = %s, %s", first.Event.Path, second.Event.Path)
	}
	if first.Key != "path:1.md" {
		t.Errorf("key = %q", first.Key)
	}
}

func TestDequeue_UnblocksOnEnqueue(t *testing.T) {
	locks := NewLockManager(nil)
	q := NewQueue(locks, pathKey, 16, discardLogger())

	done := make(chan Item, 1)
	go func() {
		item, _ := q.Dequeue(context.Background())
		done <- item
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(models.Event{Path: "late.md", Action: models.ActionCreated, Type: models.EventFile})

	select {
	case item := <-done:
		if item.Event.Path != "late.md" {
			t.Errorf("path = %q", item.Event.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake on enqueue")
	}
}

func TestDequeue_ContextCancel(t *testing.T) {
	locks := NewLockManager(nil)
	q := NewQueue(locks, pathKey, 16, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Dequeue(ctx); ok {
		t.Error("dequeue should report !ok on cancelled context")
	}
}
