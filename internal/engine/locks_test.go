package engine

import (
	"testing"
	"time"
)

// fakeClock is an injectable clock advanced by hand.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time            { return c.now }
func (c *fakeClock) Advance(d time.Duration)   { c.now = c.now.Add(d) }
func newFakeClock() *fakeClock                 { return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)} }

func TestLockManager_AcquireRelease(t *testing.T) {
	lm := NewLockManager(nil)

	if !lm.Acquire("note:1") {
		t.Fatal("first acquire should succeed")
	}
	if lm.Acquire("note:1") {
		t.Error("second acquire of held key should fail")
	}
	if !lm.Held("note:1") {
		t.Error("key should be held")
	}

	lm.Release("note:1")
	if lm.Held("note:1") {
		t.Error("key should be free after release")
	}
	if !lm.Acquire("note:1") {
		t.Error("re-acquire after release should succeed")
	}
}

func TestLockManager_ReleaseUnheldIsNoop(t *testing.T) {
	lm := NewLockManager(nil)
	lm.Release("never-held")
	if lm.Len() != 0 {
		t.Errorf("Len = %d, want 0", lm.Len())
	}
}

func TestPurgeExpired_RemovesExactlyOlder(t *testing.T) {
	clock := newFakeClock()
	lm := NewLockManager(clock.Now)

	lm.Acquire("old")
	clock.Advance(2 * time.Hour)
	lm.Acquire("fresh")
	clock.Advance(30 * time.Minute)

	// "old" is 2h30m old, "fresh" is 30m old.
	purged := lm.PurgeExpired(1 * time.Hour)
	if len(purged) != 1 || purged[0] != "old" {
		t.Errorf("purged = %v, want [old]", purged)
	}
	if lm.Held("old") {
		t.Error("expired lock still held")
	}
	if !lm.Held("fresh") {
		t.Error("fresh lock must be untouched")
	}
}

func TestPurgeExpired_BoundaryNotPurged(t *testing.T) {
	clock := newFakeClock()
	lm := NewLockManager(clock.Now)

	lm.Acquire("exact")
	clock.Advance(time.Hour)

	// Age equals the timeout: not strictly older, stays held.
	if purged := lm.PurgeExpired(time.Hour); len(purged) != 0 {
		t.Errorf("purged = %v, want none", purged)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	lm := NewLockManager(nil)
	lm.Acquire("a")

	snap := lm.Snapshot()
	delete(snap, "a")
	if !lm.Held("a") {
		t.Error("mutating the snapshot must not touch the table")
	}
}
