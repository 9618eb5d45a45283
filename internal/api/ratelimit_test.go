package api

import (
	"testing"
	"time"
)

func TestLimiterAllowsWithinBurst(t *testing.T) {
	l := newRoomLimiters(1, 3)

	for i := 0; i < 3; i++ {
		if !l.allow("room-a") {
			t.Fatalf("request %d should pass within burst", i+1)
		}
	}
	if l.allow("room-a") {
		t.Error("request past burst should be limited")
	}
}

func TestLimiterIsPerRoom(t *testing.T) {
	l := newRoomLimiters(1, 1)

	if !l.allow("room-a") {
		t.Fatal("room-a first request should pass")
	}
	if !l.allow("room-b") {
		t.Error("room-b should have an independent bucket")
	}
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := newRoomLimiters(0, 0)

	for i := 0; i < 100; i++ {
		if !l.allow("room-a") {
			t.Fatal("disabled limiter should never block")
		}
	}
}

func TestIdleEntriesEvicted(t *testing.T) {
	l := newRoomLimiters(1, 1)
	l.idleTTL = time.Millisecond

	l.allow("room-old")
	time.Sleep(5 * time.Millisecond)

	// A lookup for a new room triggers eviction of the stale entry.
	l.allow("room-new")

	l.mu.Lock()
	_, ok := l.entries["room-old"]
	l.mu.Unlock()
	if ok {
		t.Error("idle entry should have been evicted")
	}
}
