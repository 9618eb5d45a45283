package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/roomshare/browserd/internal/store"
)

func TestCooldownRemainingCountsDown(t *testing.T) {
	ctx := context.Background()
	cd := NewRoomCooldowns(store.NewMemoryStore(), time.Minute)

	base := time.Now()
	cd.now = func() time.Time { return base }

	// No mark yet: no cooldown.
	if rem, err := cd.Remaining(ctx, "room-a"); err != nil || rem != 0 {
		t.Fatalf("Remaining before mark = %v, %v", rem, err)
	}

	if err := cd.Mark(ctx, "room-a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	cd.now = func() time.Time { return base.Add(20 * time.Second) }
	rem, err := cd.Remaining(ctx, "room-a")
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if rem != 40*time.Second {
		t.Errorf("Remaining = %v, want 40s", rem)
	}

	cd.now = func() time.Time { return base.Add(2 * time.Minute) }
	if rem, _ := cd.Remaining(ctx, "room-a"); rem != 0 {
		t.Errorf("elapsed window should report zero, got %v", rem)
	}
}

func TestCooldownMarksAreIndependentPerRoom(t *testing.T) {
	ctx := context.Background()
	cd := NewRoomCooldowns(store.NewMemoryStore(), time.Minute)

	if err := cd.Mark(ctx, "room-a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if rem, _ := cd.Remaining(ctx, "room-b"); rem != 0 {
		t.Errorf("room-b should not inherit room-a's cooldown, got %v", rem)
	}
}

func TestZeroWindowDisablesCooldown(t *testing.T) {
	ctx := context.Background()
	cd := NewRoomCooldowns(store.NewMemoryStore(), 0)

	if err := cd.Mark(ctx, "room-a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if rem, _ := cd.Remaining(ctx, "room-a"); rem != 0 {
		t.Errorf("disabled gate should report zero, got %v", rem)
	}
}
