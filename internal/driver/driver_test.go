package driver

import (
	"context"
	"testing"
)

func TestSlotContainerName(t *testing.T) {
	if got := SlotContainerName(0); got != "browserd-slot-0" {
		t.Errorf("SlotContainerName(0) = %q", got)
	}
	if got := SlotContainerName(12); got != "browserd-slot-12" {
		t.Errorf("SlotContainerName(12) = %q", got)
	}
}

func TestFakeDriverLifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFakeDriver()

	id, err := f.InitializeSlot(ctx, 0)
	if err != nil {
		t.Fatalf("InitializeSlot: %v", err)
	}
	if !f.HealthCheck(ctx, id) {
		t.Error("initialized slot should be healthy")
	}

	info, err := f.AllocateSlot(ctx, 0)
	if err != nil {
		t.Fatalf("AllocateSlot: %v", err)
	}
	if info.SlotID != id || info.Index != 0 {
		t.Errorf("unexpected connection info: %+v", info)
	}
	if info.UserToken == "" || info.AdminToken == "" {
		t.Error("allocation should mint credentials")
	}
	if info.UserToken == info.AdminToken {
		t.Error("user and admin tokens should differ")
	}

	if err := f.ReleaseSlot(ctx, id); err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	if f.Restarts[id] != 1 {
		t.Errorf("release should reset the container once, got %d", f.Restarts[id])
	}
}

func TestFakeDriverInjectedFailures(t *testing.T) {
	ctx := context.Background()
	f := NewFakeDriver()
	f.FailInit[1] = true

	if _, err := f.InitializeSlot(ctx, 1); err == nil {
		t.Error("InitializeSlot should fail for slot 1")
	}

	if _, err := f.InitializeSlot(ctx, 2); err != nil {
		t.Fatalf("InitializeSlot(2): %v", err)
	}
	f.FailAllocate[2] = true
	if _, err := f.AllocateSlot(ctx, 2); err == nil {
		t.Error("AllocateSlot should fail for slot 2")
	}
}

func TestFakeDriverListRunningAndStop(t *testing.T) {
	ctx := context.Background()
	f := NewFakeDriver()

	for i := 0; i < 3; i++ {
		if _, err := f.InitializeSlot(ctx, i); err != nil {
			t.Fatalf("InitializeSlot(%d): %v", i, err)
		}
	}

	running, err := f.ListRunning(ctx)
	if err != nil {
		t.Fatalf("ListRunning: %v", err)
	}
	if len(running) != 3 {
		t.Fatalf("running = %d slots, want 3", len(running))
	}

	f.StopSlot(SlotContainerName(1))
	running, _ = f.ListRunning(ctx)
	if _, ok := running[SlotContainerName(1)]; ok {
		t.Error("stopped slot should not be listed as running")
	}
	if f.HealthCheck(ctx, SlotContainerName(1)) {
		t.Error("stopped slot should fail health check")
	}

	if _, err := f.AllocateSlot(ctx, 1); err == nil {
		t.Error("allocating a stopped slot should fail")
	}
}
