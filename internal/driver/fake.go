package driver

import (
	"context"
	"fmt"
	"sync"
)

// FakeDriver is an in-memory Driver for tests and for running the daemon
// without a container runtime. Failure modes are injectable per slot.
type FakeDriver struct {
	mu sync.Mutex

	running map[string]int // slotID -> index

	// FailInit holds slot indexes whose initialization should fail.
	FailInit map[int]bool
	// FailAllocate holds slot indexes whose allocation should fail.
	FailAllocate map[int]bool
	// FailRelease holds slot IDs whose release should fail.
	FailRelease map[string]bool

	// Restarts counts RestartProcess/ReleaseSlot calls per slot ID.
	Restarts map[string]int
}

// NewFakeDriver creates an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		running:      make(map[string]int),
		FailInit:     make(map[int]bool),
		FailAllocate: make(map[int]bool),
		FailRelease:  make(map[string]bool),
		Restarts:     make(map[string]int),
	}
}

// InitializeSlot provisions a fake slot.
func (f *FakeDriver) InitializeSlot(ctx context.Context, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailInit[index] {
		return "", fmt.Errorf("fake init failure for slot %d", index)
	}
	id := SlotContainerName(index)
	f.running[id] = index
	return id, nil
}

// AllocateSlot returns deterministic connection info for the slot.
func (f *FakeDriver) AllocateSlot(ctx context.Context, index int) (ConnectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailAllocate[index] {
		return ConnectionInfo{}, fmt.Errorf("fake allocate failure for slot %d", index)
	}
	id := SlotContainerName(index)
	if _, ok := f.running[id]; !ok {
		return ConnectionInfo{}, fmt.Errorf("slot %d is not running", index)
	}
	return ConnectionInfo{
		SlotID:     id,
		Index:      index,
		Endpoint:   fmt.Sprintf("ws://fake:%d/ws", 8080+index),
		UserToken:  newToken(),
		AdminToken: newToken(),
	}, nil
}

// ReleaseSlot simulates a container reset.
func (f *FakeDriver) ReleaseSlot(ctx context.Context, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailRelease[slotID] {
		return fmt.Errorf("fake release failure for %s", slotID)
	}
	if _, ok := f.running[slotID]; !ok {
		return fmt.Errorf("slot %s is not running", slotID)
	}
	f.Restarts[slotID]++
	return nil
}

// HealthCheck reports whether the fake slot is running.
func (f *FakeDriver) HealthCheck(ctx context.Context, slotID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.running[slotID]
	return ok
}

// ListRunning returns all running fake slot IDs.
func (f *FakeDriver) ListRunning(ctx context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]struct{}, len(f.running))
	for id := range f.running {
		out[id] = struct{}{}
	}
	return out, nil
}

// RestartProcess restarts the fake slot.
func (f *FakeDriver) RestartProcess(ctx context.Context, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.running[slotID]; !ok {
		return fmt.Errorf("slot %s is not running", slotID)
	}
	f.Restarts[slotID]++
	return nil
}

// Shutdown stops all fake slots.
func (f *FakeDriver) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.running = make(map[string]int)
	return nil
}

// StopSlot removes a slot from the running set, simulating a crashed
// container. Intended for tests exercising orphan reconciliation.
func (f *FakeDriver) StopSlot(slotID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.running, slotID)
}

var _ Driver = (*FakeDriver)(nil)
