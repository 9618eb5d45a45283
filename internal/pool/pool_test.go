package pool

import (
	"context"
	"sync"
	"testing"

	"github.com/roomshare/browserd/internal/driver"
	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/event"
)

func newTestPool(t *testing.T, size int) (*Pool, *driver.FakeDriver) {
	t.Helper()
	drv := driver.NewFakeDriver()
	p := New(drv, size, event.NewBus(), nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p, drv
}

// checkInvariant verifies available + allocated + unhealthy == total.
func checkInvariant(t *testing.T, p *Pool) {
	t.Helper()
	s := p.Stats()
	if s.Available+s.Allocated+s.Unhealthy != s.Total {
		t.Fatalf("capacity invariant violated: %+v", s)
	}
}

func TestInitializeProvisionsAllSlots(t *testing.T) {
	p, _ := newTestPool(t, 3)

	s := p.Stats()
	if s.Total != 3 || s.Available != 3 || s.Allocated != 0 {
		t.Errorf("Stats = %+v, want 3 total, 3 available", s)
	}
	checkInvariant(t, p)
}

func TestInitializeDegradesOnPartialFailure(t *testing.T) {
	drv := driver.NewFakeDriver()
	drv.FailInit[1] = true

	p := New(drv, 3, event.NewBus(), nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("partial failure should not be fatal: %v", err)
	}

	s := p.Stats()
	if s.Available != 2 || s.Unhealthy != 1 {
		t.Errorf("Stats = %+v, want 2 available, 1 unhealthy", s)
	}
	checkInvariant(t, p)
}

func TestInitializeFailsWhenZeroSlotsComeUp(t *testing.T) {
	drv := driver.NewFakeDriver()
	drv.FailInit[0] = true
	drv.FailInit[1] = true

	p := New(drv, 2, event.NewBus(), nil)
	err := p.Initialize(context.Background())
	if !errors.Is(err, errors.ErrPoolUnavailable) {
		t.Errorf("Initialize = %v, want ErrPoolUnavailable", err)
	}
}

func TestAllocateTakesLowestIndex(t *testing.T) {
	p, _ := newTestPool(t, 3)
	ctx := context.Background()

	first, info, err := p.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first.Index != 0 {
		t.Errorf("first allocation got slot %d, want 0", first.Index)
	}
	if info.Endpoint == "" || info.UserToken == "" {
		t.Errorf("connection info incomplete: %+v", info)
	}

	second, _, err := p.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second.Index != 1 {
		t.Errorf("second allocation got slot %d, want 1", second.Index)
	}
	checkInvariant(t, p)
}

func TestAllocateReturnsNoneWhenExhausted(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	if _, _, err := p.Allocate(ctx); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	_, _, err := p.Allocate(ctx)
	if !errors.Is(err, errors.ErrNoSlotsAvailable) {
		t.Errorf("Allocate on full pool = %v, want ErrNoSlotsAvailable", err)
	}
	checkInvariant(t, p)
}

func TestAllocateDriverFailureMarksUnhealthy(t *testing.T) {
	p, drv := newTestPool(t, 2)
	drv.FailAllocate[0] = true
	ctx := context.Background()

	_, _, err := p.Allocate(ctx)
	if !errors.Is(err, errors.ErrDriverFailed) {
		t.Fatalf("Allocate = %v, want ErrDriverFailed", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("driver failures should classify as retryable")
	}

	s := p.Stats()
	if s.Unhealthy != 1 || s.Available != 1 {
		t.Errorf("Stats = %+v, want slot 0 unhealthy and slot 1 still available", s)
	}
	checkInvariant(t, p)

	// Next allocation skips the unhealthy slot.
	slot, _, err := p.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate after failure: %v", err)
	}
	if slot.Index != 1 {
		t.Errorf("allocation got slot %d, want 1", slot.Index)
	}
}

func TestReturnIsIdempotent(t *testing.T) {
	p, drv := newTestPool(t, 1)
	ctx := context.Background()

	slot, _, err := p.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := p.Return(ctx, slot.ID); err != nil {
		t.Fatalf("Return: %v", err)
	}
	if drv.Restarts[slot.ID] != 1 {
		t.Errorf("return should reset the container once, got %d", drv.Restarts[slot.ID])
	}

	// Second return is a no-op and must not reset again.
	if err := p.Return(ctx, slot.ID); err != nil {
		t.Fatalf("second Return: %v", err)
	}
	if drv.Restarts[slot.ID] != 1 {
		t.Errorf("no-op return should not reset the container, got %d restarts", drv.Restarts[slot.ID])
	}

	s := p.Stats()
	if s.Available != 1 || s.Allocated != 0 {
		t.Errorf("Stats = %+v, want slot available again", s)
	}
	checkInvariant(t, p)
}

func TestReturnUnknownSlot(t *testing.T) {
	p, _ := newTestPool(t, 1)

	err := p.Return(context.Background(), "browserd-slot-99")
	if !errors.Is(err, errors.ErrSlotNotFound) {
		t.Errorf("Return = %v, want ErrSlotNotFound", err)
	}
}

func TestStatsListsAllocatedIDs(t *testing.T) {
	p, _ := newTestPool(t, 2)
	ctx := context.Background()

	slot, _, _ := p.Allocate(ctx)
	s := p.Stats()
	if len(s.AllocatedIDs) != 1 || s.AllocatedIDs[0] != slot.ID {
		t.Errorf("AllocatedIDs = %v, want [%s]", s.AllocatedIDs, slot.ID)
	}
}

func TestConcurrentAllocateGrantsDistinctSlots(t *testing.T) {
	const size = 4
	p, _ := newTestPool(t, size)
	ctx := context.Background()

	var mu sync.Mutex
	granted := make(map[int]int)

	var wg sync.WaitGroup
	for i := 0; i < size*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, _, err := p.Allocate(ctx)
			if err != nil {
				return // pool exhausted, expected for the overflow callers
			}
			mu.Lock()
			granted[slot.Index]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(granted) != size {
		t.Fatalf("granted %d distinct slots, want %d", len(granted), size)
	}
	for idx, n := range granted {
		if n != 1 {
			t.Errorf("slot %d granted %d times, want exactly once", idx, n)
		}
	}
	checkInvariant(t, p)
}

func TestCapacityEventsPublished(t *testing.T) {
	drv := driver.NewFakeDriver()
	bus := event.NewBus()

	var last event.PoolCapacityChangedEvent
	count := 0
	bus.Subscribe("pool.capacity_changed", func(e event.Event) {
		last = e.(event.PoolCapacityChangedEvent)
		count++
	})

	p := New(drv, 2, bus, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, _, err := p.Allocate(context.Background()); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if count < 2 {
		t.Fatalf("expected capacity events for init and allocate, got %d", count)
	}
	if last.Total != 2 || last.Available != 1 || last.Allocated != 1 {
		t.Errorf("last capacity event = %+v", last)
	}
}
