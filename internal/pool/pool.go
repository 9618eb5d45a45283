// Package pool owns the fixed set of remote-browser execution slots.
//
// The pool tracks per-slot health and availability and is the only
// component that talks to the runtime driver about slot state. Allocation
// reserves a slot under the pool lock and performs driver I/O outside it,
// rolling the reservation back on failure, so concurrent callers can never
// both believe the same slot is free.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/roomshare/browserd/internal/driver"
	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/event"
	"github.com/roomshare/browserd/internal/logging"
)

// SlotState represents the health state of a slot.
type SlotState string

const (
	// SlotProvisioning indicates the slot's container is being started.
	SlotProvisioning SlotState = "provisioning"

	// SlotAvailable indicates the slot is healthy and unallocated.
	SlotAvailable SlotState = "available"

	// SlotAllocated indicates the slot is bound to an active session.
	SlotAllocated SlotState = "allocated"

	// SlotUnhealthy indicates the slot is excluded from rotation after a
	// driver failure. Capacity degrades; the pool keeps serving.
	SlotUnhealthy SlotState = "unhealthy"
)

// String returns the string representation of the slot state.
func (s SlotState) String() string {
	return string(s)
}

// Slot is one unit of execution capacity backed by a provisioned container.
type Slot struct {
	// Index is the stable slot index, 0..N-1.
	Index int `json:"index"`

	// ID is the driver-side identifier (container name).
	ID string `json:"id"`

	// State is the current health state.
	State SlotState `json:"state"`

	// LastError records the most recent driver failure for this slot.
	LastError string `json:"last_error,omitempty"`
}

// Stats is a snapshot of the pool's current capacity.
type Stats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Allocated int `json:"allocated"`
	Unhealthy int `json:"unhealthy"`
	// AllocatedIDs lists the driver-side IDs of allocated slots.
	AllocatedIDs []string `json:"allocated_ids"`
}

// Pool manages the fixed set of slots. All methods are safe for
// concurrent use via an internal mutex.
type Pool struct {
	mu     sync.Mutex
	slots  []*Slot
	drv    driver.Driver
	bus    *event.Bus
	logger *logging.Logger
}

// New creates a Pool of the given size. Initialize must be called before
// the pool can allocate.
func New(drv driver.Driver, size int, bus *event.Bus, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.NopLogger()
	}
	slots := make([]*Slot, size)
	for i := range slots {
		slots[i] = &Slot{Index: i, State: SlotProvisioning}
	}
	return &Pool{
		slots:  slots,
		drv:    drv,
		bus:    bus,
		logger: logger.WithComponent("pool"),
	}
}

// Initialize provisions all slots via the runtime driver. Per-slot
// failures mark that slot unhealthy and exclude it from rotation. If zero
// slots come up, initialization fails with ErrPoolUnavailable.
func (p *Pool) Initialize(ctx context.Context) error {
	healthy := 0
	for _, slot := range p.slots {
		id, err := p.drv.InitializeSlot(ctx, slot.Index)

		p.mu.Lock()
		if err != nil {
			slot.State = SlotUnhealthy
			slot.LastError = err.Error()
			p.mu.Unlock()
			p.logger.Warn("slot initialization failed", "slot", slot.Index, "error", err)
			continue
		}
		slot.ID = id
		slot.State = SlotAvailable
		p.mu.Unlock()

		healthy++
		p.logger.Info("slot initialized", "slot", slot.Index, "container", id)
	}

	if healthy == 0 && len(p.slots) > 0 {
		return errors.NewPoolError("no slots could be provisioned", errors.ErrPoolUnavailable).
			WithSeverity(errors.SeverityCritical)
	}

	p.publishCapacity()
	return nil
}

// Allocate returns the lowest-index available slot, marked allocated,
// together with fresh connection info from the driver. Returns
// ErrNoSlotsAvailable when every healthy slot is taken. A driver failure
// marks the slot unhealthy and surfaces as an error without retrying.
func (p *Pool) Allocate(ctx context.Context) (Slot, driver.ConnectionInfo, error) {
	p.mu.Lock()
	var reserved *Slot
	for _, slot := range p.slots {
		if slot.State == SlotAvailable {
			reserved = slot
			slot.State = SlotAllocated
			break
		}
	}
	p.mu.Unlock()

	if reserved == nil {
		return Slot{}, driver.ConnectionInfo{}, errors.NewPoolError("allocation failed", errors.ErrNoSlotsAvailable)
	}

	info, err := p.drv.AllocateSlot(ctx, reserved.Index)
	if err != nil {
		p.mu.Lock()
		reserved.State = SlotUnhealthy
		reserved.LastError = err.Error()
		p.mu.Unlock()
		p.publishCapacity()
		p.logger.Warn("driver allocation failed, slot marked unhealthy",
			"slot", reserved.Index, "error", err)
		return Slot{}, driver.ConnectionInfo{}, errors.NewPoolError("driver allocation failed", errors.ErrDriverFailed).
			WithSlotIndex(reserved.Index).
			WithRetryable(true)
	}

	p.publishCapacity()
	p.logger.Info("slot allocated", "slot", reserved.Index, "container", reserved.ID)

	p.mu.Lock()
	cp := *reserved
	p.mu.Unlock()
	return cp, info, nil
}

// Return marks a slot available again and asks the driver to reset it.
// Returning an already-available slot is a logged no-op, not an error.
func (p *Pool) Return(ctx context.Context, slotID string) error {
	p.mu.Lock()
	slot := p.findByID(slotID)
	if slot == nil {
		p.mu.Unlock()
		return errors.NewPoolError("return failed", errors.ErrSlotNotFound).WithSlotID(slotID)
	}
	if slot.State == SlotAvailable {
		p.mu.Unlock()
		p.logger.Info("slot already available, return is a no-op", "container", slotID)
		return nil
	}
	if slot.State == SlotUnhealthy {
		p.mu.Unlock()
		p.logger.Info("returned slot is unhealthy, leaving out of rotation", "container", slotID)
		return nil
	}
	slot.State = SlotAvailable
	index := slot.Index
	p.mu.Unlock()

	if err := p.drv.ReleaseSlot(ctx, slotID); err != nil {
		// The reset failed; pull the slot back out of rotation.
		p.mu.Lock()
		slot.State = SlotUnhealthy
		slot.LastError = err.Error()
		p.mu.Unlock()
		p.publishCapacity()
		p.logger.Warn("slot reset failed, slot marked unhealthy", "slot", index, "error", err)
		return errors.NewPoolError("slot reset failed", errors.ErrDriverFailed).
			WithSlotIndex(index).
			WithRetryable(true)
	}

	p.publishCapacity()
	p.logger.Info("slot returned", "slot", index, "container", slotID)
	return nil
}

// MarkUnhealthy removes a slot from rotation.
func (p *Pool) MarkUnhealthy(slotID, reason string) {
	p.mu.Lock()
	slot := p.findByID(slotID)
	if slot != nil {
		slot.State = SlotUnhealthy
		slot.LastError = reason
	}
	p.mu.Unlock()

	if slot != nil {
		p.publishCapacity()
		p.logger.Warn("slot marked unhealthy", "container", slotID, "reason", reason)
	}
}

// Stats returns a snapshot of the pool's capacity counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Total: len(p.slots), AllocatedIDs: []string{}}
	for _, slot := range p.slots {
		switch slot.State {
		case SlotAvailable:
			s.Available++
		case SlotAllocated:
			s.Allocated++
			s.AllocatedIDs = append(s.AllocatedIDs, slot.ID)
		case SlotUnhealthy:
			s.Unhealthy++
		}
	}
	return s
}

// HasAvailable reports whether at least one slot is available.
func (p *Pool) HasAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, slot := range p.slots {
		if slot.State == SlotAvailable {
			return true
		}
	}
	return false
}

// Slots returns a snapshot copy of every slot.
func (p *Pool) Slots() []Slot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Slot, len(p.slots))
	for i, slot := range p.slots {
		out[i] = *slot
	}
	return out
}

// SlotByID returns a snapshot of the slot with the given driver-side ID.
func (p *Pool) SlotByID(slotID string) (Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot := p.findByID(slotID); slot != nil {
		return *slot, true
	}
	return Slot{}, false
}

// Shutdown tears down all slot containers via the driver.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.drv.Shutdown(ctx); err != nil {
		return fmt.Errorf("driver shutdown: %w", err)
	}
	return nil
}

// findByID locates a slot by driver-side ID. Caller must hold p.mu.
func (p *Pool) findByID(slotID string) *Slot {
	for _, slot := range p.slots {
		if slot.ID == slotID {
			return slot
		}
	}
	return nil
}

// publishCapacity emits a PoolCapacityChangedEvent with current counts.
func (p *Pool) publishCapacity() {
	if p.bus == nil {
		return
	}
	s := p.Stats()
	p.bus.Publish(event.NewPoolCapacityChangedEvent(s.Total, s.Available, s.Allocated))
}
