// Package driver defines the runtime driver contract the slot pool consumes,
// plus the concrete Docker implementation and an in-memory fake for tests.
//
// A driver owns the low-level mechanics of the container processes backing
// each slot. The pool and coordinator never shell out themselves; everything
// goes through this narrow interface so the runtime can be swapped without
// touching admission logic.
package driver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ConnectionInfo describes how a client connects to an allocated slot.
type ConnectionInfo struct {
	// SlotID is the driver-side identifier (the container name for the
	// Docker driver).
	SlotID string `json:"slot_id"`

	// Index is the stable slot index, 0..N-1.
	Index int `json:"index"`

	// Endpoint is the websocket endpoint clients connect to.
	Endpoint string `json:"endpoint"`

	// UserToken authenticates regular participants for this session.
	UserToken string `json:"user_token"`

	// AdminToken authenticates the session owner.
	AdminToken string `json:"admin_token"`
}

// Driver is the runtime contract consumed by the slot pool.
//
// Implementations must be safe for concurrent use. Operations that touch
// the container runtime accept a context so callers can bound them.
type Driver interface {
	// InitializeSlot provisions the container backing the given slot index
	// and returns its driver-side ID. Called once per slot at pool
	// initialization. A failure marks only that slot unhealthy.
	InitializeSlot(ctx context.Context, index int) (string, error)

	// AllocateSlot prepares the slot for a new session and returns
	// connection info with freshly minted credentials.
	AllocateSlot(ctx context.Context, index int) (ConnectionInfo, error)

	// ReleaseSlot resets the slot after a session ends so the next
	// occupant gets a clean browser.
	ReleaseSlot(ctx context.Context, slotID string) error

	// HealthCheck reports whether the slot's container is running.
	HealthCheck(ctx context.Context, slotID string) bool

	// ListRunning returns the driver-side IDs of all currently running
	// slot containers. Used for orphan reconciliation at startup.
	ListRunning(ctx context.Context) (map[string]struct{}, error)

	// RestartProcess restarts the slot's container in place.
	RestartProcess(ctx context.Context, slotID string) error

	// Shutdown tears down every slot container.
	Shutdown(ctx context.Context) error
}

// DefaultCommandTimeout bounds individual runtime operations.
const DefaultCommandTimeout = 30 * time.Second

// newToken mints a short random hex credential.
// Falls back to a timestamp-derived value if the entropy source fails.
func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
