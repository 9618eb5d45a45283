package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/store"
)

// CooldownStore gates how soon a room may request a new session after
// releasing one. The coordinator only reads and writes cooldown marks
// through this interface.
type CooldownStore interface {
	// Mark stamps the room's last-release time with the current time.
	Mark(ctx context.Context, roomID string) error

	// Remaining returns how much of the room's cooldown window is left.
	// Zero means the room may request immediately.
	Remaining(ctx context.Context, roomID string) (time.Duration, error)
}

const cooldownKeyPrefix = "rooms/cooldown/"

// cooldownMark is the persisted record of a room's last release.
type cooldownMark struct {
	RoomID         string    `json:"room_id"`
	LastReleasedAt time.Time `json:"last_released_at"`
}

// RoomCooldowns is a CooldownStore backed by the shared store layer
// under the room key prefix.
type RoomCooldowns struct {
	st     store.Store
	window time.Duration
	now    func() time.Time
}

// NewRoomCooldowns creates a RoomCooldowns with the given window.
// A zero window disables the gate entirely.
func NewRoomCooldowns(st store.Store, window time.Duration) *RoomCooldowns {
	return &RoomCooldowns{
		st:     st,
		window: window,
		now:    time.Now,
	}
}

// Mark stamps the room's last-release time.
func (c *RoomCooldowns) Mark(ctx context.Context, roomID string) error {
	if c.st == nil || c.window <= 0 {
		return nil
	}
	data, err := json.Marshal(cooldownMark{RoomID: roomID, LastReleasedAt: c.now()})
	if err != nil {
		return fmt.Errorf("marshal cooldown mark: %w", err)
	}
	if err := c.st.Save(ctx, cooldownKeyPrefix+roomID, data); err != nil {
		return errors.NewInfraError("store", "save cooldown mark", err)
	}
	return nil
}

// Remaining returns the unexpired portion of the room's cooldown window.
func (c *RoomCooldowns) Remaining(ctx context.Context, roomID string) (time.Duration, error) {
	if c.st == nil || c.window <= 0 {
		return 0, nil
	}
	data, err := c.st.Load(ctx, cooldownKeyPrefix+roomID)
	if err != nil {
		if err == store.ErrNotFound {
			return 0, nil
		}
		return 0, errors.NewInfraError("store", "load cooldown mark", err)
	}
	var mark cooldownMark
	if err := json.Unmarshal(data, &mark); err != nil {
		return 0, fmt.Errorf("unmarshal cooldown mark: %w", err)
	}
	remaining := c.window - c.now().Sub(mark.LastReleasedAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

var _ CooldownStore = (*RoomCooldowns)(nil)
