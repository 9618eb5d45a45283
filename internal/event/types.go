package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.allocated", "queue.joined")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// SessionInfo is the session summary carried on session events.
// It is a plain value so event consumers do not depend on the registry.
type SessionInfo struct {
	SessionID  string    `json:"session_id"`
	RoomID     string    `json:"room_id"`
	SlotIndex  int       `json:"slot_index"`
	ConnectURL string    `json:"connect_url,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// QueueInfo is the queue-entry summary carried on queue events.
type QueueInfo struct {
	RoomID     string    `json:"room_id"`
	Position   int       `json:"position"`
	State      string    `json:"state"`
	NotifiedAt time.Time `json:"notified_at,omitzero"`
	Deadline   time.Time `json:"deadline,omitzero"`
}

// -----------------------------------------------------------------------------
// Session Lifecycle Events
// -----------------------------------------------------------------------------

// SessionAllocatedEvent is emitted when a slot is bound to a room.
type SessionAllocatedEvent struct {
	baseEvent
	RoomID  string
	Session SessionInfo
}

// NewSessionAllocatedEvent creates a SessionAllocatedEvent.
func NewSessionAllocatedEvent(roomID string, session SessionInfo) SessionAllocatedEvent {
	return SessionAllocatedEvent{
		baseEvent: newBaseEvent("session.allocated"),
		RoomID:    roomID,
		Session:   session,
	}
}

// SessionReleasedEvent is emitted when a room releases its session.
type SessionReleasedEvent struct {
	baseEvent
	RoomID    string
	SessionID string
}

// NewSessionReleasedEvent creates a SessionReleasedEvent.
func NewSessionReleasedEvent(roomID, sessionID string) SessionReleasedEvent {
	return SessionReleasedEvent{
		baseEvent: newBaseEvent("session.released"),
		RoomID:    roomID,
		SessionID: sessionID,
	}
}

// SessionExpiredEvent is emitted when a session's TTL elapses and the
// maintenance sweep reclaims its slot.
type SessionExpiredEvent struct {
	baseEvent
	RoomID    string
	SessionID string
}

// NewSessionExpiredEvent creates a SessionExpiredEvent.
func NewSessionExpiredEvent(roomID, sessionID string) SessionExpiredEvent {
	return SessionExpiredEvent{
		baseEvent: newBaseEvent("session.expired"),
		RoomID:    roomID,
		SessionID: sessionID,
	}
}

// -----------------------------------------------------------------------------
// Admission Queue Events
// -----------------------------------------------------------------------------

// QueueJoinedEvent is emitted when a room joins the waitlist.
type QueueJoinedEvent struct {
	baseEvent
	RoomID string
	Status QueueInfo
}

// NewQueueJoinedEvent creates a QueueJoinedEvent.
func NewQueueJoinedEvent(roomID string, status QueueInfo) QueueJoinedEvent {
	return QueueJoinedEvent{
		baseEvent: newBaseEvent("queue.joined"),
		RoomID:    roomID,
		Status:    status,
	}
}

// QueueCancelledEvent is emitted when a room withdraws from the waitlist,
// either explicitly or by declining an offer.
type QueueCancelledEvent struct {
	baseEvent
	RoomID string
	Reason string // "cancelled" or "declined"
}

// NewQueueCancelledEvent creates a QueueCancelledEvent.
func NewQueueCancelledEvent(roomID, reason string) QueueCancelledEvent {
	return QueueCancelledEvent{
		baseEvent: newBaseEvent("queue.cancelled"),
		RoomID:    roomID,
		Reason:    reason,
	}
}

// OfferAvailableEvent is emitted when a freed slot is offered to the
// oldest waiting room. RoomID may be empty when no specific addressee
// is known, in which case consumers should broadcast.
type OfferAvailableEvent struct {
	baseEvent
	RoomID string
	Status QueueInfo
}

// NewOfferAvailableEvent creates an OfferAvailableEvent.
func NewOfferAvailableEvent(roomID string, status QueueInfo) OfferAvailableEvent {
	return OfferAvailableEvent{
		baseEvent: newBaseEvent("queue.offer_available"),
		RoomID:    roomID,
		Status:    status,
	}
}

// OfferExpiredEvent is emitted when a notified room neither accepts nor
// declines before its deadline and the sweep removes its entry.
type OfferExpiredEvent struct {
	baseEvent
	RoomID string
}

// NewOfferExpiredEvent creates an OfferExpiredEvent.
func NewOfferExpiredEvent(roomID string) OfferExpiredEvent {
	return OfferExpiredEvent{
		baseEvent: newBaseEvent("queue.offer_expired"),
		RoomID:    roomID,
	}
}

// -----------------------------------------------------------------------------
// Cross-Subsystem Events
// -----------------------------------------------------------------------------

// PlaybackResetEvent is emitted when allocating a session for a room.
// The playback subsystem clears the room's in-progress video state in
// response. Kept as an event so this coupling stays one-directional.
type PlaybackResetEvent struct {
	baseEvent
	RoomID string
}

// NewPlaybackResetEvent creates a PlaybackResetEvent.
func NewPlaybackResetEvent(roomID string) PlaybackResetEvent {
	return PlaybackResetEvent{
		baseEvent: newBaseEvent("playback.reset"),
		RoomID:    roomID,
	}
}

// PoolCapacityChangedEvent is emitted whenever the pool's
// available/allocated counts change.
type PoolCapacityChangedEvent struct {
	baseEvent
	Total     int
	Available int
	Allocated int
}

// NewPoolCapacityChangedEvent creates a PoolCapacityChangedEvent.
func NewPoolCapacityChangedEvent(total, available, allocated int) PoolCapacityChangedEvent {
	return PoolCapacityChangedEvent{
		baseEvent: newBaseEvent("pool.capacity_changed"),
		Total:     total,
		Available: available,
		Allocated: allocated,
	}
}
