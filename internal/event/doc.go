// Package event provides a pub-sub event bus for decoupled inter-component
// communication in browserd.
//
// The lifecycle coordinator publishes events without knowing who consumes
// them; the websocket notification hub, the maintenance scheduler, and the
// playback subsystem subscribe without depending on the coordinator.
//
// # Main Types
//
//   - [Event]: Interface all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Session lifecycle:
//   - [SessionAllocatedEvent]: a slot was bound to a room
//   - [SessionReleasedEvent]: a room released its session
//   - [SessionExpiredEvent]: a session's TTL elapsed and it was reclaimed
//
// Admission queue:
//   - [QueueJoinedEvent]: a room joined the waitlist
//   - [QueueCancelledEvent]: a room withdrew (or declined an offer)
//   - [OfferAvailableEvent]: a freed slot was offered to a waiting room
//   - [OfferExpiredEvent]: an offer lapsed without an accept or decline
//
// Cross-subsystem:
//   - [PlaybackResetEvent]: a room's in-progress playback state must be cleared
//   - [PoolCapacityChangedEvent]: available/allocated counts changed
package event
