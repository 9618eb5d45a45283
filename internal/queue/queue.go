// Package queue provides the FIFO admission waitlist for rooms competing
// for scarce browser slots.
//
// Entries move Waiting -> Notified (a time-boxed offer) and leave the
// queue on accept, decline, cancel, or offer expiry. Position is never
// stored; it is derived as the count of earlier still-present entries, so
// removals can never leave holes in the ordering.
//
// Queue state can be persisted through a store.Store so a restarted
// daemon resumes with its waitlist intact.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/store"
)

// EntryState represents the state of a queue entry.
type EntryState string

const (
	// StateWaiting indicates the room is waiting for a slot offer.
	StateWaiting EntryState = "waiting"

	// StateNotified indicates the room has a pending offer with a deadline.
	StateNotified EntryState = "notified"
)

// String returns the string representation of the entry state.
func (s EntryState) String() string {
	return string(s)
}

// Entry is one room's place in the admission queue.
type Entry struct {
	// RoomID uniquely identifies the waiting room.
	RoomID string `json:"room_id"`

	// EnqueuedAt orders the queue; strict FIFO by this timestamp.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// State is the current entry state.
	State EntryState `json:"state"`

	// NotifiedAt is when the offer was extended.
	NotifiedAt *time.Time `json:"notified_at,omitempty"`

	// Deadline is when the offer lapses (NotifiedAt + offer TTL).
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Status is the externally visible position snapshot for a room.
type Status struct {
	RoomID     string     `json:"room_id"`
	Position   int        `json:"position"` // 1-based
	State      EntryState `json:"state"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

const keyPrefix = "queue/"

// Queue manages the admission waitlist. All methods are safe for
// concurrent use via an internal mutex.
type Queue struct {
	mu       sync.Mutex
	entries  map[string]*Entry // roomID -> entry
	order    []string          // roomIDs in enqueue order
	offerTTL time.Duration
	st       store.Store // optional; nil disables persistence
	now      func() time.Time
}

// New creates an empty Queue whose offers lapse after offerTTL.
// If st is non-nil, entries are persisted through it.
func New(offerTTL time.Duration, st store.Store) *Queue {
	return &Queue{
		entries:  make(map[string]*Entry),
		order:    []string{},
		offerTTL: offerTTL,
		st:       st,
		now:      time.Now,
	}
}

// Load restores a Queue from previously persisted entries. Order is
// reconstructed from enqueue timestamps.
func Load(ctx context.Context, offerTTL time.Duration, st store.Store) (*Queue, error) {
	q := New(offerTTL, st)
	if st == nil {
		return q, nil
	}

	keys, err := st.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	for _, key := range keys {
		data, err := st.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load queue entry %s: %w", key, err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal queue entry %s: %w", key, err)
		}
		q.entries[e.RoomID] = &e
		q.order = append(q.order, e.RoomID)
	}
	sort.Slice(q.order, func(i, j int) bool {
		return q.entries[q.order[i]].EnqueuedAt.Before(q.entries[q.order[j]].EnqueuedAt)
	})
	return q, nil
}

// Enqueue adds a room to the waitlist and returns its 1-based position.
// If the room is already present, the existing entry is returned
// unchanged (created == false).
func (q *Queue) Enqueue(ctx context.Context, roomID string) (position int, created bool, err error) {
	if roomID == "" {
		return 0, false, errors.NewValidationError("room ID must not be empty").WithField("room_id")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[roomID]; ok {
		return q.positionOf(roomID), false, nil
	}

	entry := &Entry{
		RoomID:     roomID,
		EnqueuedAt: q.now(),
		State:      StateWaiting,
	}
	q.entries[roomID] = entry
	q.order = append(q.order, roomID)

	if err := q.persist(ctx, entry); err != nil {
		delete(q.entries, roomID)
		q.order = q.order[:len(q.order)-1]
		return 0, false, err
	}
	return q.positionOf(roomID), true, nil
}

// PeekNextWaiting returns a copy of the oldest entry still in the
// waiting state, or false if none exists.
func (q *Queue) PeekNextWaiting() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, roomID := range q.order {
		if e := q.entries[roomID]; e.State == StateWaiting {
			return *e, true
		}
	}
	return Entry{}, false
}

// Notify transitions a waiting entry to notified, stamping the offer
// deadline. Valid only for entries in the waiting state.
func (q *Queue) Notify(ctx context.Context, roomID string) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[roomID]
	if !ok {
		return Entry{}, errors.NewQueueError("notify failed", errors.ErrNotQueued).WithRoomID(roomID)
	}
	if entry.State != StateWaiting {
		return Entry{}, errors.NewQueueError(
			fmt.Sprintf("cannot notify entry in state %s", entry.State), errors.ErrAlreadyQueued).WithRoomID(roomID)
	}

	now := q.now()
	deadline := now.Add(q.offerTTL)
	entry.State = StateNotified
	entry.NotifiedAt = &now
	entry.Deadline = &deadline

	if err := q.persist(ctx, entry); err != nil {
		entry.State = StateWaiting
		entry.NotifiedAt = nil
		entry.Deadline = nil
		return Entry{}, err
	}
	return *entry, nil
}

// Accept removes the entry and succeeds only if it is notified and the
// offer deadline has not passed. A lapsed offer returns ErrOfferExpired;
// the entry is left in place for the sweep to reclaim.
func (q *Queue) Accept(ctx context.Context, roomID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[roomID]
	if !ok {
		return errors.NewQueueError("accept failed", errors.ErrNotQueued).WithRoomID(roomID)
	}
	if entry.State != StateNotified {
		return errors.NewQueueError("accept failed", errors.ErrNotNotified).WithRoomID(roomID)
	}
	if entry.Deadline != nil && q.now().After(*entry.Deadline) {
		return errors.NewQueueError("accept failed", errors.ErrOfferExpired).WithRoomID(roomID)
	}

	return q.remove(ctx, roomID)
}

// Decline removes a notified entry. Valid only in the notified state.
func (q *Queue) Decline(ctx context.Context, roomID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[roomID]
	if !ok {
		return errors.NewQueueError("decline failed", errors.ErrNotQueued).WithRoomID(roomID)
	}
	if entry.State != StateNotified {
		return errors.NewQueueError("decline failed", errors.ErrNotNotified).WithRoomID(roomID)
	}
	return q.remove(ctx, roomID)
}

// Cancel removes an entry regardless of state. Used for caller-initiated
// withdrawal.
func (q *Queue) Cancel(ctx context.Context, roomID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[roomID]; !ok {
		return errors.NewQueueError("cancel failed", errors.ErrNotQueued).WithRoomID(roomID)
	}
	return q.remove(ctx, roomID)
}

// SweepExpiredOffers removes every notified entry past its deadline and
// returns the affected room IDs. A non-empty result signals the caller
// to re-drain.
func (q *Queue) SweepExpiredOffers(ctx context.Context, now time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []string
	for _, roomID := range q.order {
		entry := q.entries[roomID]
		if entry.State == StateNotified && entry.Deadline != nil && now.After(*entry.Deadline) {
			expired = append(expired, roomID)
		}
	}
	for _, roomID := range expired {
		_ = q.remove(ctx, roomID)
	}
	return expired
}

// StatusOf returns the room's queue status, or false if absent.
func (q *Queue) StatusOf(roomID string) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[roomID]
	if !ok {
		return Status{}, false
	}
	return Status{
		RoomID:     roomID,
		Position:   q.positionOf(roomID),
		State:      entry.State,
		NotifiedAt: entry.NotifiedAt,
		Deadline:   entry.Deadline,
	}, true
}

// WaitingCount returns the number of entries in the waiting state.
func (q *Queue) WaitingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, entry := range q.entries {
		if entry.State == StateWaiting {
			count++
		}
	}
	return count
}

// Len returns the total number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a snapshot of all entries in queue order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.order))
	for _, roomID := range q.order {
		out = append(out, *q.entries[roomID])
	}
	return out
}

// positionOf derives the 1-based position as the count of earlier
// still-present entries plus one. Caller must hold q.mu.
func (q *Queue) positionOf(roomID string) int {
	pos := 1
	for _, id := range q.order {
		if id == roomID {
			return pos
		}
		pos++
	}
	return 0
}

// remove deletes the entry from the map, the order slice, and the store.
// Caller must hold q.mu.
func (q *Queue) remove(ctx context.Context, roomID string) error {
	delete(q.entries, roomID)
	for i, id := range q.order {
		if id == roomID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	if q.st != nil {
		if err := q.st.Delete(ctx, keyPrefix+roomID); err != nil && err != store.ErrNotFound {
			return errors.NewInfraError("store", "delete queue entry", err)
		}
	}
	return nil
}

// persist writes the entry through the store, if one is configured.
// Caller must hold q.mu.
func (q *Queue) persist(ctx context.Context, entry *Entry) error {
	if q.st == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal queue entry: %w", err)
	}
	if err := q.st.Save(ctx, keyPrefix+entry.RoomID, data); err != nil {
		return errors.NewInfraError("store", "save queue entry", err)
	}
	return nil
}
