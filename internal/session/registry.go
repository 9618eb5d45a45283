// Package session provides the persisted registry of active browser
// sessions and their status lifecycle.
//
// A session is the binding of one slot to one room. Records are created
// atomically with slot allocation and destroyed atomically with slot
// return; a session in a terminal status never remains in the registry.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roomshare/browserd/internal/driver"
	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/store"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	// StatusAllocated indicates the slot is bound but the client has not
	// connected yet.
	StatusAllocated Status = "allocated"

	// StatusInUse indicates the client has connected and is browsing.
	// The transition is observed (first URL report), not driven by an
	// explicit call.
	StatusInUse Status = "in_use"

	// StatusDeallocated is the terminal status for an explicit release.
	StatusDeallocated Status = "deallocated"

	// StatusExpired is the terminal status for a TTL reclaim.
	StatusExpired Status = "expired"

	// StatusError is the terminal status for a driver or health failure.
	StatusError Status = "error"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
// Terminal sessions are deleted from the registry together with their
// slot's return.
func (s Status) IsTerminal() bool {
	return s == StatusDeallocated || s == StatusExpired || s == StatusError
}

// IsActive returns true while the session holds its slot.
func (s Status) IsActive() bool {
	return s == StatusAllocated || s == StatusInUse
}

// Session is an active binding of a slot to a room.
type Session struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// RoomID is the owning room.
	RoomID string `json:"room_id"`

	// SlotID is the driver-side ID of the bound slot.
	SlotID string `json:"slot_id"`

	// SlotIndex is the bound slot's stable index.
	SlotIndex int `json:"slot_index"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Endpoint is the websocket endpoint clients connect to.
	Endpoint string `json:"endpoint"`

	// UserToken and AdminToken are the session secrets minted at allocation.
	UserToken  string `json:"user_token"`
	AdminToken string `json:"admin_token"`

	// LastURL is the most recently reported browser URL.
	LastURL string `json:"last_url,omitempty"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// AllocatedAt is when the slot was bound.
	AllocatedAt time.Time `json:"allocated_at"`

	// ExpiresAt is AllocatedAt plus the session TTL.
	ExpiresAt time.Time `json:"expires_at"`

	// DeallocatedAt is when the session reached a terminal status.
	DeallocatedAt *time.Time `json:"deallocated_at,omitempty"`
}

const keyPrefix = "sessions/"

// Registry manages session records. All methods are safe for concurrent
// use via an internal mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session // sessionID -> session
	byRoom   map[string]string   // roomID -> sessionID (active sessions only)
	st       store.Store         // optional; nil disables persistence
	now      func() time.Time
}

// NewRegistry creates an empty Registry. If st is non-nil, records are
// persisted through it.
func NewRegistry(st store.Store) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byRoom:   make(map[string]string),
		st:       st,
		now:      time.Now,
	}
}

// Load restores a Registry from previously persisted records.
func Load(ctx context.Context, st store.Store) (*Registry, error) {
	r := NewRegistry(st)
	if st == nil {
		return r, nil
	}

	keys, err := st.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for _, key := range keys {
		data, err := st.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", key, err)
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal session %s: %w", key, err)
		}
		r.sessions[s.ID] = &s
		if s.Status.IsActive() {
			r.byRoom[s.RoomID] = s.ID
		}
	}
	return r, nil
}

// Create registers a new session binding the given slot to the room.
// Fails with ErrSessionExists if the room already has an active session.
func (r *Registry) Create(ctx context.Context, roomID string, slotIndex int, conn driver.ConnectionInfo, ttl time.Duration) (Session, error) {
	if roomID == "" {
		return Session{}, errors.NewValidationError("room ID must not be empty").WithField("room_id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byRoom[roomID]; ok {
		return Session{}, errors.NewSessionError("room already has an active session", errors.ErrSessionExists).
			WithRoomID(roomID).
			WithSessionID(existingID)
	}

	now := r.now()
	s := &Session{
		ID:          generateID(),
		RoomID:      roomID,
		SlotID:      conn.SlotID,
		SlotIndex:   slotIndex,
		Status:      StatusAllocated,
		Endpoint:    conn.Endpoint,
		UserToken:   conn.UserToken,
		AdminToken:  conn.AdminToken,
		CreatedAt:   now,
		AllocatedAt: now,
		ExpiresAt:   now.Add(ttl),
	}

	if err := r.persistNew(ctx, s); err != nil {
		return Session{}, err
	}
	r.sessions[s.ID] = s
	r.byRoom[roomID] = s.ID
	return *s, nil
}

// Get returns a copy of the session with the given ID.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ByRoom returns a copy of the room's active session.
func (r *Registry) ByRoom(roomID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byRoom[roomID]
	if !ok {
		return Session{}, false
	}
	return *r.sessions[id], true
}

// Delete removes the session record. Idempotent: deleting an absent
// session is a no-op.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	if r.st != nil {
		if err := r.st.Delete(ctx, keyPrefix+sessionID); err != nil && err != store.ErrNotFound {
			return errors.NewInfraError("store", "delete session", err)
		}
	}
	delete(r.sessions, sessionID)
	if r.byRoom[s.RoomID] == sessionID {
		delete(r.byRoom, s.RoomID)
	}
	return nil
}

// MarkInUse records the observed allocated -> in-use transition, stamping
// the reported URL. Calls on an already in-use session just update the URL.
func (r *Registry) MarkInUse(ctx context.Context, sessionID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return errors.NewSessionError("mark in-use failed", errors.ErrSessionNotFound).WithSessionID(sessionID)
	}
	if s.Status.IsTerminal() {
		return errors.NewSessionError("mark in-use failed", errors.ErrSessionTerminal).WithSessionID(sessionID)
	}

	prevStatus, prevURL := s.Status, s.LastURL
	s.Status = StatusInUse
	if url != "" {
		s.LastURL = url
	}
	if err := r.persist(ctx, s); err != nil {
		s.Status, s.LastURL = prevStatus, prevURL
		return err
	}
	return nil
}

// ListActive returns copies of all sessions holding a slot, ordered by
// allocation time.
func (r *Registry) ListActive() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, s := range r.sessions {
		if s.Status.IsActive() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AllocatedAt.Before(out[j].AllocatedAt) })
	return out
}

// ListExpired returns copies of all active sessions whose TTL has
// elapsed at the given time.
func (r *Registry) ListExpired(now time.Time) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, s := range r.sessions {
		if s.Status.IsActive() && !s.ExpiresAt.After(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

// ReconcileOrphans deletes sessions whose bound slot is absent from the
// driver's currently running set. Returns the removed sessions. Used for
// startup self-healing after a crash or container loss.
func (r *Registry) ReconcileOrphans(ctx context.Context, running map[string]struct{}) ([]Session, error) {
	r.mu.Lock()
	var orphans []*Session
	for _, s := range r.sessions {
		if _, ok := running[s.SlotID]; !ok {
			orphans = append(orphans, s)
		}
	}
	r.mu.Unlock()

	removed := make([]Session, 0, len(orphans))
	for _, s := range orphans {
		if err := r.Delete(ctx, s.ID); err != nil {
			return removed, err
		}
		removed = append(removed, *s)
	}
	return removed, nil
}

// persist writes the session through the store, if one is configured.
// Caller must hold r.mu.
func (r *Registry) persist(ctx context.Context, s *Session) error {
	if r.st == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.st.Save(ctx, keyPrefix+s.ID, data); err != nil {
		return errors.NewInfraError("store", "save session", err)
	}
	return nil
}

// persistNew writes a freshly created session. When the store supports
// compare-and-swap, the write is conditional so two processes sharing a
// backend cannot both claim the same session ID. Caller must hold r.mu.
func (r *Registry) persistNew(ctx context.Context, s *Session) error {
	if r.st == nil {
		return nil
	}
	as, ok := r.st.(store.AtomicStore)
	if !ok {
		return r.persist(ctx, s)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := as.SaveIfNotExists(ctx, keyPrefix+s.ID, data); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return errors.NewSessionError("session ID collision", errors.ErrSessionExists).
				WithSessionID(s.ID)
		}
		return errors.NewInfraError("store", "save session", err)
	}
	return nil
}

// generateID creates a short random hex session ID.
// Falls back to a timestamp-based ID if the entropy source fails.
func generateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(b)
}
