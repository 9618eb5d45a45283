package session

import (
	"context"
	"testing"
	"time"

	"github.com/roomshare/browserd/internal/driver"
	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/store"
)

const testTTL = time.Hour

func testConn(index int) driver.ConnectionInfo {
	return driver.ConnectionInfo{
		SlotID:     driver.SlotContainerName(index),
		Index:      index,
		Endpoint:   "ws://fake:8080/ws",
		UserToken:  "user-token",
		AdminToken: "admin-token",
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	s, err := r.Create(ctx, "room-1", 0, testConn(0), testTTL)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Status != StatusAllocated {
		t.Errorf("status = %s, want allocated", s.Status)
	}
	if s.ExpiresAt.Sub(s.AllocatedAt) != testTTL {
		t.Errorf("TTL window = %v, want %v", s.ExpiresAt.Sub(s.AllocatedAt), testTTL)
	}

	got, ok := r.Get(s.ID)
	if !ok {
		t.Fatal("Get should find the session")
	}
	if got.RoomID != "room-1" || got.SlotID != "browserd-slot-0" {
		t.Errorf("unexpected session: %+v", got)
	}

	byRoom, ok := r.ByRoom("room-1")
	if !ok || byRoom.ID != s.ID {
		t.Error("ByRoom should find the active session")
	}
}

func TestCreateRejectsSecondActiveSession(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	if _, err := r.Create(ctx, "room-1", 0, testConn(0), testTTL); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := r.Create(ctx, "room-1", 1, testConn(1), testTTL)
	if !errors.Is(err, errors.ErrSessionExists) {
		t.Errorf("second Create = %v, want ErrSessionExists", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	s, _ := r.Create(ctx, "room-1", 0, testConn(0), testTTL)
	if err := r.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Delete(ctx, s.ID); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, ok := r.ByRoom("room-1"); ok {
		t.Error("room index should be cleared after delete")
	}

	// Room can create again after deletion.
	if _, err := r.Create(ctx, "room-1", 1, testConn(1), testTTL); err != nil {
		t.Errorf("Create after delete: %v", err)
	}
}

func TestMarkInUse(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	s, _ := r.Create(ctx, "room-1", 0, testConn(0), testTTL)
	if err := r.MarkInUse(ctx, s.ID, "https://example.com"); err != nil {
		t.Fatalf("MarkInUse: %v", err)
	}

	got, _ := r.Get(s.ID)
	if got.Status != StatusInUse {
		t.Errorf("status = %s, want in_use", got.Status)
	}
	if got.LastURL != "https://example.com" {
		t.Errorf("LastURL = %q", got.LastURL)
	}

	// A later report just updates the URL.
	if err := r.MarkInUse(ctx, s.ID, "https://example.com/watch"); err != nil {
		t.Fatalf("second MarkInUse: %v", err)
	}
	got, _ = r.Get(s.ID)
	if got.LastURL != "https://example.com/watch" {
		t.Errorf("LastURL = %q", got.LastURL)
	}

	if err := r.MarkInUse(ctx, "ghost", ""); !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("MarkInUse(ghost) = %v, want ErrSessionNotFound", err)
	}
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	base := time.Now()
	r.now = func() time.Time { return base }

	short, _ := r.Create(ctx, "room-1", 0, testConn(0), time.Minute)
	if _, err := r.Create(ctx, "room-2", 1, testConn(1), time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got := r.ListExpired(base.Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("nothing should be expired yet, got %d", len(got))
	}

	expired := r.ListExpired(base.Add(2 * time.Minute))
	if len(expired) != 1 || expired[0].ID != short.ID {
		t.Fatalf("ListExpired = %+v, want only the one-minute session", expired)
	}

	// The boundary is inclusive: expiresAt <= now counts as expired.
	if got := r.ListExpired(short.ExpiresAt); len(got) != 1 {
		t.Errorf("session expiring exactly now should be listed, got %d", len(got))
	}
}

func TestReconcileOrphans(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	kept, _ := r.Create(ctx, "room-1", 0, testConn(0), testTTL)
	orphan, _ := r.Create(ctx, "room-2", 1, testConn(1), testTTL)

	running := map[string]struct{}{kept.SlotID: {}}
	removed, err := r.ReconcileOrphans(ctx, running)
	if err != nil {
		t.Fatalf("ReconcileOrphans: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != orphan.ID {
		t.Fatalf("removed = %+v, want the orphaned session", removed)
	}
	if _, ok := r.Get(orphan.ID); ok {
		t.Error("orphan should be deleted")
	}
	if _, ok := r.Get(kept.ID); !ok {
		t.Error("session with a running slot should survive")
	}
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	r := NewRegistry(st)
	created, err := r.Create(ctx, "room-1", 0, testConn(0), testTTL)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.MarkInUse(ctx, created.ID, "https://example.com"); err != nil {
		t.Fatalf("MarkInUse: %v", err)
	}

	restored, err := Load(ctx, st)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := restored.Get(created.ID)
	if !ok {
		t.Fatal("restored registry should contain the session")
	}
	if got.Status != StatusInUse || got.LastURL != "https://example.com" {
		t.Errorf("restored session = %+v", got)
	}
	if got.UserToken != "user-token" || got.AdminToken != "admin-token" {
		t.Error("session secrets should survive a restart")
	}
	if _, ok := restored.ByRoom("room-1"); !ok {
		t.Error("room index should be rebuilt on load")
	}
}

func TestStatusClassification(t *testing.T) {
	active := []Status{StatusAllocated, StatusInUse}
	terminal := []Status{StatusDeallocated, StatusExpired, StatusError}

	for _, s := range active {
		if !s.IsActive() || s.IsTerminal() {
			t.Errorf("%s should be active and non-terminal", s)
		}
	}
	for _, s := range terminal {
		if s.IsActive() || !s.IsTerminal() {
			t.Errorf("%s should be terminal and inactive", s)
		}
	}
}
