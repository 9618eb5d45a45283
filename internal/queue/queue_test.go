package queue

import (
	"context"
	"testing"
	"time"

	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/store"
)

const testOfferTTL = 30 * time.Second

func newTestQueue() *Queue {
	return New(testOfferTTL, nil)
}

func TestEnqueueAssignsFIFOPositions(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	for i, room := range []string{"room-a", "room-b", "room-c"} {
		pos, created, err := q.Enqueue(ctx, room)
		if err != nil {
			t.Fatalf("Enqueue(%s): %v", room, err)
		}
		if !created {
			t.Errorf("Enqueue(%s) created = false, want true", room)
		}
		if pos != i+1 {
			t.Errorf("Enqueue(%s) position = %d, want %d", room, pos, i+1)
		}
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	_, _, _ = q.Enqueue(ctx, "room-a")
	_, _, _ = q.Enqueue(ctx, "room-b")

	pos, created, err := q.Enqueue(ctx, "room-a")
	if err != nil {
		t.Fatalf("re-Enqueue: %v", err)
	}
	if created {
		t.Error("re-Enqueue should not create a new entry")
	}
	if pos != 1 {
		t.Errorf("re-Enqueue position = %d, want original 1", pos)
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestEnqueueRejectsEmptyRoomID(t *testing.T) {
	q := newTestQueue()
	if _, _, err := q.Enqueue(context.Background(), ""); err == nil {
		t.Error("Enqueue(\"\") should fail validation")
	}
}

func TestOrderingHeldAfterRemovals(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	for _, room := range []string{"room-a", "room-b", "room-c"} {
		_, _, _ = q.Enqueue(ctx, room)
	}
	if err := q.Cancel(ctx, "room-a"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// room-b slides to the front; room-c follows. Position is derived,
	// so there is no hole where room-a used to be.
	st, ok := q.StatusOf("room-b")
	if !ok || st.Position != 1 {
		t.Errorf("room-b position = %+v, want 1", st)
	}
	st, ok = q.StatusOf("room-c")
	if !ok || st.Position != 2 {
		t.Errorf("room-c position = %+v, want 2", st)
	}
}

func TestPeekNextWaitingSkipsNotified(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	_, _, _ = q.Enqueue(ctx, "room-a")
	_, _, _ = q.Enqueue(ctx, "room-b")

	if _, err := q.Notify(ctx, "room-a"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	next, ok := q.PeekNextWaiting()
	if !ok {
		t.Fatal("PeekNextWaiting should find room-b")
	}
	if next.RoomID != "room-b" {
		t.Errorf("PeekNextWaiting = %s, want room-b", next.RoomID)
	}
}

func TestNotifyStampsDeadline(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()
	_, _, _ = q.Enqueue(ctx, "room-a")

	entry, err := q.Notify(ctx, "room-a")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if entry.State != StateNotified {
		t.Errorf("state = %s, want notified", entry.State)
	}
	if entry.NotifiedAt == nil || entry.Deadline == nil {
		t.Fatal("Notify should stamp notified-at and deadline")
	}
	if got := entry.Deadline.Sub(*entry.NotifiedAt); got != testOfferTTL {
		t.Errorf("deadline offset = %v, want %v", got, testOfferTTL)
	}

	// Notifying again is invalid; the entry is no longer waiting.
	if _, err := q.Notify(ctx, "room-a"); err == nil {
		t.Error("double Notify should fail")
	}
}

func TestNotifyUnknownRoom(t *testing.T) {
	q := newTestQueue()
	_, err := q.Notify(context.Background(), "ghost")
	if !errors.Is(err, errors.ErrNotQueued) {
		t.Errorf("Notify = %v, want ErrNotQueued", err)
	}
}

func TestAcceptWithinDeadline(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()
	_, _, _ = q.Enqueue(ctx, "room-a")
	_, _ = q.Notify(ctx, "room-a")

	if err := q.Accept(ctx, "room-a"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if q.Len() != 0 {
		t.Error("accepted entry should be removed")
	}
}

func TestAcceptRequiresNotifiedState(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()
	_, _, _ = q.Enqueue(ctx, "room-a")

	err := q.Accept(ctx, "room-a")
	if !errors.Is(err, errors.ErrNotNotified) {
		t.Errorf("Accept on waiting entry = %v, want ErrNotNotified", err)
	}
}

func TestAcceptPastDeadlineFails(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()
	_, _, _ = q.Enqueue(ctx, "room-a")
	_, _ = q.Notify(ctx, "room-a")

	// Move the clock past the offer deadline.
	q.now = func() time.Time { return time.Now().Add(testOfferTTL + time.Second) }

	err := q.Accept(ctx, "room-a")
	if !errors.Is(err, errors.ErrOfferExpired) {
		t.Errorf("Accept past deadline = %v, want ErrOfferExpired", err)
	}
	// The entry stays for the sweep to reclaim.
	if q.Len() != 1 {
		t.Error("expired entry should remain until swept")
	}
}

func TestDeclineOnlyNotified(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()
	_, _, _ = q.Enqueue(ctx, "room-a")

	if err := q.Decline(ctx, "room-a"); !errors.Is(err, errors.ErrNotNotified) {
		t.Errorf("Decline on waiting entry = %v, want ErrNotNotified", err)
	}

	_, _ = q.Notify(ctx, "room-a")
	if err := q.Decline(ctx, "room-a"); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if q.Len() != 0 {
		t.Error("declined entry should be removed")
	}
}

func TestCancelAnyState(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	_, _, _ = q.Enqueue(ctx, "room-a")
	if err := q.Cancel(ctx, "room-a"); err != nil {
		t.Fatalf("Cancel waiting: %v", err)
	}

	_, _, _ = q.Enqueue(ctx, "room-b")
	_, _ = q.Notify(ctx, "room-b")
	if err := q.Cancel(ctx, "room-b"); err != nil {
		t.Fatalf("Cancel notified: %v", err)
	}

	if err := q.Cancel(ctx, "room-b"); !errors.Is(err, errors.ErrNotQueued) {
		t.Errorf("Cancel absent = %v, want ErrNotQueued", err)
	}
}

func TestSweepExpiredOffers(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	_, _, _ = q.Enqueue(ctx, "room-a")
	_, _, _ = q.Enqueue(ctx, "room-b")
	entry, _ := q.Notify(ctx, "room-a")

	// Nothing expires before the deadline.
	if got := q.SweepExpiredOffers(ctx, entry.Deadline.Add(-time.Second)); len(got) != 0 {
		t.Errorf("premature sweep removed %v", got)
	}

	expired := q.SweepExpiredOffers(ctx, entry.Deadline.Add(time.Second))
	if len(expired) != 1 || expired[0] != "room-a" {
		t.Errorf("sweep = %v, want [room-a]", expired)
	}
	if _, ok := q.StatusOf("room-a"); ok {
		t.Error("expired entry should be removed")
	}
	// room-b was only waiting; it survives.
	if st, ok := q.StatusOf("room-b"); !ok || st.Position != 1 {
		t.Errorf("room-b after sweep = %+v, want position 1", st)
	}
}

func TestWaitingCount(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	_, _, _ = q.Enqueue(ctx, "room-a")
	_, _, _ = q.Enqueue(ctx, "room-b")
	_, _ = q.Notify(ctx, "room-a")

	if got := q.WaitingCount(); got != 1 {
		t.Errorf("WaitingCount = %d, want 1", got)
	}
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	q := New(testOfferTTL, st)
	_, _, _ = q.Enqueue(ctx, "room-b")
	// Force a distinct enqueue timestamp ordering.
	q.now = func() time.Time { return time.Now().Add(time.Minute) }
	_, _, _ = q.Enqueue(ctx, "room-a")
	if _, err := q.Notify(ctx, "room-b"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	restored, err := Load(ctx, testOfferTTL, st)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("restored Len = %d, want 2", restored.Len())
	}

	// room-b enqueued first, so it keeps position 1 after restore.
	stB, ok := restored.StatusOf("room-b")
	if !ok || stB.Position != 1 || stB.State != StateNotified {
		t.Errorf("room-b restored = %+v, want position 1, notified", stB)
	}
	if stB.Deadline == nil {
		t.Error("restored entry should keep its offer deadline")
	}
	stA, ok := restored.StatusOf("room-a")
	if !ok || stA.Position != 2 || stA.State != StateWaiting {
		t.Errorf("room-a restored = %+v, want position 2, waiting", stA)
	}
}

func TestCancelRemovesPersistedEntry(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	q := New(testOfferTTL, st)
	_, _, _ = q.Enqueue(ctx, "room-a")
	if err := q.Cancel(ctx, "room-a"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	keys, _ := st.List(ctx, "queue/")
	if len(keys) != 0 {
		t.Errorf("store still holds %v after cancel", keys)
	}
}
