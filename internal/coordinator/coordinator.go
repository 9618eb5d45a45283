// Package coordinator ties the slot pool, admission queue, and session
// registry together under a single admission critical section.
//
// Exactly one allocation decision is made at a time: every state-changing
// operation try-acquires the admission section with a short timeout and
// skips rather than blocks on contention. Background sweeps retried by
// the maintenance scheduler absorb any skipped work on the next tick.
package coordinator

import (
	"context"
	"time"

	"github.com/roomshare/browserd/internal/driver"
	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/event"
	"github.com/roomshare/browserd/internal/logging"
	"github.com/roomshare/browserd/internal/pool"
	"github.com/roomshare/browserd/internal/queue"
	"github.com/roomshare/browserd/internal/session"
)

// Scheduler runs a named one-shot job after a delay. The production
// implementation lives in the maintenance package so that job failures
// surface there and are retried on the next sweep cycle.
type Scheduler interface {
	AfterFunc(delay time.Duration, name string, job func(context.Context) error)
}

// RequestState classifies the outcome of a session request.
type RequestState string

const (
	// RequestAllocated means the room holds a session, newly created or
	// pre-existing.
	RequestAllocated RequestState = "allocated"

	// RequestQueued means the room is on the waitlist, newly enqueued or
	// already present.
	RequestQueued RequestState = "queued"
)

// RequestOutcome is the typed result of RequestSession and AcceptOffer.
type RequestOutcome struct {
	State RequestState `json:"state"`

	// Session is set when State is RequestAllocated.
	Session *session.Session `json:"session,omitempty"`

	// Queue is set when State is RequestQueued.
	Queue *queue.Status `json:"queue,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	Pool      *pool.Pool
	Queue     *queue.Queue
	Registry  *session.Registry
	Cooldowns CooldownStore
	Driver    driver.Driver
	Bus       *event.Bus
	Logger    *logging.Logger

	// Scheduler runs the post-release grace job. Nil falls back to a
	// plain time.AfterFunc with no retry.
	Scheduler Scheduler

	// SessionTTL is the lifetime of new sessions.
	SessionTTL time.Duration

	// ReleaseGrace delays the slot return after a release so clients can
	// finish tearing down.
	ReleaseGrace time.Duration

	// AdmissionTimeout bounds the try-acquire on the admission section.
	AdmissionTimeout time.Duration
}

// DefaultAdmissionTimeout bounds the admission try-acquire when Options
// does not set one.
const DefaultAdmissionTimeout = 250 * time.Millisecond

// Coordinator is the single orchestration point for slot admission and
// session lifecycle.
type Coordinator struct {
	admission        chan struct{}
	admissionTimeout time.Duration

	pool      *pool.Pool
	queue     *queue.Queue
	registry  *session.Registry
	cooldowns CooldownStore
	drv       driver.Driver
	bus       *event.Bus
	logger    *logging.Logger
	scheduler Scheduler

	sessionTTL   time.Duration
	releaseGrace time.Duration
	now          func() time.Time
}

// New creates a Coordinator from the given options.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	timeout := opts.AdmissionTimeout
	if timeout <= 0 {
		timeout = DefaultAdmissionTimeout
	}
	c := &Coordinator{
		admission:        make(chan struct{}, 1),
		admissionTimeout: timeout,
		pool:             opts.Pool,
		queue:            opts.Queue,
		registry:         opts.Registry,
		cooldowns:        opts.Cooldowns,
		drv:              opts.Driver,
		bus:              opts.Bus,
		logger:           logger.WithComponent("coordinator"),
		scheduler:        opts.Scheduler,
		sessionTTL:       opts.SessionTTL,
		releaseGrace:     opts.ReleaseGrace,
		now:              time.Now,
	}
	if c.scheduler == nil {
		c.scheduler = timerScheduler{logger: c.logger}
	}
	if c.cooldowns == nil {
		c.cooldowns = NewRoomCooldowns(nil, 0)
	}
	return c
}

// SetScheduler swaps in the production scheduler. The coordinator and
// the maintenance scheduler reference each other, so the daemon wires
// the scheduler in after constructing both. Call before serving.
func (c *Coordinator) SetScheduler(s Scheduler) {
	if s != nil {
		c.scheduler = s
	}
}

// Startup initializes the pool and reconciles registry entries against
// the driver's actually-running set. Sessions whose slot is gone are
// deleted; their rooms start fresh.
func (c *Coordinator) Startup(ctx context.Context) error {
	if err := c.pool.Initialize(ctx); err != nil {
		return err
	}

	running, err := c.drv.ListRunning(ctx)
	if err != nil {
		return errors.NewCoordinatorError("list running slots", err).WithOperation("startup")
	}
	removed, err := c.registry.ReconcileOrphans(ctx, running)
	if err != nil {
		return errors.NewCoordinatorError("reconcile orphans", err).WithOperation("startup")
	}
	for _, s := range removed {
		c.logger.Warn("removed orphaned session", "session", s.ID, "room", s.RoomID, "container", s.SlotID)
	}
	return nil
}

// RequestSession admits a room to a slot or the waitlist.
//
// Order of gates: cooldown, existing session (idempotent), existing
// queue entry (no-op), then the fairness rule: any waiting entry or an
// exhausted pool means enqueue; otherwise allocate immediately.
func (c *Coordinator) RequestSession(ctx context.Context, roomID string) (RequestOutcome, error) {
	if roomID == "" {
		return RequestOutcome{}, errors.NewValidationError("room ID must not be empty").WithField("room_id")
	}

	remaining, err := c.cooldowns.Remaining(ctx, roomID)
	if err != nil {
		return RequestOutcome{}, err
	}
	if remaining > 0 {
		return RequestOutcome{}, errors.NewCooldownError(remaining)
	}

	if err := c.acquire(ctx); err != nil {
		return RequestOutcome{}, err
	}
	defer c.release()

	if existing, ok := c.registry.ByRoom(roomID); ok {
		c.logger.Info("request for room with active session, returning it", "room", roomID, "session", existing.ID)
		return RequestOutcome{State: RequestAllocated, Session: &existing}, nil
	}

	if st, ok := c.queue.StatusOf(roomID); ok {
		c.logger.Info("request for already-queued room", "room", roomID, "position", st.Position)
		return RequestOutcome{State: RequestQueued, Queue: &st}, nil
	}

	// Fairness: never jump ahead of a waiting room, even with a free slot.
	if c.queue.WaitingCount() > 0 || !c.pool.HasAvailable() {
		if _, _, err := c.queue.Enqueue(ctx, roomID); err != nil {
			return RequestOutcome{}, err
		}
		st, _ := c.queue.StatusOf(roomID)
		c.publish(event.NewQueueJoinedEvent(roomID, queueInfo(st)))
		c.logger.Info("room queued", "room", roomID, "position", st.Position)
		return RequestOutcome{State: RequestQueued, Queue: &st}, nil
	}

	sess, err := c.allocateLocked(ctx, roomID)
	if err != nil {
		return RequestOutcome{}, err
	}
	return RequestOutcome{State: RequestAllocated, Session: &sess}, nil
}

// ReleaseSession ends a room's session, stamps its cooldown, and
// schedules the slot return plus one queue drain after the grace delay.
func (c *Coordinator) ReleaseSession(ctx context.Context, roomID string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	sess, ok := c.registry.ByRoom(roomID)
	if !ok {
		return errors.NewNotFoundError("session", roomID)
	}

	if err := c.registry.Delete(ctx, sess.ID); err != nil {
		return err
	}
	if err := c.cooldowns.Mark(ctx, roomID); err != nil {
		// The session is already gone; a lost mark only weakens the
		// throttle, so log and continue.
		c.logger.Warn("cooldown mark failed", "room", roomID, "error", err)
	}

	c.publish(event.NewSessionReleasedEvent(roomID, sess.ID))
	c.logger.Info("session released", "room", roomID, "session", sess.ID, "grace", c.releaseGrace)

	slotID := sess.SlotID
	c.scheduler.AfterFunc(c.releaseGrace, "release-return", func(jobCtx context.Context) error {
		return c.returnAndDrain(jobCtx, slotID)
	})
	return nil
}

// AcceptOffer converts a notified room's offer into a session. If a race
// consumed the slot between notify and accept, the accept fails and the
// queue is re-drained once capacity allows.
func (c *Coordinator) AcceptOffer(ctx context.Context, roomID string) (RequestOutcome, error) {
	if err := c.acquire(ctx); err != nil {
		return RequestOutcome{}, err
	}
	defer c.release()

	if err := c.queue.Accept(ctx, roomID); err != nil {
		return RequestOutcome{}, err
	}

	sess, err := c.allocateLocked(ctx, roomID)
	if err != nil {
		if errors.Is(err, errors.ErrNoSlotsAvailable) {
			// The offered slot was lost to a race. The entry is already
			// consumed; the room must re-request.
			c.logger.Warn("accepted offer lost its slot to a race", "room", roomID)
			c.drainLocked(ctx)
		}
		return RequestOutcome{}, err
	}
	return RequestOutcome{State: RequestAllocated, Session: &sess}, nil
}

// DeclineOffer removes a notified room's entry and passes the offer on.
func (c *Coordinator) DeclineOffer(ctx context.Context, roomID string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if err := c.queue.Decline(ctx, roomID); err != nil {
		return err
	}
	c.publish(event.NewQueueCancelledEvent(roomID, "declined"))
	c.logger.Info("offer declined", "room", roomID)
	c.drainLocked(ctx)
	return nil
}

// CancelQueue withdraws a room from the waitlist in any state.
func (c *Coordinator) CancelQueue(ctx context.Context, roomID string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if err := c.queue.Cancel(ctx, roomID); err != nil {
		return err
	}
	c.publish(event.NewQueueCancelledEvent(roomID, "cancelled"))
	c.logger.Info("queue entry cancelled", "room", roomID)
	c.drainLocked(ctx)
	return nil
}

// DrainQueue offers a free slot to the oldest waiting room, if both
// exist. Idempotent and single-flight under the admission section.
func (c *Coordinator) DrainQueue(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.drainLocked(ctx)
	return nil
}

// SweepExpiredSessions reclaims every session past its TTL: slot
// returned, record deleted, expiry published. One drain runs after the
// whole batch.
func (c *Coordinator) SweepExpiredSessions(ctx context.Context) (int, error) {
	if err := c.acquire(ctx); err != nil {
		return 0, err
	}
	defer c.release()

	expired := c.registry.ListExpired(c.now())
	for _, sess := range expired {
		if err := c.pool.Return(ctx, sess.SlotID); err != nil {
			c.logger.Warn("slot return failed during expiry sweep", "session", sess.ID, "error", err)
		}
		if err := c.registry.Delete(ctx, sess.ID); err != nil {
			return len(expired), err
		}
		c.publish(event.NewSessionExpiredEvent(sess.RoomID, sess.ID))
		c.logger.Info("session expired", "room", sess.RoomID, "session", sess.ID)
	}

	if len(expired) > 0 {
		c.drainLocked(ctx)
	}
	return len(expired), nil
}

// SweepExpiredOffers removes lapsed offers and re-drains if the pool
// has capacity for the next waiter.
func (c *Coordinator) SweepExpiredOffers(ctx context.Context) (int, error) {
	if err := c.acquire(ctx); err != nil {
		return 0, err
	}
	defer c.release()

	rooms := c.queue.SweepExpiredOffers(ctx, c.now())
	for _, roomID := range rooms {
		c.publish(event.NewOfferExpiredEvent(roomID))
		c.logger.Info("offer expired", "room", roomID)
	}
	if len(rooms) > 0 && c.pool.HasAvailable() {
		c.drainLocked(ctx)
	}
	return len(rooms), nil
}

// RestartSessionProcess restarts the browser process backing a room's
// session without ending the session.
func (c *Coordinator) RestartSessionProcess(ctx context.Context, roomID string) error {
	sess, ok := c.registry.ByRoom(roomID)
	if !ok {
		return errors.NewNotFoundError("session", roomID)
	}
	if err := c.drv.RestartProcess(ctx, sess.SlotID); err != nil {
		c.logger.Warn("browser process restart failed", "room", roomID, "container", sess.SlotID, "error", err)
		return errors.NewCoordinatorError("restart browser process", errors.ErrDriverFailed).
			WithRoomID(roomID).
			WithRetryable(true)
	}
	c.publish(event.NewPlaybackResetEvent(roomID))
	c.logger.Info("browser process restarted", "room", roomID, "session", sess.ID)
	return nil
}

// SessionStatus returns the room's active session, if any.
func (c *Coordinator) SessionStatus(roomID string) (session.Session, bool) {
	return c.registry.ByRoom(roomID)
}

// QueueStatus returns the room's queue position, if queued.
func (c *Coordinator) QueueStatus(roomID string) (queue.Status, bool) {
	return c.queue.StatusOf(roomID)
}

// CooldownStatus returns the room's remaining cooldown window.
func (c *Coordinator) CooldownStatus(ctx context.Context, roomID string) (time.Duration, error) {
	return c.cooldowns.Remaining(ctx, roomID)
}

// ListSessions returns all active sessions ordered by allocation time.
func (c *Coordinator) ListSessions() []session.Session {
	return c.registry.ListActive()
}

// ListQueue returns all queue entries in FIFO order.
func (c *Coordinator) ListQueue() []queue.Entry {
	return c.queue.Entries()
}

// PoolStats returns the pool capacity snapshot.
func (c *Coordinator) PoolStats() pool.Stats {
	return c.pool.Stats()
}

// allocateLocked performs the allocation sequence: take a slot, create
// the session, publish the allocation and the playback reset
// side-channel event. Caller must hold the admission section. On a
// session-create failure the slot is rolled back to the pool.
func (c *Coordinator) allocateLocked(ctx context.Context, roomID string) (session.Session, error) {
	slot, info, err := c.pool.Allocate(ctx)
	if err != nil {
		return session.Session{}, err
	}

	sess, err := c.registry.Create(ctx, roomID, slot.Index, info, c.sessionTTL)
	if err != nil {
		if rerr := c.pool.Return(ctx, slot.ID); rerr != nil {
			c.logger.Error("slot rollback failed after session create error", "container", slot.ID, "error", rerr)
		}
		return session.Session{}, err
	}

	c.publish(event.NewSessionAllocatedEvent(roomID, event.SessionInfo{
		SessionID:  sess.ID,
		RoomID:     roomID,
		SlotIndex:  sess.SlotIndex,
		ConnectURL: sess.Endpoint,
		ExpiresAt:  sess.ExpiresAt,
	}))
	c.publish(event.NewPlaybackResetEvent(roomID))
	c.logger.Info("session allocated", "room", roomID, "session", sess.ID, "slot", sess.SlotIndex)
	return sess, nil
}

// drainLocked offers the next waiting room a free slot. Caller must hold
// the admission section.
func (c *Coordinator) drainLocked(ctx context.Context) {
	if !c.pool.HasAvailable() {
		return
	}
	next, ok := c.queue.PeekNextWaiting()
	if !ok {
		return
	}
	if _, err := c.queue.Notify(ctx, next.RoomID); err != nil {
		c.logger.Warn("queue notify failed during drain", "room", next.RoomID, "error", err)
		return
	}
	st, _ := c.queue.StatusOf(next.RoomID)
	c.publish(event.NewOfferAvailableEvent(next.RoomID, queueInfo(st)))
	c.logger.Info("slot offered", "room", next.RoomID, "deadline", st.Deadline)
}

// returnAndDrain is the post-release grace job: give the slot back and
// run one drain. Racing returns are absorbed by Return's idempotence.
func (c *Coordinator) returnAndDrain(ctx context.Context, slotID string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if err := c.pool.Return(ctx, slotID); err != nil {
		if errors.Is(err, errors.ErrSlotNotFound) {
			c.logger.Info("slot gone before grace return, treating as returned", "container", slotID)
		} else {
			return err
		}
	}
	c.drainLocked(ctx)
	return nil
}

// acquire try-acquires the admission section, giving up after the
// configured timeout. Contention is a retryable skip, never a block.
func (c *Coordinator) acquire(ctx context.Context) error {
	timer := time.NewTimer(c.admissionTimeout)
	defer timer.Stop()

	select {
	case c.admission <- struct{}{}:
		return nil
	case <-timer.C:
		return errors.NewCoordinatorError("admission section contended", errors.ErrAdmissionBusy).
			WithRetryable(true)
	case <-ctx.Done():
		return errors.NewCoordinatorError("admission wait canceled", errors.ErrCanceled)
	}
}

func (c *Coordinator) release() {
	<-c.admission
}

func (c *Coordinator) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

// queueInfo converts a queue status snapshot into the event payload form.
func queueInfo(st queue.Status) event.QueueInfo {
	info := event.QueueInfo{
		RoomID:   st.RoomID,
		Position: st.Position,
		State:    st.State.String(),
	}
	if st.NotifiedAt != nil {
		info.NotifiedAt = *st.NotifiedAt
	}
	if st.Deadline != nil {
		info.Deadline = *st.Deadline
	}
	return info
}

// timerScheduler is the fallback Scheduler: a bare time.AfterFunc with
// error logging and no retry.
type timerScheduler struct {
	logger *logging.Logger
}

func (s timerScheduler) AfterFunc(delay time.Duration, name string, job func(context.Context) error) {
	time.AfterFunc(delay, func() {
		if err := job(context.Background()); err != nil {
			s.logger.Warn("scheduled job failed", "job", name, "error", err)
		}
	})
}
