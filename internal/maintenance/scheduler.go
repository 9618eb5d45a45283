// Package maintenance drives the coordinator's periodic reclamation
// work: sweeping TTL-expired sessions, sweeping lapsed offers, and
// executing scheduled one-shot jobs such as the post-release grace
// return. Failed jobs are kept and retried on the next sweep cycle, so
// a skipped admission section never loses work.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/logging"
)

// Sweeper is the coordinator surface the scheduler drives.
type Sweeper interface {
	SweepExpiredSessions(ctx context.Context) (int, error)
	SweepExpiredOffers(ctx context.Context) (int, error)
}

// job is a deferred unit of work with a retry budget.
type job struct {
	name     string
	fn       func(context.Context) error
	attempts int
}

// maxJobAttempts bounds retries of a failing one-shot job before it is
// dropped with an error log.
const maxJobAttempts = 5

// Scheduler runs the sweep loop on a fixed interval and executes
// one-shot jobs handed to it via AfterFunc. It satisfies the
// coordinator's Scheduler contract.
type Scheduler struct {
	mu      sync.Mutex
	sweeper Sweeper
	logger  *logging.Logger

	interval time.Duration
	retries  []job

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler sweeping at the given interval.
func New(sweeper Sweeper, interval time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Scheduler{
		sweeper:  sweeper,
		logger:   logger.WithComponent("maintenance"),
		interval: interval,
	}
}

// AfterFunc runs the named job once the delay elapses. A failing job is
// queued for retry on subsequent sweep ticks, up to maxJobAttempts.
func (s *Scheduler) AfterFunc(delay time.Duration, name string, fn func(context.Context) error) {
	time.AfterFunc(delay, func() {
		if err := fn(context.Background()); err != nil {
			s.logger.Warn("scheduled job failed, queuing retry", "job", name, "error", err)
			s.mu.Lock()
			s.retries = append(s.retries, job{name: name, fn: fn, attempts: 1})
			s.mu.Unlock()
		}
	})
}

// Start launches the sweep loop. It returns immediately; call Stop to
// shut the loop down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one maintenance cycle: pending job retries first, then the
// two expiry sweeps. Admission contention is an expected skip, not a
// failure; the next tick picks the work back up.
func (s *Scheduler) Tick(ctx context.Context) {
	s.runRetries(ctx)

	if n, err := s.sweeper.SweepExpiredSessions(ctx); err != nil {
		s.logSweepError("session sweep", err)
	} else if n > 0 {
		s.logger.Info("session sweep reclaimed slots", "count", n)
	}

	if n, err := s.sweeper.SweepExpiredOffers(ctx); err != nil {
		s.logSweepError("offer sweep", err)
	} else if n > 0 {
		s.logger.Info("offer sweep removed lapsed offers", "count", n)
	}
}

// runRetries attempts every queued job once, requeueing failures that
// still have attempts left.
func (s *Scheduler) runRetries(ctx context.Context) {
	s.mu.Lock()
	pending := s.retries
	s.retries = nil
	s.mu.Unlock()

	for _, j := range pending {
		err := j.fn(ctx)
		if err == nil {
			s.logger.Info("retried job succeeded", "job", j.name, "attempt", j.attempts+1)
			continue
		}
		j.attempts++
		if j.attempts >= maxJobAttempts {
			s.logger.Error("job dropped after repeated failures", "job", j.name, "attempts", j.attempts, "error", err)
			continue
		}
		s.logger.Warn("retried job failed again", "job", j.name, "attempt", j.attempts, "error", err)
		s.mu.Lock()
		s.retries = append(s.retries, j)
		s.mu.Unlock()
	}
}

// PendingRetries reports how many failed jobs await the next tick.
func (s *Scheduler) PendingRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retries)
}

func (s *Scheduler) logSweepError(what string, err error) {
	if errors.Is(err, errors.ErrAdmissionBusy) {
		s.logger.Debug("sweep skipped, admission section busy", "sweep", what)
		return
	}
	s.logger.Warn("sweep failed", "sweep", what, "error", err)
}
