package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roomshare/browserd/internal/errors"
)

// fakeSweeper records sweep calls and returns injected results.
type fakeSweeper struct {
	mu           sync.Mutex
	sessionCalls int
	offerCalls   int
	sessionErr   error
	offerErr     error
}

func (f *fakeSweeper) SweepExpiredSessions(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	return 0, f.sessionErr
}

func (f *fakeSweeper) SweepExpiredOffers(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offerCalls++
	return 0, f.offerErr
}

func (f *fakeSweeper) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionCalls, f.offerCalls
}

func TestTickRunsBothSweeps(t *testing.T) {
	sw := &fakeSweeper{}
	s := New(sw, time.Hour, nil)

	s.Tick(context.Background())

	sessions, offers := sw.calls()
	if sessions != 1 || offers != 1 {
		t.Errorf("sweep calls = %d/%d, want 1/1", sessions, offers)
	}
}

func TestTickToleratesAdmissionContention(t *testing.T) {
	sw := &fakeSweeper{
		sessionErr: errors.NewCoordinatorError("busy", errors.ErrAdmissionBusy),
	}
	s := New(sw, time.Hour, nil)

	// A contended sweep is a skip; the offer sweep still runs.
	s.Tick(context.Background())

	if _, offers := sw.calls(); offers != 1 {
		t.Errorf("offer sweep calls = %d, want 1", offers)
	}
}

func TestAfterFuncRunsJob(t *testing.T) {
	s := New(&fakeSweeper{}, time.Hour, nil)

	done := make(chan struct{})
	s.AfterFunc(time.Millisecond, "test-job", func(context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	if got := s.PendingRetries(); got != 0 {
		t.Errorf("successful job should not queue a retry, got %d", got)
	}
}

func TestFailedJobRetriedOnNextTick(t *testing.T) {
	s := New(&fakeSweeper{}, time.Hour, nil)

	var mu sync.Mutex
	calls := 0
	ran := make(chan struct{})
	s.AfterFunc(time.Millisecond, "flaky-job", func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			defer close(ran)
			return errors.New("transient failure")
		}
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	// Wait for the failure to land in the retry queue.
	deadline := time.Now().Add(time.Second)
	for s.PendingRetries() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("failed job was not queued for retry")
		}
		time.Sleep(time.Millisecond)
	}

	s.Tick(context.Background())

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 2 {
		t.Errorf("job calls = %d, want 2 (initial failure + retry)", got)
	}
	if s.PendingRetries() != 0 {
		t.Error("succeeded retry should leave the queue empty")
	}
}

func TestJobDroppedAfterRepeatedFailures(t *testing.T) {
	s := New(&fakeSweeper{}, time.Hour, nil)

	s.mu.Lock()
	s.retries = append(s.retries, job{
		name: "doomed",
		fn:   func(context.Context) error { return errors.New("always fails") },
	})
	s.mu.Unlock()

	for i := 0; i < maxJobAttempts+1; i++ {
		s.Tick(context.Background())
	}
	if got := s.PendingRetries(); got != 0 {
		t.Errorf("exhausted job should be dropped, %d still pending", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	sw := &fakeSweeper{}
	s := New(sw, 5*time.Millisecond, nil)

	s.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for {
		if sessions, _ := sw.calls(); sessions > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweep loop never ticked")
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	afterStop, _ := sw.calls()
	time.Sleep(20 * time.Millisecond)
	if sessions, _ := sw.calls(); sessions != afterStop {
		t.Error("sweeps continued after Stop")
	}
}
