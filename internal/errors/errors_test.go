package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNoSlotsAvailable, ErrSlotNotFound, ErrSlotUnhealthy, ErrPoolUnavailable,
		ErrAlreadyQueued, ErrNotQueued, ErrNotNotified, ErrOfferExpired,
		ErrSessionNotFound, ErrSessionExists, ErrSessionTerminal,
		ErrCooldownActive, ErrAdmissionBusy, ErrDriverFailed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %v should not match %v", a, b)
			}
		}
	}
}

func TestPoolErrorFormatting(t *testing.T) {
	err := NewPoolError("allocation failed", ErrNoSlotsAvailable).WithSlotIndex(2).WithSlotID("slot-2")

	want := "pool error [slot=2, id=slot-2]: allocation failed: no slots available"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrNoSlotsAvailable) {
		t.Error("PoolError should match its cause via errors.Is")
	}
}

func TestQueueErrorMatchesCause(t *testing.T) {
	err := NewQueueError("accept failed", ErrOfferExpired).WithRoomID("room-7")

	if !Is(err, ErrOfferExpired) {
		t.Error("QueueError should match ErrOfferExpired")
	}
	if Is(err, ErrAlreadyQueued) {
		t.Error("QueueError should not match an unrelated sentinel")
	}

	var qe *QueueError
	if !As(err, &qe) {
		t.Fatal("errors.As should extract *QueueError")
	}
	if qe.RoomID != "room-7" {
		t.Errorf("RoomID = %q, want room-7", qe.RoomID)
	}
}

func TestSessionErrorWrapping(t *testing.T) {
	base := NewSessionError("create failed", ErrSessionExists).WithRoomID("room-1").WithSessionID("sess-abc")
	wrapped := fmt.Errorf("request: %w", base)

	if !Is(wrapped, ErrSessionExists) {
		t.Error("wrapped SessionError should still match its cause")
	}
	var se *SessionError
	if !As(wrapped, &se) {
		t.Fatal("errors.As should extract *SessionError through wrapping")
	}
	if se.SessionID != "sess-abc" {
		t.Errorf("SessionID = %q, want sess-abc", se.SessionID)
	}
}

func TestCooldownError(t *testing.T) {
	err := NewCooldownError(90 * time.Second)

	if !Is(err, ErrCooldownActive) {
		t.Error("CooldownError should match ErrCooldownActive")
	}
	remaining, ok := IsCooldown(err)
	if !ok {
		t.Fatal("IsCooldown should recognize a CooldownError")
	}
	if remaining != 90*time.Second {
		t.Errorf("remaining = %v, want 90s", remaining)
	}
	if !IsUserFacing(err) {
		t.Error("cooldown rejections are user-facing")
	}
	if IsRetryable(err) {
		t.Error("cooldown rejections are not retryable")
	}
}

func TestInfraErrorClassification(t *testing.T) {
	err := NewInfraError("store", "redis unreachable", ErrTimeout)

	if !IsRetryable(err) {
		t.Error("infra errors are retryable")
	}
	if IsUserFacing(err) {
		t.Error("infra errors are internal")
	}
	if got := SeverityOf(err); got != SeverityWarning {
		t.Errorf("SeverityOf = %v, want warning", got)
	}
	want := "infra error [store]: redis unreachable: operation timed out"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestConflictClassification(t *testing.T) {
	err := NewConflictError("session already released", ErrSessionNotFound)

	if !IsConflict(err) {
		t.Error("IsConflict should recognize a ConflictError")
	}
	if got := SeverityOf(err); got != SeverityInfo {
		t.Errorf("conflicts log at info, got %v", got)
	}
	wrapped := fmt.Errorf("release: %w", err)
	if !IsConflict(wrapped) {
		t.Error("IsConflict should see through wrapping")
	}
}

func TestSeverityString(t *testing.T) {
	cases := []struct {
		sev  Severity
		want string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.sev.String(); got != tc.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tc.sev, got, tc.want)
		}
	}
}

func TestSeverityOfUnknownError(t *testing.T) {
	if got := SeverityOf(New("plain")); got != SeverityError {
		t.Errorf("unknown errors default to error severity, got %v", got)
	}
}
