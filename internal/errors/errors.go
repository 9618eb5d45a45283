// Package errors provides centralized error definitions and error handling
// utilities for the browserd codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - PoolError: errors related to slot pool management
//   - QueueError: errors related to the admission queue
//   - SessionError: errors related to the session registry
//   - CoordinatorError: errors related to lifecycle coordination
//
// Semantic classification maps onto the coordinator's outcome contract:
//   - Validation errors are user-facing and never retryable
//   - Transient infrastructure errors (driver, store) are retryable
//   - Concurrency conflicts are absorbed idempotently by callers
//   - Fatal errors mean the pool is unavailable
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewSessionError("failed to load session", errors.ErrSessionNotFound)
//	err = err.WithRoomID("room-42")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrCooldownActive) { ... }
//
//	var poolErr *errors.PoolError
//	if errors.As(err, &poolErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//	if errors.IsConflict(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Pool-related sentinel errors
var (
	// ErrNoSlotsAvailable indicates that every healthy slot is allocated.
	ErrNoSlotsAvailable = New("no slots available")
	// ErrSlotNotFound indicates that a slot could not be found.
	ErrSlotNotFound = New("slot not found")
	// ErrSlotUnhealthy indicates that a slot is excluded from rotation.
	ErrSlotUnhealthy = New("slot is unhealthy")
	// ErrPoolUnavailable indicates that zero slots were provisioned at startup.
	ErrPoolUnavailable = New("slot pool unavailable")
)

// Queue-related sentinel errors
var (
	// ErrAlreadyQueued indicates that the room already has a queue entry.
	ErrAlreadyQueued = New("already queued")
	// ErrNotQueued indicates that the room has no queue entry.
	ErrNotQueued = New("not queued")
	// ErrNotNotified indicates an accept/decline on an entry that was never offered a slot.
	ErrNotNotified = New("entry has not been notified")
	// ErrOfferExpired indicates an accept past the offer deadline.
	ErrOfferExpired = New("offer expired")
)

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that a session could not be found.
	ErrSessionNotFound = New("session not found")
	// ErrSessionExists indicates that the room already has an active session.
	ErrSessionExists = New("session already exists")
	// ErrSessionTerminal indicates an operation on a session in a terminal state.
	ErrSessionTerminal = New("session is in a terminal state")
)

// Coordinator-related sentinel errors
var (
	// ErrCooldownActive indicates that the room is inside its cooldown window.
	ErrCooldownActive = New("cooldown active")
	// ErrAdmissionBusy indicates the admission critical section could not be
	// acquired within its timeout. Callers skip the invocation rather than block.
	ErrAdmissionBusy = New("admission section busy")
	// ErrDriverFailed indicates the runtime driver refused an operation.
	ErrDriverFailed = New("runtime driver operation failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BrowserdError is the base interface for all browserd errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type BrowserdError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PoolError represents errors related to slot pool management.
//
// Example:
//
//	err := errors.NewPoolError("allocation failed", errors.ErrNoSlotsAvailable).WithSlotIndex(2)
type PoolError struct {
	baseError
	SlotIndex int
	SlotID    string
}

// NewPoolError creates a new PoolError.
func NewPoolError(message string, cause error) *PoolError {
	return &PoolError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		SlotIndex: -1, // -1 indicates not set
	}
}

// WithSlotIndex adds a slot index to the error context.
func (e *PoolError) WithSlotIndex(idx int) *PoolError {
	e.SlotIndex = idx
	return e
}

// WithSlotID adds a slot ID to the error context.
func (e *PoolError) WithSlotID(id string) *PoolError {
	e.SlotID = id
	return e
}

// WithSeverity sets the error severity.
func (e *PoolError) WithSeverity(s Severity) *PoolError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *PoolError) WithRetryable(r bool) *PoolError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *PoolError) Error() string {
	var parts []string
	if e.SlotIndex >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.SlotIndex))
	}
	if e.SlotID != "" {
		parts = append(parts, fmt.Sprintf("id=%s", e.SlotID))
	}

	prefix := "pool error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("pool error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PoolError) Is(target error) bool {
	if _, ok := target.(*PoolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// QueueError represents errors related to the admission queue.
//
// Example:
//
//	err := errors.NewQueueError("accept failed", errors.ErrOfferExpired).WithRoomID("room-7")
type QueueError struct {
	baseError
	RoomID string
}

// NewQueueError creates a new QueueError.
func NewQueueError(message string, cause error) *QueueError {
	return &QueueError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithRoomID adds a room ID to the error context.
func (e *QueueError) WithRoomID(id string) *QueueError {
	e.RoomID = id
	return e
}

// WithSeverity sets the error severity.
func (e *QueueError) WithSeverity(s Severity) *QueueError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *QueueError) Error() string {
	prefix := "queue error"
	if e.RoomID != "" {
		prefix = fmt.Sprintf("queue error [room=%s]", e.RoomID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *QueueError) Is(target error) bool {
	if _, ok := target.(*QueueError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SessionError represents errors related to the session registry.
type SessionError struct {
	baseError
	SessionID string
	RoomID    string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// WithRoomID adds a room ID to the error context.
func (e *SessionError) WithRoomID(id string) *SessionError {
	e.RoomID = id
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *SessionError) WithRetryable(r bool) *SessionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.RoomID != "" {
		parts = append(parts, fmt.Sprintf("room=%s", e.RoomID))
	}

	prefix := "session error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("session error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinatorError represents errors related to lifecycle coordination.
type CoordinatorError struct {
	baseError
	RoomID    string
	Operation string
}

// NewCoordinatorError creates a new CoordinatorError.
func NewCoordinatorError(message string, cause error) *CoordinatorError {
	return &CoordinatorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithRoomID adds a room ID to the error context.
func (e *CoordinatorError) WithRoomID(id string) *CoordinatorError {
	e.RoomID = id
	return e
}

// WithOperation adds the coordinator operation name to the error context.
func (e *CoordinatorError) WithOperation(op string) *CoordinatorError {
	e.Operation = op
	return e
}

// WithSeverity sets the error severity.
func (e *CoordinatorError) WithSeverity(s Severity) *CoordinatorError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *CoordinatorError) WithRetryable(r bool) *CoordinatorError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *CoordinatorError) Error() string {
	var parts []string
	if e.RoomID != "" {
		parts = append(parts, fmt.Sprintf("room=%s", e.RoomID))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}

	prefix := "coordinator error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("coordinator error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CoordinatorError) Is(target error) bool {
	if _, ok := target.(*CoordinatorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s %q not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return target == ErrSessionNotFound || target == ErrSlotNotFound || target == ErrNotQueued
}

// ValidationError indicates invalid input or state.
type ValidationError struct {
	baseError
	Field string
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds the offending field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// CooldownError indicates the room must wait before requesting again.
// It carries the remaining wait so callers can surface it directly.
type CooldownError struct {
	baseError
	Remaining time.Duration
}

// NewCooldownError creates a CooldownError with the remaining wait.
func NewCooldownError(remaining time.Duration) *CooldownError {
	return &CooldownError{
		baseError: baseError{
			message:    fmt.Sprintf("cooldown active, %s remaining", remaining.Round(time.Second)),
			cause:      ErrCooldownActive,
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: true,
		},
		Remaining: remaining,
	}
}

// ConflictError indicates the target was already mutated by a racing call.
// Callers absorb these idempotently and log at info level.
type ConflictError struct {
	baseError
}

// NewConflictError creates a ConflictError.
func NewConflictError(message string, cause error) *ConflictError {
	return &ConflictError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: false,
		},
	}
}

// InfraError indicates a transient infrastructure failure (driver or
// store unavailable). Safe to retry, logged as a warning.
type InfraError struct {
	baseError
	Subsystem string
}

// NewInfraError creates an InfraError for the given subsystem.
func NewInfraError(subsystem, message string, cause error) *InfraError {
	return &InfraError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
		Subsystem: subsystem,
	}
}

// Error returns the formatted error message.
func (e *InfraError) Error() string {
	prefix := "infra error"
	if e.Subsystem != "" {
		prefix = fmt.Sprintf("infra error [%s]", e.Subsystem)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the error is transient and the operation may
// succeed on retry. Unknown errors are treated as non-retryable.
func IsRetryable(err error) bool {
	var be BrowserdError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether the error message is safe to display to
// end users. Unknown errors are treated as internal.
func IsUserFacing(err error) bool {
	var be BrowserdError
	if errors.As(err, &be) {
		return be.IsUserFacing()
	}
	return false
}

// IsConflict reports whether the error represents a concurrency conflict
// that callers should absorb idempotently.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsCooldown reports whether the error is a cooldown rejection. If so,
// the remaining wait is returned.
func IsCooldown(err error) (time.Duration, bool) {
	var ce *CooldownError
	if errors.As(err, &ce) {
		return ce.Remaining, true
	}
	return 0, false
}

// SeverityOf returns the severity of the error, defaulting to
// SeverityError for errors outside this package's taxonomy.
func SeverityOf(err error) Severity {
	var be BrowserdError
	if errors.As(err, &be) {
		return be.Severity()
	}
	return SeverityError
}
