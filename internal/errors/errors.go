// Package errors provides centralized error definitions and error handling utilities
// for iborker. It defines the client-ID allocation failure taxonomy, semantic
// error types, error constructors with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - AllocationError: a tool could not obtain a client ID for its category
//   - StoreError: the lock directory could not be created, read or written
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//   - TimeoutError: operation timed out
//
// # Taxonomy
//
// Every allocation failure is terminal for the requesting tool. The sentinels
// below identify which condition occurred:
//   - ErrUnknownCategory: a tool category was not registered (programming error)
//   - ErrStoreUnavailable: the lock directory is unusable (environment problem)
//   - ErrRangeExhausted: every ID in the category's range has a live holder
//   - ErrMissingClientID: fixed mode was selected without an ID
//
// # Usage
//
//	err := errors.NewAllocationError("no free client id", errors.ErrRangeExhausted).
//		WithCategory("cli").
//		WithRange(100, 110).
//		WithLive([]errors.LiveHolder{{ClientID: 100, PID: 4242}})
//
//	if errors.Is(err, errors.ErrRangeExhausted) { ... }
//
//	var allocErr *errors.AllocationError
//	if errors.As(err, &allocErr) {
//		fmt.Println(allocErr.Hint())
//	}
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

// Allocation sentinel errors
var (
	// ErrUnknownCategory indicates a tool category with no registered offset range.
	ErrUnknownCategory = New("unknown tool category")
	// ErrStoreUnavailable indicates the lock directory cannot be created or written.
	ErrStoreUnavailable = New("lock store unavailable")
	// ErrRangeExhausted indicates every ID in a category's range is held by a live process.
	ErrRangeExhausted = New("client id range exhausted")
	// ErrMissingClientID indicates fixed mode was selected without a configured client ID.
	ErrMissingClientID = New("fixed client id mode requires a client id")
	// ErrAllocationTimeout indicates the scan-and-claim loop ran past its deadline.
	ErrAllocationTimeout = New("client id allocation timed out")
)

// Lock sentinel errors
var (
	// ErrAlreadyHeld indicates a lock marker is owned by a live process.
	ErrAlreadyHeld = New("client id already held")
	// ErrCorruptMarker indicates a lock marker could not be decoded.
	ErrCorruptMarker = New("lock marker corrupted")
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

// IBError is the base interface for all iborker errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type IBError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

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

// LiveHolder identifies a client ID found held by a running process.
type LiveHolder struct {
	ClientID int
	PID      int
	Hostname string
}

// String renders the holder as "id(pid N)".
func (h LiveHolder) String() string {
	if h.Hostname != "" {
		return fmt.Sprintf("%d(pid %d@%s)", h.ClientID, h.PID, h.Hostname)
	}
	return fmt.Sprintf("%d(pid %d)", h.ClientID, h.PID)
}

// AllocationError represents a failure to obtain a client ID.
// The range is half-open: [Lo, Hi).
//
// Example:
//
//	err := errors.NewAllocationError("no free client id", errors.ErrRangeExhausted).
//		WithCategory("cli").WithRange(100, 110)
//	fmt.Println(err) // "allocation error [category=cli, range=100-109]: no free client id: client id range exhausted"
type AllocationError struct {
	baseError
	Category string
	Lo       int
	Hi       int
	Live     []LiveHolder
	hasRange bool
}

// NewAllocationError creates a new AllocationError.
func NewAllocationError(message string, cause error) *AllocationError {
	return &AllocationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithCategory adds the tool category to the error context.
func (e *AllocationError) WithCategory(category string) *AllocationError {
	e.Category = category
	return e
}

// WithRange adds the attempted half-open range [lo, hi) to the error context.
func (e *AllocationError) WithRange(lo, hi int) *AllocationError {
	e.Lo = lo
	e.Hi = hi
	e.hasRange = true
	return e
}

// WithLive records the IDs that were found held by live processes.
func (e *AllocationError) WithLive(live []LiveHolder) *AllocationError {
	e.Live = live
	return e
}

// WithSeverity sets the error severity.
func (e *AllocationError) WithSeverity(s Severity) *AllocationError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *AllocationError) Error() string {
	var parts []string
	if e.Category != "" {
		parts = append(parts, fmt.Sprintf("category=%s", e.Category))
	}
	if e.hasRange {
		parts = append(parts, fmt.Sprintf("range=%d-%d", e.Lo, e.Hi-1))
	}
	if len(e.Live) > 0 {
		live := make([]string, len(e.Live))
		for i, h := range e.Live {
			live[i] = h.String()
		}
		parts = append(parts, fmt.Sprintf("live=%s", strings.Join(live, ",")))
	}

	prefix := "allocation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("allocation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		cause := strings.ReplaceAll(e.cause.Error(), "\n", ": ")
		return fmt.Sprintf("%s: %s: %s", prefix, e.message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *AllocationError) Is(target error) bool {
	if _, ok := target.(*AllocationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// Hint returns operator remediation advice for the failure.
func (e *AllocationError) Hint() string {
	switch {
	case errors.Is(e.cause, ErrAllocationTimeout):
		return "the lock directory was slow to respond; check for a hung process holding the reclaim guard"
	case errors.Is(e.cause, ErrRangeExhausted):
		return "too many concurrent instances of this tool: stop one, or check that every tool uses the same client_id.start floor"
	case errors.Is(e.cause, ErrMissingClientID):
		return "set IB_CLIENT_ID_FIXED (or client_id.fixed) or switch client_id.mode to auto"
	case errors.Is(e.cause, ErrUnknownCategory):
		return "use one of the registered tool names; see `iborker ranges`"
	case errors.Is(e.cause, ErrStoreUnavailable):
		return "make sure the lock directory exists and is writable, or point IB_LOCKS_DIR elsewhere"
	default:
		return ""
	}
}

// StoreError represents a failure of the lock directory itself.
//
// Example:
//
//	err := errors.NewStoreError("create lock directory", ioErr).WithDir("/home/u/.iborker/locks")
type StoreError struct {
	baseError
	Dir      string
	ClientID int
	hasID    bool
}

// NewStoreError creates a new StoreError. The cause chain always includes
// ErrStoreUnavailable.
func NewStoreError(message string, cause error) *StoreError {
	if cause == nil {
		cause = ErrStoreUnavailable
	} else if !errors.Is(cause, ErrStoreUnavailable) {
		cause = Join(ErrStoreUnavailable, cause)
	}
	return &StoreError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithDir adds the lock directory to the error context.
func (e *StoreError) WithDir(dir string) *StoreError {
	e.Dir = dir
	return e
}

// WithClientID adds the client ID being operated on to the error context.
func (e *StoreError) WithClientID(id int) *StoreError {
	e.ClientID = id
	e.hasID = true
	return e
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	var parts []string
	if e.Dir != "" {
		parts = append(parts, fmt.Sprintf("dir=%s", e.Dir))
	}
	if e.hasID {
		parts = append(parts, fmt.Sprintf("client_id=%d", e.ClientID))
	}

	prefix := "store error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("store error [%s]", strings.Join(parts, ", "))
	}

	// The joined cause renders on separate lines; flatten it.
	cause := strings.ReplaceAll(e.cause.Error(), "\n", ": ")
	return fmt.Sprintf("%s: %s: %s", prefix, e.message, cause)
}

// Is checks if this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("floor must be non-negative").
//		WithField("client_id.start").WithValue(-1)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var msg string
	if e.Field != "" {
		msg = fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	} else {
		msg = fmt.Sprintf("validation error: %s", e.message)
	}

	if e.Value != nil {
		msg = fmt.Sprintf("%s (got: %v)", msg, e.Value)
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("acquire reclaim guard", 5*time.Second)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    "operation timed out",
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout: %s", e.Operation)
	if e.Duration > 0 {
		msg = fmt.Sprintf("%s after %v", msg, e.Duration)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. Allocation failures are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ibErr IBError
	if As(err, &ibErr) {
		return ibErr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var ibErr IBError
	if As(err, &ibErr) {
		return ibErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement IBError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var ibErr IBError
	if As(err, &ibErr) {
		return ibErr.Severity()
	}

	return SeverityError
}

// HintFor returns remediation advice for err, or "" when none applies.
func HintFor(err error) string {
	var allocErr *AllocationError
	if As(err, &allocErr) {
		return allocErr.Hint()
	}
	var storeErr *StoreError
	if As(err, &storeErr) {
		return "make sure the lock directory exists and is writable, or point IB_LOCKS_DIR elsewhere"
	}
	return ""
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the IBError interface.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
