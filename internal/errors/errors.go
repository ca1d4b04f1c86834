// Package errors provides centralized error definitions and error handling utilities
// for the autopilot codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - PlanCycleError: the plan's dependency graph contains a cycle
//   - StepError: a step-level failure (IOError, CommandFailure, PermissionError)
//   - SnapshotError: a checkpoint could not be created or restored
//   - CancellationError: a stop signal interrupted execution
//   - BudgetError: the global step or wall-clock budget was exhausted
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewValidationError("dependency must refer to an earlier step").
//		WithField("steps[2].depends_on").WithValue(4)
//
//	if errors.Is(err, errors.ErrInvalidInput) { ... }
//
//	var cycle *errors.PlanCycleError
//	if errors.As(err, &cycle) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
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

// Plan-related sentinel errors
var (
	// ErrPlanNotFound indicates that a plan could not be found.
	ErrPlanNotFound = New("plan not found")
	// ErrDependencyCycle indicates a circular dependency between steps.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrPlanRejected indicates that confirmation for a plan was declined.
	ErrPlanRejected = New("plan rejected")
	// ErrPlanRunning indicates that the orchestrator is already running a plan.
	ErrPlanRunning = New("plan already running")
)

// Step-related sentinel errors
var (
	// ErrStepFailed indicates that a step reached terminal failure.
	ErrStepFailed = New("step failed")
	// ErrBudgetExceeded indicates that a global step or time budget ran out.
	ErrBudgetExceeded = New("execution budget exceeded")
)

// Snapshot-related sentinel errors
var (
	// ErrSnapshotNotFound indicates that a snapshot id is unknown to the store.
	ErrSnapshotNotFound = New("snapshot not found")
	// ErrSnapshotFailed indicates that a snapshot could not be created or restored.
	ErrSnapshotFailed = New("snapshot operation failed")
	// ErrSnapshotCorrupted indicates that a manifest references a missing or altered blob.
	ErrSnapshotCorrupted = New("snapshot data corrupted")
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

// AutopilotError is the base interface for all autopilot errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type AutopilotError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
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

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PlanCycleError reports that scheduling could not place every step because
// the remaining steps depend on each other.
//
// Example:
//
//	err := errors.NewPlanCycleError([]int{3, 4})
//	fmt.Println(err) // "plan cycle error [steps=3,4]: no schedulable step remains"
type PlanCycleError struct {
	baseError
	Remaining []int
}

// NewPlanCycleError creates a new PlanCycleError for the unplaced step indices.
func NewPlanCycleError(remaining []int) *PlanCycleError {
	return &PlanCycleError{
		baseError: baseError{
			message:    "no schedulable step remains",
			cause:      ErrDependencyCycle,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Remaining: append([]int(nil), remaining...),
	}
}

// Error returns the formatted error message.
func (e *PlanCycleError) Error() string {
	var parts []string
	if len(e.Remaining) > 0 {
		idx := make([]string, len(e.Remaining))
		for i, r := range e.Remaining {
			idx[i] = fmt.Sprint(r)
		}
		parts = append(parts, "steps="+strings.Join(idx, ","))
	}
	return formatWithContext("plan cycle error", parts, e.message, nil)
}

// Is checks if this error matches the target.
func (e *PlanCycleError) Is(target error) bool {
	if _, ok := target.(*PlanCycleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StepCategory classifies a step-level failure.
type StepCategory string

const (
	// CategoryIO covers filesystem write and directory failures.
	CategoryIO StepCategory = "IOError"
	// CategoryCommand covers nonzero exits, launch failures and timeouts.
	CategoryCommand StepCategory = "CommandFailure"
	// CategoryPermission covers EACCES/EPERM failures.
	CategoryPermission StepCategory = "PermissionError"
)

// StepError represents a failure observed while executing a single step.
// Step errors never escape the recovery loop; they are carried inside step
// results and surfaced through reports.
//
// Example:
//
//	err := errors.NewStepError(errors.CategoryCommand, "exit status 2", nil).
//		WithStepIndex(4).WithExitCode(2)
type StepError struct {
	baseError
	Category  StepCategory
	StepIndex int
	ExitCode  int
}

// NewStepError creates a new StepError.
func NewStepError(category StepCategory, message string, cause error) *StepError {
	return &StepError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Category:  category,
		StepIndex: -1,
		ExitCode:  -1,
	}
}

// WithStepIndex adds the step index to the error context.
func (e *StepError) WithStepIndex(idx int) *StepError {
	e.StepIndex = idx
	return e
}

// WithExitCode adds a process exit code to the error context.
func (e *StepError) WithExitCode(code int) *StepError {
	e.ExitCode = code
	return e
}

// Error returns the formatted error message.
func (e *StepError) Error() string {
	var parts []string
	if e.StepIndex >= 0 {
		parts = append(parts, fmt.Sprintf("step=%d", e.StepIndex))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return formatWithContext(strings.ToLower(string(e.Category)), parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *StepError) Is(target error) bool {
	if t, ok := target.(*StepError); ok {
		return t.Category == "" || t.Category == e.Category
	}
	if errors.Is(target, ErrStepFailed) {
		return true
	}
	return e.baseError.Is(target)
}

// SnapshotError represents a failure to create or restore a checkpoint.
// It is always fatal to the current wave.
//
// Example:
//
//	err := errors.NewSnapshotError("restore", "write blob", ioErr).WithSnapshotID(id)
type SnapshotError struct {
	baseError
	Op         string
	SnapshotID string
}

// NewSnapshotError creates a new SnapshotError for the given operation.
func NewSnapshotError(op, message string, cause error) *SnapshotError {
	return &SnapshotError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Op: op,
	}
}

// WithSnapshotID adds the snapshot id to the error context.
func (e *SnapshotError) WithSnapshotID(id string) *SnapshotError {
	e.SnapshotID = id
	return e
}

// Error returns the formatted error message.
func (e *SnapshotError) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.SnapshotID != "" {
		parts = append(parts, "snapshot="+e.SnapshotID)
	}
	return formatWithContext("snapshot error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *SnapshotError) Is(target error) bool {
	if _, ok := target.(*SnapshotError); ok {
		return true
	}
	if errors.Is(target, ErrSnapshotFailed) {
		return true
	}
	return e.baseError.Is(target)
}

// CancellationError is raised when a stop signal interrupts execution. It is
// an expected outcome rather than a failure and is not shown as one.
type CancellationError struct {
	baseError
	Reason string
}

// NewCancellationError creates a new CancellationError.
func NewCancellationError(reason string) *CancellationError {
	return &CancellationError{
		baseError: baseError{
			message:    "execution stopped",
			cause:      ErrCanceled,
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: false,
		},
		Reason: reason,
	}
}

// Error returns the formatted error message.
func (e *CancellationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cancellation: %s (%s)", e.message, e.Reason)
	}
	return "cancellation: " + e.message
}

// Is checks if this error matches the target.
func (e *CancellationError) Is(target error) bool {
	if _, ok := target.(*CancellationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// BudgetError reports that a global execution limit was reached.
//
// Example:
//
//	err := errors.NewBudgetError("steps", "50", "52")
type BudgetError struct {
	baseError
	Limit string
	Max   string
	Used  string
}

// NewBudgetError creates a new BudgetError.
func NewBudgetError(limit, maxValue, used string) *BudgetError {
	return &BudgetError{
		baseError: baseError{
			message:    fmt.Sprintf("%s budget exhausted", limit),
			cause:      ErrBudgetExceeded,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Limit: limit,
		Max:   maxValue,
		Used:  used,
	}
}

// Error returns the formatted error message.
func (e *BudgetError) Error() string {
	return fmt.Sprintf("budget error [%s]: %s (max %s, needed %s)", e.Limit, e.message, e.Max, e.Used)
}

// Is checks if this error matches the target.
func (e *BudgetError) Is(target error) bool {
	if _, ok := target.(*BudgetError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("snapshot", "snapshot-20260101T000000Z-0001")
//	fmt.Println(err) // "snapshot 'snapshot-20260101T000000Z-0001' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("step has no action")
//	err = err.WithField("steps[1].action")
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
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
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

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing AutopilotError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apErr AutopilotError
	if As(err, &apErr) {
		return apErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var apErr AutopilotError
	if As(err, &apErr) {
		return apErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement AutopilotError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var apErr AutopilotError
	if As(err, &apErr) {
		return apErr.Severity()
	}

	return SeverityError
}

// IsCancellation reports whether err represents a requested stop rather than
// a failure.
func IsCancellation(err error) bool {
	var c *CancellationError
	return As(err, &c)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to load plan")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to restore %s", id)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
