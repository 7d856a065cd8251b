package scan

import (
	"errors"
	"fmt"
)

// ErrorCode classifies session-level failures. Transient resource
// pressure never produces one of these; it is absorbed by the adaptive
// controller and the performance monitor.
type ErrorCode string

const (
	EnvironmentNotReady    ErrorCode = "environment_not_ready"
	AcceleratorUnavailable ErrorCode = "accelerator_unavailable"
	QualityBelowThreshold  ErrorCode = "quality_below_threshold"
	InsufficientCoverage   ErrorCode = "insufficient_coverage"
	ResourceCritical       ErrorCode = "resource_critical"
	RecoveryFailed         ErrorCode = "recovery_failed"
)

// ScanError carries a machine classification, a technical message, and a
// short actionable guidance string shown to the operator. Guidance and
// classification are deliberately distinct: "hold device steadier" helps
// the operator, "quality_below_threshold" helps the caller.
type ScanError struct {
	Code     ErrorCode
	Message  string // technical detail, for logs
	Guidance string // user-facing, actionable
	CanRetry bool
	Err      error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ScanError) Unwrap() error { return e.Err }

// Is matches on error code so callers can use errors.Is with a bare
// NewScanError(code, ...) sentinel.
func (e *ScanError) Is(target error) bool {
	var t *ScanError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewScanError constructs a ScanError with the default guidance and
// retry affordance for its code.
func NewScanError(code ErrorCode, message string) *ScanError {
	e := &ScanError{Code: code, Message: message}
	switch code {
	case EnvironmentNotReady:
		e.Guidance = "Improve lighting and hold the device steadier before starting."
		e.CanRetry = true
	case AcceleratorUnavailable:
		e.Guidance = "Processing power is limited; the scan will continue at reduced quality."
		e.CanRetry = true
	case QualityBelowThreshold:
		e.Guidance = "Keep scanning; surface detail is not yet sufficient."
		e.CanRetry = true
	case InsufficientCoverage:
		e.Guidance = "Move the device over the areas that have not been captured yet."
		e.CanRetry = true
	case ResourceCritical:
		e.Guidance = "The device is overloaded. Let it cool down and restart the scan."
		e.CanRetry = false
	case RecoveryFailed:
		e.Guidance = "Recovery was not possible. Start a new scan."
		e.CanRetry = false
	}
	return e
}

// WithCause attaches a wrapped cause and returns the same error for
// chaining at construction sites.
func (e *ScanError) WithCause(err error) *ScanError {
	e.Err = err
	return e
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
