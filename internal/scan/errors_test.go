package scan

import (
	"errors"
	"fmt"
	"testing"
)

func TestScanErrorIsMatchesOnCode(t *testing.T) {
	err := NewScanError(QualityBelowThreshold, "score 0.42 below gate")
	wrapped := fmt.Errorf("capture rejected: %w", err)

	if !errors.Is(wrapped, NewScanError(QualityBelowThreshold, "")) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if errors.Is(wrapped, NewScanError(InsufficientCoverage, "")) {
		t.Fatalf("different codes must not match")
	}
	if CodeOf(wrapped) != QualityBelowThreshold {
		t.Fatalf("CodeOf = %q", CodeOf(wrapped))
	}
}

func TestRetryAffordances(t *testing.T) {
	retryable := []ErrorCode{EnvironmentNotReady, AcceleratorUnavailable, QualityBelowThreshold, InsufficientCoverage}
	for _, code := range retryable {
		if !NewScanError(code, "x").CanRetry {
			t.Errorf("%s should be retryable", code)
		}
	}
	for _, code := range []ErrorCode{ResourceCritical, RecoveryFailed} {
		if NewScanError(code, "x").CanRetry {
			t.Errorf("%s must not be retryable", code)
		}
	}
}

func TestGuidanceDistinctFromClassification(t *testing.T) {
	for _, code := range []ErrorCode{
		EnvironmentNotReady, AcceleratorUnavailable, QualityBelowThreshold,
		InsufficientCoverage, ResourceCritical, RecoveryFailed,
	} {
		e := NewScanError(code, "detail")
		if e.Guidance == "" {
			t.Errorf("%s: guidance must not be empty", code)
		}
		if e.Guidance == string(code) {
			t.Errorf("%s: guidance must differ from classification", code)
		}
	}
}
