package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError(t *testing.T) {
	err := New("TEST_001", "test error")

	if err.Code != "TEST_001" {
		t.Errorf("expected code TEST_001, got %s", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", err.Message)
	}
}

func TestAppErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := New("TEST_001", "test error", cause)

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "underlying error") {
		t.Errorf("expected error string to contain cause, got %s", errStr)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := New("TEST_001", "test error", cause)

	if err.Unwrap() != cause {
		t.Errorf("expected unwrap to return cause")
	}
}

func TestSentinelMatchThroughWrap(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("unique constraint"), ErrDuplicateName.Code, "member exists")

	if !stderrors.Is(wrapped, ErrDuplicateName) {
		t.Error("expected wrapped error to match ErrDuplicateName")
	}
	if stderrors.Is(wrapped, ErrNotFound) {
		t.Error("expected wrapped error not to match ErrNotFound")
	}
}

func TestPermissionIndistinguishableFromNotFound(t *testing.T) {
	if ErrPermissionDenied.Message != ErrNotFound.Message {
		t.Error("permission and not-found must carry identical user-facing text")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := New("TEST_001", "test error")
	stdErr := fmt.Errorf("standard error")

	if !IsAppError(appErr) {
		t.Error("expected IsAppError to return true for AppError")
	}
	if IsAppError(stdErr) {
		t.Error("expected IsAppError to return false for standard error")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(ErrAlreadyBound) != "BIND_001" {
		t.Errorf("unexpected code for ErrAlreadyBound")
	}
	if GetCode(fmt.Errorf("standard error")) != "UNKNOWN" {
		t.Errorf("expected code UNKNOWN for standard error")
	}
}
