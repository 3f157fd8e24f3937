package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Code:    CodeNotFound,
				Message: "Job not found",
			},
			expected: "NOT_FOUND: Job not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "sweep failed",
				Err:     errors.New("connection refused"),
			},
			expected: "INTERNAL_ERROR: sweep failed (caused by: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appErr.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := NotFoundWithID("Job", "low-participant-warning")

	if err.Code != CodeNotFound {
		t.Errorf("expected code %s, got %s", CodeNotFound, err.Code)
	}
	if err.Details["id"] != "low-participant-warning" {
		t.Errorf("expected id 'low-participant-warning', got %v", err.Details["id"])
	}
	if err.Details["resource"] != "Job" {
		t.Errorf("expected resource 'Job', got %v", err.Details["resource"])
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		status    int
		retryable bool
	}{
		{"conflict", Conflict("busy"), http.StatusConflict, true},
		{"unavailable", Unavailable("MongoDB", nil), http.StatusServiceUnavailable, true},
		{"internal", Internal("boom", nil), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.status)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := Conflict("job is already running").WithDetails(map[string]any{"job": "low-participant-cancellation"})

	if err.Details["job"] != "low-participant-cancellation" {
		t.Errorf("expected job detail, got %v", err.Details)
	}
}

func TestIsAppError_Wrapped(t *testing.T) {
	inner := Conflict("job is already running")
	wrapped := fmt.Errorf("manual trigger: %w", inner)

	if !IsAppError(wrapped) {
		t.Fatal("expected wrapped AppError to be detected")
	}
	if AsAppError(wrapped) != inner {
		t.Error("AsAppError should return the wrapped instance")
	}
}

func TestAsAppError_PlainError(t *testing.T) {
	plain := errors.New("plain")
	appErr := AsAppError(plain)

	if appErr.Code != CodeInternal {
		t.Errorf("expected code %s, got %s", CodeInternal, appErr.Code)
	}
	if appErr.Err != plain {
		t.Error("expected plain error to be preserved as cause")
	}
	if IsAppError(plain) {
		t.Error("plain error is not an AppError")
	}
}
