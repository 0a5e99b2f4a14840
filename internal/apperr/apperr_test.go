package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := InvalidTransition("step: approve", "step %s is %s", "stp-1", "approved")

	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("expected errors.Is(err, ErrInvalidTransition)")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("InvalidTransition should not match ErrNotFound")
	}

	wrapped := fmt.Errorf("api: %w", err)
	if !errors.Is(wrapped, ErrInvalidTransition) {
		t.Error("wrapped error should still match its kind")
	}
}

func TestError_Message(t *testing.T) {
	err := NotFound("offer: accept", "offer", "off-123")
	want := "offer: accept: offer not found: off-123"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &Error{Kind: KindUnauthorized}
	if bare.Error() != "unauthorized" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "unauthorized")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(DuplicateAcceptance("offer: accept", "thread resolved")); got != KindDuplicateAcceptance {
		t.Errorf("KindOf = %q, want %q", got, KindDuplicateAcceptance)
	}
	if got := KindOf(errors.New("db down")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("op", "x"), http.StatusBadRequest},
		{"not found", NotFound("op", "step", "1"), http.StatusNotFound},
		{"unauthorized", Unauthorized("op", "x"), http.StatusForbidden},
		{"invalid transition", InvalidTransition("op", "x"), http.StatusConflict},
		{"duplicate acceptance", DuplicateAcceptance("op", "x"), http.StatusConflict},
		{"persistence", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
