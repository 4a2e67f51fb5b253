package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name       string
		err        error
		transport  bool
		validation bool
		storage    bool
	}{
		{"nil", nil, false, false, false},
		{"plain", base, false, false, false},
		{"transport", Transport("twitter", "post tweet", 503, base), true, false, false},
		{"wrapped transport", fmt.Errorf("publish: %w", Transport("twitter", "post tweet", 0, base)), true, false, false},
		{"validation", Validation("text", "too long: %d", 300), false, true, false},
		{"storage", Storage("save post", base), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransport(tt.err); got != tt.transport {
				t.Errorf("IsTransport() = %v, want %v", got, tt.transport)
			}
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation() = %v, want %v", got, tt.validation)
			}
			if got := IsStorage(tt.err); got != tt.storage {
				t.Errorf("IsStorage() = %v, want %v", got, tt.storage)
			}
		})
	}
}

func TestTransportErrorCarriesStatus(t *testing.T) {
	err := fmt.Errorf("cycle aborted: %w", Transport("twitter", "fetch mentions", 429, errors.New("rate limited")))
	if StatusCode(err) != 429 {
		t.Errorf("expected status 429, got %d", StatusCode(err))
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("expected status in message, got %q", err.Error())
	}
	if StatusCode(errors.New("other")) != 0 {
		t.Error("expected 0 status for non-transport error")
	}
}

func TestDuplicateStorageError(t *testing.T) {
	dup := &StorageError{Op: "save post", Duplicate: true, Err: errors.New("pq: duplicate key")}
	if !IsDuplicate(dup) {
		t.Error("expected duplicate storage error")
	}
	if IsDuplicate(Storage("save post", errors.New("conn reset"))) {
		t.Error("plain storage error must not be a duplicate")
	}
	if !errors.Is(dup, dup.Err) {
		t.Error("expected StorageError to unwrap to its cause")
	}
}
