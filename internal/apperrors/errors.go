// Package apperrors defines the error taxonomy shared by the orchestrator and
// its collaborators: transport failures, validation failures and storage failures.
package apperrors

import (
	"errors"
	"fmt"
)

// TransportError reports an external API that was unreachable or rejected the call.
type TransportError struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports content or input that must not be acted upon.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StorageError reports a failed engagement store operation.
type StorageError struct {
	Op        string
	Duplicate bool
	Err       error
}

func (e *StorageError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("storage %s: duplicate key: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a TransportError.
func Transport(service, op string, status int, err error) error {
	return &TransportError{Service: service, Op: op, StatusCode: status, Err: err}
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps err as a StorageError.
func Storage(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsStorage reports whether err is or wraps a StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsDuplicate reports whether err is a StorageError caused by a unique constraint.
func IsDuplicate(err error) bool {
	var target *StorageError
	return errors.As(err, &target) && target.Duplicate
}

// StatusCode returns the HTTP status carried by a TransportError, or 0.
func StatusCode(err error) int {
	var target *TransportError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}
