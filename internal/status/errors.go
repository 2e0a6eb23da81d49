package status

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chainstatus/statuspage/internal/api/models"
)

// ErrUnavailable is returned when a write is refused by configuration, for
// example while ingestion is paused.
var ErrUnavailable = errors.New("temporarily unavailable")

// ValidationError is returned when input is rejected before anything is
// written.
type ValidationError struct {
	Errors []models.FieldError
}

// NewValidationError builds a ValidationError with a single field error.
func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Errors: []models.FieldError{{Field: field, Code: code, Message: message}}}
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add appends a field error.
func (e *ValidationError) Add(field, code, message string) {
	e.Errors = append(e.Errors, models.FieldError{Field: field, Code: code, Message: message})
}

// Err returns e when it holds at least one field error and nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// StorageError wraps a failed read or write against a durable store. The
// caller is expected to retry on its own schedule.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError. Nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
