// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoData                = errors.New("no price data")
	ErrPersistence           = errors.New("history persistence failed")
	ErrSourceUnavailable     = errors.New("price source unavailable")
	ErrNotifierNotConfigured = errors.New("notifier not configured")
	ErrReportSuppressed      = errors.New("report suppressed by notification level")
	ErrLocked                = errors.New("another run holds the history lock")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrInvalidSnapshot       = errors.New("invalid snapshot")
)

// SourceError represents a failure to acquire a price page.
type SourceError struct {
	Page     string
	URL      string
	Attempts int
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source error [%s] %s after %d attempt(s): %v", e.Page, e.URL, e.Attempts, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is matches ErrSourceUnavailable.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// NewSourceError creates a new SourceError.
func NewSourceError(page, url string, attempts int, err error) *SourceError {
	return &SourceError{
		Page:     page,
		URL:      url,
		Attempts: attempts,
		Err:      err,
	}
}

// PersistenceError represents a failure to read or write the history store.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [%s] %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op, path string, err error) *PersistenceError {
	return &PersistenceError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// NotifyError represents a delivery failure on one notification channel.
type NotifyError struct {
	Channel string
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify error [%s]: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// NewNotifyError creates a new NotifyError.
func NewNotifyError(channel string, err error) *NotifyError {
	return &NotifyError{
		Channel: channel,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is matches ErrConfigInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
