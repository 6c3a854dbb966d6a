package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/harvester/pkg/archive"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrArchiveRequired is returned when replay is requested without an archive.
	ErrArchiveRequired = errors.New("replay mode requires an archive")
)

// ErrorClass represents a classification of transport failures.
type ErrorClass string

const (
	// ErrorClassRateLimit is a retry-after status carrying a Retry-After delay.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTransient is a status from the forcelist (408, 423, 504, ...).
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassNetwork represents connection, redirect-loop and read errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassCommand represents a failed out-of-process command.
	ErrorClassCommand ErrorClass = "command"

	// ErrorClassClient represents non-retryable 4xx errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents non-retryable 5xx errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassMalformed represents a response that cannot be decoded.
	ErrorClassMalformed ErrorClass = "malformed"
)

// TransportError is a classified failure of one logical request.
type TransportError struct {
	Class      ErrorClass
	StatusCode int
	Attempts   int
	Exhausted  bool
	Message    string

	// RetryAfter is the server-advertised delay for ErrorClassRateLimit.
	RetryAfter time.Duration

	// Err is the underlying cause, not preserved across replay.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s error", e.Class)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	msg += ": " + e.Message
	if e.Exhausted {
		msg = fmt.Sprintf("%s: failed %d times, giving up", msg, e.Attempts)
	}
	return msg
}

// Unwrap exposes ErrRetryExhausted and the underlying cause to errors.Is/As.
func (e *TransportError) Unwrap() []error {
	var errs []error
	if e.Exhausted {
		errs = append(errs, ErrRetryExhausted)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ArchiveFailure implements archive.Archivable.
func (e *TransportError) ArchiveFailure() *archive.Failure {
	return &archive.Failure{
		Class:      string(e.Class),
		StatusCode: e.StatusCode,
		Attempts:   e.Attempts,
		Exhausted:  e.Exhausted,
		Message:    archive.SanitizeCommand(e.Message),
	}
}

// fromFailure rebuilds the error recorded in an archive entry.
func fromFailure(f *archive.Failure) *TransportError {
	return &TransportError{
		Class:      ErrorClass(f.Class),
		StatusCode: f.StatusCode,
		Attempts:   f.Attempts,
		Exhausted:  f.Exhausted,
		Message:    f.Message,
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassRateLimit, ErrorClassTransient, ErrorClassNetwork, ErrorClassCommand:
		return true
	default:
		// Client, server and malformed failures are definitive
		return false
	}
}
