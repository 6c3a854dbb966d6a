package archive

import (
	"errors"
	"fmt"
	"time"
)

// Outcome labels.
const (
	OutcomePayload = "payload"
	OutcomeFailure = "failure"
)

// Failure is a definitive error captured during a recorded run. It is
// re-raised, never returned as data, when the entry is replayed.
type Failure struct {
	// Class is the error classification (rate_limit, transient, command, ...)
	Class string `json:"class"`

	// StatusCode is the remote status, 0 for non-HTTP failures
	StatusCode int `json:"status_code,omitempty"`

	// Attempts is how many attempts were made before giving up
	Attempts int `json:"attempts,omitempty"`

	// Exhausted is true when the retry budget ran out
	Exhausted bool `json:"exhausted,omitempty"`

	// Message is the sanitized error text
	Message string `json:"message"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("archived %s failure (status %d): %s", f.Class, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("archived %s failure: %s", f.Class, f.Message)
}

// Archivable is implemented by errors that know how to describe themselves
// as a Failure.
type Archivable interface {
	ArchiveFailure() *Failure
}

// FailureFrom converts err into a Failure.
func FailureFrom(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var a Archivable
	if errors.As(err, &a) {
		if f := a.ArchiveFailure(); f != nil {
			return f
		}
	}

	return &Failure{
		Class:   "error",
		Message: SanitizeCommand(err.Error()),
	}
}

// Entry is one archived request and its outcome.
type Entry struct {
	// Key is the store key (Descriptor.Key)
	Key string `json:"key"`

	// Descriptor is the sanitized request
	Descriptor Descriptor `json:"descriptor"`

	// Payload is the raw response, empty when Failure is set
	Payload []byte `json:"payload,omitempty"`

	// Failure is the definitive error of the recorded request
	Failure *Failure `json:"failure,omitempty"`

	// RunID identifies the recording run
	RunID string `json:"run_id"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"stored_at"`
}

// Outcome returns OutcomeFailure or OutcomePayload.
func (e *Entry) Outcome() string {
	if e.Failure != nil {
		return OutcomeFailure
	}
	return OutcomePayload
}
