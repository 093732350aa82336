package common

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown job, publication, page, or entity
// identifier.
var ErrNotFound = errors.New("not found")

// ErrSynthesisUnavailable reports that the generative model call failed or
// timed out. Callers surface it instead of returning a fabricated answer.
var ErrSynthesisUnavailable = errors.New("synthesis unavailable")

// TransientError wraps a failure that is worth retrying with backoff, such
// as a store or model endpoint being temporarily unreachable.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError tagged with the failing
// operation. A nil err returns nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// ValidationError reports malformed input. It is surfaced immediately and
// never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validation builds a ValidationError for the given field.
func Validation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsTransient reports whether err should be retried. Context cancellation
// and deadline expiry count as transient at the page/document level: the
// call timed out, the work itself did not fail.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PageError tags a page-level processing failure with its page number so a
// single unreadable page never sinks the rest of the document.
type PageError struct {
	PageNumber int
	Err        error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.PageNumber, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
