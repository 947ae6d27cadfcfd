// ABOUTME: Error taxonomy for dialogue turn processing
// ABOUTME: Distinguishes retryable generation failures from caller mistakes

package tutor

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when the referenced session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidInput is returned for empty or oversized user messages,
// before any session lookup or model call.
var ErrInvalidInput = errors.New("invalid input")

// ErrSessionBusy is returned when another turn is already in flight for the
// same session. Callers may retry once the outstanding turn finishes.
var ErrSessionBusy = errors.New("session busy")

// ErrInvalidPhase indicates a stored session phase the controller cannot
// handle. This is an internal invariant breach, not a caller mistake.
var ErrInvalidPhase = errors.New("invalid session phase")

// GenerationError wraps a model gateway failure. Retryable distinguishes
// transient conditions (timeouts, rate limits) from permanent ones.
type GenerationError struct {
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError builds a GenerationError around err.
func NewGenerationError(retryable bool, err error) *GenerationError {
	return &GenerationError{Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a condition the caller may retry:
// a retryable generation failure or a busy session.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrSessionBusy) {
		return true
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Retryable
	}
	return false
}
