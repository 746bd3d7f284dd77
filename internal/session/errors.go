package session

import (
	"errors"
	"fmt"

	"shopping-planner/internal/export"
	"shopping-planner/internal/shopping"
)

var (
	// ErrNoListAvailable is returned by export and print before a list was generated.
	ErrNoListAvailable = export.ErrNoListAvailable
	// ErrGenerationInProgress is returned when generate is called while a
	// generation request is still outstanding.
	ErrGenerationInProgress = errors.New("session: shopping list generation already in progress")
	// ErrSuperseded is returned to the caller of a request whose result was
	// dropped because the session moved on.
	ErrSuperseded = errors.New("session: result discarded, session state changed")
	// ErrClosed is returned by actions on a closed session.
	ErrClosed = errors.New("session: closed")
)

// ValidationError is a local input problem detected before any request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PreviewFetchError is an advisory preview failure.
type PreviewFetchError struct {
	Start, End shopping.Date
	Err        error
}

func (e *PreviewFetchError) Error() string {
	return fmt.Sprintf("preview %s..%s failed: %v", e.Start, e.End, e.Err)
}

func (e *PreviewFetchError) Unwrap() error { return e.Err }

// GenerationError is a failed authoritative generation.
type GenerationError struct {
	Request shopping.GenerateRequest
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating shopping list %s..%s failed: %v", e.Request.StartDate, e.Request.EndDate, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ExportError is a failed remote text export.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting shopping list failed: %v", e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
