/*
errors.go - Centralized error types shared by every domain package

PURPOSE:
  All error categories in one place for consistency and discoverability.
  Domain packages wrap or embed these so the HTTP layer can map any error
  to a status code with errors.Is, without knowing the domain.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, missing fields, bad intervals
  2. Authorization errors - Actor role not allowed to perform an action
  3. State errors - Transition not allowed from the current status
  4. Conflict errors - Booking overlap, duplicate keys, lost races
  5. Store errors - Anything else coming from persistence (propagated as-is)

USAGE:
  if errors.Is(err, generic.ErrInvalidTransition) {
      // wrong current status
  }
  if generic.IsRetryable(err) {
      // lost an atomic race, the caller may try again
  }

SEE ALSO:
  - booking/errors.go: ConflictError carrying the overlapping bookings
  - api/handlers.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input is malformed or incomplete.
	// Validation failures are never partially applied.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when no actor could be identified.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the actor's role may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the requested change collides with existing
	// state (overlapping booking, duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when a state machine transition is not
	// allowed from the record's current status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConcurrentModification is returned when an atomic compare-and-set or
	// unique counter lost a race against another request. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ForbiddenError names the action and the roles that could have performed it.
type ForbiddenError struct {
	Action  string
	Role    Role
	Allowed []Role
}

func (e *ForbiddenError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, r := range e.Allowed {
		allowed[i] = string(r)
	}
	role := string(e.Role)
	if role == "" {
		role = "none"
	}
	return fmt.Sprintf("forbidden: %s requires role %s (have %s)",
		e.Action, strings.Join(allowed, " or "), role)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// TransitionError reports a refused state machine transition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for overlap/duplicate conflicts and lost races.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrConcurrentModification)
}
