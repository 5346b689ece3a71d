package domain

import "fmt"

// NotFoundError indicates a record was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// IntegrityError indicates a storage constraint violation other than the
// identity-key conflict an upsert expects. Fatal to the write attempt.
type IntegrityError struct {
	Message string
	Cause   error
}

func (e *IntegrityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *IntegrityError) Unwrap() error { return e.Cause }

// StateError indicates a caller-contract violation, like querying more
// results before any search was made. Programmer error, fails loudly.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

// DirectionError indicates the pagination cursor disallows the requested
// direction.
type DirectionError struct {
	Later bool
}

func (e *DirectionError) Error() string {
	if e.Later {
		return "cannot query later trips"
	}
	return "cannot query earlier trips"
}

// NoMatchingTripError indicates a reload could not find the same trip in
// the freshly fetched batch. Distinct from a provider-level failure.
type NoMatchingTripError struct {
	TripID string
}

func (e *NoMatchingTripError) Error() string {
	return fmt.Sprintf("no matching trip for %q in fresh results", e.TripID)
}

// ProviderError carries a non-OK provider status.
type ProviderError struct {
	Status QueryStatus
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %s", e.Status)
}

// MessageKey is the localised message key for the failing status.
func (e *ProviderError) MessageKey() string { return e.Status.MessageKey() }

// ValidationError indicates invalid input to an inbound operation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrIntegrity wraps a storage error as an IntegrityError.
func ErrIntegrity(cause error, format string, args ...any) *IntegrityError {
	return &IntegrityError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrState creates a StateError with a formatted message.
func ErrState(format string, args ...any) *StateError {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
