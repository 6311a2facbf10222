package domain

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrInvalidQuantity   = errors.New("item quantity must be > 0")
	ErrDuplicateLineItem = errors.New("duplicate product in order")

	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrConcurrentModification = errors.New("order was modified concurrently")
)

// validationError keeps the specific cause reachable with errors.Is while
// also matching ErrValidation.
type validationError struct {
	cause  error
	detail string
}

func (e *validationError) Error() string {
	if e.detail == "" {
		return e.cause.Error()
	}
	return e.cause.Error() + ": " + e.detail
}

func (e *validationError) Unwrap() []error { return []error{ErrValidation, e.cause} }
