package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error class returned to API clients.
type Kind string

const (
	NotFound                  Kind = "NOT_FOUND"
	Validation                Kind = "VALIDATION_ERROR"
	Conflict                  Kind = "CONFLICT"
	CouponInvalid             Kind = "COUPON_INVALID"
	CancellationWindowExpired Kind = "CANCELLATION_WINDOW_EXPIRED"
	InvalidTransition         Kind = "INVALID_TRANSITION"
	InsufficientBalance       Kind = "INSUFFICIENT_BALANCE"
	Unauthorized              Kind = "UNAUTHORIZED"
	Forbidden                 Kind = "FORBIDDEN"
	Internal                  Kind = "INTERNAL_ERROR"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap keeps the sentinel comparable through errors.Is while carrying the cause.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: &wrapped{sentinel: sentinel, cause: err}}
}

// Withf returns a copy of the sentinel with a more specific message.
func Withf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Message: fmt.Sprintf(format, args...), Err: sentinel}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

type wrapped struct {
	sentinel *Error
	cause    error
}

func (w *wrapped) Error() string   { return w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.sentinel, w.cause} }

// KindOf reports the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}
