package orders

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable category of an engine failure.
type Kind string

const (
	KindInvalidTransition  Kind = "invalid_transition"
	KindMissingContext     Kind = "missing_context"
	KindStaleState         Kind = "stale_state"
	KindNegativeAmount     Kind = "negative_amount"
	KindEmptyOrder         Kind = "empty_order"
	KindNotFound           Kind = "not_found"
	KindPersistenceTimeout Kind = "persistence_timeout"
	KindInvalidInput       Kind = "invalid_input"
	KindItemUnavailable    Kind = "item_unavailable"
	KindPersistence        Kind = "persistence"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Message: "transition not allowed"}
	ErrMissingContext     = &Error{Kind: KindMissingContext, Message: "transition context missing"}
	ErrStaleState         = &Error{Kind: KindStaleState, Message: "order was modified concurrently"}
	ErrNegativeAmount     = &Error{Kind: KindNegativeAmount, Message: "amount must not be negative"}
	ErrEmptyOrder         = &Error{Kind: KindEmptyOrder, Message: "order has no items"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "order not found"}
	ErrPersistenceTimeout = &Error{Kind: KindPersistenceTimeout, Message: "persistence timed out"}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrItemUnavailable    = &Error{Kind: KindItemUnavailable, Message: "item unavailable"}
	ErrPersistence        = &Error{Kind: KindPersistence, Message: "persistence failure"}
)

// Error is a typed engine failure with a human-readable message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the human-readable message of an engine error without the op prefix.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
