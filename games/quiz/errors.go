/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"errors"
	"fmt"
)

// Kind classifies every error the coordinator hands back to a caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidState
	KindConflict
	KindValidationFailed
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindValidationFailed:
		return "validation_failed"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error carries a Kind and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Reason
}

// Is reports whether target is an *Error of the same kind, so the
// sentinels below match any reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
	ErrForbidden        = &Error{Kind: KindForbidden}
)

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func invalidState(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

func conflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

func validationFailed(format string, args ...any) error {
	return newError(KindValidationFailed, format, args...)
}

func forbidden(format string, args ...any) error {
	return newError(KindForbidden, format, args...)
}
