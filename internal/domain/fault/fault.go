// Package fault classifies order-processing failures into the kinds reported to
// callers of the order service.
package fault

import (
	"context"

	"github.com/go-faster/errors"
)

// Kind is a caller-visible failure category.
type Kind string

const (
	Unknown            Kind = "unknown"
	NotFound           Kind = "not_found"
	RuleViolation      Kind = "rule_violation"
	InsufficientStock  Kind = "insufficient_stock"
	CouponAlreadyUsed  Kind = "coupon_already_used"
	CouponNotOwned     Kind = "coupon_not_owned"
	Contention         Kind = "contention"
	PersistenceFailure Kind = "persistence_failure"
	// Canceled reports that the caller abandoned the request before commit.
	Canceled Kind = "canceled"
)

// ErrContention is returned when exclusive access to a product or coupon could
// not be obtained within the configured wait or retry budget.
var ErrContention = New(Contention, "contention: exclusive access not obtained")

// Error is an error tagged with a Kind. Sentinel values of *Error are compared
// by identity, so errors.Is works through any wrapping.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

// New returns a sentinel error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap tags err with kind. It returns nil if err is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg + ": " + e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// KindOf returns the kind of the outermost *Error in err's chain. Context
// cancellation is reported as Canceled even when untagged.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if isContextErr(err) {
		return Canceled
	}
	return Unknown
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the whole operation may be retried by the caller.
// Only Contention and PersistenceFailure qualify; the other kinds are terminal.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Contention, PersistenceFailure:
		return true
	default:
		return false
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
