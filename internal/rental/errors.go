package rental

import (
	"errors"
	"fmt"
)

// Kind classifies every error the engine returns.
type Kind uint8

const (
	KindNotFound Kind = iota + 1
	KindOutOfStock
	KindInvalidPeriod
	KindAlreadyTerminal
	KindPersistenceFailure
	KindNotEligible
	KindInvalidStatus
)

// Sentinels for errors.Is. Every *Error unwraps to the sentinel of its Kind.
var (
	ErrNotFound        = errors.New("not found")
	ErrOutOfStock      = errors.New("no copy available")
	ErrInvalidPeriod   = errors.New("due date must be after open date")
	ErrAlreadyTerminal = errors.New("rental already returned or cancelled")
	ErrPersistence     = errors.New("persistence failure")
	ErrNotEligible     = errors.New("member is not eligible to borrow")
	ErrInvalidStatus   = errors.New("invalid rental status")
)

var kindSentinels = map[Kind]error{
	KindNotFound:           ErrNotFound,
	KindOutOfStock:         ErrOutOfStock,
	KindInvalidPeriod:      ErrInvalidPeriod,
	KindAlreadyTerminal:    ErrAlreadyTerminal,
	KindPersistenceFailure: ErrPersistence,
	KindNotEligible:        ErrNotEligible,
	KindInvalidStatus:      ErrInvalidStatus,
}

var kindNames = map[Kind]string{
	KindNotFound:           "not_found",
	KindOutOfStock:         "out_of_stock",
	KindInvalidPeriod:      "invalid_period",
	KindAlreadyTerminal:    "already_terminal",
	KindPersistenceFailure: "persistence_failure",
	KindNotEligible:        "not_eligible",
	KindInvalidStatus:      "invalid_status",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is returned by every engine operation. Entity and Ref name the book, member,
// rental or status the failure is about. The message never carries storage details;
// the underlying cause is kept for logging only.
type Error struct {
	Kind      Kind
	Entity    string
	Ref       string
	Temporary bool

	cause error
}

func newError(kind Kind, entity, ref string, cause error) *Error {
	return &Error{Kind: kind, Entity: entity, Ref: ref, cause: cause}
}

func (e *Error) Error() string {
	msg := "rental: " + kindSentinels[e.Kind].Error()
	if e.Entity != "" {
		msg += fmt.Sprintf(" (%s %s)", e.Entity, e.Ref)
	}
	return msg
}

// Unwrap exposes the Kind sentinel, not the storage cause.
func (e *Error) Unwrap() error {
	return kindSentinels[e.Kind]
}

// Cause returns the lower-level error that triggered e, if any.
func (e *Error) Cause() error {
	return e.cause
}

// KindOf returns the Kind of err, or 0 when err did not come from the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsTemporary reports whether err is a persistence failure caused by contention,
// which callers may retry with backoff.
func IsTemporary(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Temporary
}
