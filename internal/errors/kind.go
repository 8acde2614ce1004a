package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of error categories callers branch on.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindTerminal   Kind = "terminal"
	KindDuplicate  Kind = "duplicate"
	KindUnknown    Kind = "unknown"
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func Terminal(op, message string, err error) error {
	return &Error{Kind: KindTerminal, Op: op, Message: message, Err: err}
}

func Duplicate(op string, err error) error {
	return &Error{Kind: KindDuplicate, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var kindErr *Error
	if errors.As(err, &kindErr) {
		return kindErr.Kind
	}
	if errors.Is(err, ErrConnectionTimeout) {
		return KindTransient
	}
	return KindUnknown
}

func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func IsTerminal(err error) bool {
	return KindOf(err) == KindTerminal
}

func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicate
}

// UserMessage returns the message meant for the caller, falling back to the error text.
func UserMessage(err error) string {
	var kindErr *Error
	if errors.As(err, &kindErr) && kindErr.Message != "" {
		return kindErr.Message
	}
	return err.Error()
}
