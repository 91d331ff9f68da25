package aggregation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the machine-readable reason a client can branch on.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindWrongType          ErrorKind = "WRONG_TYPE"
	KindAlreadyConfigured  ErrorKind = "ALREADY_CONFIGURED"
	KindDuplicateInSession ErrorKind = "DUPLICATE_IN_SESSION"
	KindLimitReached       ErrorKind = "LIMIT_REACHED"
	KindProductNotFound    ErrorKind = "PRODUCT_NOT_FOUND"

	KindPartialCycle      ErrorKind = "PARTIAL_CYCLE"
	KindMissingParents    ErrorKind = "MISSING_PARENTS"
	KindInconsistentState ErrorKind = "INCONSISTENT_STATE"
	KindPackageShortfall  ErrorKind = "PACKAGE_SHORTFALL"
	KindSessionNotOpen    ErrorKind = "SESSION_NOT_OPEN"
	KindSessionNotFound   ErrorKind = "SESSION_NOT_FOUND"
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	KindInvalidArgument   ErrorKind = "INVALID_ARGUMENT"
)

// Error is a structured, non-retryable engine error.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the engine error kind, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
