package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, caller-visible classification of a failure.
type ErrorKind string

const (
	KindValidation           ErrorKind = "VALIDATION_ERROR"
	KindDuplicateAccount     ErrorKind = "DUPLICATE_ACCOUNT"
	KindInvalidOrExpiredCode ErrorKind = "INVALID_OR_EXPIRED_CODE"
	KindTooManyRequests      ErrorKind = "TOO_MANY_REQUESTS"
	KindSessionEstablishment ErrorKind = "SESSION_ESTABLISHMENT_FAILED"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindInternal             ErrorKind = "INTERNAL_ERROR"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies any error; unclassified errors are internal faults.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message for an error. Unclassified
// errors never leak their text to the caller.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
