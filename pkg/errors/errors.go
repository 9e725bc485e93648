package errors

import (
	"fmt"
)

// New returns an error that formats as the given text.
func New(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// FriendlyError is implemented by errors whose message is meant to be shown
// to the user as-is, without the chain of contexts leading up to it.
type FriendlyError interface {
	error
	FriendlyMessage() string
}

type friendlyError struct {
	msg string
}

// NewFriendlyError creates an error with a message that can be displayed
// directly to the user.
func NewFriendlyError(format string, args ...interface{}) error {
	return friendlyError{fmt.Sprintf(format, args...)}
}

func (err friendlyError) Error() string {
	return err.msg
}

func (err friendlyError) FriendlyMessage() string {
	return err.msg
}

type withContext struct {
	context string
	cause   error
}

// WithContext annotates `err` with a short description of what was being
// attempted when it occurred. A nil `err` stays nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return withContext{context: context, cause: err}
}

func (err withContext) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.cause)
}

func (err withContext) Unwrap() error {
	return err.cause
}

// RootCause strips all the contexts added by WithContext and returns the
// original error.
func RootCause(err error) error {
	for {
		wrapped, ok := err.(withContext)
		if !ok {
			return err
		}
		err = wrapped.cause
	}
}

// GetFriendlyMessage returns the user-facing message for `err` if its root
// cause is a FriendlyError.
func GetFriendlyMessage(err error) (string, bool) {
	if friendly, ok := RootCause(err).(FriendlyError); ok {
		return friendly.FriendlyMessage(), true
	}
	return "", false
}
