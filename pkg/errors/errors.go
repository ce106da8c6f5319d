// Package errors wraps github.com/pkg/errors with printf-style helpers so call
// sites can write errors.Wrap(err, "could not load %s", name).
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// New returns an error with a stack trace. Extra args are applied with fmt.Sprintf.
func New(message string, args ...interface{}) error {
	if len(args) > 0 {
		return errors.Errorf(message, args...)
	}
	return errors.New(message)
}

// Wrap annotates err with a message and a stack trace. Returns nil if err is nil.
func Wrap(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if len(args) > 0 {
		return errors.Wrapf(err, message, args...)
	}
	return errors.Wrap(err, message)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Cause returns the underlying cause of err.
func Cause(err error) error {
	return errors.Cause(err)
}

// Join is a thin alias so callers don't need the stdlib package alongside this one.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// Errorf formats like fmt.Errorf, keeping %w semantics.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
