// Package errl wraps errors with the location where they were created, so that
// the server logs can point at the failing call site with "%+v".
package errl

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errorf formats an error like fmt.Errorf (including %w wrapping) and records a stack trace.
func Errorf(format string, args ...any) error {
	return errors.WithStack(fmt.Errorf(format, args...))
}

// Error records a stack trace on an existing error. A nil error stays nil.
func Error(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// Wrap annotates err with a message and records a stack trace. A nil error stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(fmt.Errorf("%s: %w", msg, err))
}

// Detail renders the error with its stack trace, for server-side logs only.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v", err)
}
