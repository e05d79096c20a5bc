package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with a code and message while preserving the original
// error for errors.Is and errors.As.
//
// The severity is the worse of the code's default and the wrapped error's
// own severity (when it is an ArchiveError), so wrapping never downgrades a
// fatal condition.
//
// Returns nil if err is nil.
//
// Example:
//
//	if _, err := w.Write(block); err != nil {
//	    return errors.Wrap(err, errors.CodeIO, "write to client failed")
//	}
func Wrap(err error, code ErrorCode, message string) ArchiveError {
	if err == nil {
		return nil
	}

	severity := getDefaultSeverity(code)
	var archiveErr ArchiveError
	if errors.As(err, &archiveErr) && archiveErr.Severity().Worse(severity) {
		severity = archiveErr.Severity()
	}

	return &archiveError{
		code:     code,
		severity: severity,
		message:  message,
		cause:    err,
	}
}

// Wrapf wraps an error with a formatted message.
//
// Returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) ArchiveError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}
