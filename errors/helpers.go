package errors

import (
	stderrors "errors"
)

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard library errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// GetCode extracts the ErrorCode from an error.
// Returns CodeUnknown if the error is nil or not an ArchiveError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var archiveErr ArchiveError
	if stderrors.As(err, &archiveErr) {
		return archiveErr.Code()
	}

	return CodeUnknown
}

// GetMessage returns the message of the outermost ArchiveError, or err.Error().
// Returns an empty string for nil.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var archiveErr ArchiveError
	if stderrors.As(err, &archiveErr) {
		return archiveErr.Message()
	}
	return err.Error()
}
