package errors

import "fmt"

// ErrOptionUnknown is returned by an option handler when a key is not its own.
// The caller offers the key to the next layer.
var ErrOptionUnknown = New(CodeOptionUnknown, "option not recognized")

// New creates a new ArchiveError with the given code and message.
// The severity is the default severity of the code.
//
// Example:
//
//	err := errors.New(errors.CodeTruncated, "truncated cpio header")
func New(code ErrorCode, message string) ArchiveError {
	return &archiveError{
		code:     code,
		severity: getDefaultSeverity(code),
		message:  message,
	}
}

// Newf creates a new ArchiveError with a formatted message.
//
// Example:
//
//	err := errors.Newf(errors.CodeChecksum, "ZIP bad CRC: 0x%08x should be 0x%08x", got, want)
func Newf(code ErrorCode, format string, args ...interface{}) ArchiveError {
	return New(code, fmt.Sprintf(format, args...))
}
