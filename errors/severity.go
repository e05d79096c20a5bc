package errors

import (
	stderrors "errors"
	"io"
)

// Severity orders outcomes from best to worst. The numeric order is part of
// the contract: a larger value is always a worse outcome.
type Severity int

const (
	// SeverityOK means no error.
	SeverityOK Severity = iota
	// SeverityEOF means a normal end of data.
	SeverityEOF
	// SeverityWarn means the operation completed with a suspicious result.
	SeverityWarn
	// SeverityFailed means the current entry is lost but the archive is usable.
	SeverityFailed
	// SeverityFatal means the archive object is no longer usable.
	SeverityFatal
)

// String returns the name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityEOF:
		return "eof"
	case SeverityWarn:
		return "warn"
	case SeverityFailed:
		return "failed"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Worse reports whether s is a worse outcome than other.
func (s Severity) Worse(other Severity) bool {
	return s > other
}

// defaultSeverities maps error codes to their default severity.
var defaultSeverities = map[ErrorCode]Severity{
	CodeIO:           SeverityFatal,
	CodeTruncated:    SeverityFatal,
	CodeMalformed:    SeverityFatal,
	CodeUnrecognized: SeverityFatal,

	CodeChecksum:     SeverityWarn,
	CodeSizeMismatch: SeverityWarn,
	CodeMetadata:     SeverityWarn,

	CodeUnsupported:  SeverityFailed,
	CodeInvalidInput: SeverityFailed,
	CodeSecurity:     SeverityFailed,

	CodeOptionUnknown: SeverityWarn,
	CodeInvalidConfig: SeverityFailed,

	CodeMisuse:        SeverityFatal,
	CodeProgram:       SeverityFatal,
	CodeLimitExceeded: SeverityFatal,

	CodeInternal: SeverityFatal,
	CodeUnknown:  SeverityFatal,
}

// getDefaultSeverity returns the default severity for an error code.
// Unknown codes are fatal.
func getDefaultSeverity(code ErrorCode) Severity {
	if s, ok := defaultSeverities[code]; ok {
		return s
	}
	return SeverityFatal
}

// SeverityOf classifies any error. nil is OK, io.EOF is EOF, an ArchiveError
// anywhere in the chain reports its own severity and anything else is fatal.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityOK
	}
	if err == io.EOF {
		return SeverityEOF
	}
	var archiveErr ArchiveError
	if stderrors.As(err, &archiveErr) {
		return archiveErr.Severity()
	}
	return SeverityFatal
}

// Combine returns the most severe of errs. Ties keep the earliest error.
// Returns nil when every error is nil.
func Combine(errs ...error) error {
	var worst error
	worstSeverity := SeverityOK
	for _, err := range errs {
		if s := SeverityOf(err); s.Worse(worstSeverity) {
			worst, worstSeverity = err, s
		}
	}
	return worst
}

// IsWarning reports whether err is a warning.
func IsWarning(err error) bool {
	return SeverityOf(err) == SeverityWarn
}

// IsFailed reports whether err lost the current entry but not the archive.
func IsFailed(err error) bool {
	return SeverityOf(err) == SeverityFailed
}

// IsFatal reports whether err left the archive object unusable.
func IsFatal(err error) bool {
	return SeverityOf(err) == SeverityFatal
}
