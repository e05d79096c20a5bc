package errors

import "errors"

// asArchiveError converts err to an ArchiveError, wrapping foreign errors
// with CodeUnknown.
func asArchiveError(err error) ArchiveError {
	var archiveErr ArchiveError
	if errors.As(err, &archiveErr) {
		return archiveErr
	}
	return &archiveError{
		code:     CodeUnknown,
		severity: SeverityFatal,
		message:  err.Error(),
		cause:    err,
	}
}

// WithContext adds a single context field to an error.
// Existing context fields are preserved.
//
// Returns nil if err is nil.
//
// Example:
//
//	err = errors.WithContext(err, "entry", e.Pathname())
func WithContext(err error, key string, value interface{}) ArchiveError {
	if err == nil {
		return nil
	}
	return WithContextMap(err, map[string]interface{}{key: value})
}

// WithContextMap adds multiple context fields to an error.
// New fields override existing ones with the same key.
//
// Returns nil if err is nil.
func WithContextMap(err error, ctx map[string]interface{}) ArchiveError {
	if err == nil {
		return nil
	}

	archiveErr := asArchiveError(err)
	newContext := archiveErr.Context()
	if newContext == nil {
		newContext = make(map[string]interface{}, len(ctx))
	}
	for k, v := range ctx {
		newContext[k] = v
	}

	return &archiveError{
		code:     archiveErr.Code(),
		severity: archiveErr.Severity(),
		message:  archiveErr.Message(),
		context:  newContext,
		cause:    archiveErr.Unwrap(),
	}
}

// WithSeverity overrides the severity of an error.
//
// This is used where the same condition has different reach depending on
// where it happens, for example a truncated extra field (warning) versus a
// truncated header (fatal).
//
// Returns nil if err is nil.
func WithSeverity(err error, severity Severity) ArchiveError {
	if err == nil {
		return nil
	}

	archiveErr := asArchiveError(err)
	return &archiveError{
		code:     archiveErr.Code(),
		severity: severity,
		message:  archiveErr.Message(),
		context:  archiveErr.Context(),
		cause:    archiveErr.Unwrap(),
	}
}
