package errors

// ArchiveError extends the standard error interface with structured
// information about a codec failure.
type ArchiveError interface {
	error

	// Code returns the error code identifying the type of error.
	Code() ErrorCode

	// Severity returns how far the failure reaches.
	Severity() Severity

	// Message returns the human-readable error message.
	Message() string

	// Context returns attached metadata as a read-only map.
	// Returns nil if no context has been attached.
	Context() map[string]interface{}

	// Unwrap returns the wrapped error, or nil.
	Unwrap() error
}

// archiveError is the concrete implementation of ArchiveError.
// It is private to enforce construction through package functions.
type archiveError struct {
	code     ErrorCode
	severity Severity
	message  string
	context  map[string]interface{}
	cause    error
}

// Error returns "[CODE] message" or "[CODE] message: cause".
func (e *archiveError) Error() string {
	if e.cause != nil {
		return "[" + string(e.code) + "] " + e.message + ": " + e.cause.Error()
	}
	return "[" + string(e.code) + "] " + e.message
}

func (e *archiveError) Code() ErrorCode {
	return e.code
}

func (e *archiveError) Severity() Severity {
	return e.severity
}

func (e *archiveError) Message() string {
	return e.message
}

// Context returns a copy of the context map.
func (e *archiveError) Context() map[string]interface{} {
	if e.context == nil {
		return nil
	}
	ctx := make(map[string]interface{}, len(e.context))
	for k, v := range e.context {
		ctx[k] = v
	}
	return ctx
}

func (e *archiveError) Unwrap() error {
	return e.cause
}

// Is reports a match against another ArchiveError with the same code and
// message, so package-level sentinels survive being re-created with context.
func (e *archiveError) Is(target error) bool {
	t, ok := target.(*archiveError)
	if !ok {
		return false
	}
	return t.code == e.code && t.message == e.message
}
