package errors

// ErrorCode represents a specific error condition.
// Error codes are string-based for debuggability.
type ErrorCode string

const (
	// Stream errors.

	// CodeIO indicates a client read, write or skip callback failed.
	CodeIO ErrorCode = "IO_ERROR"

	// CodeTruncated indicates the input ended before a structure was complete.
	CodeTruncated ErrorCode = "TRUNCATED"

	// CodeMalformed indicates a header or record could not be parsed.
	CodeMalformed ErrorCode = "MALFORMED"

	// CodeUnrecognized indicates no format or filter claimed the input.
	CodeUnrecognized ErrorCode = "UNRECOGNIZED_FORMAT"

	// Integrity errors.

	// CodeChecksum indicates a checksum did not match the recorded value.
	CodeChecksum ErrorCode = "BAD_CHECKSUM"

	// CodeSizeMismatch indicates a decoded size did not match the recorded size.
	CodeSizeMismatch ErrorCode = "WRONG_SIZE"

	// CodeMetadata indicates recoverable damage to entry metadata.
	CodeMetadata ErrorCode = "BAD_METADATA"

	// Entry errors.

	// CodeUnsupported indicates an entry uses a feature this codec does not
	// implement, such as encryption.
	CodeUnsupported ErrorCode = "UNSUPPORTED"

	// CodeInvalidInput indicates an entry or argument supplied by the caller is invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeSecurity indicates an entry was rejected by an extraction policy.
	CodeSecurity ErrorCode = "SECURITY_VIOLATION"

	// Configuration errors.

	// CodeOptionUnknown indicates an option key was not recognized by a layer.
	CodeOptionUnknown ErrorCode = "OPTION_NOT_RECOGNIZED"

	// CodeInvalidConfig indicates an option value or setting is invalid.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Session errors.

	// CodeMisuse indicates the API was called in the wrong state.
	CodeMisuse ErrorCode = "API_MISUSE"

	// CodeProgram indicates an external filter program failed.
	CodeProgram ErrorCode = "PROGRAM_FAILED"

	// CodeLimitExceeded indicates a hard limit was exceeded.
	CodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
