// Package errors provides structured error handling for the archive codec.
//
// Every error produced by the readers, writers, filters and compressors in
// this module is an ArchiveError. An ArchiveError carries an ErrorCode that
// names the condition, a Severity that tells the caller how far the damage
// reaches, a human readable message, optional context metadata and an
// optional cause. ArchiveError is compatible with the standard library
// (errors.Is, errors.As, errors.Unwrap).
//
// # Severity
//
// Severities are ordered from best to worst:
//
//   - SeverityOK: no error.
//   - SeverityEOF: normal end of data (io.EOF), not a failure.
//   - SeverityWarn: the operation completed but something was suspicious,
//     for example a CRC mismatch. The data has been delivered.
//   - SeverityFailed: this entry cannot be produced or consumed, but the
//     archive stream is still positioned validly and the caller may continue
//     with the next entry.
//   - SeverityFatal: the archive object is no longer usable.
//
// Combine reduces several results to the most severe one:
//
//	err := errors.Combine(finishErr, headerErr)
//	if errors.IsFatal(err) {
//	    return err
//	}
//
// # Creating errors
//
//	err := errors.New(errors.CodeTruncated, "truncated ZIP file data")
//	err = errors.Wrap(ioErr, errors.CodeIO, "client write failed")
//	err = errors.WithContext(err, "entry", name)
//
// Errors whose code has no table entry, and foreign errors that are not
// ArchiveErrors, are treated as fatal. This keeps unknown failures from being
// mistaken for recoverable ones.
package errors
