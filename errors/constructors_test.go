package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeTruncated, "truncated ZIP file data")

	require.NotNil(t, err)
	require.Equal(t, CodeTruncated, err.Code())
	require.Equal(t, "truncated ZIP file data", err.Message())
	require.Equal(t, SeverityFatal, err.Severity())
	require.Nil(t, err.Context())
	require.Nil(t, err.Unwrap())
}

func TestNew_DefaultSeverity(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Severity
	}{
		{CodeIO, SeverityFatal},
		{CodeTruncated, SeverityFatal},
		{CodeMalformed, SeverityFatal},
		{CodeUnrecognized, SeverityFatal},
		{CodeChecksum, SeverityWarn},
		{CodeSizeMismatch, SeverityWarn},
		{CodeMetadata, SeverityWarn},
		{CodeUnsupported, SeverityFailed},
		{CodeInvalidInput, SeverityFailed},
		{CodeSecurity, SeverityFailed},
		{CodeOptionUnknown, SeverityWarn},
		{CodeInvalidConfig, SeverityFailed},
		{CodeMisuse, SeverityFatal},
		{CodeProgram, SeverityFatal},
		{CodeLimitExceeded, SeverityFatal},
		{CodeInternal, SeverityFatal},
		{CodeUnknown, SeverityFatal},
		{ErrorCode("SOMETHING_ELSE"), SeverityFatal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			require.Equal(t, tt.want, New(tt.code, "x").Severity())
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeChecksum, "ZIP bad CRC: 0x%08x should be 0x%08x", 0x1, 0x91267e8f)

	require.Equal(t, CodeChecksum, err.Code())
	require.Equal(t, "ZIP bad CRC: 0x00000001 should be 0x91267e8f", err.Message())
	require.Equal(t, "[BAD_CHECKSUM] ZIP bad CRC: 0x00000001 should be 0x91267e8f", err.Error())
}

func TestErrOptionUnknown(t *testing.T) {
	err := WithContext(ErrOptionUnknown, "key", "frobnicate")

	require.True(t, Is(err, ErrOptionUnknown))
	require.True(t, IsWarning(err))
}
