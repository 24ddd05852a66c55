package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineErrorChainPreservesType(t *testing.T) {
	err := NewEngineKeyNotFoundError("key1")

	require.True(t, IsEngineError(err))
	ee, ok := AsEngineError(err)
	require.True(t, ok)
	require.Equal(t, "key1", ee.Key())
	require.Equal(t, ErrorCodeIndexKeyNotFound, ee.Code())
}

func TestCodecErrorTracksBytesConsumed(t *testing.T) {
	err := NewSerdeError(nil, "decode record").WithBytesConsumed(42)

	require.True(t, IsCodecError(err))
	ce, ok := AsCodecError(err)
	require.True(t, ok)
	require.EqualValues(t, 42, ce.BytesConsumed())
}

func TestGetErrorCodeFallsBackToInternal(t *testing.T) {
	require.Equal(t, ErrorCodeInternal, GetErrorCode(nil))
}

func TestGetErrorCodeRecognizesEveryErrorFamily(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"validation", NewRequiredFieldError("field"), ErrorCodeInvalidInput},
		{"storage", NewStorageError(nil, ErrorCodeDiskFull, "disk full"), ErrorCodeDiskFull},
		{"index", NewKeyNotFoundError("key1"), ErrorCodeIndexKeyNotFound},
		{"engine", NewWrongEngineError("/data"), ErrorCodeWrongEngine},
		{"codec", NewSerdeError(nil, "bad record"), ErrorCodeSerde},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, GetErrorCode(tc.err))
		})
	}
}

func TestWithDetailIsLazilyAllocated(t *testing.T) {
	err := NewBaseError(nil, ErrorCodeInternal, "boom")
	require.Nil(t, err.Details())

	err.WithDetail("key", "value")
	require.Equal(t, "value", err.Details()["key"])
}
