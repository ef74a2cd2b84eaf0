package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DataValidationError
		expected string
	}{
		{
			name:     "with index",
			err:      &DataValidationError{Field: "high", Index: 4, Message: "below close"},
			expected: "invalid high at index 4: below close",
		},
		{
			name:     "without index",
			err:      &DataValidationError{Field: "close", Index: -1, Message: "length mismatch"},
			expected: "invalid close: length mismatch",
		},
		{
			name:     "message only",
			err:      &DataValidationError{Index: -1, Message: "no candles"},
			expected: "no candles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNewDataValidationErrorf(t *testing.T) {
	err := NewDataValidationErrorf("timestamp", 7, "not after %s", "previous bar")

	var validationErr *DataValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "timestamp", validationErr.Field)
	assert.Equal(t, 7, validationErr.Index)
	assert.Equal(t, "not after previous bar", validationErr.Message)
}

func TestIsDataValidationError(t *testing.T) {
	err := NewDataValidationError("open", 0, "must be positive")
	wrapped := fmt.Errorf("scan BTC/USDT: %w", err)

	assert.True(t, IsDataValidationError(err))
	assert.True(t, IsDataValidationError(wrapped))
	assert.False(t, IsDataValidationError(errors.New("boom")))
	assert.False(t, IsDataValidationError(nil))
}
