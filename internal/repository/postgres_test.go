package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmallints(t *testing.T) {
	tests := []struct {
		name        string
		input       []int
		expected    []any
		expectError bool
	}{
		{name: "flags", input: []int{0, 1, 9}, expected: []any{int16(0), int16(1), int16(9)}},
		{name: "upper bound", input: []int{32767}, expected: []any{int16(32767)}},
		{name: "negative", input: []int{0, -1}, expectError: true},
		{name: "would wrap", input: []int{70000}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := smallints(tt.input...)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrFlagOutOfRange)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
