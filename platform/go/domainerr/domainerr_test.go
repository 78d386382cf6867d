package domainerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	t.Parallel()

	sentinel := Conflict("fee already assigned for this period")
	wrapped := fmt.Errorf("assign fees: %w", sentinel)

	require.ErrorIs(t, wrapped, sentinel)
	require.True(t, Is(wrapped, KindConflict))
	require.False(t, Is(wrapped, KindNotFound))

	_, ok := KindOf(fmt.Errorf("plain"))
	require.False(t, ok)
}

func TestFieldErrors(t *testing.T) {
	t.Parallel()

	fields := FieldErrors{}
	require.NoError(t, fields.Err())

	fields.Add("amount", "must be greater than zero")
	fields.Add("amount", "at most 2 decimal places")
	fields.Add("method", "unknown payment method")

	err := fields.Err()
	require.True(t, Is(err, KindValidation))
	require.Equal(t, "validation error: amount: must be greater than zero; at most 2 decimal places, method: unknown payment method", err.Error())
}
