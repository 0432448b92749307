package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseErrorWrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewDatabaseError("get account", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsInternal())
	assert.Equal(t, "get account", err.Details["operation"])
	assert.Contains(t, err.Error(), "DATABASE_ERROR")
}

func TestAsAppErrorFollowsChain(t *testing.T) {
	inner := NewAccountNotFoundError(42)
	wrapped := fmt.Errorf("credit ad: %w", inner)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.True(t, appErr.IsNotFound())
	assert.Equal(t, int64(42), appErr.Details["account_id"])

	_, ok = AsAppError(stderrors.New("plain"))
	assert.False(t, ok)
}
