package uid

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TimeOrdered(t *testing.T) {
	first := New()
	time.Sleep(2 * time.Millisecond)
	second := New()

	assert.True(t, IsValid(first))
	assert.Less(t, first, second)

	parsed, err := uuid.Parse(second)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("7c9e6679-7425-40de-944b-e07fc1f66e52"))
	assert.False(t, IsValid("42"))
	assert.False(t, IsValid(""))
}
