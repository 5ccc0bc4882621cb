package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelWrapping(t *testing.T) {
	err := Wrap(ErrInvalidRecurrence, "frequency should not be less than 1")
	assert.True(t, IsInvalidRecurrence(err))
	assert.False(t, IsNotFound(err))

	wrapped := Wrap(err, "updating schedule")
	assert.True(t, IsInvalidRecurrence(wrapped))
}

func TestNewNotFoundf(t *testing.T) {
	err := NewNotFoundf("schedule %s", "SCH_abc")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "SCH_abc")
}

func TestSchedulerUnavailable(t *testing.T) {
	err := Wrap(ErrSchedulerUnavailable, "registering trigger gen:SCH_abc")
	assert.True(t, IsSchedulerUnavailable(err))
	assert.False(t, IsSchedulerUnavailable(nil))
}

func TestHintsSurviveWrapping(t *testing.T) {
	err := WithHint(New("boom"), "retry the update")
	err = Wrap(err, "outer")
	assert.Equal(t, []string{"retry the update"}, GetAllHints(err))
}
