package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernwall/mainspring/errors"
	mstest "github.com/fernwall/mainspring/internal/testing"
)

func TestHandlerRegistry(t *testing.T) {
	reg := NewHandlerRegistry()
	assert.Nil(t, reg.Resolve("workorder.generate"))

	var calls int
	reg.Register("workorder.generate", func(ctx context.Context, payload string, firedAt time.Time) error {
		calls++
		return nil
	})

	h := reg.Resolve("workorder.generate")
	require.NotNil(t, h)
	require.NoError(t, h(context.Background(), "SCH_abc", time.Now()))
	assert.Equal(t, 1, calls)
}

func TestSQLRegistryRoundTrip(t *testing.T) {
	conn := mstest.CreateTestDB(t)
	reg := NewSQLRegistry(NewStore(conn))

	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	require.NoError(t, reg.RegisterRepeating(
		"gen:SCH_abc", IntervalShape(24*time.Hour),
		"workorder.generate", "SCH_abc", start, nil,
	))

	next, err := reg.NextFireTime("gen:SCH_abc")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(start))

	// Unknown keys report no fire time rather than an error.
	next, err = reg.NextFireTime("gen:missing")
	require.NoError(t, err)
	assert.Nil(t, next)

	existed, err := reg.Cancel("gen:SCH_abc")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = reg.Cancel("gen:SCH_abc")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSQLRegistryOneShot(t *testing.T) {
	conn := mstest.CreateTestDB(t)
	reg := NewSQLRegistry(NewStore(conn))

	fireAt := time.Date(2030, 6, 1, 14, 0, 0, 0, time.UTC)
	require.NoError(t, reg.RegisterOneShot("chain:SCH_abc", "workorder.generate", "SCH_abc", fireAt))

	next, err := reg.NextFireTime("chain:SCH_abc")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(fireAt))
}

func TestSQLRegistryInvalidSpec(t *testing.T) {
	conn := mstest.CreateTestDB(t)
	reg := NewSQLRegistry(NewStore(conn))

	err := reg.RegisterRepeating(
		"gen:SCH_bad", CronShape("garbage"),
		"workorder.generate", "SCH_bad", time.Now(), nil,
	)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRecurrence(err),
		"a bad spec is the caller's fault, not scheduler unavailability")
	assert.False(t, errors.IsSchedulerUnavailable(err))
}

func TestSQLRegistryUnavailable(t *testing.T) {
	conn := mstest.CreateTestDB(t)
	store := NewStore(conn)
	reg := NewSQLRegistry(store)
	require.NoError(t, conn.Close())

	err := reg.RegisterRepeating(
		"gen:SCH_abc", IntervalShape(24*time.Hour),
		"workorder.generate", "SCH_abc", time.Now(), nil,
	)
	require.Error(t, err)
	assert.True(t, errors.IsSchedulerUnavailable(err))

	_, err = reg.Cancel("gen:SCH_abc")
	assert.True(t, errors.IsSchedulerUnavailable(err))

	_, err = reg.NextFireTime("gen:SCH_abc")
	assert.True(t, errors.IsSchedulerUnavailable(err))
}
