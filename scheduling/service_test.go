package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/recurrence"
	"github.com/fernwall/mainspring/trigger"
)

func newService(e *env) *Service {
	return NewService(e.schedules, e.workOrders, e.orchestrator, zap.NewNop().Sugar())
}

func TestServiceCreateArmsSchedule(t *testing.T) {
	e := newEnv(t, Options{NotificationLeadDays: 2, StalenessWindow: 10})
	svc := newService(e)
	pm := e.seedPM(t, "Chiller maintenance", "tech@plant.example")

	sched := &recurrence.Schedule{
		PMID:           pm.ID,
		StartsOn:       time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC),
		Frequency:      1,
		RecurrenceType: recurrence.Daily,
		BasedOn:        recurrence.ScheduledDate,
	}
	require.NoError(t, svc.CreateSchedule(sched))
	assert.NotEmpty(t, sched.ID)
	assert.Equal(t, recurrence.StateArmed, sched.State)

	next, err := svc.NextFireDate(sched.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(sched.StartsOn))
}

func TestServiceCreateSucceedsWhenBreakerTrips(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 2})
	svc := newService(e)
	pm := e.seedPM(t, "Filter swap", "tech@plant.example")

	// A full window of unengaged work orders for the same PM.
	for i := 0; i < 2; i++ {
		_, err := e.workOrders.CreateFromTemplate(pm, nil, nil)
		require.NoError(t, err)
	}

	sched := &recurrence.Schedule{
		PMID:           pm.ID,
		StartsOn:       time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC),
		Frequency:      1,
		RecurrenceType: recurrence.Daily,
		BasedOn:        recurrence.ScheduledDate,
	}

	// Creation succeeds; the breaker leaves the schedule disabled, not armed.
	require.NoError(t, svc.CreateSchedule(sched))
	assert.Equal(t, recurrence.StateStaleDisabled, sched.State)

	stored, err := e.schedules.Get(sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurrence.StateStaleDisabled, stored.State)
}

func TestServiceUpdateRearms(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	svc := newService(e)
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.Arm(sched))

	sched.RecurrenceType = recurrence.Weekly
	sched.DaysOfWeek = []int{4} // Friday
	require.NoError(t, svc.UpdateSchedule(sched))

	got, err := e.triggers.Get(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Equal(t, trigger.KindCron, got.Kind)
	assert.Equal(t, "0 9 * * 5", got.CronSpec)
}

func TestServiceUpdateConflictLeavesTriggersAlone(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	svc := newService(e)
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.Arm(sched))

	stale, err := e.schedules.Get(sched.ID)
	require.NoError(t, err)

	// A concurrent edit wins first.
	require.NoError(t, sched.SetFrequency(2))
	require.NoError(t, svc.UpdateSchedule(sched))

	require.NoError(t, stale.SetFrequency(5))
	err = svc.UpdateSchedule(stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	got, err := e.triggers.Get(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, got.Interval, "the winning edit's cadence stands")
}

func TestServiceDeleteCancelsTriggers(t *testing.T) {
	e := newEnv(t, Options{NotificationLeadDays: 2, StalenessWindow: 10})
	svc := newService(e)
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.Arm(sched))

	require.NoError(t, svc.DeleteSchedule(sched.ID))

	_, err := e.schedules.Get(sched.ID)
	assert.True(t, errors.IsNotFound(err))
	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, genNext)
	notifNext, err := e.registry.NextFireTime(NotifKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, notifNext)
}

func TestServiceCompletionChains(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	svc := newService(e)
	sched := e.seedSchedule(t, func(s *recurrence.Schedule) {
		s.RecurrenceType = recurrence.Weekly
		s.Frequency = 2
		s.DaysOfWeek = []int{0}
		s.BasedOn = recurrence.CompletedDate
	})
	require.NoError(t, e.orchestrator.Arm(sched))

	pm, err := e.pms.Get(sched.PMID)
	require.NoError(t, err)
	wo, err := e.workOrders.CreateFromTemplate(pm, nil, nil)
	require.NoError(t, err)

	completedAt := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, svc.CompleteWorkOrder(wo.ID, completedAt))

	got, err := e.workOrders.Get(wo.ID)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", got.Status)

	next, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(completedAt.AddDate(0, 0, 14)),
		"next fire chains two weeks from completion")
}

func TestServiceCompletionWithoutScheduleIsNoop(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	svc := newService(e)
	pm := e.seedPM(t, "One-off repair")
	wo, err := e.workOrders.CreateFromTemplate(pm, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.CompleteWorkOrder(wo.ID, time.Now().UTC()))
}

func TestServiceReenable(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	svc := newService(e)
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.DisableStale(sched))

	require.NoError(t, svc.Reenable(sched.ID))

	got, err := e.schedules.Get(sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurrence.StateArmed, got.State)
}
