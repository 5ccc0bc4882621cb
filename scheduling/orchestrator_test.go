package scheduling

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	mstest "github.com/fernwall/mainspring/internal/testing"
	"github.com/fernwall/mainspring/internal/util"
	"github.com/fernwall/mainspring/maintenance"
	"github.com/fernwall/mainspring/recurrence"
	"github.com/fernwall/mainspring/trigger"
)

type env struct {
	db           *sql.DB
	pms          *maintenance.PMStore
	workOrders   *maintenance.WorkOrderStore
	schedules    *recurrence.Store
	triggers     *trigger.Store
	registry     *trigger.SQLRegistry
	orchestrator *Orchestrator
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	conn := mstest.CreateTestDB(t)
	triggers := trigger.NewStore(conn)
	e := &env{
		db:         conn,
		pms:        maintenance.NewPMStore(conn),
		workOrders: maintenance.NewWorkOrderStore(conn),
		schedules:  recurrence.NewStore(conn),
		triggers:   triggers,
		registry:   trigger.NewSQLRegistry(triggers),
	}
	e.orchestrator = NewOrchestrator(e.schedules, e.workOrders, e.registry, opts, zap.NewNop().Sugar())
	return e
}

func (e *env) seedPM(t *testing.T, title string, assignees ...string) *maintenance.PreventiveMaintenance {
	t.Helper()
	pm := &maintenance.PreventiveMaintenance{
		ID:        maintenance.NewPMID(),
		Title:     title,
		Assignees: assignees,
	}
	require.NoError(t, e.pms.Create(pm))
	return pm
}

func (e *env) seedSchedule(t *testing.T, mutate func(*recurrence.Schedule)) *recurrence.Schedule {
	t.Helper()
	pm := e.seedPM(t, "Pump inspection", "tech@plant.example")
	sched := &recurrence.Schedule{
		ID:             recurrence.NewScheduleID(),
		PMID:           pm.ID,
		StartsOn:       time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC), // future Monday
		Frequency:      1,
		RecurrenceType: recurrence.Daily,
		BasedOn:        recurrence.ScheduledDate,
	}
	if mutate != nil {
		mutate(sched)
	}
	require.NoError(t, e.schedules.Create(sched))
	return sched
}

func TestArmRegistersGenerationAndNotification(t *testing.T) {
	e := newEnv(t, Options{NotificationLeadDays: 2, StalenessWindow: 10})
	sched := e.seedSchedule(t, nil)

	require.NoError(t, e.orchestrator.Arm(sched))
	assert.Equal(t, recurrence.StateArmed, sched.State)

	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	require.NotNil(t, genNext)
	assert.True(t, genNext.Equal(sched.StartsOn))

	// The notification always precedes its generation fire.
	notifNext, err := e.registry.NextFireTime(NotifKey(sched.ID))
	require.NoError(t, err)
	require.NotNil(t, notifNext)
	assert.True(t, notifNext.Before(*genNext))
	assert.True(t, notifNext.Equal(sched.StartsOn.AddDate(0, 0, -2)))

	got, err := e.schedules.Get(sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurrence.StateArmed, got.State)
}

func TestNotificationPrecedesGenerationAcrossShapes(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*recurrence.Schedule)
	}{
		{"weekly", func(s *recurrence.Schedule) {
			s.RecurrenceType = recurrence.Weekly
			s.DaysOfWeek = []int{0} // Monday, matching the anchor
		}},
		{"monthly", func(s *recurrence.Schedule) {
			s.RecurrenceType = recurrence.Monthly
		}},
		{"yearly", func(s *recurrence.Schedule) {
			s.RecurrenceType = recurrence.Yearly
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, Options{NotificationLeadDays: 2, StalenessWindow: 10})
			sched := e.seedSchedule(t, tc.mutate)

			require.NoError(t, e.orchestrator.Arm(sched))

			genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
			require.NoError(t, err)
			require.NotNil(t, genNext)
			assert.True(t, genNext.Equal(sched.StartsOn))

			notifNext, err := e.registry.NextFireTime(NotifKey(sched.ID))
			require.NoError(t, err)
			require.NotNil(t, notifNext)
			assert.True(t, notifNext.Before(*genNext))
			assert.True(t, notifNext.Equal(genNext.AddDate(0, 0, -2)))
		})
	}
}

func TestArmWithoutLeadDaysSkipsNotification(t *testing.T) {
	e := newEnv(t, Options{NotificationLeadDays: 0, StalenessWindow: 10})
	sched := e.seedSchedule(t, nil)

	require.NoError(t, e.orchestrator.Arm(sched))

	notifNext, err := e.registry.NextFireTime(NotifKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, notifNext)
}

func TestArmExpiredSchedule(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	sched := e.seedSchedule(t, func(s *recurrence.Schedule) {
		s.StartsOn = time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)
		s.EndsOn = util.Ptr(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))
	})

	require.NoError(t, e.orchestrator.Arm(sched))
	assert.Equal(t, recurrence.StateExpired, sched.State)

	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, genNext, "an expired schedule arms nothing")
}

func TestArmEndsBeforeItStarts(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	sched := e.seedSchedule(t, func(s *recurrence.Schedule) {
		// End bound in the future but not after the start
		s.EndsOn = util.Ptr(time.Date(2029, 12, 1, 0, 0, 0, 0, time.UTC))
	})

	require.NoError(t, e.orchestrator.Arm(sched))
	assert.Equal(t, recurrence.StateUnarmed, sched.State)

	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, genNext)
}

func TestArmStaleDisabledRequiresReenable(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.schedules.SetState(sched.ID, recurrence.StateStaleDisabled))
	sched.State = recurrence.StateStaleDisabled

	err := e.orchestrator.Arm(sched)
	require.Error(t, err)
	assert.True(t, errors.IsStaleRecurrence(err))

	require.NoError(t, e.orchestrator.Reenable(sched))
	assert.Equal(t, recurrence.StateUnarmed, sched.State)
	require.NoError(t, e.orchestrator.Arm(sched))
	assert.Equal(t, recurrence.StateArmed, sched.State)
}

func TestStalenessCircuitBreakerOnArm(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 3})
	sched := e.seedSchedule(t, nil)
	pm, err := e.pms.Get(sched.PMID)
	require.NoError(t, err)

	// Three generated work orders nobody ever touched.
	for i := 0; i < 3; i++ {
		_, err := e.workOrders.CreateFromTemplate(pm, nil, nil)
		require.NoError(t, err)
	}

	// Tripping the breaker is a fail-safe, not an error.
	require.NoError(t, e.orchestrator.Arm(sched))
	assert.Equal(t, recurrence.StateStaleDisabled, sched.State)

	stored, err := e.schedules.Get(sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurrence.StateStaleDisabled, stored.State)

	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, genNext)
}

func TestStalenessBreakerResetByEngagement(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 3})
	sched := e.seedSchedule(t, nil)
	pm, err := e.pms.Get(sched.PMID)
	require.NoError(t, err)

	var last *maintenance.WorkOrder
	for i := 0; i < 3; i++ {
		last, err = e.workOrders.CreateFromTemplate(pm, nil, nil)
		require.NoError(t, err)
	}

	// One engaged work order inside the window keeps the schedule alive.
	require.NoError(t, e.workOrders.FirstRespond(last.ID, time.Now().UTC()))

	require.NoError(t, e.orchestrator.Arm(sched))
	assert.Equal(t, recurrence.StateArmed, sched.State)
}

func TestStalenessNeedsFullWindow(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 3})
	sched := e.seedSchedule(t, nil)
	pm, err := e.pms.Get(sched.PMID)
	require.NoError(t, err)

	// Two unengaged work orders are below the window.
	for i := 0; i < 2; i++ {
		_, err := e.workOrders.CreateFromTemplate(pm, nil, nil)
		require.NoError(t, err)
	}

	require.NoError(t, e.orchestrator.Arm(sched))
	assert.Equal(t, recurrence.StateArmed, sched.State)
}

func TestDisarmIsIdempotent(t *testing.T) {
	e := newEnv(t, Options{NotificationLeadDays: 2, StalenessWindow: 10})
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.Arm(sched))

	require.NoError(t, e.orchestrator.Disarm(sched))
	assert.Equal(t, recurrence.StateUnarmed, sched.State)

	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, genNext)

	require.NoError(t, e.orchestrator.Disarm(sched))
	assert.Equal(t, recurrence.StateUnarmed, sched.State)
}

func TestRearmReplacesTriggers(t *testing.T) {
	e := newEnv(t, Options{NotificationLeadDays: 2, StalenessWindow: 10})
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.Arm(sched))

	// Switch from daily to weekly Wednesdays.
	sched.RecurrenceType = recurrence.Weekly
	sched.DaysOfWeek = []int{2}
	require.NoError(t, e.schedules.Update(sched))
	require.NoError(t, e.orchestrator.Rearm(sched))

	got, err := e.triggers.Get(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Equal(t, trigger.KindCron, got.Kind)
	assert.Equal(t, "0 9 * * 3", got.CronSpec)

	var count int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM triggers`).Scan(&count))
	assert.Equal(t, 2, count, "one generation and one notification trigger")
}

func TestChainAfterCompletion(t *testing.T) {
	e := newEnv(t, Options{NotificationLeadDays: 2, StalenessWindow: 10})
	sched := e.seedSchedule(t, func(s *recurrence.Schedule) {
		s.RecurrenceType = recurrence.Monthly
		s.Frequency = 2
		s.BasedOn = recurrence.CompletedDate
	})
	require.NoError(t, e.orchestrator.Arm(sched))

	completedAt := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	require.NoError(t, e.orchestrator.ChainAfterCompletion(sched.ID, completedAt))

	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	require.NotNil(t, genNext)
	assert.True(t, genNext.Equal(time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)),
		"next fire is two months after completion, same time-of-day")

	notifNext, err := e.registry.NextFireTime(NotifKey(sched.ID))
	require.NoError(t, err)
	require.NotNil(t, notifNext)
	assert.True(t, notifNext.Equal(time.Date(2024, 3, 13, 14, 30, 0, 0, time.UTC)))
}

func TestChainIgnoresScheduledDateSchedules(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.Arm(sched))

	before, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)

	require.NoError(t, e.orchestrator.ChainAfterCompletion(sched.ID, time.Now()))

	after, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	assert.True(t, after.Equal(*before), "a fixed cadence ignores completions")
}

func TestChainPastEndDateExpires(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	sched := e.seedSchedule(t, func(s *recurrence.Schedule) {
		s.RecurrenceType = recurrence.Monthly
		s.BasedOn = recurrence.CompletedDate
		s.StartsOn = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		s.EndsOn = util.Ptr(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	})
	require.NoError(t, e.schedules.SetState(sched.ID, recurrence.StateArmed))
	sched.State = recurrence.StateArmed

	// Completion on Jan 20 chains to Feb 20, past the end date.
	require.NoError(t, e.orchestrator.ChainAfterCompletion(sched.ID, time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)))

	got, err := e.schedules.Get(sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurrence.StateExpired, got.State)

	genNext, err := e.registry.NextFireTime(GenKey(sched.ID))
	require.NoError(t, err)
	assert.Nil(t, genNext)
}

func TestNextFireDateWeeklyGap(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	sched := e.seedSchedule(t, func(s *recurrence.Schedule) {
		s.RecurrenceType = recurrence.Weekly
		s.Frequency = 3
		s.DaysOfWeek = []int{0}
		s.StartsOn = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) // Monday
	})
	require.NoError(t, e.schedules.SetState(sched.ID, recurrence.StateArmed))
	sched.State = recurrence.StateArmed

	e.orchestrator.now = func() time.Time {
		return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) // Wednesday W1
	}

	next, err := e.orchestrator.NextFireDate(sched)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)),
		"the cron trigger fires weekly but only W3 generates")

	// Early in a legal week the still-upcoming in-week fire is reported,
	// matching what the week guard will actually let through.
	sched.DaysOfWeek = []int{0, 4}
	e.orchestrator.now = func() time.Time {
		return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) // Tuesday W0
	}
	next, err = e.orchestrator.NextFireDate(sched)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)))

	// Unarmed weekly-gap schedules report no fire.
	sched.State = recurrence.StateUnarmed
	next, err = e.orchestrator.NextFireDate(sched)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextFireDateSimpleCadence(t *testing.T) {
	e := newEnv(t, Options{StalenessWindow: 10})
	sched := e.seedSchedule(t, nil)
	require.NoError(t, e.orchestrator.Arm(sched))

	next, err := e.orchestrator.NextFireDate(sched)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(sched.StartsOn))
}
