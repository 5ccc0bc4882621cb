package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/trigger"
)

func TestStaticShape(t *testing.T) {
	s := validWeekly()

	s.RecurrenceType = Daily
	s.Frequency = 3
	shape, err := StaticShape(s)
	require.NoError(t, err)
	assert.Equal(t, trigger.KindInterval, shape.Kind)
	assert.Equal(t, 72*time.Hour, shape.Interval)
	assert.Equal(t, trigger.MisfireCatchUpOne, shape.Misfire)

	s = validWeekly() // 09:00 Monday anchor, Monday+Wednesday
	shape, err = StaticShape(s)
	require.NoError(t, err)
	assert.Equal(t, trigger.KindCron, shape.Kind)
	assert.Equal(t, "0 9 * * 1,3", shape.CronSpec)
	assert.Equal(t, trigger.MisfireSkip, shape.Misfire)

	s.RecurrenceType = Monthly
	s.Frequency = 2
	shape, err = StaticShape(s)
	require.NoError(t, err)
	assert.Equal(t, trigger.KindCalendar, shape.Kind)
	assert.Equal(t, 2, shape.CalendarMonths)

	s.RecurrenceType = Yearly
	s.Frequency = 1
	shape, err = StaticShape(s)
	require.NoError(t, err)
	assert.Equal(t, 12, shape.CalendarMonths)

	s.RecurrenceType = "HOURLY"
	_, err = StaticShape(s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedRecurrence))
}

func TestNotificationShape(t *testing.T) {
	// Weekly schedules fire the notification on shifted weekdays.
	s := validWeekly() // Monday, Wednesday at 09:00
	shape, err := NotificationShape(s, 2)
	require.NoError(t, err)
	assert.Equal(t, trigger.KindCron, shape.Kind)
	// Monday-2 = Saturday (5), Wednesday-2 = Monday (0); cron 6 and 1.
	assert.Equal(t, "0 9 * * 1,6", shape.CronSpec)

	// Other types reuse the generation shape; the earlier start time
	// carries the lead offset.
	s.RecurrenceType = Daily
	shape, err = NotificationShape(s, 2)
	require.NoError(t, err)
	assert.Equal(t, trigger.KindInterval, shape.Kind)
	assert.Equal(t, 24*time.Hour, shape.Interval)
}

func TestNotificationDaysOfWeekWraparound(t *testing.T) {
	// Monday (0) minus 3 days wraps to Friday (4).
	assert.Equal(t, []int{4}, NotificationDaysOfWeek([]int{0}, 3))

	// Sunday (6) minus 2 days is Friday (4); sorted with the wrap of
	// Monday (0) minus 2 = Saturday (5).
	assert.Equal(t, []int{4, 5}, NotificationDaysOfWeek([]int{0, 6}, 2))

	// Collisions after shifting are deduplicated.
	assert.Equal(t, []int{5}, NotificationDaysOfWeek([]int{0, 0}, 2))

	// Zero lead days leaves the set unchanged.
	assert.Equal(t, []int{1, 3}, NotificationDaysOfWeek([]int{3, 1}, 0))

	// Shifting by a full week is a no-op.
	assert.Equal(t, []int{2}, NotificationDaysOfWeek([]int{2}, 7))
}

func TestNotificationStart(t *testing.T) {
	fire := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	notif := NotificationStart(fire, 2)
	assert.Equal(t, time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC), notif)
	assert.True(t, notif.Before(fire))
}

func TestNextWeeklyFireAfter(t *testing.T) {
	// Anchor Monday 2024-01-01 09:00, every 3 weeks, Monday+Wednesday.
	s := validWeekly()
	s.Frequency = 3

	// Early in the legal W0 the Wednesday fire is still ahead; the cron
	// will fire it and the week guard will accept it, so it is the answer.
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) // Tuesday W0
	assert.Equal(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	// Past W0's last matching day the next legal week is W3.
	now = time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC) // Thursday W0
	assert.Equal(t, time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	// Mid W1 and W2 also land on W3.
	now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) // Wednesday W1
	assert.Equal(t, time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	// Tuesday of the legal W3 still has W3's Wednesday ahead of it.
	now = time.Date(2024, 1, 23, 12, 0, 0, 0, time.UTC) // Tuesday W3
	assert.Equal(t, time.Date(2024, 1, 24, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	// Past W3's matching days the next legal week is W6.
	now = time.Date(2024, 1, 25, 12, 0, 0, 0, time.UTC) // Thursday W3
	assert.Equal(t, time.Date(2024, 2, 12, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	// Before the anchor: first legal week is W0.
	now = time.Date(2023, 12, 20, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	// Wednesday-only schedule picks the offset inside the week.
	s.DaysOfWeek = []int{2}
	now = time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 24, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	// Friday-only schedule early in W0 reports W0's Friday, not W3's.
	s.DaysOfWeek = []int{4}
	now = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) // Tuesday W0
	assert.Equal(t, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), NextWeeklyFireAfter(s, now))

	s.DaysOfWeek = nil
	assert.True(t, NextWeeklyFireAfter(s, now).IsZero())
}

func TestWeeklyShouldRun(t *testing.T) {
	s := validWeekly()
	s.Frequency = 3 // every 3 weeks from Monday 2024-01-01

	// Fires in W0, W3 and W6 are legal.
	assert.True(t, WeeklyShouldRun(s, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.True(t, WeeklyShouldRun(s, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)))
	assert.True(t, WeeklyShouldRun(s, time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)))
	assert.True(t, WeeklyShouldRun(s, time.Date(2024, 2, 12, 9, 0, 0, 0, time.UTC)))

	// Fires in W1, W2, W4 and W5 are discarded.
	assert.False(t, WeeklyShouldRun(s, time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)))
	assert.False(t, WeeklyShouldRun(s, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)))
	assert.False(t, WeeklyShouldRun(s, time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC)))
	assert.False(t, WeeklyShouldRun(s, time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC)))

	// Fires before the anchor never run.
	assert.False(t, WeeklyShouldRun(s, time.Date(2023, 12, 25, 9, 0, 0, 0, time.UTC)))

	// Frequency 1 and non-weekly schedules always pass the guard.
	s.Frequency = 1
	assert.True(t, WeeklyShouldRun(s, time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)))
	s.Frequency = 3
	s.RecurrenceType = Monthly
	assert.True(t, WeeklyShouldRun(s, time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)))
}

func TestNextFromCompletion(t *testing.T) {
	completed := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	s := validWeekly()
	s.BasedOn = CompletedDate

	s.RecurrenceType = Monthly
	s.Frequency = 2
	next, err := NextFromCompletion(s, completed)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC), next,
		"time-of-day of the completion is preserved")

	s.RecurrenceType = Daily
	s.Frequency = 10
	next, err = NextFromCompletion(s, completed)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 25, 14, 30, 0, 0, time.UTC), next)

	s.RecurrenceType = Weekly
	s.Frequency = 2
	next, err = NextFromCompletion(s, completed)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 29, 14, 30, 0, 0, time.UTC), next)

	s.RecurrenceType = Yearly
	s.Frequency = 1
	next, err = NextFromCompletion(s, completed)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC), next)

	s.RecurrenceType = "HOURLY"
	_, err = NextFromCompletion(s, completed)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedRecurrence))
}

func TestWeekdayConversions(t *testing.T) {
	assert.Equal(t, 0, MondayIndex(time.Monday))
	assert.Equal(t, 6, MondayIndex(time.Sunday))
	assert.Equal(t, 4, MondayIndex(time.Friday))

	assert.Equal(t, 1, CronDayOfWeek(0)) // Monday
	assert.Equal(t, 0, CronDayOfWeek(6)) // Sunday
	assert.Equal(t, 5, CronDayOfWeek(4)) // Friday

	// Round trip through both conversions is the identity.
	for day := 0; day < 7; day++ {
		wd := time.Weekday(CronDayOfWeek(day))
		assert.Equal(t, day, MondayIndex(wd))
	}
}

func TestCronSpecFor(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, "15 9 * * 1,3", cronSpecFor(at, []int{0, 2}))
	assert.Equal(t, "15 9 * * 0,6", cronSpecFor(at, []int{6, 5}), "cron days are sorted")

	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "0 0 * * 1", cronSpecFor(midnight, []int{0}))
}

func TestElapsedWeeks(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, elapsedWeeks(anchor, anchor))
	assert.Equal(t, 0, elapsedWeeks(anchor, anchor.AddDate(0, 0, 6)))
	assert.Equal(t, 1, elapsedWeeks(anchor, anchor.AddDate(0, 0, 7)))
	assert.Equal(t, 2, elapsedWeeks(anchor, anchor.AddDate(0, 0, 15)))

	// Before the anchor counts negative whole weeks.
	assert.Equal(t, -1, elapsedWeeks(anchor, anchor.Add(-time.Hour)))
	assert.Equal(t, -1, elapsedWeeks(anchor, anchor.AddDate(0, 0, -7)))
	assert.Equal(t, -2, elapsedWeeks(anchor, anchor.AddDate(0, 0, -8)))
}
