package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/trigger"
)

// The planner is a set of pure functions: given a schedule and time inputs
// it computes trigger shapes and concrete fire dates. It performs no I/O,
// which is what makes the weekly multi-week arithmetic directly testable.

// StaticShape returns the repeating trigger shape for a SCHEDULED_DATE
// schedule.
//
// Weekly schedules with frequency > 1 still get a plain weekly cron shape:
// the registry cannot natively skip weeks, so the generation job re-derives
// the week index at fire time and discards fires on non-matching weeks
// (WeeklyShouldRun).
func StaticShape(s *Schedule) (trigger.Shape, error) {
	switch s.RecurrenceType {
	case Daily:
		return trigger.IntervalShape(time.Duration(s.Frequency) * 24 * time.Hour), nil
	case Weekly:
		if len(s.DaysOfWeek) == 0 {
			return trigger.Shape{}, errors.NewInvalidRecurrencef("days of week are required for weekly recurrence")
		}
		return trigger.CronShape(cronSpecFor(s.StartsOn, s.DaysOfWeek)), nil
	case Monthly:
		return trigger.CalendarShape(s.Frequency), nil
	case Yearly:
		return trigger.CalendarShape(12 * s.Frequency), nil
	default:
		return trigger.Shape{}, errors.Wrapf(errors.ErrUnsupportedRecurrence,
			"recurrence type %q", s.RecurrenceType)
	}
}

// NotificationShape returns the repeating shape for the advance-warning
// trigger paired with a generation trigger.
//
// For WEEKLY schedules the notification fires on its own weekday set: each
// generation weekday shifted leadDays earlier, wrapping across the week
// boundary. For the other types the generation shape is reused as-is; the
// earlier trigger start time carries the offset.
func NotificationShape(s *Schedule, leadDays int) (trigger.Shape, error) {
	if s.RecurrenceType == Weekly {
		if len(s.DaysOfWeek) == 0 {
			return trigger.Shape{}, errors.NewInvalidRecurrencef("days of week are required for weekly recurrence")
		}
		return trigger.CronShape(cronSpecFor(s.StartsOn, NotificationDaysOfWeek(s.DaysOfWeek, leadDays))), nil
	}
	return StaticShape(s)
}

// NotificationDaysOfWeek shifts each generation weekday leadDays earlier,
// wrapping across the week boundary (Monday minus 3 days is Friday).
// The result is sorted and deduplicated.
func NotificationDaysOfWeek(daysOfWeek []int, leadDays int) []int {
	seen := make(map[int]bool, len(daysOfWeek))
	var shifted []int
	for _, day := range daysOfWeek {
		notifDay := (day - leadDays) % 7
		if notifDay < 0 {
			notifDay += 7
		}
		if !seen[notifDay] {
			seen[notifDay] = true
			shifted = append(shifted, notifDay)
		}
	}
	sort.Ints(shifted)
	return shifted
}

// NotificationStart returns the fire time of the notification paired with a
// generation fire: leadDays whole days earlier, same time-of-day.
func NotificationStart(fireAt time.Time, leadDays int) time.Time {
	return fireAt.AddDate(0, 0, -leadDays)
}

// NextWeeklyFireAfter computes the next legal fire for a weekly schedule
// with a multi-week gap. Elapsed days since StartsOn are converted to
// elapsed whole weeks. When the current week is itself a legal one, a
// matching weekday still ahead in it wins; otherwise the next legal week
// index is the smallest multiple of Frequency strictly greater than the
// current week count, and the earliest matching weekday within that week
// wins. The returned time carries StartsOn's time-of-day.
func NextWeeklyFireAfter(s *Schedule, now time.Time) time.Time {
	if len(s.DaysOfWeek) == 0 {
		return time.Time{}
	}

	weeks := elapsedWeeks(s.StartsOn, now)

	// A still-upcoming fire inside the current legal week. WeeklyShouldRun
	// accepts such a fire, so the display has to report it too.
	if weeks >= 0 && weeks%s.Frequency == 0 {
		if fire, ok := fireInWeek(s, weeks, now); ok {
			return fire
		}
	}

	nextWeek := (floorDiv(weeks, s.Frequency) + 1) * s.Frequency
	if nextWeek < 0 {
		nextWeek = 0
	}
	if fire, ok := fireInWeek(s, nextWeek, time.Time{}); ok {
		return fire
	}
	return time.Time{}
}

// fireInWeek returns the earliest matching weekday fire in week index
// `week` strictly after `after`. The zero time means no lower bound.
func fireInWeek(s *Schedule, week int, after time.Time) (time.Time, bool) {
	weekStart := s.StartsOn.AddDate(0, 0, week*7)
	for offset := 0; offset < 7; offset++ {
		candidate := weekStart.AddDate(0, 0, offset)
		if !containsDay(s.DaysOfWeek, MondayIndex(candidate.Weekday())) {
			continue
		}
		if after.IsZero() || candidate.After(after) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// WeeklyShouldRun is the runtime guard for weekly schedules with
// frequency > 1: a fire is legal only when the elapsed whole weeks since
// StartsOn land on a multiple of the frequency. Schedules of any other
// shape always pass.
func WeeklyShouldRun(s *Schedule, at time.Time) bool {
	if s.RecurrenceType != Weekly || s.Frequency <= 1 {
		return true
	}
	weeks := elapsedWeeks(s.StartsOn, at)
	return weeks >= 0 && weeks%s.Frequency == 0
}

// NextFromCompletion computes the next fire for a COMPLETED_DATE schedule:
// one frequency-scaled recurrence unit after the completion, preserving the
// completion's time-of-day.
func NextFromCompletion(s *Schedule, completedAt time.Time) (time.Time, error) {
	switch s.RecurrenceType {
	case Daily:
		return completedAt.AddDate(0, 0, s.Frequency), nil
	case Weekly:
		return completedAt.AddDate(0, 0, 7*s.Frequency), nil
	case Monthly:
		return completedAt.AddDate(0, s.Frequency, 0), nil
	case Yearly:
		return completedAt.AddDate(s.Frequency, 0, 0), nil
	default:
		return time.Time{}, errors.Wrapf(errors.ErrUnsupportedRecurrence,
			"recurrence type %q", s.RecurrenceType)
	}
}

// MondayIndex converts a time.Weekday (Sunday = 0) to the domain's
// 0-based Monday convention. The inverse, for cron expressions, is
// CronDayOfWeek. An off-by-one in either direction silently shifts every
// weekly fire by a day, so both live here and nowhere else.
func MondayIndex(weekday time.Weekday) int {
	return (int(weekday) + 6) % 7
}

// CronDayOfWeek converts a 0-based-Monday weekday to the standard cron
// day-of-week numbering (Sunday = 0).
func CronDayOfWeek(day int) int {
	return (day + 1) % 7
}

// cronSpecFor builds the 5-field cron expression firing at timeOfDay's
// clock time on each listed weekday.
func cronSpecFor(timeOfDay time.Time, daysOfWeek []int) string {
	cronDays := make([]int, 0, len(daysOfWeek))
	for _, day := range daysOfWeek {
		cronDays = append(cronDays, CronDayOfWeek(day))
	}
	sort.Ints(cronDays)

	fields := make([]string, 0, len(cronDays))
	for _, day := range cronDays {
		fields = append(fields, strconv.Itoa(day))
	}

	return fmt.Sprintf("%d %d * * %s", timeOfDay.Minute(), timeOfDay.Hour(), strings.Join(fields, ","))
}

// elapsedWeeks returns the number of whole weeks between anchor and now,
// negative when now precedes anchor.
func elapsedWeeks(anchor, now time.Time) int {
	const day = 24 * time.Hour
	var days int
	if now.Before(anchor) {
		// Floor: partial negative days count against the earlier day.
		days = -int((anchor.Sub(now) + day - 1) / day)
	} else {
		days = int(now.Sub(anchor) / day)
	}
	return floorDiv(days, 7)
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
