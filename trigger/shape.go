// Package trigger provides the persistent trigger registry: named triggers
// with repeating or one-shot schedules, stored in SQLite, fired by a polling
// ticker that dispatches to registered job handlers.
//
// Triggers are addressed by string keys. Registering under an existing key
// replaces the previous trigger; cancellation is idempotent. Trigger rows
// survive process restarts.
package trigger

import "time"

// Kind discriminates the schedule shape of a trigger.
type Kind string

const (
	// KindInterval repeats every fixed duration from the start time.
	KindInterval Kind = "interval"
	// KindCron repeats on a cron expression (calendar day-of-week firing).
	KindCron Kind = "cron"
	// KindCalendar repeats every N calendar months, preserving the
	// wall-clock time-of-day across daylight-saving transitions.
	KindCalendar Kind = "calendar"
	// KindOneShot fires exactly once at the start time.
	KindOneShot Kind = "oneshot"
)

// Misfire selects catch-up behavior for fires missed while the process was
// down.
type Misfire string

const (
	// MisfireCatchUpOne runs a single catch-up fire immediately, then
	// resumes the normal cadence. Interval schedules use this so a daily
	// trigger that slept through a weekend does not flood on restart.
	MisfireCatchUpOne Misfire = "catchup_one"
	// MisfireSkip drops missed fires entirely and waits for the next
	// calendar occurrence. Calendar schedules use this so stale
	// notifications are never sent.
	MisfireSkip Misfire = "skip"
)

// Shape is a declarative description of when a trigger fires.
type Shape struct {
	Kind Kind

	// Interval is the repeat period for KindInterval.
	Interval time.Duration

	// CronSpec is the 5-field cron expression for KindCron
	// (minute hour dom month dow).
	CronSpec string

	// CalendarMonths is the month step for KindCalendar. Yearly schedules
	// use multiples of 12.
	CalendarMonths int

	Misfire Misfire
}

// IntervalShape describes a trigger repeating every d.
func IntervalShape(d time.Duration) Shape {
	return Shape{Kind: KindInterval, Interval: d, Misfire: MisfireCatchUpOne}
}

// CronShape describes a calendar trigger driven by a cron expression.
func CronShape(spec string) Shape {
	return Shape{Kind: KindCron, CronSpec: spec, Misfire: MisfireSkip}
}

// CalendarShape describes a trigger repeating every months calendar months.
func CalendarShape(months int) Shape {
	return Shape{Kind: KindCalendar, CalendarMonths: months, Misfire: MisfireSkip}
}
