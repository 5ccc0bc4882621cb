// Package recurrence defines recurrence schedules for preventive maintenance
// templates and the pure planning functions that turn them into trigger
// shapes and concrete fire dates.
package recurrence

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fernwall/mainspring/errors"
)

// RecurrenceType is the calendar unit a schedule repeats on.
type RecurrenceType string

const (
	Daily   RecurrenceType = "DAILY"
	Weekly  RecurrenceType = "WEEKLY"
	Monthly RecurrenceType = "MONTHLY"
	Yearly  RecurrenceType = "YEARLY"
)

// BasedOn selects what anchors the next fire: a fixed calendar cadence, or
// the completion time of the previously generated work order.
type BasedOn string

const (
	ScheduledDate BasedOn = "SCHEDULED_DATE"
	CompletedDate BasedOn = "COMPLETED_DATE"
)

// State is the scheduling lifecycle of a schedule. It replaces the implicit
// disabled-boolean-plus-end-date encoding so staleness and expiry outcomes
// are independently observable.
type State string

const (
	// StateUnarmed: no live triggers; eligible for arming.
	StateUnarmed State = "UNARMED"
	// StateArmed: generation (and possibly notification) triggers live.
	StateArmed State = "ARMED"
	// StateStaleDisabled: force-disabled by the staleness circuit breaker.
	// Requires an explicit re-enable before it can be armed again.
	StateStaleDisabled State = "STALE_DISABLED"
	// StateExpired: EndsOn has passed; no trigger may be armed.
	StateExpired State = "EXPIRED"
)

// Schedule describes how often, and anchored on what, a preventive
// maintenance template regenerates a work order.
type Schedule struct {
	ID   string
	PMID string

	State State

	// StartsOn anchors calendar math and the first fire. Its time-of-day
	// is the time-of-day of every generated fire.
	StartsOn time.Time
	// EndsOn, when set, excludes any fire at or after it.
	EndsOn *time.Time

	// Frequency multiplies the recurrence unit (every 2 weeks, every 3
	// months). Always >= 1.
	Frequency int

	RecurrenceType RecurrenceType
	BasedOn        BasedOn

	// DaysOfWeek lists firing weekdays for WEEKLY schedules, 0 = Monday.
	DaysOfWeek []int

	// DueDateDelay, when set, puts the generated work order's due date
	// DueDateDelay days after the fire. Always >= 1 when present.
	DueDateDelay *int

	// Version supports optimistic concurrency on updates.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewScheduleID returns a fresh schedule ID.
func NewScheduleID() string {
	return "SCH_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// SetFrequency updates the frequency, rejecting values below 1. The prior
// value is left unchanged on rejection.
func (s *Schedule) SetFrequency(frequency int) error {
	if frequency < 1 {
		return errors.NewInvalidRecurrencef("frequency should not be less than 1, got %d", frequency)
	}
	s.Frequency = frequency
	return nil
}

// SetDueDateDelay updates the due date delay, rejecting values below 1.
// A nil delay clears it.
func (s *Schedule) SetDueDateDelay(delay *int) error {
	if delay != nil && *delay < 1 {
		return errors.NewInvalidRecurrencef("due date delay should not be less than 1, got %d", *delay)
	}
	s.DueDateDelay = delay
	return nil
}

// Validate checks all invariants of the schedule. It is called at create
// and update time; an invalid schedule never reaches the trigger registry.
func (s *Schedule) Validate() error {
	if s.Frequency < 1 {
		return errors.NewInvalidRecurrencef("frequency should not be less than 1, got %d", s.Frequency)
	}
	if s.DueDateDelay != nil && *s.DueDateDelay < 1 {
		return errors.NewInvalidRecurrencef("due date delay should not be less than 1, got %d", *s.DueDateDelay)
	}

	switch s.RecurrenceType {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return errors.NewInvalidRecurrencef("unknown recurrence type %q", s.RecurrenceType)
	}

	switch s.BasedOn {
	case ScheduledDate, CompletedDate:
	default:
		return errors.NewInvalidRecurrencef("unknown recurrence basis %q", s.BasedOn)
	}

	if s.RecurrenceType == Weekly {
		if len(s.DaysOfWeek) == 0 {
			return errors.NewInvalidRecurrencef("days of week are required for weekly recurrence")
		}
		for _, day := range s.DaysOfWeek {
			if day < 0 || day > 6 {
				return errors.NewInvalidRecurrencef("day of week %d out of range 0..6", day)
			}
		}
	}

	return nil
}

// Expired reports whether the schedule's end bound has passed.
func (s *Schedule) Expired(now time.Time) bool {
	return s.EndsOn != nil && !s.EndsOn.After(now)
}

// Armable reports whether the schedule may have triggers registered:
// not stale-disabled, not expired.
func (s *Schedule) Armable(now time.Time) bool {
	if s.State == StateStaleDisabled || s.State == StateExpired {
		return false
	}
	return !s.Expired(now)
}

// Runnable reports whether a fired job should act on this schedule. Jobs
// re-read the schedule at fire time and silently skip when it has been
// disarmed or disabled since the trigger was registered.
func (s *Schedule) Runnable() bool {
	return s.State == StateArmed
}
