package trigger

import (
	"context"
	"time"
)

// Trigger is a persistent, keyed firing rule. The key is deterministic so
// re-registration replaces rather than duplicates.
type Trigger struct {
	Key     string
	Kind    Kind
	Handler string
	Payload string

	// Shape parameters; which one is set depends on Kind.
	Interval       time.Duration
	CronSpec       string
	CalendarMonths int

	StartAt time.Time
	EndAt   *time.Time

	// NextFireAt is nil once the trigger is exhausted (one-shot fired, or
	// end bound passed).
	NextFireAt *time.Time
	LastFireAt *time.Time

	Misfire Misfire

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Shape reconstructs the declarative shape from the stored row.
func (t *Trigger) Shape() Shape {
	return Shape{
		Kind:           t.Kind,
		Interval:       t.Interval,
		CronSpec:       t.CronSpec,
		CalendarMonths: t.CalendarMonths,
		Misfire:        t.Misfire,
	}
}

// Handler is a named job entry point. The payload is the opaque string the
// trigger was registered with, typically an entity ID; handlers re-read
// current state rather than trusting a snapshot.
type Handler func(ctx context.Context, payload string, firedAt time.Time) error

// Registry is the scheduling contract the orchestration layer depends on.
// Implementations must make registration under an existing key a replace,
// and cancellation of an unknown key a reported no-op.
type Registry interface {
	// RegisterRepeating installs or replaces a repeating trigger. The
	// first fire is at startAt; endAt, when non-nil, excludes fires at or
	// after it.
	RegisterRepeating(key string, shape Shape, handler, payload string, startAt time.Time, endAt *time.Time) error

	// RegisterOneShot installs or replaces a trigger firing exactly once.
	RegisterOneShot(key string, handler, payload string, fireAt time.Time) error

	// Cancel removes a trigger, reporting whether one existed.
	Cancel(key string) (bool, error)

	// NextFireTime returns the trigger's next fire, or nil when the key
	// is unknown or the trigger is exhausted.
	NextFireTime(key string) (*time.Time, error)
}
