package trigger

import (
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fernwall/mainspring/errors"
)

// Store persists triggers in SQLite. Timestamps that SQL compares or
// orders (next_fire_at, end_at, last_fire_at) are stored as RFC3339 UTC
// text so lexicographic comparisons match chronological order. start_at
// keeps its zone offset: cron and calendar occurrences are evaluated in
// the anchor's zone, so an anchor at 08:00+05:00 keeps firing at that
// wall-clock time instead of drifting to 08:00 UTC.
type Store struct {
	db *sql.DB
}

// NewStore creates a new trigger store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register inserts the trigger, replacing any existing trigger with the
// same key. The first fire time is computed from the shape and start time.
func (s *Store) Register(t *Trigger) error {
	if t.Kind == KindCron {
		if _, err := cron.ParseStandard(t.CronSpec); err != nil {
			return errors.Wrapf(errors.ErrInvalidRecurrence,
				"invalid cron spec %q for trigger %s: %v", t.CronSpec, t.Key, err)
		}
	}

	next, ok := NextAfter(t.Shape(), t.StartAt, t.StartAt.Add(-time.Nanosecond))
	if ok && t.EndAt != nil && !next.Before(*t.EndAt) {
		ok = false
	}
	if ok {
		t.NextFireAt = &next
	} else {
		t.NextFireAt = nil
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO triggers (
			key, kind, handler, payload, interval_seconds, cron_spec,
			calendar_months, start_at, end_at, next_fire_at, last_fire_at,
			misfire, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			handler = excluded.handler,
			payload = excluded.payload,
			interval_seconds = excluded.interval_seconds,
			cron_spec = excluded.cron_spec,
			calendar_months = excluded.calendar_months,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			next_fire_at = excluded.next_fire_at,
			last_fire_at = NULL,
			misfire = excluded.misfire,
			updated_at = excluded.updated_at`,
		t.Key,
		string(t.Kind),
		t.Handler,
		t.Payload,
		nullableSeconds(t.Interval),
		nullableString(t.CronSpec),
		nullableInt(t.CalendarMonths),
		t.StartAt.Format(time.RFC3339),
		nullableTime(t.EndAt),
		nullableTime(t.NextFireAt),
		string(t.Misfire),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "register trigger %s", t.Key)
	}
	return nil
}

// Get retrieves a trigger by key.
func (s *Store) Get(key string) (*Trigger, error) {
	row := s.db.QueryRow(selectTrigger+` WHERE key = ?`, key)
	t, err := scanTrigger(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("trigger %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get trigger %s", key)
	}
	return t, nil
}

// Cancel deletes a trigger, reporting whether one existed.
func (s *Store) Cancel(key string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM triggers WHERE key = ?`, key)
	if err != nil {
		return false, errors.Wrapf(err, "cancel trigger %s", key)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return rows > 0, nil
}

// Due returns triggers whose next fire is at or before now, soonest first.
func (s *Store) Due(now time.Time) ([]*Trigger, error) {
	rows, err := s.db.Query(
		selectTrigger+` WHERE next_fire_at IS NOT NULL AND next_fire_at <= ? ORDER BY next_fire_at ASC`,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list due triggers")
	}
	defer rows.Close()

	var due []*Trigger
	for rows.Next() {
		t, err := scanTrigger(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan trigger")
		}
		due = append(due, t)
	}
	return due, rows.Err()
}

// NextPending returns the trigger with the soonest upcoming fire, or nil
// when nothing is armed.
func (s *Store) NextPending() (*Trigger, error) {
	row := s.db.QueryRow(selectTrigger + ` WHERE next_fire_at IS NOT NULL ORDER BY next_fire_at ASC LIMIT 1`)
	t, err := scanTrigger(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "next pending trigger")
	}
	return t, nil
}

// Advance records a fire and moves the trigger to its next occurrence after
// firedAt. One-shots and triggers past their end bound are exhausted, not
// deleted, so the fire history stays inspectable.
func (s *Store) Advance(t *Trigger, firedAt time.Time) error {
	var next interface{}
	if t.Kind != KindOneShot {
		if n, ok := NextAfter(t.Shape(), t.StartAt, firedAt); ok {
			if t.EndAt == nil || n.Before(*t.EndAt) {
				next = n.UTC().Format(time.RFC3339)
			}
		}
	}

	_, err := s.db.Exec(`
		UPDATE triggers SET next_fire_at = ?, last_fire_at = ?, updated_at = ? WHERE key = ?`,
		next,
		firedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		t.Key,
	)
	if err != nil {
		return errors.Wrapf(err, "advance trigger %s", t.Key)
	}
	return nil
}

// RecoverMisfires repairs triggers whose next fire was missed while the
// process was down. catchup_one triggers fire immediately once; skip
// triggers jump to their next occurrence after now.
func (s *Store) RecoverMisfires(now time.Time, grace time.Duration) (int, error) {
	cutoff := now.Add(-grace)
	rows, err := s.db.Query(
		selectTrigger+` WHERE next_fire_at IS NOT NULL AND next_fire_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, errors.Wrap(err, "list misfired triggers")
	}
	defer rows.Close()

	var misfired []*Trigger
	for rows.Next() {
		t, err := scanTrigger(rows.Scan)
		if err != nil {
			return 0, errors.Wrap(err, "scan trigger")
		}
		misfired = append(misfired, t)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, t := range misfired {
		var next interface{}
		switch t.Misfire {
		case MisfireCatchUpOne:
			// One immediate catch-up fire; the advance after it resumes
			// the normal cadence.
			next = now.UTC().Format(time.RFC3339)
		default:
			if n, ok := NextAfter(t.Shape(), t.StartAt, now); ok {
				if t.EndAt == nil || n.Before(*t.EndAt) {
					next = n.UTC().Format(time.RFC3339)
				}
			}
		}

		_, err := s.db.Exec(
			`UPDATE triggers SET next_fire_at = ?, updated_at = ? WHERE key = ?`,
			next,
			time.Now().UTC().Format(time.RFC3339),
			t.Key,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "recover trigger %s", t.Key)
		}
	}
	return len(misfired), nil
}

// NextAfter computes the first occurrence of the shape strictly after
// `after`, anchored at `anchor`. Calendar steps always count from the
// anchor so month-end clamping never accumulates drift.
func NextAfter(shape Shape, anchor, after time.Time) (time.Time, bool) {
	switch shape.Kind {
	case KindOneShot:
		if anchor.After(after) {
			return anchor, true
		}
		return time.Time{}, false

	case KindInterval:
		if shape.Interval <= 0 {
			return time.Time{}, false
		}
		if anchor.After(after) {
			return anchor, true
		}
		steps := after.Sub(anchor)/shape.Interval + 1
		return anchor.Add(steps * shape.Interval), true

	case KindCron:
		sched, err := cron.ParseStandard(shape.CronSpec)
		if err != nil {
			return time.Time{}, false
		}
		// The cron spec encodes the anchor's wall clock, so evaluation has to
		// happen in the anchor's zone.
		from := after.In(anchor.Location())
		if anchor.After(after) {
			from = anchor.Add(-time.Second)
		}
		return sched.Next(from), true

	case KindCalendar:
		if shape.CalendarMonths <= 0 {
			return time.Time{}, false
		}
		for k := 0; ; k++ {
			candidate := anchor.AddDate(0, k*shape.CalendarMonths, 0)
			if candidate.After(after) {
				return candidate, true
			}
		}

	default:
		return time.Time{}, false
	}
}

const selectTrigger = `
	SELECT key, kind, handler, payload, interval_seconds, cron_spec,
	       calendar_months, start_at, end_at, next_fire_at, last_fire_at,
	       misfire, created_at, updated_at
	FROM triggers`

func scanTrigger(scan func(...interface{}) error) (*Trigger, error) {
	var t Trigger
	var kind, misfire string
	var startAt, createdAt, updatedAt string
	var intervalSeconds, calendarMonths sql.NullInt64
	var cronSpec, endAt, nextFireAt, lastFireAt sql.NullString

	err := scan(
		&t.Key,
		&kind,
		&t.Handler,
		&t.Payload,
		&intervalSeconds,
		&cronSpec,
		&calendarMonths,
		&startAt,
		&endAt,
		&nextFireAt,
		&lastFireAt,
		&misfire,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = Kind(kind)
	t.Misfire = Misfire(misfire)
	if intervalSeconds.Valid {
		t.Interval = time.Duration(intervalSeconds.Int64) * time.Second
	}
	if cronSpec.Valid {
		t.CronSpec = cronSpec.String
	}
	if calendarMonths.Valid {
		t.CalendarMonths = int(calendarMonths.Int64)
	}

	t.StartAt, err = time.Parse(time.RFC3339, startAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse start_at for %s", t.Key)
	}
	t.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse created_at for %s", t.Key)
	}
	t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse updated_at for %s", t.Key)
	}

	for _, col := range []struct {
		src  sql.NullString
		dst  **time.Time
		name string
	}{
		{endAt, &t.EndAt, "end_at"},
		{nextFireAt, &t.NextFireAt, "next_fire_at"},
		{lastFireAt, &t.LastFireAt, "last_fire_at"},
	} {
		if !col.src.Valid {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, col.src.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s for %s", col.name, t.Key)
		}
		*col.dst = &parsed
	}

	return &t, nil
}

func nullableSeconds(d time.Duration) interface{} {
	if d <= 0 {
		return nil
	}
	return int64(d / time.Second)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) interface{} {
	if n <= 0 {
		return nil
	}
	return n
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
