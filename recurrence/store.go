package recurrence

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fernwall/mainspring/errors"
)

// Store handles persistence of recurrence schedules.
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new schedule after validating it.
func (s *Store) Create(sched *Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	sched.CreatedAt = now
	sched.UpdatedAt = now
	if sched.State == "" {
		sched.State = StateUnarmed
	}
	sched.Version = 1

	days, err := json.Marshal(sched.DaysOfWeek)
	if err != nil {
		return errors.Wrap(err, "marshal days of week")
	}

	var endsOn, dueDateDelay interface{}
	if sched.EndsOn != nil {
		endsOn = sched.EndsOn.Format(time.RFC3339)
	}
	if sched.DueDateDelay != nil {
		dueDateDelay = *sched.DueDateDelay
	}

	_, err = s.db.Exec(`
		INSERT INTO schedules (
			id, pm_id, state, starts_on, ends_on, frequency,
			recurrence_type, based_on, days_of_week, due_date_delay,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID,
		sched.PMID,
		string(sched.State),
		sched.StartsOn.Format(time.RFC3339),
		endsOn,
		sched.Frequency,
		string(sched.RecurrenceType),
		string(sched.BasedOn),
		string(days),
		dueDateDelay,
		sched.Version,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "create schedule")
	}
	return nil
}

// Get retrieves a schedule by ID.
func (s *Store) Get(id string) (*Schedule, error) {
	row := s.db.QueryRow(selectSchedule+` WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("schedule %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get schedule")
	}
	return sched, nil
}

// GetByPM retrieves the schedule owned by a preventive maintenance template.
func (s *Store) GetByPM(pmID string) (*Schedule, error) {
	row := s.db.QueryRow(selectSchedule+` WHERE pm_id = ?`, pmID)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("schedule for pm %s", pmID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get schedule by pm")
	}
	return sched, nil
}

// Update persists schedule mutations under optimistic concurrency: the row
// is written only if its stored version still matches the schedule's, and
// the version is bumped. A concurrent edit surfaces as ErrConflict so the
// losing admin request fails loudly instead of silently overwriting.
func (s *Store) Update(sched *Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}

	days, err := json.Marshal(sched.DaysOfWeek)
	if err != nil {
		return errors.Wrap(err, "marshal days of week")
	}

	var endsOn, dueDateDelay interface{}
	if sched.EndsOn != nil {
		endsOn = sched.EndsOn.Format(time.RFC3339)
	}
	if sched.DueDateDelay != nil {
		dueDateDelay = *sched.DueDateDelay
	}

	result, err := s.db.Exec(`
		UPDATE schedules
		SET state = ?, starts_on = ?, ends_on = ?, frequency = ?,
		    recurrence_type = ?, based_on = ?, days_of_week = ?,
		    due_date_delay = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(sched.State),
		sched.StartsOn.Format(time.RFC3339),
		endsOn,
		sched.Frequency,
		string(sched.RecurrenceType),
		string(sched.BasedOn),
		string(days),
		dueDateDelay,
		time.Now().UTC().Format(time.RFC3339),
		sched.ID,
		sched.Version,
	)
	if err != nil {
		return errors.Wrap(err, "update schedule")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		// Distinguish a missing row from a stale version.
		if _, err := s.Get(sched.ID); errors.IsNotFound(err) {
			return err
		}
		return errors.Wrapf(errors.ErrConflict, "schedule %s version %d is stale", sched.ID, sched.Version)
	}

	sched.Version++
	return nil
}

// SetState transitions the schedule's lifecycle state without touching the
// recurrence fields and without a version check: state transitions are
// driven by the orchestrator, not by admin edits, and must not lose to them.
func (s *Store) SetState(id string, state State) error {
	result, err := s.db.Exec(`
		UPDATE schedules SET state = ?, updated_at = ? WHERE id = ?`,
		string(state),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrap(err, "set schedule state")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundf("schedule %s", id)
	}
	return nil
}

// Delete removes a schedule. Trigger teardown must happen first so a
// dangling fire never resolves to a missing definition.
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete schedule")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundf("schedule %s", id)
	}
	return nil
}

const selectSchedule = `
	SELECT id, pm_id, state, starts_on, ends_on, frequency,
	       recurrence_type, based_on, days_of_week, due_date_delay,
	       version, created_at, updated_at
	FROM schedules`

func scanSchedule(row *sql.Row) (*Schedule, error) {
	var sched Schedule
	var state, recurrenceType, basedOn string
	var startsOn, days, createdAt, updatedAt string
	var endsOn sql.NullString
	var dueDateDelay sql.NullInt64

	err := row.Scan(
		&sched.ID,
		&sched.PMID,
		&state,
		&startsOn,
		&endsOn,
		&sched.Frequency,
		&recurrenceType,
		&basedOn,
		&days,
		&dueDateDelay,
		&sched.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sched.State = State(state)
	sched.RecurrenceType = RecurrenceType(recurrenceType)
	sched.BasedOn = BasedOn(basedOn)

	if err := json.Unmarshal([]byte(days), &sched.DaysOfWeek); err != nil {
		return nil, errors.Wrapf(err, "parse days_of_week for %s", sched.ID)
	}

	sched.StartsOn, err = time.Parse(time.RFC3339, startsOn)
	if err != nil {
		return nil, errors.Wrapf(err, "parse starts_on for %s", sched.ID)
	}
	sched.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse created_at for %s", sched.ID)
	}
	sched.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse updated_at for %s", sched.ID)
	}

	if endsOn.Valid {
		t, err := time.Parse(time.RFC3339, endsOn.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse ends_on for %s", sched.ID)
		}
		sched.EndsOn = &t
	}
	if dueDateDelay.Valid {
		delay := int(dueDateDelay.Int64)
		sched.DueDateDelay = &delay
	}

	return &sched, nil
}
