package maintenance

import (
	"database/sql"
	"time"

	"github.com/fernwall/mainspring/errors"
)

// WorkOrderStore handles persistence of generated work orders.
type WorkOrderStore struct {
	db *sql.DB
}

// NewWorkOrderStore creates a new work order store.
func NewWorkOrderStore(db *sql.DB) *WorkOrderStore {
	return &WorkOrderStore{db: db}
}

// CreateFromTemplate materializes a new work order from a preventive
// maintenance template, copying the template tasks onto it. The work order
// and its tasks are written in a single transaction; there are no partial
// commits.
func (s *WorkOrderStore) CreateFromTemplate(pm *PreventiveMaintenance, tasks []*Task, dueAt *time.Time) (*WorkOrder, error) {
	now := time.Now().UTC()
	wo := &WorkOrder{
		ID:        NewWorkOrderID(),
		PMID:      pm.ID,
		Title:     pm.Title,
		Status:    StatusOpen,
		DueAt:     dueAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "begin work order tx")
	}

	var due interface{}
	if dueAt != nil {
		due = dueAt.UTC().Format(time.RFC3339)
	}

	_, err = tx.Exec(`
		INSERT INTO work_orders (id, pm_id, title, status, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		wo.ID, wo.PMID, wo.Title, wo.Status, due,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "insert work order")
	}

	for _, task := range tasks {
		_, err = tx.Exec(`
			INSERT INTO work_order_tasks (id, work_order_id, label, value)
			VALUES (?, ?, ?, ?)`,
			NewTaskID(), wo.ID, task.Label, task.Value)
		if err != nil {
			tx.Rollback()
			return nil, errors.Wrap(err, "copy template task")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit work order")
	}
	return wo, nil
}

// Get retrieves a work order by ID.
func (s *WorkOrderStore) Get(id string) (*WorkOrder, error) {
	row := s.db.QueryRow(`
		SELECT id, pm_id, title, status, due_at, completed_at, first_responded_at, created_at, updated_at
		FROM work_orders WHERE id = ?`, id)
	wo, err := scanWorkOrder(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("work order %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get work order")
	}
	return wo, nil
}

// FindLastNByPM returns the most recent n work orders generated from a
// template, newest first. Feeds the staleness circuit breaker.
func (s *WorkOrderStore) FindLastNByPM(pmID string, n int) ([]*WorkOrder, error) {
	rows, err := s.db.Query(`
		SELECT id, pm_id, title, status, due_at, completed_at, first_responded_at, created_at, updated_at
		FROM work_orders
		WHERE pm_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, pmID, n)
	if err != nil {
		return nil, errors.Wrap(err, "list work orders")
	}
	defer rows.Close()

	var orders []*WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan work order")
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

// LastCompletedByPM returns the most recently completed work order of a
// template, or nil when none has been completed. Completion-based schedules
// chain their next fire from it.
func (s *WorkOrderStore) LastCompletedByPM(pmID string) (*WorkOrder, error) {
	row := s.db.QueryRow(`
		SELECT id, pm_id, title, status, due_at, completed_at, first_responded_at, created_at, updated_at
		FROM work_orders
		WHERE pm_id = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC, id DESC
		LIMIT 1`, pmID)
	wo, err := scanWorkOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "last completed work order")
	}
	return wo, nil
}

// Complete marks a work order COMPLETE at the given time.
func (s *WorkOrderStore) Complete(id string, at time.Time) error {
	return s.setStatus(id, StatusComplete, "completed_at", at)
}

// FirstRespond records the first engagement with a work order and moves it
// to IN_PROGRESS. A second call only advances the status; the engagement
// timestamp is written once.
func (s *WorkOrderStore) FirstRespond(id string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE work_orders
		SET status = ?,
		    first_responded_at = COALESCE(first_responded_at, ?),
		    updated_at = ?
		WHERE id = ?`,
		StatusInProgress,
		at.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id)
	if err != nil {
		return errors.Wrap(err, "record first response")
	}
	return requireRow(result, id)
}

func (s *WorkOrderStore) setStatus(id, status, tsColumn string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE work_orders
		SET status = ?, `+tsColumn+` = ?, updated_at = ?
		WHERE id = ?`,
		status,
		at.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id)
	if err != nil {
		return errors.Wrapf(err, "set work order %s", status)
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundf("work order %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkOrder(row rowScanner) (*WorkOrder, error) {
	var wo WorkOrder
	var createdAt, updatedAt string
	var dueAt, completedAt, firstRespondedAt sql.NullString

	err := row.Scan(&wo.ID, &wo.PMID, &wo.Title, &wo.Status,
		&dueAt, &completedAt, &firstRespondedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	wo.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse created_at for %s", wo.ID)
	}
	wo.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse updated_at for %s", wo.ID)
	}

	for _, col := range []struct {
		src  sql.NullString
		dst  **time.Time
		name string
	}{
		{dueAt, &wo.DueAt, "due_at"},
		{completedAt, &wo.CompletedAt, "completed_at"},
		{firstRespondedAt, &wo.FirstRespondedAt, "first_responded_at"},
	} {
		if col.src.Valid {
			t, err := time.Parse(time.RFC3339, col.src.String)
			if err != nil {
				return nil, errors.Wrapf(err, "parse %s for %s", col.name, wo.ID)
			}
			*col.dst = &t
		}
	}

	return &wo, nil
}
