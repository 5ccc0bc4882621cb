package maintenance

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fernwall/mainspring/errors"
)

// PMStore handles persistence of preventive maintenance templates.
type PMStore struct {
	db *sql.DB
}

// NewPMStore creates a new preventive maintenance store.
func NewPMStore(db *sql.DB) *PMStore {
	return &PMStore{db: db}
}

// Create inserts a new preventive maintenance template.
func (s *PMStore) Create(pm *PreventiveMaintenance) error {
	now := time.Now().UTC()
	pm.CreatedAt = now
	pm.UpdatedAt = now

	assignees, err := json.Marshal(pm.Assignees)
	if err != nil {
		return errors.Wrap(err, "marshal assignees")
	}

	var estimatedStart interface{}
	if pm.EstimatedStartAt != nil {
		estimatedStart = pm.EstimatedStartAt.Format(time.RFC3339)
	}

	_, err = s.db.Exec(`
		INSERT INTO preventive_maintenances (
			id, title, description, assignees, estimated_start_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pm.ID,
		pm.Title,
		pm.Description,
		string(assignees),
		estimatedStart,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "create preventive maintenance")
	}
	return nil
}

// Get retrieves a template by ID.
func (s *PMStore) Get(id string) (*PreventiveMaintenance, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, assignees, estimated_start_at, created_at, updated_at
		FROM preventive_maintenances
		WHERE id = ?`, id)

	var pm PreventiveMaintenance
	var assignees, createdAt, updatedAt string
	var estimatedStart sql.NullString

	err := row.Scan(&pm.ID, &pm.Title, &pm.Description, &assignees, &estimatedStart, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("preventive maintenance %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get preventive maintenance")
	}

	if err := json.Unmarshal([]byte(assignees), &pm.Assignees); err != nil {
		return nil, errors.Wrapf(err, "parse assignees for %s", id)
	}

	pm.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse created_at for %s", id)
	}
	pm.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse updated_at for %s", id)
	}
	if estimatedStart.Valid {
		t, err := time.Parse(time.RFC3339, estimatedStart.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse estimated_start_at for %s", id)
		}
		pm.EstimatedStartAt = &t
	}

	return &pm, nil
}

// Delete removes a template. The schedule row and generated work orders
// cascade at the storage layer; trigger teardown is the caller's concern
// and must happen before this call.
func (s *PMStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM preventive_maintenances WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete preventive maintenance")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundf("preventive maintenance %s", id)
	}
	return nil
}

// AddTask attaches a template task to a preventive maintenance.
func (s *PMStore) AddTask(task *Task) error {
	_, err := s.db.Exec(`
		INSERT INTO pm_tasks (id, pm_id, label, value) VALUES (?, ?, ?, ?)`,
		task.ID, task.PMID, task.Label, task.Value)
	if err != nil {
		return errors.Wrap(err, "add pm task")
	}
	return nil
}

// Tasks returns the template tasks of a preventive maintenance.
func (s *PMStore) Tasks(pmID string) ([]*Task, error) {
	rows, err := s.db.Query(`
		SELECT id, pm_id, label, value FROM pm_tasks WHERE pm_id = ? ORDER BY id`, pmID)
	if err != nil {
		return nil, errors.Wrap(err, "list pm tasks")
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.PMID, &task.Label, &task.Value); err != nil {
			return nil, errors.Wrap(err, "scan pm task")
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}
