package trigger

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fernwall/mainspring/errors"
)

// Execution records a single fire of a trigger: timing, outcome and the
// error when the handler failed. The history is what makes silent skips
// and handler failures troubleshootable after the fact.
type Execution struct {
	ID         string
	TriggerKey string

	Status string

	StartedAt    time.Time
	CompletedAt  *time.Time
	DurationMs   *int
	ErrorMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// NewExecutionID returns a fresh execution ID.
func NewExecutionID() string {
	return "TEX_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ExecutionStore persists trigger execution history.
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store.
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// Create inserts a running execution record.
func (s *ExecutionStore) Create(e *Execution) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO trigger_executions (
			id, trigger_key, status, started_at, completed_at,
			duration_ms, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, NULL, NULL, NULL, ?, ?)`,
		e.ID,
		e.TriggerKey,
		e.Status,
		e.StartedAt.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "create execution %s", e.ID)
	}
	return nil
}

// Update writes the final status of an execution.
func (s *ExecutionStore) Update(e *Execution) error {
	e.UpdatedAt = time.Now().UTC()

	var completedAt interface{}
	if e.CompletedAt != nil {
		completedAt = e.CompletedAt.UTC().Format(time.RFC3339)
	}
	var durationMs interface{}
	if e.DurationMs != nil {
		durationMs = *e.DurationMs
	}
	var errorMessage interface{}
	if e.ErrorMessage != nil {
		errorMessage = *e.ErrorMessage
	}

	_, err := s.db.Exec(`
		UPDATE trigger_executions
		SET status = ?, completed_at = ?, duration_ms = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		e.Status,
		completedAt,
		durationMs,
		errorMessage,
		e.UpdatedAt.Format(time.RFC3339),
		e.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update execution %s", e.ID)
	}
	return nil
}

// RecentByTrigger returns the latest n executions of a trigger, newest
// first.
func (s *ExecutionStore) RecentByTrigger(key string, n int) ([]*Execution, error) {
	rows, err := s.db.Query(`
		SELECT id, trigger_key, status, started_at, completed_at,
		       duration_ms, error_message, created_at, updated_at
		FROM trigger_executions
		WHERE trigger_key = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		key, n,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list executions for %s", key)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var e Execution
		var startedAt, createdAt, updatedAt string
		var completedAt, errorMessage sql.NullString
		var durationMs sql.NullInt64

		err := rows.Scan(
			&e.ID,
			&e.TriggerKey,
			&e.Status,
			&startedAt,
			&completedAt,
			&durationMs,
			&errorMessage,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan execution")
		}

		e.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse started_at for %s", e.ID)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse created_at for %s", e.ID)
		}
		e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse updated_at for %s", e.ID)
		}
		if completedAt.Valid {
			parsed, err := time.Parse(time.RFC3339, completedAt.String)
			if err != nil {
				return nil, errors.Wrapf(err, "parse completed_at for %s", e.ID)
			}
			e.CompletedAt = &parsed
		}
		if durationMs.Valid {
			ms := int(durationMs.Int64)
			e.DurationMs = &ms
		}
		if errorMessage.Valid {
			e.ErrorMessage = &errorMessage.String
		}

		executions = append(executions, &e)
	}
	return executions, rows.Err()
}
