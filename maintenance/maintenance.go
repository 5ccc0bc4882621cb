// Package maintenance holds the preventive-maintenance domain entities and
// their SQLite stores: templates, template tasks, and the work orders
// generated from them.
package maintenance

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PreventiveMaintenance is a recurring maintenance template. Its schedule
// (owned 1:1, see the recurrence package) decides when work orders are
// generated from it.
type PreventiveMaintenance struct {
	ID               string
	Title            string
	Description      string
	Assignees        []string   // email addresses notified ahead of generation
	EstimatedStartAt *time.Time // overrides the schedule's StartsOn for notifications
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Task is a template-defined work item. Every generated work order receives
// a copy of each of its template's tasks.
type Task struct {
	ID    string
	PMID  string
	Label string
	Value string
}

// Work order status values.
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusComplete   = "COMPLETE"
)

// WorkOrder is a single generated occurrence of a preventive maintenance
// template.
type WorkOrder struct {
	ID    string
	PMID  string
	Title string

	Status string

	DueAt       *time.Time
	CompletedAt *time.Time

	// FirstRespondedAt records the first human engagement with the work
	// order. It exists solely for the staleness circuit breaker: a run of
	// generated work orders none of which was ever engaged with disables
	// the recurrence.
	FirstRespondedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Engaged reports whether anyone ever acted on this work order.
func (w *WorkOrder) Engaged() bool {
	return w.FirstRespondedAt != nil
}

// NewPMID returns a fresh preventive maintenance template ID.
func NewPMID() string {
	return "PM_" + shortUUID()
}

// NewWorkOrderID returns a fresh work order ID.
func NewWorkOrderID() string {
	return "WO_" + shortUUID()
}

// NewTaskID returns a fresh task ID.
func NewTaskID() string {
	return "TSK_" + shortUUID()
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
