package scheduling

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/maintenance"
	"github.com/fernwall/mainspring/recurrence"
	"github.com/fernwall/mainspring/trigger"
)

// GenerationJob creates a work order from the owning template each time a
// generation trigger fires. The payload is the schedule ID; everything
// else is re-read at fire time so edits between registration and fire are
// honored.
type GenerationJob struct {
	schedules    *recurrence.Store
	pms          *maintenance.PMStore
	workOrders   *maintenance.WorkOrderStore
	orchestrator *Orchestrator
	log          *zap.SugaredLogger
}

// NewGenerationJob creates the generation job.
func NewGenerationJob(
	schedules *recurrence.Store,
	pms *maintenance.PMStore,
	workOrders *maintenance.WorkOrderStore,
	orchestrator *Orchestrator,
	log *zap.SugaredLogger,
) *GenerationJob {
	return &GenerationJob{
		schedules:    schedules,
		pms:          pms,
		workOrders:   workOrders,
		orchestrator: orchestrator,
		log:          logger.AddWOSymbol(log),
	}
}

// Register installs the job under its handler name.
func (j *GenerationJob) Register(handlers *trigger.HandlerRegistry) {
	handlers.Register(HandlerGenerate, j.Run)
}

// Run handles one generation fire.
//
// A missing or no-longer-armed schedule is a silent skip, not an error:
// the schedule may have been deleted or disarmed after the trigger was
// registered, and the fire is simply obsolete.
func (j *GenerationJob) Run(ctx context.Context, payload string, firedAt time.Time) error {
	sched, err := j.schedules.Get(payload)
	if errors.IsNotFound(err) {
		j.log.Debugw("Generation fire for missing schedule, skipping",
			logger.FieldScheduleID, payload)
		return nil
	}
	if err != nil {
		return err
	}

	if !sched.Runnable() {
		j.log.Debugw("Schedule not armed, skipping generation",
			logger.FieldScheduleID, sched.ID,
			logger.FieldState, string(sched.State))
		return nil
	}

	if sched.Expired(firedAt) {
		return j.orchestrator.MarkExpired(sched)
	}

	// Weekly cron triggers fire every matching weekday; the multi-week
	// gap is enforced here.
	if !recurrence.WeeklyShouldRun(sched, firedAt) {
		j.log.Debugw("Off-cadence weekly fire, skipping",
			logger.FieldScheduleID, sched.ID,
			logger.FieldFireAt, firedAt.Format(time.RFC3339))
		return nil
	}

	stale, err := j.orchestrator.StaleRun(sched.PMID)
	if err != nil {
		return err
	}
	if stale {
		return j.orchestrator.DisableStale(sched)
	}

	pm, err := j.pms.Get(sched.PMID)
	if errors.IsNotFound(err) {
		j.log.Warnw("Schedule points at missing template, skipping",
			logger.FieldScheduleID, sched.ID,
			logger.FieldPMID, sched.PMID)
		return nil
	}
	if err != nil {
		return err
	}

	tasks, err := j.pms.Tasks(pm.ID)
	if err != nil {
		return err
	}

	var dueAt *time.Time
	if sched.DueDateDelay != nil {
		due := firedAt.AddDate(0, 0, *sched.DueDateDelay)
		dueAt = &due
	}

	wo, err := j.workOrders.CreateFromTemplate(pm, tasks, dueAt)
	if err != nil {
		return errors.Wrapf(err, "generate work order for %s", sched.ID)
	}

	j.log.Infow("Work order generated",
		logger.FieldWorkOrderID, wo.ID,
		logger.FieldScheduleID, sched.ID,
		logger.FieldPMID, pm.ID,
		logger.FieldFireAt, firedAt.Format(time.RFC3339),
		"tasks", len(tasks))
	return nil
}
