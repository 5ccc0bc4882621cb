package scheduling

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/maintenance"
	"github.com/fernwall/mainspring/notify"
	"github.com/fernwall/mainspring/recurrence"
	"github.com/fernwall/mainspring/trigger"
)

// NotificationJob announces an upcoming generation fire to the template's
// assignees. It mirrors the generation job's skip rules: the generation
// fire it announces is leadDays after its own, and the announcement is only
// sent when that fire will actually generate.
type NotificationJob struct {
	schedules *recurrence.Store
	pms       *maintenance.PMStore
	notifier  notify.Notifier
	leadDays  int
	log       *zap.SugaredLogger
}

// NewNotificationJob creates the notification job.
func NewNotificationJob(
	schedules *recurrence.Store,
	pms *maintenance.PMStore,
	notifier notify.Notifier,
	leadDays int,
	log *zap.SugaredLogger,
) *NotificationJob {
	return &NotificationJob{
		schedules: schedules,
		pms:       pms,
		notifier:  notifier,
		leadDays:  leadDays,
		log:       logger.AddMailSymbol(log),
	}
}

// Register installs the job under its handler name.
func (j *NotificationJob) Register(handlers *trigger.HandlerRegistry) {
	handlers.Register(HandlerNotify, j.Run)
}

// Run handles one notification fire.
func (j *NotificationJob) Run(ctx context.Context, payload string, firedAt time.Time) error {
	sched, err := j.schedules.Get(payload)
	if errors.IsNotFound(err) {
		j.log.Debugw("Notification fire for missing schedule, skipping",
			logger.FieldScheduleID, payload)
		return nil
	}
	if err != nil {
		return err
	}

	if !sched.Runnable() {
		j.log.Debugw("Schedule not armed, skipping notification",
			logger.FieldScheduleID, sched.ID,
			logger.FieldState, string(sched.State))
		return nil
	}

	// The generation fire being announced.
	genFireAt := firedAt.AddDate(0, 0, j.leadDays)

	if sched.Expired(genFireAt) {
		j.log.Debugw("Announced fire past end date, skipping notification",
			logger.FieldScheduleID, sched.ID)
		return nil
	}

	if !recurrence.WeeklyShouldRun(sched, genFireAt) {
		j.log.Debugw("Announced fire is off-cadence, skipping notification",
			logger.FieldScheduleID, sched.ID)
		return nil
	}

	pm, err := j.pms.Get(sched.PMID)
	if errors.IsNotFound(err) {
		j.log.Warnw("Schedule points at missing template, skipping notification",
			logger.FieldScheduleID, sched.ID,
			logger.FieldPMID, sched.PMID)
		return nil
	}
	if err != nil {
		return err
	}

	dueAt := genFireAt
	if sched.DueDateDelay != nil {
		dueAt = genFireAt.AddDate(0, 0, *sched.DueDateDelay)
	}

	notice := notify.Notice{
		PMID:       pm.ID,
		PMTitle:    pm.Title,
		DueAt:      dueAt,
		Recipients: pm.Assignees,
	}
	if err := j.notifier.Send(ctx, notice); err != nil {
		return errors.Wrapf(err, "notify for %s", sched.ID)
	}

	j.log.Infow("Advance notification sent",
		logger.FieldScheduleID, sched.ID,
		logger.FieldPMID, pm.ID,
		"due_at", dueAt.Format(time.RFC3339),
		"recipients", len(pm.Assignees))
	return nil
}
