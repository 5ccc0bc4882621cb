// Package scheduling connects recurrence schedules to the trigger registry:
// arming and disarming triggers, chaining completion-based schedules, and
// running the generation and notification jobs when triggers fire.
package scheduling

import (
	"time"

	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/maintenance"
	"github.com/fernwall/mainspring/recurrence"
	"github.com/fernwall/mainspring/trigger"
)

// Handler names resolved by the trigger ticker.
const (
	HandlerGenerate = "workorder.generate"
	HandlerNotify   = "workorder.notify"
)

// GenKey is the deterministic trigger key for a schedule's generation
// trigger; re-arming the same schedule replaces rather than duplicates.
func GenKey(scheduleID string) string {
	return "gen:" + scheduleID
}

// NotifKey is the deterministic trigger key for a schedule's advance
// notification trigger.
func NotifKey(scheduleID string) string {
	return "notif:" + scheduleID
}

// Options tunes orchestrator behavior.
type Options struct {
	// NotificationLeadDays is how many days before a generation fire the
	// advance notification goes out. Zero disables notifications.
	NotificationLeadDays int

	// StalenessWindow is how many consecutive unengaged work orders trip
	// the staleness circuit breaker.
	StalenessWindow int
}

// Orchestrator owns the trigger lifecycle of recurrence schedules. All
// trigger mutations for a schedule go through here so the pair of keys per
// schedule stays consistent.
type Orchestrator struct {
	schedules  *recurrence.Store
	workOrders *maintenance.WorkOrderStore
	registry   trigger.Registry
	opts       Options

	log *zap.SugaredLogger
	now func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	schedules *recurrence.Store,
	workOrders *maintenance.WorkOrderStore,
	registry trigger.Registry,
	opts Options,
	log *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		schedules:  schedules,
		workOrders: workOrders,
		registry:   registry,
		opts:       opts,
		log:        logger.AddSchedSymbol(log),
		now:        time.Now,
	}
}

// Arm registers the schedule's triggers and marks it ARMED.
//
// An expired schedule is marked EXPIRED without registering anything.
// When the staleness circuit breaker trips the schedule is force-disabled
// and the arm returns nil; the disable is the outcome, not a failure.
// Arming a schedule that is already stale-disabled returns
// ErrStaleRecurrence, since that takes an explicit re-enable. Registry
// failures leave the schedule state untouched so the arm can be retried.
func (o *Orchestrator) Arm(sched *recurrence.Schedule) error {
	now := o.now()

	if sched.State == recurrence.StateStaleDisabled {
		return errors.Wrapf(errors.ErrStaleRecurrence,
			"schedule %s is stale-disabled and needs explicit re-enable", sched.ID)
	}

	if sched.Expired(now) {
		if err := o.expire(sched); err != nil {
			return err
		}
		o.log.Infow("Schedule expired, not arming",
			logger.FieldScheduleID, sched.ID)
		return nil
	}

	if sched.EndsOn != nil && !sched.EndsOn.After(sched.StartsOn) {
		o.log.Warnw("Schedule ends before it starts, not arming",
			logger.FieldScheduleID, sched.ID,
			"starts_on", sched.StartsOn.Format(time.RFC3339),
			"ends_on", sched.EndsOn.Format(time.RFC3339))
		return nil
	}

	stale, err := o.staleRun(sched.PMID)
	if err != nil {
		return err
	}
	if stale {
		// Fail-safe, not a failure: the schedule is force-disabled and the
		// arm returns cleanly. The STALE_DISABLED state and the breaker
		// warn log are the observable outcome.
		return o.disableStale(sched)
	}

	if err := o.registerTriggers(sched); err != nil {
		return err
	}
	if sched.State == recurrence.StateExpired {
		// The completion chain already ran past the end date.
		return nil
	}

	if err := o.schedules.SetState(sched.ID, recurrence.StateArmed); err != nil {
		return err
	}
	sched.State = recurrence.StateArmed

	o.log.Infow("Schedule armed",
		logger.FieldScheduleID, sched.ID,
		logger.FieldPMID, sched.PMID,
		"type", string(sched.RecurrenceType),
		"based_on", string(sched.BasedOn),
		"frequency", sched.Frequency)
	return nil
}

// Disarm cancels the schedule's triggers and marks it UNARMED. It is
// idempotent; disarming an unarmed schedule is a no-op.
func (o *Orchestrator) Disarm(sched *recurrence.Schedule) error {
	if err := o.cancelTriggers(sched.ID); err != nil {
		return err
	}

	if sched.State == recurrence.StateArmed {
		if err := o.schedules.SetState(sched.ID, recurrence.StateUnarmed); err != nil {
			return err
		}
		sched.State = recurrence.StateUnarmed
	}

	o.log.Infow("Schedule disarmed", logger.FieldScheduleID, sched.ID)
	return nil
}

// Rearm tears down and re-registers the schedule's triggers. Called after
// any edit that changes the firing pattern; registration replaces by key,
// but a type change can orphan the notification trigger without the
// explicit teardown.
func (o *Orchestrator) Rearm(sched *recurrence.Schedule) error {
	if err := o.Disarm(sched); err != nil {
		return err
	}
	return o.Arm(sched)
}

// Reenable lifts a staleness force-disable. The schedule returns to
// UNARMED; the caller arms it again explicitly.
func (o *Orchestrator) Reenable(sched *recurrence.Schedule) error {
	if sched.State != recurrence.StateStaleDisabled {
		return nil
	}
	if err := o.schedules.SetState(sched.ID, recurrence.StateUnarmed); err != nil {
		return err
	}
	sched.State = recurrence.StateUnarmed
	o.log.Infow("Schedule re-enabled", logger.FieldScheduleID, sched.ID)
	return nil
}

// ChainAfterCompletion registers the next one-shot fire of a
// completion-based schedule. Scheduled-date schedules ignore completions;
// their cadence is fixed.
func (o *Orchestrator) ChainAfterCompletion(scheduleID string, completedAt time.Time) error {
	sched, err := o.schedules.Get(scheduleID)
	if err != nil {
		return err
	}
	if sched.BasedOn != recurrence.CompletedDate || !sched.Runnable() {
		return nil
	}

	next, err := recurrence.NextFromCompletion(sched, completedAt)
	if err != nil {
		return err
	}

	if sched.EndsOn != nil && !next.Before(*sched.EndsOn) {
		o.log.Infow("Next chained fire past end date, expiring schedule",
			logger.FieldScheduleID, sched.ID,
			logger.FieldNextRunAt, next.Format(time.RFC3339))
		return o.expire(sched)
	}

	if err := o.registry.RegisterOneShot(GenKey(sched.ID), HandlerGenerate, sched.ID, next); err != nil {
		return err
	}
	if o.opts.NotificationLeadDays > 0 {
		notifAt := recurrence.NotificationStart(next, o.opts.NotificationLeadDays)
		if err := o.registry.RegisterOneShot(NotifKey(sched.ID), HandlerNotify, sched.ID, notifAt); err != nil {
			return err
		}
	}

	o.log.Infow("Chained next fire from completion",
		logger.FieldScheduleID, sched.ID,
		"completed_at", completedAt.Format(time.RFC3339),
		logger.FieldNextRunAt, next.Format(time.RFC3339))
	return nil
}

// NextFireDate reports when the schedule will next generate a work order,
// or nil when it is not armed or exhausted. Weekly schedules with a
// multi-week gap are computed from calendar math because the underlying
// cron trigger also fires on weeks the generation job discards.
func (o *Orchestrator) NextFireDate(sched *recurrence.Schedule) (*time.Time, error) {
	if sched.RecurrenceType == recurrence.Weekly && sched.Frequency > 1 {
		if !sched.Runnable() {
			return nil, nil
		}
		next := recurrence.NextWeeklyFireAfter(sched, o.now())
		if next.IsZero() {
			return nil, nil
		}
		if sched.EndsOn != nil && !next.Before(*sched.EndsOn) {
			return nil, nil
		}
		return &next, nil
	}
	return o.registry.NextFireTime(GenKey(sched.ID))
}

// MarkExpired transitions an exhausted schedule to EXPIRED and tears down
// its triggers. Jobs call this when a fire arrives past the end date.
func (o *Orchestrator) MarkExpired(sched *recurrence.Schedule) error {
	return o.expire(sched)
}

// DisableStale trips the staleness circuit breaker: triggers torn down,
// state forced to STALE_DISABLED.
func (o *Orchestrator) DisableStale(sched *recurrence.Schedule) error {
	return o.disableStale(sched)
}

// StaleRun reports whether the last StalenessWindow work orders of the
// template all went unengaged. Fewer work orders than the window never
// counts as stale.
func (o *Orchestrator) StaleRun(pmID string) (bool, error) {
	return o.staleRun(pmID)
}

func (o *Orchestrator) registerTriggers(sched *recurrence.Schedule) error {
	if sched.BasedOn == recurrence.CompletedDate {
		// First fire at the start date; once a work order has been
		// completed, the chain continues from the latest completion.
		fireAt := sched.StartsOn
		last, err := o.workOrders.LastCompletedByPM(sched.PMID)
		if err != nil {
			return err
		}
		if last != nil && last.CompletedAt != nil {
			fireAt, err = recurrence.NextFromCompletion(sched, *last.CompletedAt)
			if err != nil {
				return err
			}
		}
		if sched.EndsOn != nil && !fireAt.Before(*sched.EndsOn) {
			return o.expire(sched)
		}
		if err := o.registry.RegisterOneShot(GenKey(sched.ID), HandlerGenerate, sched.ID, fireAt); err != nil {
			return err
		}
		if o.opts.NotificationLeadDays > 0 {
			notifAt := recurrence.NotificationStart(fireAt, o.opts.NotificationLeadDays)
			if err := o.registry.RegisterOneShot(NotifKey(sched.ID), HandlerNotify, sched.ID, notifAt); err != nil {
				return err
			}
		}
		return nil
	}

	shape, err := recurrence.StaticShape(sched)
	if err != nil {
		return err
	}
	if err := o.registry.RegisterRepeating(GenKey(sched.ID), shape, HandlerGenerate, sched.ID, sched.StartsOn, sched.EndsOn); err != nil {
		return err
	}

	if o.opts.NotificationLeadDays > 0 {
		notifShape, err := recurrence.NotificationShape(sched, o.opts.NotificationLeadDays)
		if err != nil {
			return err
		}
		notifStart := recurrence.NotificationStart(sched.StartsOn, o.opts.NotificationLeadDays)
		var notifEnd *time.Time
		if sched.EndsOn != nil {
			shifted := recurrence.NotificationStart(*sched.EndsOn, o.opts.NotificationLeadDays)
			notifEnd = &shifted
		}
		if err := o.registry.RegisterRepeating(NotifKey(sched.ID), notifShape, HandlerNotify, sched.ID, notifStart, notifEnd); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) cancelTriggers(scheduleID string) error {
	if _, err := o.registry.Cancel(GenKey(scheduleID)); err != nil {
		return err
	}
	if _, err := o.registry.Cancel(NotifKey(scheduleID)); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) expire(sched *recurrence.Schedule) error {
	if err := o.cancelTriggers(sched.ID); err != nil {
		return err
	}
	if sched.State != recurrence.StateExpired {
		if err := o.schedules.SetState(sched.ID, recurrence.StateExpired); err != nil {
			return err
		}
		sched.State = recurrence.StateExpired
	}
	return nil
}

func (o *Orchestrator) disableStale(sched *recurrence.Schedule) error {
	if err := o.cancelTriggers(sched.ID); err != nil {
		return err
	}
	if err := o.schedules.SetState(sched.ID, recurrence.StateStaleDisabled); err != nil {
		return err
	}
	sched.State = recurrence.StateStaleDisabled
	o.log.Warnw("Staleness circuit breaker tripped",
		logger.FieldScheduleID, sched.ID,
		logger.FieldPMID, sched.PMID,
		"window", o.opts.StalenessWindow)
	return nil
}

func (o *Orchestrator) staleRun(pmID string) (bool, error) {
	if o.opts.StalenessWindow <= 0 {
		return false, nil
	}
	recent, err := o.workOrders.FindLastNByPM(pmID, o.opts.StalenessWindow)
	if err != nil {
		return false, err
	}
	if len(recent) < o.opts.StalenessWindow {
		return false, nil
	}
	for _, wo := range recent {
		if wo.Engaged() {
			return false, nil
		}
	}
	return true, nil
}
