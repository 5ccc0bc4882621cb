package scheduling

import (
	"time"

	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/maintenance"
	"github.com/fernwall/mainspring/recurrence"
)

// Service is the facade the HTTP layer and CLI talk to. It keeps the
// schedule store and the orchestrator in step: every persisted schedule
// change that affects firing goes through a matching trigger operation.
type Service struct {
	schedules    *recurrence.Store
	workOrders   *maintenance.WorkOrderStore
	orchestrator *Orchestrator
	log          *zap.SugaredLogger
}

// NewService creates the scheduling service.
func NewService(
	schedules *recurrence.Store,
	workOrders *maintenance.WorkOrderStore,
	orchestrator *Orchestrator,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		schedules:    schedules,
		workOrders:   workOrders,
		orchestrator: orchestrator,
		log:          log,
	}
}

// CreateSchedule validates, persists and arms a new schedule.
func (s *Service) CreateSchedule(sched *recurrence.Schedule) error {
	if sched.ID == "" {
		sched.ID = recurrence.NewScheduleID()
	}
	if err := s.schedules.Create(sched); err != nil {
		return err
	}
	return s.orchestrator.Arm(sched)
}

// UpdateSchedule persists an edit under optimistic concurrency and re-arms
// when the schedule was armed, so the triggers match the new pattern.
func (s *Service) UpdateSchedule(sched *recurrence.Schedule) error {
	wasArmed := sched.State == recurrence.StateArmed
	if err := s.schedules.Update(sched); err != nil {
		return err
	}
	if wasArmed {
		return s.orchestrator.Rearm(sched)
	}
	return nil
}

// DeleteSchedule tears down the schedule's triggers before removing the
// row, so no dangling fire can resolve to a missing definition.
func (s *Service) DeleteSchedule(id string) error {
	sched, err := s.schedules.Get(id)
	if err != nil {
		return err
	}
	if err := s.orchestrator.Disarm(sched); err != nil {
		return err
	}
	return s.schedules.Delete(id)
}

// Schedule returns a schedule by ID.
func (s *Service) Schedule(id string) (*recurrence.Schedule, error) {
	return s.schedules.Get(id)
}

// ScheduleByPM returns the schedule owned by a template.
func (s *Service) ScheduleByPM(pmID string) (*recurrence.Schedule, error) {
	return s.schedules.GetByPM(pmID)
}

// NextFireDate reports the schedule's next generation fire.
func (s *Service) NextFireDate(id string) (*time.Time, error) {
	sched, err := s.schedules.Get(id)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.NextFireDate(sched)
}

// Reenable lifts a staleness force-disable and arms the schedule again.
func (s *Service) Reenable(id string) error {
	sched, err := s.schedules.Get(id)
	if err != nil {
		return err
	}
	if err := s.orchestrator.Reenable(sched); err != nil {
		return err
	}
	return s.orchestrator.Arm(sched)
}

// CompleteWorkOrder marks a work order complete and, for completion-based
// schedules, chains the next fire from the completion time.
func (s *Service) CompleteWorkOrder(workOrderID string, at time.Time) error {
	if err := s.workOrders.Complete(workOrderID, at); err != nil {
		return err
	}

	wo, err := s.workOrders.Get(workOrderID)
	if err != nil {
		return err
	}

	sched, err := s.schedules.GetByPM(wo.PMID)
	if errors.IsNotFound(err) {
		// Manually created work order without a recurrence.
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.orchestrator.ChainAfterCompletion(sched.ID, at); err != nil {
		s.log.Errorw("Failed to chain after completion",
			logger.FieldWorkOrderID, workOrderID,
			logger.FieldScheduleID, sched.ID,
			"error", err)
		return err
	}
	return nil
}

// EngageWorkOrder records the first human engagement with a work order,
// which is what keeps the staleness circuit breaker from tripping.
func (s *Service) EngageWorkOrder(workOrderID string, at time.Time) error {
	return s.workOrders.FirstRespond(workOrderID, at)
}
