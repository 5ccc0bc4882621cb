package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/recurrence"
	"github.com/fernwall/mainspring/version"
)

// schedulePayload is the wire form of a schedule.
type schedulePayload struct {
	ID             string  `json:"id"`
	PMID           string  `json:"pm_id"`
	State          string  `json:"state"`
	StartsOn       string  `json:"starts_on"`
	EndsOn         *string `json:"ends_on,omitempty"`
	Frequency      int     `json:"frequency"`
	RecurrenceType string  `json:"recurrence_type"`
	BasedOn        string  `json:"based_on"`
	DaysOfWeek     []int   `json:"days_of_week,omitempty"`
	DueDateDelay   *int    `json:"due_date_delay,omitempty"`
	Version        int     `json:"version"`
	NextFireAt     *string `json:"next_fire_at,omitempty"`
}

func toPayload(sched *recurrence.Schedule, nextFire *time.Time) schedulePayload {
	p := schedulePayload{
		ID:             sched.ID,
		PMID:           sched.PMID,
		State:          string(sched.State),
		StartsOn:       sched.StartsOn.Format(time.RFC3339),
		Frequency:      sched.Frequency,
		RecurrenceType: string(sched.RecurrenceType),
		BasedOn:        string(sched.BasedOn),
		DaysOfWeek:     sched.DaysOfWeek,
		DueDateDelay:   sched.DueDateDelay,
		Version:        sched.Version,
	}
	if sched.EndsOn != nil {
		formatted := sched.EndsOn.Format(time.RFC3339)
		p.EndsOn = &formatted
	}
	if nextFire != nil {
		formatted := nextFire.Format(time.RFC3339)
		p.NextFireAt = &formatted
	}
	return p
}

func (p *schedulePayload) apply(sched *recurrence.Schedule) error {
	if p.StartsOn != "" {
		startsOn, err := time.Parse(time.RFC3339, p.StartsOn)
		if err != nil {
			return err
		}
		sched.StartsOn = startsOn
	}
	if p.EndsOn != nil {
		endsOn, err := time.Parse(time.RFC3339, *p.EndsOn)
		if err != nil {
			return err
		}
		sched.EndsOn = &endsOn
	} else {
		sched.EndsOn = nil
	}
	sched.Frequency = p.Frequency
	sched.RecurrenceType = recurrence.RecurrenceType(p.RecurrenceType)
	sched.BasedOn = recurrence.BasedOn(p.BasedOn)
	sched.DaysOfWeek = p.DaysOfWeek
	sched.DueDateDelay = p.DueDateDelay
	return nil
}

// handleSchedules handles POST /api/schedules.
func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var payload schedulePayload
	if err := readJSON(w, r, &payload); err != nil {
		return
	}

	sched := &recurrence.Schedule{PMID: payload.PMID}
	if err := payload.apply(sched); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.CreateSchedule(sched); err != nil {
		writeDomainError(w, err)
		return
	}

	s.log.Infow("Schedule created via API",
		logger.FieldScheduleID, sched.ID,
		logger.FieldPMID, sched.PMID)
	writeJSON(w, http.StatusCreated, toPayload(sched, nil))
}

// handleSchedule handles /api/schedules/{id} and its subresources.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/schedules/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing schedule ID")
		return
	}
	id := parts[0]

	if len(parts) == 2 {
		switch parts[1] {
		case "next-fire":
			s.handleNextFire(w, r, id)
		case "reenable":
			s.handleReenable(w, r, id)
		default:
			writeError(w, http.StatusNotFound, "Unknown subresource")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSchedule(w, r, id)
	case http.MethodPut:
		s.handleUpdateSchedule(w, r, id)
	case http.MethodDelete:
		s.handleDeleteSchedule(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request, id string) {
	sched, err := s.service.Schedule(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	next, err := s.service.NextFireDate(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(sched, next))
}

// handleUpdateSchedule applies an edit and re-arms. The payload must carry
// the version the caller read; a concurrent edit answers 409.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request, id string) {
	var payload schedulePayload
	if err := readJSON(w, r, &payload); err != nil {
		return
	}

	sched, err := s.service.Schedule(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := payload.apply(sched); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Version != 0 {
		sched.Version = payload.Version
	}

	if err := s.service.UpdateSchedule(sched); err != nil {
		writeDomainError(w, err)
		return
	}

	s.log.Infow("Schedule updated via API", logger.FieldScheduleID, id)
	writeJSON(w, http.StatusOK, toPayload(sched, nil))
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteSchedule(id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Infow("Schedule deleted via API", logger.FieldScheduleID, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleNextFire(w http.ResponseWriter, r *http.Request, id string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	next, err := s.service.NextFireDate(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := map[string]interface{}{"schedule_id": id}
	if next != nil {
		resp["next_fire_at"] = next.Format(time.RFC3339)
	} else {
		resp["next_fire_at"] = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReenable(w http.ResponseWriter, r *http.Request, id string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.service.Reenable(id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Infow("Schedule re-enabled via API", logger.FieldScheduleID, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "armed"})
}

// handleWorkOrder handles POST /api/workorders/{id}/complete|respond.
func (s *Server) handleWorkOrder(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/workorders/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Expected /api/workorders/{id}/{action}")
		return
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, action := parts[0], parts[1]
	now := time.Now().UTC()

	var err error
	switch action {
	case "complete":
		err = s.service.CompleteWorkOrder(id, now)
	case "respond":
		err = s.service.EngageWorkOrder(id, now)
	default:
		writeError(w, http.StatusNotFound, "Unknown action")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.log.Infow("Work order action via API",
		logger.FieldWorkOrderID, id,
		"action", action)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports version and ticker liveness.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	resp := map[string]interface{}{
		"version": version.Get(),
	}
	if s.ticker != nil {
		resp["ticker"] = s.ticker.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
