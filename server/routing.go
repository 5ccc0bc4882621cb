package server

import "net/http"

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/schedules", s.handleSchedules)
	mux.HandleFunc("/api/schedules/", s.handleSchedule)
	mux.HandleFunc("/api/workorders/", s.handleWorkOrder)
	mux.HandleFunc("/api/status", s.handleStatus)
}
