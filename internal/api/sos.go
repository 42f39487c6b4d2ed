package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tazhate/medremind/internal/domain"
)

func (s *Server) sosRoutes(r chi.Router) {
	r.Route("/sos", func(sr chi.Router) {
		sr.Post("/", s.triggerSOS)
		sr.Get("/", s.listAlerts)
		sr.Post("/{id}/resolve", s.resolveAlert)
		sr.Post("/{id}/ack", s.acknowledgeAlert)
	})
}

type sosRequest struct {
	UserID   string           `json:"userId"`
	Location *domain.Location `json:"location"`
}

// POST /api/sos - raise an emergency for the actor or someone they look after
func (s *Server) triggerSOS(w http.ResponseWriter, r *http.Request) {
	var req sosRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	u := actor(r)
	if req.UserID == "" {
		req.UserID = u.ID
	}
	if !u.CanManage(req.UserID) {
		s.fail(w, domain.ErrForbidden)
		return
	}
	alert, err := s.deps.SOS.Trigger(r.Context(), req.UserID, req.Location)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, alert)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.SOS.List(r.Context(), actor(r), r.URL.Query().Get("userId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.EmergencyAlert{}
	}
	jsonResponse(w, http.StatusOK, alerts)
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.deps.SOS.Resolve(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, alert)
}

// POST /api/sos/{id}/ack - a contact responded
func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactID string `json:"contactId"`
	}
	if !decode(w, r, &req) {
		return
	}
	alert, err := s.deps.SOS.Acknowledge(r.Context(), chi.URLParam(r, "id"), req.ContactID)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, alert)
}
