package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tazhate/medremind/internal/domain"
)

func (s *Server) reminderRoutes(r chi.Router) {
	r.Get("/reminders", s.listReminders)
	r.Post("/reminders/{id}/actions", s.reminderAction)
}

// GET /api/reminders?userId= - open reminders, the actor's own by default
func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	u := actor(r)
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = u.ID
	}
	if !u.CanManage(userID) {
		s.fail(w, domain.ErrForbidden)
		return
	}
	jsonResponse(w, http.StatusOK, s.deps.Reminders.Pending(userID))
}

// POST /api/reminders/{id}/actions - answer a notification
func (s *Server) reminderAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	rem, ok := s.deps.Reminders.Get(id)
	if !ok {
		jsonError(w, "reminder not found", http.StatusNotFound)
		return
	}
	if !actor(r).CanManage(rem.UserID) {
		s.fail(w, domain.ErrForbidden)
		return
	}
	a, err := domain.ParseAction(req.Action, rem.MedicineID, req.Minutes, s.deps.Reminders.SnoozeDefault())
	if err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.deps.Reminders.HandleAction(r.Context(), id, a)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}
