package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tazhate/medremind/internal/calendar"
	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/service"
)

func (s *Server) medicineRoutes(r chi.Router) {
	r.Route("/medicines", func(mr chi.Router) {
		mr.Get("/", s.listMedicines)
		mr.Post("/", s.createMedicine)
		mr.Get("/{id}", s.getMedicine)
		mr.Patch("/{id}", s.updateMedicine)
		mr.Delete("/{id}", s.deleteMedicine)
		mr.Get("/{id}/doses", s.listDoses)
		mr.Get("/{id}/calendar.ics", s.medicineCalendar)
		mr.Post("/{id}/actions", s.medicineAction)
	})
}

// GET /api/medicines?elderlyUserId=
func (s *Server) listMedicines(w http.ResponseWriter, r *http.Request) {
	meds, err := s.deps.Medicines.List(r.Context(), actor(r), r.URL.Query().Get("elderlyUserId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if meds == nil {
		meds = []*domain.Medicine{}
	}
	jsonResponse(w, http.StatusOK, meds)
}

func (s *Server) createMedicine(w http.ResponseWriter, r *http.Request) {
	var m domain.Medicine
	if !decode(w, r, &m) {
		return
	}
	created, err := s.deps.Medicines.Create(r.Context(), actor(r), &m)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, created)
}

func (s *Server) getMedicine(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Medicines.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

func (s *Server) updateMedicine(w http.ResponseWriter, r *http.Request) {
	var u service.MedicineUpdate
	if !decode(w, r, &u) {
		return
	}
	m, err := s.deps.Medicines.Update(r.Context(), actor(r), chi.URLParam(r, "id"), u)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

func (s *Server) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Medicines.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/medicines/{id}/doses - taken/skipped/snoozed/missed history
func (s *Server) listDoses(w http.ResponseWriter, r *http.Request) {
	logs, err := s.deps.Medicines.Doses(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if logs == nil {
		logs = []*domain.DoseLog{}
	}
	jsonResponse(w, http.StatusOK, logs)
}

// GET /api/medicines/{id}/calendar.ics - subscribe-able schedule
func (s *Server) medicineCalendar(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Medicines.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := calendar.Encode(calendar.Medicine(m, s.opts.Timezone, s.now()))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, m.ID))
	_, _ = w.Write(data)
}

type actionRequest struct {
	Action  string `json:"action"`
	Minutes int    `json:"minutes"`
}

// POST /api/medicines/{id}/actions - in-app taken/snooze/skip buttons
func (s *Server) medicineAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.deps.Medicines.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	a, err := domain.ParseAction(req.Action, m.ID, req.Minutes, s.deps.Reminders.SnoozeDefault())
	if err != nil {
		s.fail(w, err)
		return
	}
	updated, err := s.deps.Reminders.HandleMedicineAction(r.Context(), a)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}
