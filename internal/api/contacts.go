package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tazhate/medremind/internal/domain"
)

func (s *Server) contactRoutes(r chi.Router) {
	r.Route("/contacts", func(cr chi.Router) {
		cr.Get("/", s.listContacts)
		cr.Post("/", s.addContact)
		cr.Put("/{id}/primary", s.setPrimaryContact)
		cr.Delete("/{id}", s.deleteContact)
	})
}

// GET /api/contacts?userId=
func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.deps.Contacts.List(r.Context(), actor(r), r.URL.Query().Get("userId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if contacts == nil {
		contacts = []*domain.EmergencyContact{}
	}
	jsonResponse(w, http.StatusOK, contacts)
}

func (s *Server) addContact(w http.ResponseWriter, r *http.Request) {
	var c domain.EmergencyContact
	if !decode(w, r, &c) {
		return
	}
	created, err := s.deps.Contacts.Add(r.Context(), actor(r), &c)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, created)
}

func (s *Server) setPrimaryContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Contacts.SetPrimary(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Contacts.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
