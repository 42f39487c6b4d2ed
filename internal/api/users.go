package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tazhate/medremind/internal/domain"
)

func (s *Server) userRoutes(r chi.Router) {
	r.Get("/me", s.getMe)
	r.Put("/me/voice", s.updateVoice)
	r.Put("/me/permission", s.setPermission)
	r.Post("/me/elderly", s.linkElderly)
}

type registerRequest struct {
	Name             string          `json:"name"`
	Role             domain.UserRole `json:"role"`
	PhoneNumber      string          `json:"phoneNumber"`
	Language         string          `json:"language"`
	ElderlyUserIDs   []string        `json:"elderlyUserIds"`
	EmergencyMessage string          `json:"emergencyMessage"`
}

// POST /api/users - onboard a user
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := s.deps.Users.Register(r.Context(), &domain.User{
		Name:             req.Name,
		Role:             req.Role,
		PhoneNumber:      req.PhoneNumber,
		Language:         req.Language,
		ElderlyUserIDs:   req.ElderlyUserIDs,
		EmergencyMessage: req.EmergencyMessage,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, u)
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, actor(r))
}

// PUT /api/me/voice - replace voice settings
func (s *Server) updateVoice(w http.ResponseWriter, r *http.Request) {
	var v domain.VoiceSettings
	if !decode(w, r, &v) {
		return
	}
	u, err := s.deps.Users.UpdateVoice(r.Context(), actor(r).ID, v)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, u)
}

// PUT /api/me/permission - record the answer to the notification prompt
func (s *Server) setPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permission domain.Permission `json:"permission"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := s.deps.Users.SetPermission(r.Context(), actor(r).ID, req.Permission)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, u)
}

// POST /api/me/elderly - start looking after an elderly user
func (s *Server) linkElderly(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ElderlyUserID string `json:"elderlyUserId"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := s.deps.Users.LinkElderly(r.Context(), actor(r).ID, req.ElderlyUserID)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, u)
}
