// Package api is the REST and WebSocket surface of the service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/events"
	"github.com/tazhate/medremind/internal/scan"
	"github.com/tazhate/medremind/internal/service"
)

// UserHeader names the acting user. Authentication of the user happens
// upstream.
const UserHeader = "X-User-ID"

type Deps struct {
	Users       *service.UserService
	Medicines   *service.MedicineService
	Reminders   *service.ReminderService
	Contacts    *service.ContactService
	SOS         *service.SOSService
	Scanner     *scan.Scanner // nil when OCR is not configured
	Hub         *events.Hub
	Webhook     http.Handler // Telegram updates, nil in polling mode
	WebhookPath string       // secret route Webhook is served on
}

type Options struct {
	Username string
	Password string
	Timezone *time.Location
}

type Server struct {
	deps Deps
	opts Options
	now  func() time.Time
	log  zerolog.Logger
}

func New(deps Deps, opts Options, log zerolog.Logger) *Server {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	return &Server{deps: deps, opts: opts, now: time.Now, log: log.With().Str("component", "api").Logger()}
}

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.deps.Webhook != nil && s.deps.WebhookPath != "" {
		r.Post(s.deps.WebhookPath, s.deps.Webhook.ServeHTTP)
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Use(s.basicAuth)
		ar.Post("/users", s.registerUser)

		ar.Group(func(ur chi.Router) {
			ur.Use(s.withUser)
			s.userRoutes(ur)
			s.medicineRoutes(ur)
			s.reminderRoutes(ur)
			s.contactRoutes(ur)
			s.sosRoutes(ur)
			ur.Post("/scan", s.scanLabel)
			ur.Get("/ws", s.serveWS)
		})
	})
	return r
}

// basicAuth guards the API when credentials are configured.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	if s.opts.Username == "" || s.opts.Password == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != s.opts.Username || password != s.opts.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="MedRemind API"`)
			jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			id = r.URL.Query().Get("user")
		}
		if id == "" {
			jsonError(w, UserHeader+" header is required", http.StatusUnauthorized)
			return
		}
		u, err := s.deps.Users.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				jsonError(w, "unknown user", http.StatusUnauthorized)
				return
			}
			s.fail(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func actor(r *http.Request) *domain.User {
	u, _ := r.Context().Value(ctxKey{}).(*domain.User)
	return u
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Error: msg})
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrForbidden):
		jsonError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrNotPending):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error().Err(err).Msg("request failed")
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}
