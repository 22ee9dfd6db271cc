// Package api exposes the daemon over HTTP: a JSON surface for control
// operations and a websocket stream for status updates.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/tuxhw/tuxd/internal/database/repositories"
	"github.com/tuxhw/tuxd/internal/services/control"
	"github.com/tuxhw/tuxd/internal/services/pubsub"
	"github.com/tuxhw/tuxd/internal/services/sensors"
	"github.com/tuxhw/tuxd/internal/services/undervolt"
	"github.com/tuxhw/tuxd/internal/services/version"
)

// Options configures the server surface.
type Options struct {
	CORSOrigin string
	Debug      bool
	Version    *version.Service
}

// Server holds the handler dependencies.
type Server struct {
	loop     *control.Loop
	uv       *undervolt.Service
	store    *Store
	profiles *repositories.ProfileRepository
	bus      *pubsub.PubSub
	opts     Options
}

// NewServer wires the HTTP surface over the control loop and storage.
func NewServer(loop *control.Loop, uv *undervolt.Service, store *Store, profiles *repositories.ProfileRepository, bus *pubsub.PubSub, opts Options) *Server {
	return &Server{
		loop:     loop,
		uv:       uv,
		store:    store,
		profiles: profiles,
		bus:      bus,
		opts:     opts,
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{s.opts.CORSOrigin, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            s.opts.Debug,
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", s.handleHealth)
	router.Get("/ws/status", s.handleStatusStream)

	router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/version", s.handleVersion)

		r.Route("/fan", func(r chi.Router) {
			r.Post("/speed", s.handleFanSpeed)
			r.Post("/auto", s.handleFanAuto)
			r.Post("/curve-control", s.handleCurveControl)
			r.Post("/curve-mode", s.handleCurveMode)
			r.Get("/curves", s.handleCurvesGet)
			r.Put("/curves/{name}", s.handleCurveSet)
			r.Post("/curves/{name}/points", s.handleCurveInsert)
			r.Delete("/curves/{name}/points/{index}", s.handleCurveRemove)
			r.Post("/curves/{name}/reset", s.handleCurveReset)
		})

		r.Route("/backlight", func(r chi.Router) {
			r.Post("/brightness", s.handleBrightness)
			r.Post("/color", s.handleColor)
			r.Post("/auto-off", s.handleAutoOff)
			r.Post("/fade", s.handleFadeConfig)
			r.Post("/control", s.handleControlBrightness)
		})

		r.Route("/undervolt", func(r chi.Router) {
			r.Get("/", s.handleUndervoltRead)
			r.Post("/", s.handleUndervoltApply)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleProfilesList)
			r.Post("/", s.handleProfileCreate)
			r.Get("/{id}", s.handleProfileGet)
			r.Put("/{id}", s.handleProfileUpdate)
			r.Delete("/{id}", s.handleProfileDelete)
			r.Post("/{id}/apply", s.handleProfileApply)
		})
	})

	return router
}

// statusPayload is the full status response: the loop snapshot plus the
// host-sensor fallback temperature and the undervolt tool presence.
type statusPayload struct {
	control.Status
	HostTempCelsius    *float64 `json:"hostTempCelsius,omitempty"`
	UndervoltSupported bool     `json:"undervoltSupported"`
}

func (s *Server) statusPayload() statusPayload {
	p := statusPayload{
		Status:             s.loop.Status(),
		UndervoltSupported: s.uv.Available(),
	}
	if temp, ok := sensors.CPUTemp(); ok {
		p.HostTempCelsius = &temp
	}
	return p
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.statusPayload())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	var info version.Info
	if s.opts.Version != nil {
		info = s.opts.Version.Info()
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// persistSettings writes the loop's current settings through the store,
// logging rather than failing the request on storage trouble.
func (s *Server) persistSettings(r *http.Request) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSettings(r.Context(), s.loop); err != nil {
		log.Printf("api: persist settings: %v", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}
