package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/control"
)

func backlightError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backlight.ErrUnavailable), errors.Is(err, control.ErrMonitorUnavailable):
		respondError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, backlight.ErrNotRGB):
		respondError(w, http.StatusBadRequest, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value int `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.loop.ApplyBrightness(req.Value); err != nil {
		backlightError(w, err)
		return
	}
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		R    int  `json:"r"`
		G    int  `json:"g"`
		B    int  `json:"b"`
		Zone *int `json:"zone,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	zone := -1
	if req.Zone != nil {
		zone = *req.Zone
	}
	c := backlight.Color{R: req.R, G: req.G, B: req.B}
	if err := s.loop.ApplyColor(c, zone); err != nil {
		backlightError(w, err)
		return
	}
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleAutoOff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled        bool `json:"enabled"`
		TimeoutSeconds int  `json:"timeoutSeconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if err := s.loop.SetAutoOff(req.Enabled, timeout); err != nil {
		backlightError(w, err)
		return
	}
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleFadeConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled    bool `json:"enabled"`
		DurationMs int  `json:"durationMs"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.loop.SetFadeConfig(req.Enabled, time.Duration(req.DurationMs)*time.Millisecond)
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleControlBrightness(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.loop.SetControlBrightness(req.Enabled)
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}
