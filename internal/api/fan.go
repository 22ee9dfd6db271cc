package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tuxhw/tuxd/internal/services/control"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
)

// fanError maps fan-side failures to HTTP statuses.
func fanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fanctl.ErrDeviceUnavailable):
		respondError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, control.ErrUnknownCurve):
		respondError(w, http.StatusNotFound, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleFanSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fan   int `json:"fan"`
		Speed int `json:"speed"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Fan < 0 || req.Fan > control.FanBoth {
		respondError(w, http.StatusBadRequest, errors.New("fan must be 0, 1 or 2"))
		return
	}
	if err := s.loop.ApplyFanSpeed(req.Fan, req.Speed); err != nil {
		fanError(w, err)
		return
	}
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleFanAuto(w http.ResponseWriter, r *http.Request) {
	if err := s.loop.SetHardwareAuto(); err != nil {
		fanError(w, err)
		return
	}
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleCurveControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.loop.SetCurveControl(req.Enabled); err != nil {
		fanError(w, err)
		return
	}
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleCurveMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	switch req.Mode {
	case "shared":
		s.loop.SetCurveMode(control.CurveModeShared)
	case "split":
		s.loop.SetCurveMode(control.CurveModeSplit)
	default:
		respondError(w, http.StatusBadRequest, errors.New("mode must be shared or split"))
		return
	}
	s.persistSettings(r)
	respondJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) curvesResponse(w http.ResponseWriter) {
	out := make(map[string][]fanctl.Point, 3)
	for _, name := range []string{control.CurveShared, control.CurveCPU, control.CurveGPU} {
		pts, err := s.loop.CurvePoints(name)
		if err != nil {
			fanError(w, err)
			return
		}
		out[name] = pts
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCurvesGet(w http.ResponseWriter, r *http.Request) {
	s.curvesResponse(w)
}

func (s *Server) handleCurveSet(w http.ResponseWriter, r *http.Request) {
	var points []fanctl.Point
	if !decodeBody(w, r, &points) {
		return
	}
	if err := s.loop.SetCurve(chi.URLParam(r, "name"), points); err != nil {
		fanError(w, err)
		return
	}
	s.persistSettings(r)
	s.curvesResponse(w)
}

func (s *Server) handleCurveInsert(w http.ResponseWriter, r *http.Request) {
	added, err := s.loop.InsertCurvePoint(chi.URLParam(r, "name"))
	if err != nil {
		fanError(w, err)
		return
	}
	if !added {
		respondError(w, http.StatusConflict, errors.New("no gap wide enough for a new point"))
		return
	}
	s.persistSettings(r)
	s.curvesResponse(w)
}

func (s *Server) handleCurveRemove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	removed, err := s.loop.RemoveCurvePoint(chi.URLParam(r, "name"), index)
	if err != nil {
		fanError(w, err)
		return
	}
	if !removed {
		respondError(w, http.StatusConflict, errors.New("point cannot be removed"))
		return
	}
	s.persistSettings(r)
	s.curvesResponse(w)
}

func (s *Server) handleCurveReset(w http.ResponseWriter, r *http.Request) {
	if err := s.loop.ResetCurve(chi.URLParam(r, "name")); err != nil {
		fanError(w, err)
		return
	}
	s.persistSettings(r)
	s.curvesResponse(w)
}
