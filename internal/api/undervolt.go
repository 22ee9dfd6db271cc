package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tuxhw/tuxd/internal/database/models"
	"github.com/tuxhw/tuxd/internal/services/undervolt"
)

func undervoltError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, undervolt.ErrNotInstalled):
		respondError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, undervolt.ErrFailed):
		respondError(w, http.StatusBadGateway, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleUndervoltRead(w http.ResponseWriter, r *http.Request) {
	out, err := s.uv.Read()
	if err != nil {
		undervoltError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"report": out})
}

func (s *Server) handleUndervoltApply(w http.ResponseWriter, r *http.Request) {
	var params undervolt.Params
	if !decodeBody(w, r, &params) {
		return
	}
	if err := s.uv.Apply(params); err != nil {
		undervoltError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"applied": true})
}

func (s *Server) handleProfilesList(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.FindAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleProfileCreate(w http.ResponseWriter, r *http.Request) {
	var profile models.UndervoltProfile
	if !decodeBody(w, r, &profile) {
		return
	}
	if profile.Name == "" {
		respondError(w, http.StatusBadRequest, errors.New("profile name is required"))
		return
	}
	profile.ID = ""
	if err := s.profiles.Create(r.Context(), &profile); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, errors.New("profile not found"))
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	existing, err := s.profiles.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, errors.New("profile not found"))
		return
	}

	var update models.UndervoltProfile
	if !decodeBody(w, r, &update) {
		return
	}
	update.ID = existing.ID
	update.CreatedAt = existing.CreatedAt
	if update.Name == "" {
		update.Name = existing.Name
	}
	if err := s.profiles.Update(r.Context(), &update); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondJSON(w, http.StatusOK, update)
}

func (s *Server) handleProfileDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleProfileApply(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, errors.New("profile not found"))
		return
	}

	params := undervolt.Params{
		CoreMV:   profile.CoreMV,
		CacheMV:  profile.CacheMV,
		GPUMV:    profile.GPUMV,
		UncoreMV: profile.UncoreMV,
		AnalogMV: profile.AnalogMV,
		PL1Power: profile.PL1Power,
		PL1Time:  profile.PL1Time,
		PL2Power: profile.PL2Power,
		PL2Time:  profile.PL2Time,
		Turbo:    !profile.TurboDisabled,
	}
	if err := s.uv.Apply(params); err != nil {
		undervoltError(w, err)
		return
	}

	if s.store != nil {
		if err := s.store.SaveLastProfile(r.Context(), profile.Name); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"applied": profile.Name})
}
