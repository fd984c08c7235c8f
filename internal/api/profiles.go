package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/profiles"
)

func (h *Handlers) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Profiles.List())
}

func (h *Handlers) PutProfileHandler(w http.ResponseWriter, r *http.Request) {
	var p models.AdaptiveProfile
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := h.Profiles.Put(p)
	if err != nil {
		if errors.Is(err, profiles.ErrInvalidProfile) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handlers) DeleteProfileHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Profiles.Remove(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
