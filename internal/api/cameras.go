package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/cameras"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

func (h *Handlers) ListCamerasHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cameras.Sources())
}

// ResetCameraHandler clears a camera's priority score.
func (h *Handlers) ResetCameraHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Cameras.ResetPriority(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, cameras.ErrCameraNotFound) {
			writeError(w, http.StatusNotFound, "camera not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.Cameras.Sources())
}

// AttachCameraHandler adds a camera or replaces the one with the same ID.
func (h *Handlers) AttachCameraHandler(w http.ResponseWriter, r *http.Request) {
	var src models.CameraSource
	if err := decodeBody(w, r, &src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if src.ID == "" || src.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	src.PriorityScore, src.ActiveAlerts = 0, 0
	h.Cameras.Attach(src)
	writeJSON(w, http.StatusOK, h.Cameras.Sources())
}

func (h *Handlers) DetachCameraHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Cameras.Detach(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, cameras.ErrCameraNotFound) {
			writeError(w, http.StatusNotFound, "camera not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
