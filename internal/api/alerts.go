package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/clustering"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/s3"
)

const defaultAlertLimit = 100

type feedbackRequest struct {
	Note string `json:"note"`
}

func (h *Handlers) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.Engine.Alerts(limit))
}

func (h *Handlers) GetAlertHandler(w http.ResponseWriter, r *http.Request) {
	a, err := h.Engine.Alert(mux.Vars(r)["id"])
	if err != nil {
		writeAlertError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AlertFeedbackHandler applies verify, dismiss, annotate, pin or unpin.
// Every action appends one audit entry attributed to the operator.
func (h *Handlers) AlertFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, action := vars["id"], vars["action"]
	actor := operator(r)

	var req feedbackRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var (
		alert *models.Alert
		err   error
	)
	switch action {
	case "verify":
		alert, err = h.Engine.Verify(id, actor, req.Note)
	case "dismiss":
		alert, err = h.Engine.Dismiss(id, actor, req.Note)
	case "annotate":
		if req.Note == "" {
			writeError(w, http.StatusBadRequest, "note is required")
			return
		}
		alert, err = h.Engine.Annotate(id, actor, req.Note)
	case "pin":
		alert, err = h.Engine.Pin(id, actor, true)
	case "unpin":
		alert, err = h.Engine.Pin(id, actor, false)
	}
	if err != nil {
		writeAlertError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// GetEvidenceHandler returns the archived frame of a confirmed fusion alert.
func (h *Handlers) GetEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evidence == nil {
		writeError(w, http.StatusNotFound, "evidence archive disabled")
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := h.Engine.Alert(id); err != nil {
		writeAlertError(w, err)
		return
	}

	frame, err := h.Evidence.GetEvidence(r.Context(), id)
	if err != nil {
		if errors.Is(err, s3.ErrEvidenceNotFound) {
			writeError(w, http.StatusNotFound, "no evidence for alert")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

func writeAlertError(w http.ResponseWriter, err error) {
	if errors.Is(err, clustering.ErrAlertNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
