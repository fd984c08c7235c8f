package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
)

type modeRequest struct {
	Mode models.DetectionMode `json:"mode"`
}

type rulesRequest struct {
	Rules []string `json:"rules"`
}

func (h *Handlers) GetSystemHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.System.Snapshot())
}

func (h *Handlers) ArmHandler(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["action"] == "arm" {
		h.System.Arm()
	} else {
		h.System.Disarm()
	}
	writeJSON(w, http.StatusOK, h.System.Snapshot())
}

func (h *Handlers) SetModeHandler(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.System.SetMode(req.Mode); err != nil {
		if errors.Is(err, models.ErrUnknownMode) {
			writeError(w, http.StatusBadRequest, "unknown detection mode")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.System.Snapshot())
}

func (h *Handlers) SetRulesHandler(w http.ResponseWriter, r *http.Request) {
	var req rulesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.System.SetRules(req.Rules)
	if h.Writer != nil {
		h.Writer.Schedule(storage.KeyRules, h.System.Rules())
	}
	writeJSON(w, http.StatusOK, h.System.Snapshot())
}

// ClearLockdownHandler is the only way to lift a lockdown.
func (h *Handlers) ClearLockdownHandler(w http.ResponseWriter, r *http.Request) {
	h.System.SetLockdown(false, "cleared by "+operator(r))
	writeJSON(w, http.StatusOK, h.System.Snapshot())
}
