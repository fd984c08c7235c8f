package api

import (
	"net/http"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

type accessEventResponse struct {
	Outcome string `json:"outcome"`
}

// AccessEventHandler is the webhook for access-control panels. The event
// is verified before the response is written.
func (h *Handlers) AccessEventHandler(w http.ResponseWriter, r *http.Request) {
	var ev models.AccessEvent
	if err := decodeBody(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ev.DoorID == "" || ev.Event == "" {
		writeError(w, http.StatusBadRequest, "door_id and event are required")
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	outcome := h.Access.HandleAccessEvent(r.Context(), ev)
	writeJSON(w, http.StatusAccepted, accessEventResponse{Outcome: outcome.String()})
}
