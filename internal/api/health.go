package api

import (
	"net/http"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/audio"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

type healthResponse struct {
	models.SystemHealth
	Status models.EngineStatus `json:"engine_status"`
	Audio  *audio.Metrics      `json:"audio,omitempty"`
}

func (h *Handlers) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		SystemHealth: h.Health.Snapshot(),
		Status:       h.System.Status(),
	}
	if h.Audio != nil {
		if m, ok := h.Audio.Metrics(); ok {
			resp.Audio = &m
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearRateLimitHandler resumes analysis after the gateway throttled us.
func (h *Handlers) ClearRateLimitHandler(w http.ResponseWriter, r *http.Request) {
	h.Health.ClearRateLimit()
	writeJSON(w, http.StatusOK, h.Health.Snapshot())
}
