// Package api is the operator HTTP surface of the engine.
package api

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/audio"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/fusion"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/system"
)

const (
	operatorHeader  = "X-Operator"
	defaultOperator = "operator"
	maxBodyBytes    = 1 << 20
)

type AlertEngine interface {
	Clusters(activeOnly bool) []*models.AlertCluster
	Cluster(id string) (*models.AlertCluster, error)
	Resolve(id string) error
	Alerts(limit int) []*models.Alert
	Alert(id string) (*models.Alert, error)
	Verify(id, actor, note string) (*models.Alert, error)
	Dismiss(id, actor, note string) (*models.Alert, error)
	Annotate(id, actor, note string) (*models.Alert, error)
	Pin(id, actor string, pinned bool) (*models.Alert, error)
}

type HealthMonitor interface {
	Snapshot() models.SystemHealth
	ClearRateLimit()
}

type ProfileRegistry interface {
	List() []models.AdaptiveProfile
	Put(p models.AdaptiveProfile) (models.AdaptiveProfile, error)
	Remove(id string) error
}

type CameraRegistry interface {
	Sources() []models.CameraSource
	Attach(src models.CameraSource)
	Detach(id string) error
	ResetPriority(id string) error
}

type AccessEventHandler interface {
	HandleAccessEvent(ctx context.Context, ev models.AccessEvent) fusion.Outcome
}

type AudioMetrics interface {
	Metrics() (audio.Metrics, bool)
}

type EvidenceStore interface {
	GetEvidence(ctx context.Context, alertID string) ([]byte, error)
}

type Persister interface {
	Schedule(key string, v any)
}

// Handlers holds the collaborators. Audio, Evidence, Writer and Feed are
// optional.
type Handlers struct {
	System   *system.System
	Engine   AlertEngine
	Health   HealthMonitor
	Profiles ProfileRegistry
	Cameras  CameraRegistry
	Access   AccessEventHandler
	Audio    AudioMetrics
	Evidence EvidenceStore
	Writer   Persister
	Feed     http.Handler
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/clusters", h.ListClustersHandler).Methods(http.MethodGet)
	r.HandleFunc("/clusters/{id}", h.GetClusterHandler).Methods(http.MethodGet)
	r.HandleFunc("/clusters/{id}/resolve", h.ResolveClusterHandler).Methods(http.MethodPost)

	r.HandleFunc("/alerts", h.ListAlertsHandler).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}", h.GetAlertHandler).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}/evidence", h.GetEvidenceHandler).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}/{action:verify|dismiss|annotate|pin|unpin}", h.AlertFeedbackHandler).Methods(http.MethodPost)

	r.HandleFunc("/system", h.GetSystemHandler).Methods(http.MethodGet)
	r.HandleFunc("/system/{action:arm|disarm}", h.ArmHandler).Methods(http.MethodPost)
	r.HandleFunc("/system/mode", h.SetModeHandler).Methods(http.MethodPut)
	r.HandleFunc("/system/rules", h.SetRulesHandler).Methods(http.MethodPut)
	r.HandleFunc("/system/lockdown", h.ClearLockdownHandler).Methods(http.MethodDelete)

	r.HandleFunc("/health", h.GetHealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/health/rate-limit", h.ClearRateLimitHandler).Methods(http.MethodDelete)

	r.HandleFunc("/profiles", h.ListProfilesHandler).Methods(http.MethodGet)
	r.HandleFunc("/profiles", h.PutProfileHandler).Methods(http.MethodPut)
	r.HandleFunc("/profiles/{id}", h.DeleteProfileHandler).Methods(http.MethodDelete)

	r.HandleFunc("/cameras", h.ListCamerasHandler).Methods(http.MethodGet)
	r.HandleFunc("/cameras", h.AttachCameraHandler).Methods(http.MethodPut)
	r.HandleFunc("/cameras/{id}", h.DetachCameraHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cameras/{id}/reset", h.ResetCameraHandler).Methods(http.MethodPost)

	r.HandleFunc("/access-events", h.AccessEventHandler).Methods(http.MethodPost)

	if h.Feed != nil {
		r.Handle("/ws", h.Feed).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func operator(r *http.Request) string {
	if op := r.Header.Get(operatorHeader); op != "" {
		return op
	}
	return defaultOperator
}
