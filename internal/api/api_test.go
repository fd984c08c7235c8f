package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/api"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/cameras"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock/clocktest"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/clustering"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/fusion"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/health"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/profiles"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/system"
)

var t0 = time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)

type stubAccess struct {
	events []models.AccessEvent
}

func (s *stubAccess) HandleAccessEvent(_ context.Context, ev models.AccessEvent) fusion.Outcome {
	s.events = append(s.events, ev)
	return fusion.OutcomeConfirmed
}

type recordingWriter struct {
	saved map[string]any
}

func (w *recordingWriter) Schedule(key string, v any) { w.saved[key] = v }

type fixture struct {
	sys     *system.System
	engine  *clustering.Engine
	health  *health.Monitor
	cameras *cameras.Registry
	access  *stubAccess
	writer  *recordingWriter
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sys: system.New(system.Options{Mode: models.ModeBalanced}),
		cameras: cameras.NewRegistry([]models.CameraSource{
			{ID: "cam-1", Name: "Lobby", Primary: true},
		}),
		health: health.NewMonitor(clocktest.NewTicker(), 3),
		access: &stubAccess{},
		writer: &recordingWriter{saved: make(map[string]any)},
	}
	f.engine = clustering.New(clustering.Options{Clock: clocktest.NewClock(t0), Sources: f.cameras})
	f.router = api.NewRouter(&api.Handlers{
		System:   f.sys,
		Engine:   f.engine,
		Health:   f.health,
		Profiles: profiles.NewRegistry(f.writer),
		Cameras:  f.cameras,
		Access:   f.access,
		Writer:   f.writer,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Operator", "guard-7")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestAlertFeedbackFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clusterID := f.engine.Ingest(&models.Alert{
		ID:         "a-1",
		Location:   "Lobby",
		Timestamp:  t0,
		Severity:   models.SeverityHigh,
		ThreatType: "INTRUDER",
	})

	rec := f.do(t, http.MethodPost, "/alerts/a-1/verify", `{"note":"confirmed on CCTV"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	alert := decode[models.Alert](t, rec)
	if alert.Classification != models.ClassificationVerified {
		t.Fatalf("expected VERIFIED, got %q", alert.Classification)
	}
	last := alert.AuditTrail[len(alert.AuditTrail)-1]
	if last.Actor != "guard-7" || last.Action != models.AuditVerified || last.Note != "confirmed on CCTV" {
		t.Fatalf("unexpected audit entry %+v", last)
	}

	if rec := f.do(t, http.MethodPost, "/alerts/a-1/annotate", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty annotation, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/alerts/a-1/pin", ""); rec.Code != http.StatusOK || !decode[models.Alert](t, rec).Pinned {
		t.Fatalf("expected pinned alert, got %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, "/alerts/missing/dismiss", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown alert, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/clusters/"+clusterID+"/resolve", "")
	if rec.Code != http.StatusOK || decode[models.AlertCluster](t, rec).Status != models.ClusterResolved {
		t.Fatalf("expected resolved cluster, got %d %s", rec.Code, rec.Body)
	}
	rec = f.do(t, http.MethodGet, "/clusters?active=true", "")
	if got := decode[[]models.AlertCluster](t, rec); len(got) != 0 {
		t.Fatalf("expected no active clusters, got %d", len(got))
	}
	if rec := f.do(t, http.MethodPost, "/clusters/nope/resolve", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cluster, got %d", rec.Code)
	}
}

func TestSystemControls(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/system/arm", ""); rec.Code != http.StatusOK || !f.sys.Armed() {
		t.Fatalf("expected armed, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/system/mode", `{"mode":"TURBO"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/system/mode", `{"mode":"DETAILED"}`); rec.Code != http.StatusOK || f.sys.Mode() != models.ModeDetailed {
		t.Fatalf("expected DETAILED mode, got %d %s", rec.Code, f.sys.Mode())
	}

	rec := f.do(t, http.MethodPut, "/system/rules", `{"rules":["no loitering"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if saved, ok := f.writer.saved[storage.KeyRules].([]string); !ok || len(saved) != 1 {
		t.Fatalf("expected rules persisted, got %v", f.writer.saved[storage.KeyRules])
	}

	f.sys.SetLockdown(true, "GUNSHOT_DETECTED confirmed at Lobby")
	rec = f.do(t, http.MethodDelete, "/system/lockdown", "")
	snap := decode[system.Snapshot](t, rec)
	if snap.Lockdown || f.sys.Lockdown() {
		t.Fatalf("expected lockdown cleared")
	}

	if rec := f.do(t, http.MethodPost, "/system/disarm", ""); rec.Code != http.StatusOK || f.sys.Armed() {
		t.Fatalf("expected disarmed, got %d", rec.Code)
	}
}

func TestClearRateLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.health.MarkRateLimited()

	rec := f.do(t, http.MethodGet, "/health", "")
	if got := decode[models.SystemHealth](t, rec); !got.RateLimited || got.NeuralLoad != 0 {
		t.Fatalf("expected rate limited snapshot, got %+v", got)
	}

	rec = f.do(t, http.MethodDelete, "/health/rate-limit", "")
	if rec.Code != http.StatusOK || f.health.RateLimited() {
		t.Fatalf("expected rate limit cleared, got %d", rec.Code)
	}
}

func TestProfilesAndCameras(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/profiles", `{"target_camera_id":"ALL","start":"22:00","end":"06:00","sensitivity":"PARANOID","is_active":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	saved := decode[models.AdaptiveProfile](t, rec)
	if saved.ID == "" {
		t.Fatalf("expected generated profile id")
	}
	if rec := f.do(t, http.MethodPut, "/profiles", `{"target_camera_id":"ALL","start":"25:00","end":"06:00","sensitivity":"HIGH"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid window, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/profiles/"+saved.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/profiles/"+saved.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}

	f.engine.Ingest(&models.Alert{Location: "Lobby", Timestamp: t0, Severity: models.SeverityLow, ThreatType: "LOITERING"})
	rec = f.do(t, http.MethodPost, "/cameras/cam-1/reset", "")
	if got := decode[[]models.CameraSource](t, rec); len(got) != 1 || got[0].PriorityScore != 0 || got[0].ActiveAlerts != 0 {
		t.Fatalf("expected priority reset, got %+v", got)
	}
	if rec := f.do(t, http.MethodPost, "/cameras/cam-9/reset", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown camera, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPut, "/cameras", `{"id":"cam-2","name":"Loading Dock","device_handle":"http://cam-2/snap.jpg"}`)
	if got := decode[[]models.CameraSource](t, rec); len(got) != 2 {
		t.Fatalf("expected 2 cameras after attach, got %+v", got)
	}
	if rec := f.do(t, http.MethodDelete, "/cameras/cam-2", ""); rec.Code != http.StatusNoContent || len(f.cameras.Sources()) != 1 {
		t.Fatalf("expected camera detached, got %d", rec.Code)
	}
}

func TestAccessEventWebhook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/access-events", `{"event":"DOOR_FORCED"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without door id, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/access-events", `{"door_id":"D-2","event":"DOOR_FORCED"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["outcome"]; got != "confirmed" {
		t.Fatalf("expected confirmed outcome, got %q", got)
	}
	if len(f.access.events) != 1 || f.access.events[0].Timestamp.IsZero() {
		t.Fatalf("expected event forwarded with timestamp, got %+v", f.access.events)
	}
}
