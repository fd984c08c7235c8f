package fusion_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/cameras"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock/clocktest"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/clustering"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/fusion"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/health"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/services/analysis"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/system"
)

var t0 = time.Date(2026, 5, 2, 2, 15, 0, 0, time.UTC)

type stubCapturer struct {
	mu     sync.Mutex
	frame  []byte
	policy models.CapturePolicy
	calls  int
}

func (s *stubCapturer) Capture(_ context.Context, _ models.CameraSource, policy models.CapturePolicy) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.policy = policy
	return s.frame, nil
}

type stubGateway struct {
	mu       sync.Mutex
	labels   []string
	verdict  *models.Verification
	err      error
	onVerify func()
}

func (s *stubGateway) VerifyCrossModal(_ context.Context, label string, _ []byte) (*models.Verification, error) {
	if s.onVerify != nil {
		s.onVerify()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, label)
	if s.err != nil {
		return nil, s.err
	}
	v := *s.verdict
	return &v, nil
}

func (s *stubGateway) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.labels)
}

type memArchive struct {
	mu     sync.Mutex
	frames map[string][]byte
}

func (m *memArchive) PutEvidence(_ context.Context, alertID string, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[alertID] = frame
	return nil
}

type fixture struct {
	clock    *clocktest.Clock
	sys      *system.System
	engine   *clustering.Engine
	capturer *stubCapturer
	gateway  *stubGateway
	archive  *memArchive
	health   *health.Monitor
	verifier *fusion.Verifier
}

func newFixture(t *testing.T, verdict *models.Verification) *fixture {
	t.Helper()

	clk := clocktest.NewClock(t0)
	registry := cameras.NewRegistry([]models.CameraSource{
		{ID: "cam-2", Name: "Parking"},
		{ID: "cam-1", Name: "Lobby", Primary: true},
	})
	f := &fixture{
		clock:    clk,
		sys:      system.New(system.Options{}),
		engine:   clustering.New(clustering.Options{Clock: clk, Sources: registry}),
		capturer: &stubCapturer{frame: bytes.Repeat([]byte{1}, 2048)},
		gateway:  &stubGateway{verdict: verdict},
		archive:  &memArchive{frames: make(map[string][]byte)},
		health:   health.NewMonitor(clocktest.NewTicker(), 7),
	}
	f.verifier = fusion.New(fusion.Options{
		System:   f.sys,
		Cameras:  registry,
		Capturer: f.capturer,
		Gateway:  f.gateway,
		Engine:   f.engine,
		Archive:  f.archive,
		Health:   f.health,
		Clock:    clk,
	})
	return f
}

func trigger(label string, m models.Modality, at time.Time) models.FusionTrigger {
	return models.FusionTrigger{Label: label, Modality: m, Timestamp: at}
}

func TestConfirmedTriggerRaisesCriticalAlertAndLockdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: true, Confidence: 91, ThreatLabel: "ACTIVE_SHOOTER", Reasoning: "muzzle flash visible"})

	got := f.verifier.OnTrigger(context.Background(), trigger("GUNSHOT_DETECTED", models.ModalityAudio, t0))
	if got != fusion.OutcomeConfirmed {
		t.Fatalf("expected confirmed, got %s", got)
	}
	f.verifier.Wait()

	alerts := f.engine.Alerts(0)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Severity != models.SeverityCritical || !a.WeaponDetected || a.Location != "Lobby" {
		t.Fatalf("unexpected alert %+v", a)
	}
	for _, m := range []models.Modality{models.ModalityAudio, models.ModalityVisual, models.ModalityFusion} {
		if !a.Modalities.Has(m) {
			t.Fatalf("expected modality %s in %v", m, a.Modalities.List())
		}
	}
	if len(a.AuditTrail) != 1 || a.AuditTrail[0].Action != models.AuditFusionConfirmed {
		t.Fatalf("unexpected audit trail %+v", a.AuditTrail)
	}
	if !f.sys.Lockdown() {
		t.Fatalf("expected lockdown engaged")
	}
	if f.capturer.policy != models.FullResolution {
		t.Fatalf("expected full resolution capture, got %+v", f.capturer.policy)
	}
	if _, ok := f.archive.frames[a.ID]; !ok {
		t.Fatalf("expected evidence archived for %s", a.ID)
	}
	if f.sys.Status() != models.StatusIdle {
		t.Fatalf("expected IDLE after verification, got %s", f.sys.Status())
	}
}

func TestRejectedTriggerRaisesLowAnomalyWithoutLockdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: false, Confidence: 20, Reasoning: "empty corridor"})

	got := f.verifier.OnTrigger(context.Background(), trigger("SCREAM_DETECTED", models.ModalityAudio, t0))
	if got != fusion.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", got)
	}
	a := f.engine.Alerts(0)[0]
	if a.Severity != models.SeverityLow || a.ThreatType != models.ThreatSensorAnomaly || a.Reasoning != "empty corridor" {
		t.Fatalf("unexpected anomaly alert %+v", a)
	}
	if a.Modalities.Has(models.ModalityFusion) || a.WeaponDetected {
		t.Fatalf("anomaly alert must not carry FUSION or weapon flag: %+v", a)
	}
	if f.sys.Lockdown() {
		t.Fatalf("expected no lockdown on rejection")
	}
	if len(f.archive.frames) != 0 {
		t.Fatalf("expected no evidence archived on rejection")
	}
}

func TestLowConfidenceVerificationIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: true, Confidence: 59.9})
	if got := f.verifier.OnTrigger(context.Background(), trigger("GUNSHOT_DETECTED", models.ModalityAudio, t0)); got != fusion.OutcomeRejected {
		t.Fatalf("expected rejected below minimum confidence, got %s", got)
	}
	if f.sys.Lockdown() {
		t.Fatalf("expected no lockdown")
	}
}

func TestDebounceIsPerModality(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: false, Confidence: 10})
	ctx := context.Background()

	cases := []struct {
		at       time.Duration
		modality models.Modality
		want     fusion.Outcome
	}{
		{0, models.ModalityAudio, fusion.OutcomeRejected},
		{4999 * time.Millisecond, models.ModalityAudio, fusion.OutcomeDebounced},
		{time.Second, models.ModalityIoT, fusion.OutcomeRejected},
		{5 * time.Second, models.ModalityAudio, fusion.OutcomeRejected},
		{6 * time.Second, models.ModalityIoT, fusion.OutcomeRejected},
		{7 * time.Second, models.ModalityIoT, fusion.OutcomeDebounced},
	}
	for i, tc := range cases {
		f.clock.Set(t0.Add(tc.at))
		got := f.verifier.OnTrigger(ctx, trigger("SCREAM_DETECTED", tc.modality, t0.Add(tc.at)))
		if got != tc.want {
			t.Fatalf("case %d: expected %s, got %s", i, tc.want, got)
		}
	}
	if got := f.gateway.calls(); got != 4 {
		t.Fatalf("expected 4 verification calls, got %d", got)
	}
}

func TestDebounceIgnoresCallerTimestamps(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: true, Confidence: 80, ThreatLabel: "FORCED_ENTRY"})
	ctx := context.Background()

	future := models.AccessEvent{DoorID: "D-1", Event: "DOOR_FORCED", Timestamp: t0.Add(time.Hour)}
	if got := f.verifier.HandleAccessEvent(ctx, future); got != fusion.OutcomeConfirmed {
		t.Fatalf("expected future-stamped event confirmed, got %s", got)
	}

	for i, after := range []time.Duration{10 * time.Second, 10 * time.Minute, 59 * time.Minute} {
		f.clock.Set(t0.Add(after))
		ev := models.AccessEvent{DoorID: "D-1", Event: "DOOR_FORCED", Timestamp: t0.Add(after)}
		if got := f.verifier.HandleAccessEvent(ctx, ev); got != fusion.OutcomeConfirmed {
			t.Fatalf("event %d at +%s: expected confirmed, got %s", i, after, got)
		}
	}

	f.clock.Set(t0.Add(59*time.Minute + time.Second))
	past := models.AccessEvent{DoorID: "D-1", Event: "DOOR_FORCED", Timestamp: t0.Add(-time.Hour)}
	if got := f.verifier.HandleAccessEvent(ctx, past); got != fusion.OutcomeDebounced {
		t.Fatalf("expected event within 5s of the previous one debounced, got %s", got)
	}
	f.verifier.Wait()

	if got := f.gateway.calls(); got != 4 {
		t.Fatalf("expected 4 verification calls, got %d", got)
	}
}

func TestStatusIsReasoningDuringVerification(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: false, Confidence: 20})
	var seen models.EngineStatus
	f.gateway.onVerify = func() { seen = f.sys.Status() }

	if got := f.verifier.OnTrigger(context.Background(), trigger("SCREAM_DETECTED", models.ModalityAudio, t0)); got != fusion.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", got)
	}
	if seen != models.StatusReasoning {
		t.Fatalf("expected REASONING while verifying, got %s", seen)
	}
	if f.sys.Status() != models.StatusIdle {
		t.Fatalf("expected IDLE after verification, got %s", f.sys.Status())
	}
}

func TestConcurrentTriggersVerifyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: false, Confidence: 10})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.verifier.OnTrigger(context.Background(), trigger("GUNSHOT_DETECTED", models.ModalityAudio, t0))
		}()
	}
	wg.Wait()

	if got := f.gateway.calls(); got != 1 {
		t.Fatalf("expected a single verification call, got %d", got)
	}
}

func TestTransportFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.gateway.err = fmt.Errorf("verify: %w", analysis.ErrTransport)

	if got := f.verifier.OnTrigger(context.Background(), trigger("GUNSHOT_DETECTED", models.ModalityAudio, t0)); got != fusion.OutcomeFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if len(f.engine.Alerts(0)) != 0 || f.sys.Lockdown() {
		t.Fatalf("expected no alert and no lockdown after transport failure")
	}
	if f.sys.Status() != models.StatusIdle {
		t.Fatalf("expected IDLE, got %s", f.sys.Status())
	}
	if f.health.RateLimited() {
		t.Fatalf("transport failure must not set rate-limit flag")
	}

	f.gateway.err = fmt.Errorf("verify: %w", analysis.ErrRateLimited)
	f.clock.Advance(time.Minute)
	if got := f.verifier.OnTrigger(context.Background(), trigger("GUNSHOT_DETECTED", models.ModalityAudio, t0.Add(time.Minute))); got != fusion.OutcomeFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if !f.health.RateLimited() {
		t.Fatalf("expected rate-limit flag after 429")
	}
}

func TestMissingFrameDropsTrigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: true, Confidence: 99})
	f.capturer.frame = nil

	if got := f.verifier.OnTrigger(context.Background(), trigger("GUNSHOT_DETECTED", models.ModalityAudio, t0)); got != fusion.OutcomeDropped {
		t.Fatalf("expected dropped, got %s", got)
	}
	if f.gateway.calls() != 0 {
		t.Fatalf("expected no verification without a frame")
	}
}

func TestHandleAccessEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.Verification{Verified: true, Confidence: 75, ThreatLabel: "FORCED_ENTRY"})
	ctx := context.Background()

	if got := f.verifier.HandleAccessEvent(ctx, models.AccessEvent{DoorID: "D-4", Event: "BADGE_OK", Timestamp: t0}); got != fusion.OutcomeIgnored {
		t.Fatalf("expected badge event ignored, got %s", got)
	}
	if got := f.verifier.HandleAccessEvent(ctx, models.AccessEvent{DoorID: "D-4", Event: "door_forced", Timestamp: t0}); got != fusion.OutcomeConfirmed {
		t.Fatalf("expected forced door confirmed, got %s", got)
	}
	f.verifier.Wait()

	a := f.engine.Alerts(0)[0]
	if !a.Modalities.Has(models.ModalityIoT) || a.WeaponDetected {
		t.Fatalf("unexpected access alert %+v", a)
	}
	if a.ThreatType != "FORCED_ENTRY" {
		t.Fatalf("expected threat label from verification, got %q", a.ThreatType)
	}
}

func TestIsBallistic(t *testing.T) {
	t.Parallel()

	for label, want := range map[string]bool{
		"GUNSHOT_DETECTED":  true,
		"ballistic_impact":  true,
		"SHOT_FIRED":        true,
		"SCREAM_DETECTED":   false,
		"DOOR_FORCED":       false,
		"GLASS_BREAK_SHORT": false,
	} {
		if got := fusion.IsBallistic(label); got != want {
			t.Fatalf("IsBallistic(%q) = %v, want %v", label, got, want)
		}
	}
}
