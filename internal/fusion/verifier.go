// Package fusion corroborates non-visual triggers (audio, access control)
// with a snapshot from the primary camera before raising an alert.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/services/analysis"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/system"
)

const (
	DefaultDebounce      = 5 * time.Second
	DefaultMinConfidence = 60.0

	archiveTimeout = 30 * time.Second
)

// DefaultAccessTriggers are the access-control events that need visual
// corroboration.
var DefaultAccessTriggers = []string{"DOOR_FORCED", "DOOR_HELD_OPEN"}

var ballisticMarkers = []string{"GUNSHOT", "BALLISTIC", "SHOT_FIRED"}

type Outcome int

const (
	OutcomeDebounced Outcome = iota + 1
	OutcomeDropped
	OutcomeConfirmed
	OutcomeRejected
	OutcomeFailed
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDebounced:
		return "debounced"
	case OutcomeDropped:
		return "dropped"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	case OutcomeIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type PrimarySource interface {
	Primary() (models.CameraSource, bool)
}

type FrameCapturer interface {
	Capture(ctx context.Context, src models.CameraSource, policy models.CapturePolicy) ([]byte, error)
}

type CrossModalVerifier interface {
	VerifyCrossModal(ctx context.Context, triggerLabel string, frame []byte) (*models.Verification, error)
}

type AlertIngester interface {
	Ingest(alert *models.Alert) string
}

// EvidenceArchive stores the frame that confirmed an alert.
type EvidenceArchive interface {
	PutEvidence(ctx context.Context, alertID string, frame []byte) error
}

type RateLimitGate interface {
	MarkRateLimited()
}

type Options struct {
	System         *system.System
	Cameras        PrimarySource
	Capturer       FrameCapturer
	Gateway        CrossModalVerifier
	Engine         AlertIngester
	Archive        EvidenceArchive
	Health         RateLimitGate
	Clock          clock.Clock
	Debounce       time.Duration
	MinConfidence  float64
	AccessTriggers []string
}

type Verifier struct {
	sys      *system.System
	cameras  PrimarySource
	capturer FrameCapturer
	gateway  CrossModalVerifier
	engine   AlertIngester
	archive  EvidenceArchive
	health   RateLimitGate
	clock    clock.Clock

	debounce       time.Duration
	minConfidence  float64
	accessTriggers map[string]struct{}

	mu          sync.Mutex
	lastTrigger map[models.Modality]time.Time

	archiving sync.WaitGroup
}

func New(opts Options) *Verifier {
	v := &Verifier{
		sys:           opts.System,
		cameras:       opts.Cameras,
		capturer:      opts.Capturer,
		gateway:       opts.Gateway,
		engine:        opts.Engine,
		archive:       opts.Archive,
		health:        opts.Health,
		clock:         opts.Clock,
		debounce:      opts.Debounce,
		minConfidence: opts.MinConfidence,
		lastTrigger:   make(map[models.Modality]time.Time),
	}
	if v.clock == nil {
		v.clock = clock.Real{}
	}
	if v.debounce <= 0 {
		v.debounce = DefaultDebounce
	}
	if v.minConfidence <= 0 {
		v.minConfidence = DefaultMinConfidence
	}
	triggers := opts.AccessTriggers
	if len(triggers) == 0 {
		triggers = DefaultAccessTriggers
	}
	v.accessTriggers = lo.SliceToMap(triggers, func(e string) (string, struct{}) {
		return strings.ToUpper(e), struct{}{}
	})
	return v
}

// OnTrigger verifies a trigger against the primary camera and raises the
// resulting alert. Failures are logged and reported through the Outcome.
func (v *Verifier) OnTrigger(ctx context.Context, trigger models.FusionTrigger) Outcome {
	if trigger.Timestamp.IsZero() {
		trigger.Timestamp = v.clock.Now()
	}
	if !v.admit(trigger) {
		slog.Debug("fusion: trigger debounced", "label", trigger.Label, "modality", trigger.Modality)
		return OutcomeDebounced
	}

	src, ok := v.cameras.Primary()
	if !ok {
		slog.Warn("fusion: no primary camera, trigger dropped", "label", trigger.Label)
		return OutcomeDropped
	}
	frame, err := v.capturer.Capture(ctx, src, models.FullResolution)
	if err != nil || len(frame) == 0 {
		slog.Warn("fusion: no frame available, trigger dropped", "label", trigger.Label, "camera", src.ID, "error", err)
		return OutcomeDropped
	}

	v.sys.SetStatus(models.StatusReasoning)
	defer v.sys.SetStatus(models.StatusIdle)

	verdict, err := v.gateway.VerifyCrossModal(ctx, trigger.Label, frame)
	if err != nil {
		if errors.Is(err, analysis.ErrRateLimited) && v.health != nil {
			v.health.MarkRateLimited()
		}
		slog.Error("fusion: verification failed", "label", trigger.Label, "error", err)
		return OutcomeFailed
	}

	if verdict.Verified && verdict.Confidence >= v.minConfidence {
		alert := v.confirmedAlert(src, trigger, verdict)
		clusterID := v.engine.Ingest(alert)
		v.sys.RecordAlert(alert)
		v.sys.SetLockdown(true, fmt.Sprintf("%s confirmed at %s", trigger.Label, src.Name))
		v.archiveFrame(alert.ID, frame)

		slog.Warn("fusion: threat confirmed, lockdown engaged",
			"label", trigger.Label,
			"modality", trigger.Modality,
			"location", src.Name,
			"confidence", verdict.Confidence,
			"cluster", clusterID,
		)
		return OutcomeConfirmed
	}

	alert := v.anomalyAlert(src, trigger, verdict)
	v.engine.Ingest(alert)
	v.sys.RecordAlert(alert)
	slog.Info("fusion: trigger not corroborated", "label", trigger.Label, "confidence", verdict.Confidence)
	return OutcomeRejected
}

// HandleAccessEvent converts a triggering access-control event into an IOT
// trigger. Other event types are ignored.
func (v *Verifier) HandleAccessEvent(ctx context.Context, ev models.AccessEvent) Outcome {
	if _, ok := v.accessTriggers[strings.ToUpper(ev.Event)]; !ok {
		return OutcomeIgnored
	}
	return v.OnTrigger(ctx, models.FusionTrigger{
		Label:     strings.ToUpper(ev.Event),
		Modality:  models.ModalityIoT,
		Timestamp: ev.Timestamp,
		Source:    ev.DoorID,
	})
}

// Wait blocks until pending evidence uploads finish.
func (v *Verifier) Wait() {
	v.archiving.Wait()
}

// admit applies the per-modality debounce on the verifier's own clock;
// the trigger timestamp is caller supplied and only describes the event.
// The slot is claimed before any I/O so a concurrent trigger of the same
// modality is rejected.
func (v *Verifier) admit(t models.FusionTrigger) bool {
	now := v.clock.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	if last, ok := v.lastTrigger[t.Modality]; ok && now.Sub(last) < v.debounce {
		return false
	}
	v.lastTrigger[t.Modality] = now
	return true
}

func (v *Verifier) confirmedAlert(src models.CameraSource, t models.FusionTrigger, verdict *models.Verification) *models.Alert {
	now := v.clock.Now()
	threat := verdict.ThreatLabel
	if threat == "" {
		threat = t.Label
	}
	alert := &models.Alert{
		ID:             uuid.NewString(),
		CameraID:       src.ID,
		Timestamp:      now,
		Severity:       models.SeverityCritical,
		Location:       src.Name,
		ThreatType:     threat,
		Confidence:     verdict.Confidence,
		Reasoning:      verdict.Reasoning,
		WeaponDetected: IsBallistic(t.Label),
		Modalities:     models.NewModalitySet(t.Modality, models.ModalityVisual, models.ModalityFusion),
	}
	alert.Audit(models.AuditFusionConfirmed, models.ActorSystem, now, triggerNote(t))
	return alert
}

func (v *Verifier) anomalyAlert(src models.CameraSource, t models.FusionTrigger, verdict *models.Verification) *models.Alert {
	now := v.clock.Now()
	alert := &models.Alert{
		ID:         uuid.NewString(),
		CameraID:   src.ID,
		Timestamp:  now,
		Severity:   models.SeverityLow,
		Location:   src.Name,
		ThreatType: models.ThreatSensorAnomaly,
		Confidence: verdict.Confidence,
		Reasoning:  verdict.Reasoning,
		Modalities: models.NewModalitySet(t.Modality, models.ModalityVisual),
	}
	alert.Audit(models.AuditFusionRejected, models.ActorSystem, now, triggerNote(t))
	return alert
}

func (v *Verifier) archiveFrame(alertID string, frame []byte) {
	if v.archive == nil {
		return
	}
	v.archiving.Add(1)
	go func() {
		defer v.archiving.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := v.archive.PutEvidence(ctx, alertID, frame); err != nil {
			slog.Error("fusion: evidence upload failed", "alert", alertID, "error", err)
		}
	}()
}

// IsBallistic reports whether a trigger label denotes a discharged weapon.
func IsBallistic(label string) bool {
	upper := strings.ToUpper(label)
	return lo.SomeBy(ballisticMarkers, func(m string) bool { return strings.Contains(upper, m) })
}

func triggerNote(t models.FusionTrigger) string {
	if t.Source == "" {
		return fmt.Sprintf("%s: %s", t.Modality, t.Label)
	}
	return fmt.Sprintf("%s: %s (%s)", t.Modality, t.Label, t.Source)
}
