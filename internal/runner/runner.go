// Package runner owns the periodic analysis loop: every tick it captures a
// frame from each attached camera, fans the frames out to the analysis
// gateway and feeds the results to the clustering engine.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/services/analysis"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/system"
)

const (
	// MinFrameBytes is the smallest encoded frame worth analyzing. Smaller
	// frames are blank or broken and are skipped.
	MinFrameBytes = 1000

	recentAlertsPerContext = 3
	unclassifiedThreat     = "UNCLASSIFIED"
)

var (
	ErrDisarmed      = errors.New("system disarmed")
	ErrCycleInFlight = errors.New("analysis cycle already in flight")
	ErrRateLimited   = errors.New("analysis paused: rate limited")
)

type SourceEnumerator interface {
	Sources() []models.CameraSource
}

type FrameCapturer interface {
	Capture(ctx context.Context, src models.CameraSource, policy models.CapturePolicy) ([]byte, error)
}

type Analyzer interface {
	AnalyzeFrame(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
}

type ProfileResolver interface {
	ActiveFor(cameraName string, now time.Time) []models.AdaptiveProfile
}

type AlertIngester interface {
	Ingest(alert *models.Alert) string
	Recent(location string, n int) []*models.Alert
}

type RateLimitGate interface {
	RateLimited() bool
	MarkRateLimited()
}

type Dependencies struct {
	System   *system.System
	Sources  SourceEnumerator
	Capturer FrameCapturer
	Analyzer Analyzer
	Profiles ProfileResolver
	Engine   AlertIngester
	Health   RateLimitGate
	Ticker   clock.Ticker
	Clock    clock.Clock
}

type Runner struct {
	sys      *system.System
	sources  SourceEnumerator
	capturer FrameCapturer
	analyzer Analyzer
	profiles ProfileResolver
	engine   AlertIngester
	health   RateLimitGate
	ticker   clock.Ticker
	clock    clock.Clock

	inFlight atomic.Bool
	cycles   sync.WaitGroup

	mu     sync.Mutex
	runCtx context.Context
}

func New(deps Dependencies) *Runner {
	c := deps.Clock
	if c == nil {
		c = clock.Real{}
	}
	return &Runner{
		sys:      deps.System,
		sources:  deps.Sources,
		capturer: deps.Capturer,
		analyzer: deps.Analyzer,
		profiles: deps.Profiles,
		engine:   deps.Engine,
		health:   deps.Health,
		ticker:   deps.Ticker,
		clock:    c,
	}
}

// Start follows the system state: the ticker runs only while armed, at the
// period of the current detection mode.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.runCtx = ctx
	r.mu.Unlock()

	r.sys.Subscribe(r.onChange)
	if r.sys.Armed() {
		r.startTicker(r.sys.Mode())
	}
	slog.Info("runner: started", "armed", r.sys.Armed(), "mode", r.sys.Mode())
}

// Stop halts the ticker and waits for an in-flight cycle to drain.
func (r *Runner) Stop() {
	r.ticker.Stop()
	r.cycles.Wait()
	slog.Info("runner: stopped")
}

func (r *Runner) onChange(c system.Change) {
	switch c.Kind {
	case system.ArmChanged:
		if c.Armed {
			r.startTicker(c.Mode)
		} else {
			r.ticker.Stop()
			slog.Info("runner: ticker stopped, system disarmed")
		}
	case system.ModeChanged:
		if c.Armed {
			r.startTicker(c.Mode)
		}
	}
}

func (r *Runner) startTicker(mode models.DetectionMode) {
	r.ticker.Start(mode.Interval(), r.tick)
	slog.Info("runner: ticker started", "mode", mode, "interval", mode.Interval())
}

// tick launches a cycle without blocking the ticker so that overlapping
// ticks reach the single-flight guard and are dropped there.
func (r *Runner) tick() {
	r.mu.Lock()
	ctx := r.runCtx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	r.cycles.Add(1)
	go func() {
		defer r.cycles.Done()
		if err := r.RunCycle(ctx); err != nil {
			slog.Debug("runner: tick skipped", "reason", err)
		}
	}()
}

// RunCycle executes one analysis cycle. It returns ErrDisarmed,
// ErrCycleInFlight or ErrRateLimited when the tick is skipped; failures
// inside the cycle are logged and never returned.
func (r *Runner) RunCycle(ctx context.Context) error {
	if !r.sys.Armed() {
		return ErrDisarmed
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	defer r.inFlight.Store(false)

	if r.health.RateLimited() {
		return ErrRateLimited
	}

	defer r.sys.SetStatus(models.StatusIdle)
	r.cycle(ctx)
	return nil
}

// InFlight reports whether a cycle is executing.
func (r *Runner) InFlight() bool {
	return r.inFlight.Load()
}

func (r *Runner) cycle(ctx context.Context) {
	started := r.clock.Now()
	mode := r.sys.Mode()
	sources := r.sources.Sources()
	if len(sources) == 0 {
		r.sys.RecordCycle(started, 0)
		return
	}

	r.sys.SetStatus(models.StatusPerceiving)
	frames := r.captureAll(ctx, sources, mode.CapturePolicy())

	r.sys.SetStatus(models.StatusReasoning)
	results := r.analyzeAll(ctx, sources, frames, mode, started)

	// Results are applied only if the system is still armed at this point.
	if !r.sys.Armed() {
		slog.Info("runner: disarmed during cycle, discarding results")
		return
	}

	r.sys.SetStatus(models.StatusActing)
	produced := 0
	for i, res := range results {
		if res == nil {
			continue
		}
		alert := r.buildAlert(sources[i], res)
		clusterID := r.engine.Ingest(alert)
		r.sys.RecordAlert(alert)
		produced++

		slog.Info("runner: alert raised",
			"camera", sources[i].ID,
			"location", alert.Location,
			"severity", alert.Severity,
			"threat", alert.ThreatType,
			"cluster", clusterID,
		)
	}
	r.sys.RecordCycle(started, produced)
	slog.Debug("runner: cycle finished", "sources", len(sources), "alerts", produced, "took", r.clock.Now().Sub(started))
}

func (r *Runner) captureAll(ctx context.Context, sources []models.CameraSource, policy models.CapturePolicy) [][]byte {
	frames := make([][]byte, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame, err := r.capturer.Capture(ctx, src, policy)
			if err != nil {
				slog.Warn("runner: frame capture failed", "camera", src.ID, "error", err)
				return
			}
			if len(frame) < MinFrameBytes {
				slog.Debug("runner: empty frame skipped", "camera", src.ID, "bytes", len(frame))
				return
			}
			frames[i] = frame
		}()
	}
	wg.Wait()
	return frames
}

// analyzeAll runs one gateway call per captured frame concurrently and
// waits for every call to settle.
func (r *Runner) analyzeAll(ctx context.Context, sources []models.CameraSource, frames [][]byte, mode models.DetectionMode, now time.Time) []*models.AnalysisResult {
	facility := r.sys.FacilityType()
	rules := r.sys.Rules()

	results := make([]*models.AnalysisResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		if frames[i] == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.analyzer.AnalyzeFrame(ctx, models.AnalysisRequest{
				Frame:          frames[i],
				CameraID:       src.ID,
				Location:       src.Name,
				RecentAlerts:   r.engine.Recent(src.Name, recentAlertsPerContext),
				Mode:           mode,
				FacilityType:   facility,
				Rules:          rules,
				ActiveProfiles: r.profiles.ActiveFor(src.Name, now),
			})
			if err != nil {
				if errors.Is(err, analysis.ErrRateLimited) {
					r.health.MarkRateLimited()
				}
				slog.Error("runner: analysis failed", "camera", src.ID, "error", err)
				return
			}
			results[i] = res
		}()
	}
	wg.Wait()
	return results
}

func (r *Runner) buildAlert(src models.CameraSource, res *models.AnalysisResult) *models.Alert {
	now := r.clock.Now()
	threat := res.ThreatType
	if threat == "" {
		threat = unclassifiedThreat
	}
	alert := &models.Alert{
		ID:             uuid.NewString(),
		CameraID:       src.ID,
		Timestamp:      now,
		Severity:       res.ThreatLevel,
		Location:       src.Name,
		ThreatType:     threat,
		Confidence:     models.ClampConfidence(res.Confidence),
		Reasoning:      res.Reasoning,
		Prediction:     res.Prediction,
		WeaponDetected: res.WeaponDetected,
		Modalities:     models.NewModalitySet(models.ModalityVisual),
	}
	if !alert.Severity.Valid() {
		alert.Severity = models.SeverityLow
	}
	if res.Tracking != nil {
		t := *res.Tracking
		alert.Tracking = &t
	}
	alert.Audit(models.AuditCaptured, models.ActorSystem, now, "")
	return alert
}
