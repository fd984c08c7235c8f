// Package audio classifies microphone level samples and hands suspicious
// ones to the fusion verifier.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/fusion"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/system"
)

const (
	SampleInterval = 100 * time.Millisecond

	ScreamThreshold        = 45.0
	GunshotThreshold       = 80.0
	ScreamTriggerThreshold = 60.0

	LabelGunshot = "GUNSHOT_DETECTED"
	LabelScream  = "SCREAM_DETECTED"
)

// Metrics is the instantaneous classification of one sample. The two
// predicates are independent; a gunshot level is also a scream level.
type Metrics struct {
	Average     float64 `json:"average"`
	IsScreaming bool    `json:"is_screaming"`
	IsGunshot   bool    `json:"is_gunshot"`
}

func Classify(avg float64) Metrics {
	return Metrics{
		Average:     avg,
		IsScreaming: avg > ScreamThreshold,
		IsGunshot:   avg > GunshotThreshold,
	}
}

// TriggerLabel returns the label to verify for m, if any. Plain screaming
// below the stricter trigger threshold is not reported.
func TriggerLabel(m Metrics) (string, bool) {
	switch {
	case m.IsGunshot:
		return LabelGunshot, true
	case m.IsScreaming && m.Average > ScreamTriggerThreshold:
		return LabelScream, true
	default:
		return "", false
	}
}

// LevelSource yields the mean magnitude of the most recent audio window.
// ok is false when no new sample arrived since the last read.
type LevelSource interface {
	Latest() (avg float64, ok bool)
}

type TriggerSink interface {
	OnTrigger(ctx context.Context, trigger models.FusionTrigger) fusion.Outcome
}

type Detector struct {
	sys    *system.System
	source LevelSource
	sink   TriggerSink
	ticker clock.Ticker
	clock  clock.Clock
	name   string

	mu      sync.Mutex
	ctx     context.Context
	metrics *Metrics

	pending sync.WaitGroup
}

// NewDetector builds a detector; name identifies the microphone in
// trigger sources.
func NewDetector(sys *system.System, source LevelSource, sink TriggerSink, ticker clock.Ticker, clk clock.Clock, name string) *Detector {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Detector{
		sys:    sys,
		source: source,
		sink:   sink,
		ticker: ticker,
		clock:  clk,
		name:   name,
	}
}

// Start samples while the system is armed and follows arm changes.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	d.sys.Subscribe(func(c system.Change) {
		if c.Kind != system.ArmChanged {
			return
		}
		if c.Armed {
			d.arm()
		} else {
			d.disarm()
		}
	})
	if d.sys.Armed() {
		d.arm()
	}
}

func (d *Detector) Stop() {
	d.disarm()
	d.pending.Wait()
}

func (d *Detector) arm() {
	d.ticker.Start(SampleInterval, d.Sample)
	slog.Info("audio: sampling started", "interval", SampleInterval, "source", d.name)
}

func (d *Detector) disarm() {
	d.ticker.Stop()
	d.mu.Lock()
	d.metrics = nil
	d.mu.Unlock()
	slog.Info("audio: sampling stopped", "source", d.name)
}

// Sample reads one level, classifies it and dispatches at most one trigger.
// The verifier runs on its own goroutine so sampling stays periodic.
func (d *Detector) Sample() {
	avg, ok := d.source.Latest()
	if !ok {
		return
	}
	m := Classify(avg)

	d.mu.Lock()
	d.metrics = &m
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	label, fire := TriggerLabel(m)
	if !fire {
		return
	}
	trigger := models.FusionTrigger{
		Label:     label,
		Modality:  models.ModalityAudio,
		Timestamp: d.clock.Now(),
		Source:    d.name,
	}
	slog.Debug("audio: anomaly detected", "label", label, "avg", avg)

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		outcome := d.sink.OnTrigger(ctx, trigger)
		slog.Debug("audio: trigger handled", "label", label, "outcome", outcome)
	}()
}

// Metrics returns the latest classification, if the detector has sampled
// since it was armed.
func (d *Detector) Metrics() (Metrics, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.metrics == nil {
		return Metrics{}, false
	}
	return *d.metrics, true
}

// Wait blocks until dispatched triggers are handled.
func (d *Detector) Wait() {
	d.pending.Wait()
}
