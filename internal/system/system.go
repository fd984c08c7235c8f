// Package system holds the process-wide engine state shared by the
// scheduler, the fusion verifier and the operator API.
package system

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

// StatusScanning is shown when a cycle produced no alerts.
const StatusScanning = "Scanning active grids..."

type ChangeKind int

const (
	ArmChanged ChangeKind = iota + 1
	ModeChanged
	LockdownChanged
)

// Change is delivered to subscribers after the state was updated.
type Change struct {
	Kind     ChangeKind
	Armed    bool
	Mode     models.DetectionMode
	Lockdown bool
	Reason   string
}

type Options struct {
	Mode         models.DetectionMode
	FacilityType string
	Rules        []string
}

type System struct {
	mu             sync.RWMutex
	armed          bool
	lockdown       bool
	lockdownReason string
	lockdownAt     time.Time
	mode           models.DetectionMode
	facilityType   string
	rules          []string
	status         models.EngineStatus
	stats          models.Stats

	subMu       sync.Mutex
	subscribers []func(Change)
}

func New(opts Options) *System {
	mode := opts.Mode
	if _, err := models.ParseMode(string(mode)); err != nil {
		mode = models.ModeBalanced
	}
	return &System{
		mode:         mode,
		facilityType: opts.FacilityType,
		rules:        append([]string(nil), opts.Rules...),
		status:       models.StatusIdle,
		stats: models.Stats{
			BySeverity: make(map[models.Severity]int),
			StatusLine: StatusScanning,
		},
	}
}

// Subscribe registers fn for state changes. Callbacks run synchronously on
// the goroutine that made the change, outside the state lock.
func (s *System) Subscribe(fn func(Change)) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

func (s *System) notify(c Change) {
	s.subMu.Lock()
	subs := slices.Clone(s.subscribers)
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}

func (s *System) Arm() {
	s.setArmed(true)
}

func (s *System) Disarm() {
	s.setArmed(false)
}

func (s *System) setArmed(armed bool) {
	s.mu.Lock()
	if s.armed == armed {
		s.mu.Unlock()
		return
	}
	s.armed = armed
	mode := s.mode
	s.mu.Unlock()

	slog.Info("system: armed state changed", "armed", armed)
	s.notify(Change{Kind: ArmChanged, Armed: armed, Mode: mode})
}

func (s *System) Armed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.armed
}

func (s *System) SetMode(mode models.DetectionMode) error {
	if _, err := models.ParseMode(string(mode)); err != nil {
		return err
	}

	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return nil
	}
	s.mode = mode
	armed := s.armed
	s.mu.Unlock()

	slog.Info("system: detection mode changed", "mode", mode)
	s.notify(Change{Kind: ModeChanged, Armed: armed, Mode: mode})
	return nil
}

func (s *System) Mode() models.DetectionMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *System) FacilityType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facilityType
}

func (s *System) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rules...)
}

func (s *System) SetRules(rules []string) {
	s.mu.Lock()
	s.rules = append([]string(nil), rules...)
	s.mu.Unlock()
}

func (s *System) SetLockdown(on bool, reason string) {
	s.mu.Lock()
	if s.lockdown == on {
		s.mu.Unlock()
		return
	}
	s.lockdown = on
	s.lockdownReason = reason
	s.lockdownAt = time.Now()
	armed, mode := s.armed, s.mode
	s.mu.Unlock()

	if on {
		slog.Warn("system: lockdown engaged", "reason", reason)
	} else {
		slog.Info("system: lockdown lifted", "reason", reason)
	}
	s.notify(Change{Kind: LockdownChanged, Armed: armed, Mode: mode, Lockdown: on, Reason: reason})
}

func (s *System) Lockdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lockdown
}

func (s *System) SetStatus(status models.EngineStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *System) Status() models.EngineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RecordAlert updates alert counters.
func (s *System) RecordAlert(a *models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalAlerts++
	s.stats.BySeverity[a.Severity]++
	if a.WeaponDetected {
		s.stats.WeaponsDetected++
	}
}

// RecordCycle records a finished analysis cycle and its alert count.
func (s *System) RecordCycle(at time.Time, alerts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Cycles++
	s.stats.LastCycleAt = at.Unix()
	s.stats.LastCycleAlerts = alerts
	if alerts == 0 {
		s.stats.StatusLine = StatusScanning
	} else {
		s.stats.StatusLine = fmt.Sprintf("%d new detections", alerts)
	}
}

func (s *System) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.stats
	out.BySeverity = make(map[models.Severity]int, len(s.stats.BySeverity))
	for k, v := range s.stats.BySeverity {
		out.BySeverity[k] = v
	}
	return out
}

// Snapshot is the operator-facing view of the system state.
type Snapshot struct {
	Armed          bool                 `json:"armed"`
	Lockdown       bool                 `json:"lockdown"`
	LockdownReason string               `json:"lockdown_reason,omitempty"`
	LockdownAt     *time.Time           `json:"lockdown_at,omitempty"`
	Mode           models.DetectionMode `json:"mode"`
	FacilityType   string               `json:"facility_type"`
	Rules          []string             `json:"rules"`
	Status         models.EngineStatus  `json:"status"`
	Stats          models.Stats         `json:"stats"`
}

func (s *System) Snapshot() Snapshot {
	stats := s.Stats()

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Armed:          s.armed,
		Lockdown:       s.lockdown,
		LockdownReason: s.lockdownReason,
		Mode:           s.mode,
		FacilityType:   s.facilityType,
		Rules:          append([]string(nil), s.rules...),
		Status:         s.status,
		Stats:          stats,
	}
	if s.lockdown {
		at := s.lockdownAt
		snap.LockdownAt = &at
	}
	return snap
}
