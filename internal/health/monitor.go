// Package health keeps the synthetic load snapshot and the sticky
// rate-limit flag that gates the analysis scheduler.
package health

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

const (
	TickInterval = time.Second

	minLoad      = 10.0
	maxLoad      = 100.0
	loadStep     = 8.0
	minLatency   = 12.0
	latencySpan  = 36.0
	minIntegrity = 99.0
	maxIntegrity = 100.0
	integStep    = 0.1
)

type Monitor struct {
	mu     sync.RWMutex
	snap   models.SystemHealth
	rng    *rand.Rand
	ticker clock.Ticker
}

func NewMonitor(ticker clock.Ticker, seed uint64) *Monitor {
	return &Monitor{
		snap: models.SystemHealth{
			NeuralLoad:       40,
			LatencyMS:        minLatency,
			NetworkIntegrity: maxIntegrity,
		},
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		ticker: ticker,
	}
}

func (m *Monitor) Start() {
	m.ticker.Start(TickInterval, m.Tick)
	slog.Info("health: monitor started", "interval", TickInterval)
}

func (m *Monitor) Stop() {
	m.ticker.Stop()
}

// Tick advances the snapshot by one period.
func (m *Monitor) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snap.RateLimited {
		m.snap.NeuralLoad = 0
	} else {
		next := m.snap.NeuralLoad + (m.rng.Float64()*2-1)*loadStep
		m.snap.NeuralLoad = clamp(next, minLoad, maxLoad)
	}
	m.snap.LatencyMS = minLatency + m.rng.Float64()*latencySpan
	m.snap.NetworkIntegrity = clamp(m.snap.NetworkIntegrity+(m.rng.Float64()*2-1)*integStep, minIntegrity, maxIntegrity)
	m.snap.UptimeSeconds++
}

// MarkRateLimited sets the sticky flag. Only ClearRateLimit resets it.
func (m *Monitor) MarkRateLimited() {
	m.mu.Lock()
	already := m.snap.RateLimited
	m.snap.RateLimited = true
	m.snap.NeuralLoad = 0
	m.mu.Unlock()

	if !already {
		slog.Warn("health: analysis gateway rate limited, pausing analysis until cleared")
	}
}

// ClearRateLimit is the operator action that resumes analysis.
func (m *Monitor) ClearRateLimit() {
	m.mu.Lock()
	was := m.snap.RateLimited
	m.snap.RateLimited = false
	if m.snap.NeuralLoad < minLoad {
		m.snap.NeuralLoad = minLoad
	}
	m.mu.Unlock()

	if was {
		slog.Info("health: rate limit cleared by operator")
	}
}

func (m *Monitor) RateLimited() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.RateLimited
}

func (m *Monitor) Snapshot() models.SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func clamp(v, lo, hi float64) float64 {
	return min(hi, max(lo, v))
}
