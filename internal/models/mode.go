package models

import (
	"errors"
	"time"
)

var ErrUnknownMode = errors.New("unknown detection mode")

type DetectionMode string

const (
	ModeUltraFast DetectionMode = "ULTRA_FAST"
	ModeBalanced  DetectionMode = "BALANCED"
	ModeDetailed  DetectionMode = "DETAILED"
)

// CapturePolicy controls frame downsampling. Scale 1 keeps full resolution.
// Quality is the JPEG quality in (0,1].
type CapturePolicy struct {
	Scale   float64
	Quality float64
}

// FullResolution is used for fusion verification snapshots.
var FullResolution = CapturePolicy{Scale: 1, Quality: 0.9}

func ParseMode(s string) (DetectionMode, error) {
	switch m := DetectionMode(s); m {
	case ModeUltraFast, ModeBalanced, ModeDetailed:
		return m, nil
	}
	return "", ErrUnknownMode
}

// Interval is the scheduler period for the mode.
func (m DetectionMode) Interval() time.Duration {
	switch m {
	case ModeUltraFast:
		return 1500 * time.Millisecond
	case ModeDetailed:
		return 8000 * time.Millisecond
	default:
		return 3500 * time.Millisecond
	}
}

func (m DetectionMode) CapturePolicy() CapturePolicy {
	switch m {
	case ModeUltraFast:
		return CapturePolicy{Scale: 0.25, Quality: 0.5}
	case ModeDetailed:
		return CapturePolicy{Scale: 0.5, Quality: 0.7}
	default:
		return CapturePolicy{Scale: 0.35, Quality: 0.7}
	}
}

type EngineStatus string

const (
	StatusIdle       EngineStatus = "IDLE"
	StatusPerceiving EngineStatus = "PERCEIVING"
	StatusReasoning  EngineStatus = "REASONING"
	StatusActing     EngineStatus = "ACTING"
)
