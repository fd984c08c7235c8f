// Package profiles resolves which adaptive sensitivity profiles apply to a
// camera at a given time of day.
package profiles

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

// Active returns every profile that is enabled, targets cameraName or all
// cameras, and whose daily window contains now. No precedence is applied.
func Active(all []models.AdaptiveProfile, cameraName string, now time.Time) []models.AdaptiveProfile {
	minute := now.Hour()*60 + now.Minute()
	return lo.Filter(all, func(p models.AdaptiveProfile, _ int) bool {
		if !p.IsActive {
			return false
		}
		if p.TargetCameraID != models.TargetAllCameras && p.TargetCameraID != cameraName {
			return false
		}
		return inWindow(p.Start, p.End, minute)
	})
}

// inWindow reports whether minute falls in [start, end). A window whose end
// precedes its start wraps past midnight. start == end is an empty window.
func inWindow(start, end string, minute int) bool {
	s, err := parseClock(start)
	if err != nil {
		return false
	}
	e, err := parseClock(end)
	if err != nil {
		return false
	}
	if e < s {
		return minute >= s || minute < e
	}
	return minute >= s && minute < e
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
