// Package cameras tracks the attached camera sources and their alert
// priority scores.
package cameras

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

var ErrCameraNotFound = errors.New("camera not found")

// Registry is the enumeration collaborator: it owns every CameraSource.
// Other components read sources and adjust priority through Touch.
type Registry struct {
	mu       sync.RWMutex
	sources  []*models.CameraSource
	watchers []func([]models.CameraSource)
}

func NewRegistry(initial []models.CameraSource) *Registry {
	r := &Registry{}
	for _, s := range initial {
		s := s
		r.sources = append(r.sources, &s)
	}
	return r
}

// Sources returns a copy of the currently attached sources.
func (r *Registry) Sources() []models.CameraSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []models.CameraSource {
	return lo.Map(r.sources, func(s *models.CameraSource, _ int) models.CameraSource { return *s })
}

// Primary returns the source flagged primary, or the first attached one.
func (r *Registry) Primary() (models.CameraSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.sources) == 0 {
		return models.CameraSource{}, false
	}
	if s, ok := lo.Find(r.sources, func(s *models.CameraSource) bool { return s.Primary }); ok {
		return *s, true
	}
	return *r.sources[0], true
}

// Attach adds or replaces a source by ID and notifies watchers.
func (r *Registry) Attach(src models.CameraSource) {
	r.mu.Lock()
	if _, idx, ok := lo.FindIndexOf(r.sources, func(s *models.CameraSource) bool { return s.ID == src.ID }); ok {
		r.sources[idx] = &src
	} else {
		r.sources = append(r.sources, &src)
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	slog.Info("cameras: source attached", "id", src.ID, "name", src.Name)
	r.notify(snap)
}

func (r *Registry) Detach(id string) error {
	r.mu.Lock()
	before := len(r.sources)
	r.sources = lo.Reject(r.sources, func(s *models.CameraSource, _ int) bool { return s.ID == id })
	if len(r.sources) == before {
		r.mu.Unlock()
		return ErrCameraNotFound
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	slog.Info("cameras: source detached", "id", id)
	r.notify(snap)
	return nil
}

// Watch registers fn for device-change notifications.
func (r *Registry) Watch(fn func([]models.CameraSource)) {
	r.mu.Lock()
	r.watchers = append(r.watchers, fn)
	r.mu.Unlock()
}

func (r *Registry) notify(snap []models.CameraSource) {
	r.mu.RLock()
	watchers := slices.Clone(r.watchers)
	r.mu.RUnlock()
	for _, fn := range watchers {
		fn(snap)
	}
}

// Touch applies mutate to every source whose name matches. It reports
// whether any source matched.
func (r *Registry) Touch(name string, mutate func(*models.CameraSource)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := false
	for _, s := range r.sources {
		if s.Name == name {
			mutate(s)
			matched = true
		}
	}
	return matched
}

// ResetPriority clears the priority score and active alert count.
func (r *Registry) ResetPriority(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := lo.Find(r.sources, func(s *models.CameraSource) bool { return s.ID == id })
	if !ok {
		return ErrCameraNotFound
	}
	s.PriorityScore = 0
	s.ActiveAlerts = 0
	return nil
}
