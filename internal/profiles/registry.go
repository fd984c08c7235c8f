package profiles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
)

var (
	ErrInvalidProfile  = errors.New("invalid profile")
	ErrProfileNotFound = errors.New("profile not found")
)

type persister interface {
	Schedule(key string, v any)
}

// Registry is the mutable profile set behind the management surface.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]models.AdaptiveProfile
	writer   persister
}

func NewRegistry(writer persister) *Registry {
	return &Registry{
		profiles: make(map[string]models.AdaptiveProfile),
		writer:   writer,
	}
}

// Restore loads the persisted profile set.
func (r *Registry) Restore(ctx context.Context, store storage.Store) error {
	var list []models.AdaptiveProfile
	if _, err := store.Load(ctx, storage.KeyProfiles, &list); err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range list {
		r.profiles[p.ID] = p
	}
	return nil
}

// List returns the profiles ordered by ID.
func (r *Registry) List() []models.AdaptiveProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []models.AdaptiveProfile {
	out := make([]models.AdaptiveProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put validates and stores p, assigning an ID when empty.
func (r *Registry) Put(p models.AdaptiveProfile) (models.AdaptiveProfile, error) {
	if err := Validate(p); err != nil {
		return models.AdaptiveProfile{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	r.mu.Lock()
	r.profiles[p.ID] = p
	snapshot := r.listLocked()
	r.mu.Unlock()

	r.persist(snapshot)
	return p, nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.profiles[id]; !ok {
		r.mu.Unlock()
		return ErrProfileNotFound
	}
	delete(r.profiles, id)
	snapshot := r.listLocked()
	r.mu.Unlock()

	r.persist(snapshot)
	return nil
}

// ActiveFor resolves the registry's profiles for one camera.
func (r *Registry) ActiveFor(cameraName string, now time.Time) []models.AdaptiveProfile {
	return Active(r.List(), cameraName, now)
}

func (r *Registry) persist(snapshot []models.AdaptiveProfile) {
	if r.writer != nil {
		r.writer.Schedule(storage.KeyProfiles, snapshot)
	}
}

func Validate(p models.AdaptiveProfile) error {
	if p.TargetCameraID == "" {
		return fmt.Errorf("%w: target camera is required", ErrInvalidProfile)
	}
	if _, err := parseClock(p.Start); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if _, err := parseClock(p.End); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	switch p.Sensitivity {
	case models.SensitivityLow, models.SensitivityMedium, models.SensitivityHigh, models.SensitivityParanoid:
	default:
		return fmt.Errorf("%w: unknown sensitivity %q", ErrInvalidProfile, p.Sensitivity)
	}
	return nil
}
