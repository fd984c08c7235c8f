package profiles_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/profiles"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestActiveOvernightWindow(t *testing.T) {
	t.Parallel()

	night := models.AdaptiveProfile{
		ID:             "night",
		TargetCameraID: models.TargetAllCameras,
		Start:          "22:00",
		End:            "06:00",
		Sensitivity:    models.SensitivityHigh,
		IsActive:       true,
	}

	cases := []struct {
		name  string
		now   time.Time
		match bool
	}{
		{"late evening", at(23, 0), true},
		{"small hours", at(2, 0), true},
		{"last minute", at(5, 59), true},
		{"window end", at(6, 0), false},
		{"noon", at(12, 0), false},
		{"window start", at(22, 0), true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := profiles.Active([]models.AdaptiveProfile{night}, "Lobby", tc.now)
			if (len(got) == 1) != tc.match {
				t.Fatalf("at %s expected match=%v, got %v", tc.now.Format("15:04"), tc.match, got)
			}
		})
	}
}

func TestActiveDaytimeWindowIsHalfOpen(t *testing.T) {
	t.Parallel()

	day := models.AdaptiveProfile{ID: "day", TargetCameraID: "Dock", Start: "08:00", End: "18:00", Sensitivity: models.SensitivityLow, IsActive: true}
	if got := profiles.Active([]models.AdaptiveProfile{day}, "Dock", at(8, 0)); len(got) != 1 {
		t.Fatalf("expected start of window to match")
	}
	if got := profiles.Active([]models.AdaptiveProfile{day}, "Dock", at(18, 0)); len(got) != 0 {
		t.Fatalf("expected end of window to be excluded")
	}
}

func TestActiveFiltersTargetAndInactive(t *testing.T) {
	t.Parallel()

	all := []models.AdaptiveProfile{
		{ID: "a", TargetCameraID: models.TargetAllCameras, Start: "00:00", End: "23:59", Sensitivity: models.SensitivityMedium, IsActive: true},
		{ID: "b", TargetCameraID: "Lobby", Start: "00:00", End: "23:59", Sensitivity: models.SensitivityHigh, IsActive: true},
		{ID: "c", TargetCameraID: "Garage", Start: "00:00", End: "23:59", Sensitivity: models.SensitivityHigh, IsActive: true},
		{ID: "d", TargetCameraID: "Lobby", Start: "00:00", End: "23:59", Sensitivity: models.SensitivityParanoid, IsActive: false},
		{ID: "e", TargetCameraID: "Lobby", Start: "09:00", End: "09:00", Sensitivity: models.SensitivityLow, IsActive: true},
		{ID: "f", TargetCameraID: "Lobby", Start: "bogus", End: "10:00", Sensitivity: models.SensitivityLow, IsActive: true},
	}

	got := profiles.Active(all, "Lobby", at(9, 0))
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected profiles a and b, got %+v", got)
	}
}

type recordingWriter struct {
	keys []string
	last any
}

func (w *recordingWriter) Schedule(key string, v any) {
	w.keys = append(w.keys, key)
	w.last = v
}

func TestRegistryPutRemovePersists(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	reg := profiles.NewRegistry(w)

	p, err := reg.Put(models.AdaptiveProfile{TargetCameraID: "Lobby", Start: "22:00", End: "06:00", Sensitivity: models.SensitivityHigh, IsActive: true})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected generated id")
	}
	if got := reg.ActiveFor("Lobby", at(23, 30)); len(got) != 1 {
		t.Fatalf("expected profile active at 23:30, got %v", got)
	}
	if err := reg.Remove(p.ID); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := reg.Remove(p.ID); !errors.Is(err, profiles.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if len(w.keys) != 2 || w.keys[0] != storage.KeyProfiles {
		t.Fatalf("expected two profile saves, got %v", w.keys)
	}
	if list, ok := w.last.([]models.AdaptiveProfile); !ok || len(list) != 0 {
		t.Fatalf("expected empty snapshot after remove, got %v", w.last)
	}
}

func TestRegistryRejectsInvalidProfile(t *testing.T) {
	t.Parallel()

	reg := profiles.NewRegistry(nil)
	_, err := reg.Put(models.AdaptiveProfile{TargetCameraID: "Lobby", Start: "25:00", End: "06:00", Sensitivity: models.SensitivityHigh})
	if !errors.Is(err, profiles.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
	_, err = reg.Put(models.AdaptiveProfile{TargetCameraID: "Lobby", Start: "01:00", End: "06:00", Sensitivity: "LOUD"})
	if !errors.Is(err, profiles.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for sensitivity, got %v", err)
	}
}

func TestRegistryRestore(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	ctx := context.Background()
	saved := []models.AdaptiveProfile{{ID: "p1", TargetCameraID: models.TargetAllCameras, Start: "00:00", End: "12:00", Sensitivity: models.SensitivityLow, IsActive: true}}
	if err := store.Save(ctx, storage.KeyProfiles, saved); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reg := profiles.NewRegistry(nil)
	if err := reg.Restore(ctx, store); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if list := reg.List(); len(list) != 1 || list[0].ID != "p1" {
		t.Fatalf("unexpected restored profiles %v", list)
	}
}
