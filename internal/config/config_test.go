package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/config"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Engine.Mode != models.ModeBalanced || cfg.Engine.HistoryCap != 500 || cfg.Engine.CorrelationWindow != 120*time.Second {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Storage.Backend != config.BackendMemory {
		t.Fatalf("expected memory backend by default, got %q", cfg.Storage.Backend)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := writeFile(t, `
engine:
  mode: DETAILED
  facility_type: hospital
  correlation_window: 90s
kafka:
  brokers: [k1:9092]
cameras:
  - id: cam-1
    name: Lobby
    device_handle: http://cam-1/snapshot.jpg
    primary: true
`)
	t.Setenv("DETECTION_MODE", "ULTRA_FAST")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ALERT_RULES", "no loitering;no tailgating")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Engine.Mode != models.ModeUltraFast {
		t.Fatalf("expected env to override mode, got %s", cfg.Engine.Mode)
	}
	if cfg.Engine.FacilityType != "hospital" || cfg.Engine.CorrelationWindow != 90*time.Second {
		t.Fatalf("expected file values kept, got %+v", cfg.Engine)
	}
	if cfg.Engine.MinFusionConfidence != 60 {
		t.Fatalf("expected default kept for unset field, got %v", cfg.Engine.MinFusionConfidence)
	}
	if len(cfg.Kafka.Brokers) != 2 || len(cfg.Engine.Rules) != 2 {
		t.Fatalf("unexpected lists brokers=%v rules=%v", cfg.Kafka.Brokers, cfg.Engine.Rules)
	}
	if len(cfg.Cameras) != 1 || !cfg.Cameras[0].Primary || cfg.Cameras[0].DeviceHandle == "" {
		t.Fatalf("unexpected cameras %+v", cfg.Cameras)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeFile(t, `
engine:
  mode: TURBO
storage:
  backend: postgres
cameras:
  - id: cam-1
    name: Lobby
  - id: cam-1
    name: Dock
`)
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"engine.mode", "postgres_dsn", "duplicate camera"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %v", want, err)
		}
	}
}
