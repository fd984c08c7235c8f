package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the YAML file layout. Cameras come from the file only; every
// other section can be overridden through the environment.
type Config struct {
	Settings `yaml:",inline"`

	Cameras []models.CameraSource `yaml:"cameras"`
}

type Settings struct {
	Service struct {
		Name     string `yaml:"name" env:"SERVICE_NAME"`
		LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	} `yaml:"service"`

	Engine struct {
		Mode                models.DetectionMode `yaml:"mode" env:"DETECTION_MODE"`
		FacilityType        string               `yaml:"facility_type" env:"FACILITY_TYPE"`
		Rules               []string             `yaml:"rules" env:"ALERT_RULES" envSeparator:";"`
		ArmOnStart          bool                 `yaml:"arm_on_start" env:"ARM_ON_START"`
		HistoryCap          int                  `yaml:"history_cap" env:"HISTORY_CAP"`
		CorrelationWindow   time.Duration        `yaml:"correlation_window" env:"CORRELATION_WINDOW"`
		FusionDebounce      time.Duration        `yaml:"fusion_debounce" env:"FUSION_DEBOUNCE"`
		MinFusionConfidence float64              `yaml:"min_fusion_confidence" env:"MIN_FUSION_CONFIDENCE"`
		AccessTriggers      []string             `yaml:"access_triggers" env:"ACCESS_TRIGGERS" envSeparator:","`
	} `yaml:"engine"`

	Analysis struct {
		Endpoint       string        `yaml:"endpoint" env:"ANALYSIS_ENDPOINT"`
		Timeout        time.Duration `yaml:"timeout" env:"ANALYSIS_TIMEOUT"`
		CaptureTimeout time.Duration `yaml:"capture_timeout" env:"CAPTURE_TIMEOUT"`
	} `yaml:"analysis"`

	Storage struct {
		Backend      string        `yaml:"backend" env:"STORAGE_BACKEND"`
		PostgresDSN  string        `yaml:"postgres_dsn" env:"DATABASE_DSN"`
		RedisURL     string        `yaml:"redis_url" env:"REDIS_URL"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"STORAGE_WRITE_TIMEOUT"`
	} `yaml:"storage"`

	Minio struct {
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
		Secure    bool   `yaml:"secure" env:"MINIO_SECURE"`
	} `yaml:"minio"`

	Kafka struct {
		Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		AccessTopic string   `yaml:"access_topic" env:"ACCESS_TOPIC"`
		AlertsTopic string   `yaml:"alerts_topic" env:"ALERTS_TOPIC"`
	} `yaml:"kafka"`

	MQTT struct {
		Broker     string `yaml:"broker" env:"MQTT_BROKER"`
		ClientID   string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
		AudioTopic string `yaml:"audio_topic" env:"MQTT_AUDIO_TOPIC"`
		Microphone string `yaml:"microphone" env:"MQTT_MICROPHONE"`
	} `yaml:"mqtt"`

	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR"`
	} `yaml:"http"`

	Outbox struct {
		QueueSize int `yaml:"queue_size" env:"OUTBOX_QUEUE_SIZE"`
	} `yaml:"outbox"`
}

// Default returns the configuration used when neither the file nor the
// environment sets a value.
func Default() *Config {
	cfg := &Config{}
	cfg.Service.Name = "sentinel-fusion"
	cfg.Service.LogLevel = "info"

	cfg.Engine.Mode = models.ModeBalanced
	cfg.Engine.FacilityType = "general"
	cfg.Engine.HistoryCap = 500
	cfg.Engine.CorrelationWindow = 120 * time.Second
	cfg.Engine.FusionDebounce = 5 * time.Second
	cfg.Engine.MinFusionConfidence = 60
	cfg.Engine.AccessTriggers = []string{"DOOR_FORCED", "DOOR_HELD_OPEN"}

	cfg.Analysis.Endpoint = "http://localhost:8000"
	cfg.Analysis.Timeout = 30 * time.Second
	cfg.Analysis.CaptureTimeout = 5 * time.Second

	cfg.Storage.Backend = BackendMemory
	cfg.Storage.WriteTimeout = 5 * time.Second

	cfg.Minio.Bucket = "evidence"

	cfg.Kafka.GroupID = "sentinel-fusion"
	cfg.Kafka.AccessTopic = "access-events"
	cfg.Kafka.AlertsTopic = "security-alerts"

	cfg.MQTT.ClientID = "sentinel-fusion"
	cfg.MQTT.AudioTopic = "sensors/audio/levels"
	cfg.MQTT.Microphone = "mic-primary"

	cfg.HTTP.Addr = ":8080"
	cfg.Outbox.QueueSize = 256
	return cfg
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg.Settings); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := models.ParseMode(string(c.Engine.Mode)); err != nil {
		errs = append(errs, fmt.Errorf("engine.mode %q: %w", c.Engine.Mode, err))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Engine.MinFusionConfidence < 0 || c.Engine.MinFusionConfidence > 100 {
		errs = append(errs, fmt.Errorf("engine.min_fusion_confidence %v out of range", c.Engine.MinFusionConfidence))
	}
	if c.Kafka.AccessTopic == "" && len(c.Kafka.Brokers) > 0 {
		errs = append(errs, errors.New("kafka.access_topic is required"))
	}
	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.ID == "" || cam.Name == "" {
			errs = append(errs, fmt.Errorf("camera %q needs both id and name", cam.ID))
		}
		if seen[cam.ID] {
			errs = append(errs, fmt.Errorf("duplicate camera id %q", cam.ID))
		}
		seen[cam.ID] = true
	}
	return errors.Join(errs...)
}
