package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/api"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/audio"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/cache"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/cameras"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/clustering"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/config"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/database"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/fusion"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/health"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/kafka"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/mqtt"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/outbox"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/profiles"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/runner"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/s3"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/services/analysis"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/services/capture"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/system"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	slog.Info("main: init...", "mode", cfg.Engine.Mode, "storage", cfg.Storage.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fatal("open storage", err)
	}
	defer closeStore()

	writer := storage.NewWriter(store, cfg.Storage.WriteTimeout)
	go writer.Run(ctx)

	// Engine state
	sys := system.New(system.Options{
		Mode:         cfg.Engine.Mode,
		FacilityType: cfg.Engine.FacilityType,
		Rules:        cfg.Engine.Rules,
	})
	var rules []string
	if ok, err := store.Load(ctx, storage.KeyRules, &rules); err != nil {
		slog.Warn("restore rules", "error", err)
	} else if ok {
		sys.SetRules(rules)
	}

	cameraRegistry := cameras.NewRegistry(cfg.Cameras)
	cameraRegistry.Watch(func(sources []models.CameraSource) {
		slog.Debug("cameras: sources changed", "count", len(sources))
	})

	profileRegistry := profiles.NewRegistry(writer)
	if err := profileRegistry.Restore(ctx, store); err != nil {
		slog.Warn("restore profiles", "error", err)
	}

	// Outbound events
	hub := websocket.NewHub()
	go hub.Run(ctx)
	publishers := []outbox.Publisher{hub}

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertsTopic)
		if err != nil {
			fatal("create kafka producer", err)
		}
		defer producer.Close()
		publishers = append(publishers, producer)
	}
	dispatcher := outbox.NewDispatcher(cfg.Outbox.QueueSize, publishers...)
	go dispatcher.Run(ctx)

	sys.Subscribe(func(c system.Change) {
		if c.Kind != system.LockdownChanged {
			return
		}
		on := c.Lockdown
		dispatcher.Enqueue(models.Event{
			Type:     models.EventLockdownChanged,
			Key:      "lockdown",
			Lockdown: &on,
			Reason:   c.Reason,
			Time:     time.Now(),
		})
	})

	engine := clustering.New(clustering.Options{
		HistoryCap:        cfg.Engine.HistoryCap,
		CorrelationWindow: cfg.Engine.CorrelationWindow,
		Sources:           cameraRegistry,
		Writer:            writer,
		Publisher:         dispatcher,
	})
	if err := engine.Restore(ctx, store); err != nil {
		slog.Warn("restore clusters", "error", err)
	}

	monitor := health.NewMonitor(clock.NewTicker(), uint64(time.Now().UnixNano()))
	monitor.Start()

	// Perception and reasoning
	gateway := analysis.NewClient(cfg.Analysis.Endpoint, cfg.Analysis.Timeout)
	grabber := capture.NewGrabber(cfg.Analysis.CaptureTimeout)

	var (
		archive  fusion.EvidenceArchive
		evidence api.EvidenceStore
	)
	if cfg.Minio.Endpoint != "" {
		minioClient, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.Secure)
		if err != nil {
			fatal("connect to minio", err)
		}
		if err := minioClient.EnsureBucketExists(ctx); err != nil {
			fatal("ensure evidence bucket", err)
		}
		archive, evidence = minioClient, minioClient
	}

	verifier := fusion.New(fusion.Options{
		System:         sys,
		Cameras:        cameraRegistry,
		Capturer:       grabber,
		Gateway:        gateway,
		Engine:         engine,
		Archive:        archive,
		Health:         monitor,
		Debounce:       cfg.Engine.FusionDebounce,
		MinConfidence:  cfg.Engine.MinFusionConfidence,
		AccessTriggers: cfg.Engine.AccessTriggers,
	})

	r := runner.New(runner.Dependencies{
		System:   sys,
		Sources:  cameraRegistry,
		Capturer: grabber,
		Analyzer: gateway,
		Profiles: profileRegistry,
		Engine:   engine,
		Health:   monitor,
		Ticker:   clock.NewTicker(),
	})
	r.Start(ctx)

	// Non-visual sensors
	var (
		detector     *audio.Detector
		audioMetrics api.AudioMetrics
	)
	if cfg.MQTT.Broker != "" {
		levels := mqtt.NewLevelSource(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.AudioTopic,
			QoS:      1,
		})
		if err := levels.Connect(); err != nil {
			fatal("connect to mqtt", err)
		}
		defer levels.Close()

		detector = audio.NewDetector(sys, levels, verifier, clock.NewTicker(), clock.Real{}, cfg.MQTT.Microphone)
		detector.Start(ctx)
		audioMetrics = detector
	}

	var consumer *kafka.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.AccessTopic)
		if err != nil {
			fatal("create kafka consumer", err)
		}
		go consumer.StartListening(ctx)
		go kafka.HandleAccessEvents(ctx, consumer.Messages(), func(ctx context.Context, ev models.AccessEvent) {
			outcome := verifier.HandleAccessEvent(ctx, ev)
			slog.Debug("access event handled", "door", ev.DoorID, "event", ev.Event, "outcome", outcome.String())
		})
	}

	// Operator API
	router := api.NewRouter(&api.Handlers{
		System:   sys,
		Engine:   engine,
		Health:   monitor,
		Profiles: profileRegistry,
		Cameras:  cameraRegistry,
		Access:   verifier,
		Audio:    audioMetrics,
		Evidence: evidence,
		Writer:   writer,
		Feed:     http.HandlerFunc(hub.ServeWS),
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting operator API", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("operator API", err)
		}
	}()

	if cfg.Engine.ArmOnStart {
		sys.Arm()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("operator API shutdown", "error", err)
	}

	r.Stop()
	if detector != nil {
		detector.Stop()
		detector.Wait()
	}
	monitor.Stop()
	verifier.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			slog.Warn("close kafka consumer", "error", err)
		}
	}

	cancel()
	<-dispatcher.Done()
	<-writer.Done()
	slog.Info("stopped")
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Service.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler).With("service", cfg.Service.Name))
}

// openStore connects the configured storage backend. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Init(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	case config.BackendRedis:
		client, err := cache.Connect(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rs := cache.NewRedisStore(client)
		return rs, func() { rs.Close() }, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
