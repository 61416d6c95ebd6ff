package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"toolwatch/internal/cache"
	"toolwatch/internal/catalog"
	"toolwatch/internal/config"
	"toolwatch/internal/handler"
	"toolwatch/internal/ingest"
	"toolwatch/internal/metrics"
	"toolwatch/internal/middleware"
	"toolwatch/internal/repository"
	"toolwatch/internal/router"
	"toolwatch/internal/sensor"
	"toolwatch/internal/service"
	"toolwatch/internal/storage"
	"toolwatch/internal/tracker"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg := config.MustLoad()

	logger := mustBuildLogger(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting toolwatch",
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
		zap.Duration("settle_window", cfg.Tracker.SettleWindow),
		zap.Duration("retention_window", cfg.Tracker.RetentionWindow),
		zap.Duration("lookback_delay", cfg.Tracker.LookbackDelay),
	)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.String("path", cfg.Catalog.Path), zap.Error(err))
	}
	if cfg.Catalog.EmailDomain != "" {
		cat.EmailDomain = cfg.Catalog.EmailDomain
	}
	logger.Info("catalog loaded",
		zap.Int("drawers", len(cat.Drawers)),
		zap.Int("tools", cat.ToolCount()),
		zap.Int("users", len(cat.Users)),
	)

	// Durable journal
	journalRepo, err := openJournal(&cfg.Journal, logger)
	if err != nil {
		logger.Fatal("failed to open journal", zap.String("type", cfg.Journal.Type), zap.Error(err))
	}
	if journalRepo != nil {
		defer journalRepo.Close()
	}

	var buffer cache.JournalBuffer
	if journalRepo != nil {
		buffer = openBuffer(&cfg.Cache, service.CreateFlushFunc(journalRepo), logger)
	}
	journalSvc := service.NewJournalService(journalRepo, buffer, cfg.Journal.QueueSize, logger)

	var retention *service.RetentionScheduler
	if journalRepo != nil && cfg.Journal.Retention > 0 {
		retention = service.NewRetentionScheduler(journalRepo, service.RetentionConfig{
			Retention:    cfg.Journal.Retention,
			Interval:     cfg.Journal.CleanupInterval,
			InitialDelay: time.Minute,
		}, logger)
		retention.Start()
	}

	// Analytics export: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	switch {
	case cfg.ClickHouse.DSN != "":
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouse.DSN, cfg.ClickHouse.Secure, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	case cfg.ClickHouse.LogEvents:
		writer = storage.NewLogWriter(logger)
	}

	sinks := []tracker.EventSink{journalSvc}
	if writer != nil {
		sinks = append(sinks, storage.NewSink(writer))
	}

	var mx *metrics.Metrics
	trackerOpts := []tracker.Option{tracker.WithSinks(sinks...)}
	pumpOpts := []ingest.PumpOption{}
	if cfg.Metrics.Enabled {
		mx = metrics.New()
		trackerOpts = append(trackerOpts, tracker.WithObserver(mx))
		pumpOpts = append(pumpOpts, ingest.WithRecorder(mx))
	}

	manager := tracker.NewManager(cat, cfg.Tracker.TrackerOptions(), logger, trackerOpts...)
	pump := ingest.NewPump(manager, sensor.NewClassifier(cat.Depth), cfg.Ingest.QueueSize, logger, pumpOpts...)

	pumpCtx, stopPump := context.WithCancel(context.Background())
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pump.Run(pumpCtx)
	}()

	var subscriber *ingest.MQTTSubscriber
	if cfg.MQTT.Broker != "" {
		subscriber = ingest.NewMQTTSubscriber(ingest.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, pump, logger)
		if err := subscriber.Start(); err != nil {
			logger.Fatal("failed to start mqtt subscriber", zap.Error(err))
		}
	} else {
		logger.Info("no MQTT_BROKER set, ticks accepted over HTTP only")
	}

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("no INGEST_API_KEYS set, tick ingest is unauthenticated")
	}

	// Handlers
	var checks []handler.ReadinessCheck
	if journalRepo != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name: "journal",
			Check: func(ctx context.Context) error {
				_, err := journalRepo.GetStats(ctx)
				return err
			},
		})
	}
	adminHandler := handler.NewAdminHandler(journalRepo, cfg.Journal.Type, map[string]handler.StatsSource{
		"journal_writer": handler.StatsFunc(journalSvc.Stats),
		"ingest": handler.StatsFunc(func(context.Context) map[string]interface{} {
			return pump.Stats()
		}),
		"tracker": handler.StatsFunc(func(context.Context) map[string]interface{} {
			st := manager.State()
			return map[string]interface{}{
				"phase":              st.Phase,
				"drawer":             st.Drawer,
				"buffered_snapshots": st.BufferedSnapshots,
				"checked_out":        len(manager.Checkouts()),
			}
		}),
	})

	routerCfg := router.Config{
		Handler:        handler.New(cfg.App.Name, cfg.App.Version, checks...),
		TrackerHandler: handler.NewTrackerHandler(manager),
		TickHandler:    handler.NewTickHandler(pump, cfg.Ingest.MaxBodyBytes, cfg.Ingest.MaxBatch, logger),
		JournalHandler: handler.NewJournalHandler(journalSvc, logger),
		AdminHandler:   adminHandler,
		IngestAuth:     middleware.APIKey(cfg.Auth.APIKeys),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	}
	if mx != nil {
		routerCfg.Metrics = mx.Handler()
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.New(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop producers first, then drain the pump so every accepted tick is
	// applied before the sinks close.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if subscriber != nil {
		subscriber.Stop()
	}
	pump.Close()
	select {
	case <-pumpDone:
	case <-ctx.Done():
		logger.Warn("tick pump did not drain before shutdown timeout")
	}
	stopPump()

	journalSvc.Close()
	if buffer != nil {
		logger.Info("flushing journal buffer")
		if err := buffer.Close(); err != nil {
			logger.Error("journal buffer close error", zap.Error(err))
		}
	}
	if retention != nil {
		retention.Stop()
	}
	if writer != nil {
		writer.Close()
	}

	logger.Info("toolwatch stopped")
}

func openJournal(cfg *config.JournalConfig, logger *zap.Logger) (repository.JournalRepository, error) {
	switch cfg.Type {
	case "none":
		logger.Info("journal disabled, events kept in memory only")
		return nil, nil
	case "mongodb", "mongo":
		return repository.NewMongoDBJournalRepository(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	case "postgres", "postgresql":
		return repository.NewPostgresJournalRepository(cfg.PostgresDSN(), logger)
	case "mysql":
		return repository.NewMySQLJournalRepository(cfg.MySQLDSN(), logger)
	default:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory: %w", err)
			}
		}
		return repository.NewSQLiteJournalRepository(cfg.Path, logger)
	}
}

// openBuffer returns the write-behind buffer for the journal. A Redis buffer
// that cannot connect falls back to memory.
func openBuffer(cfg *config.CacheConfig, flush cache.FlushFunc, logger *zap.Logger) cache.JournalBuffer {
	switch cfg.Type {
	case "none":
		return nil
	case "redis":
		buf, err := cache.NewRedisJournalBuffer(cache.RedisBufferConfig{
			Addr:          cfg.RedisAddress(),
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			FlushInterval: cfg.FlushInterval,
		}, flush, logger)
		if err == nil {
			logger.Info("redis journal buffer initialized", zap.String("addr", cfg.RedisAddress()))
			return buf
		}
		logger.Warn("redis buffer initialization failed, using memory buffer", zap.Error(err))
	}
	return cache.NewMemoryJournalBuffer(cfg.FlushInterval, flush, logger)
}

func mustBuildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoding := "json"
	if format == "console" {
		encoding = "console"
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
