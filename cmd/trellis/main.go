package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/api"
	"github.com/platinummonkey/trellis/pkg/async"
	"github.com/platinummonkey/trellis/pkg/builtin"
	"github.com/platinummonkey/trellis/pkg/config"
	"github.com/platinummonkey/trellis/pkg/discovery"
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/inject"
	"github.com/platinummonkey/trellis/pkg/messages"
	"github.com/platinummonkey/trellis/pkg/observability"
	"github.com/platinummonkey/trellis/pkg/pipeline"
	"github.com/platinummonkey/trellis/pkg/reactive"
	"github.com/platinummonkey/trellis/pkg/registry"
	"github.com/platinummonkey/trellis/pkg/settings"
	"github.com/platinummonkey/trellis/pkg/updater"
)

var (
	checkOnce    = flag.Bool("check-updates", false, "Run one forced update check and exit")
	readyTimeout = flag.Duration("discovery-timeout", 30*time.Second, "How long -check-updates waits for the first discovery pass")
	version      = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	engineLog := observability.NewEngineLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger, engineLog); err != nil {
		logger.WithError(err).Error("trellis exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, engineLog *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	health := observability.NewHealthChecker(version)

	backend, err := openBackend(ctx, cfg.Settings, health)
	if err != nil {
		return err
	}
	cached, err := settings.NewCachedBackend(backend, cfg.Settings.CacheSize)
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to create settings cache: %w", err)
	}
	store := settings.NewStore(cached, engineLog)
	logger.WithField("backend", cfg.Settings.Backend).Info("Settings store ready")

	bus := messages.NewBus(256, engineLog)
	go recordMessages(ctx, bus, metrics)

	connectivity := reactive.NewValue(true)
	injector := inject.New(store, bus, connectivity, engineLog,
		inject.WithBridgeHost(extension.NewBridgeHost(nil)),
		inject.WithRecorder(metrics),
	)

	managed, err := discovery.NewManagedDir(cfg.Discovery.SideloadDir, engineLog)
	if err != nil {
		cached.Close()
		return fmt.Errorf("failed to prepare sideload directory: %w", err)
	}

	loader := pipeline.NewLoader(engineLog)
	builtin.Register(loader, builtin.Options{MusicDir: cfg.Discovery.MusicDir})

	pool := async.NewWorkerPool(ctx, cfg.Discovery.ActivationWorkers, "activation", cfg.Discovery.ActivationTimeout, engineLog)

	reg, err := registry.New(registry.Config{
		Store:        store,
		Injector:     injector,
		Messenger:    bus,
		Connectivity: connectivity,
		Pool:         pool,
		Observer:     metrics,
		Log:          engineLog,
	})
	if err != nil {
		cached.Close()
		return fmt.Errorf("failed to create registry: %w", err)
	}

	var composers []*pipeline.Composer
	for _, kind := range extension.Kinds() {
		pipelines, err := pipelinesFor(kind, cfg.Discovery, managed, loader, engineLog)
		if err != nil {
			cached.Close()
			return err
		}
		composer := pipeline.Compose(ctx, kind, engineLog, pipelines...)
		composers = append(composers, composer)
		if err := reg.Attach(kind, composer.Output()); err != nil {
			cached.Close()
			return fmt.Errorf("failed to attach %s extensions: %w", kind, err)
		}
	}
	go reg.Run(ctx)

	checker, err := updater.New(updater.Config{
		Catalog:     reg,
		Installer:   managed,
		Store:       store,
		Messenger:   bus,
		Recorder:    metrics,
		MinInterval: cfg.Updates.MinInterval,
		ABI:         cfg.Updates.ABI,
		AssetSuffix: cfg.Updates.AssetSuffix,
		Concurrency: cfg.Updates.Concurrency,
		HTTPClient:  &http.Client{Timeout: cfg.Updates.HTTPTimeout},
		Log:         engineLog,

		MaxArtifactBytes: int64(cfg.Updates.MaxArtifactMB) << 20,
	})
	if err != nil {
		cached.Close()
		return fmt.Errorf("failed to create update checker: %w", err)
	}

	if *checkOnce {
		defer cached.Close()
		if err := awaitDiscovery(ctx, *readyTimeout, composers, reg); err != nil {
			return err
		}
		report, err := checker.Check(ctx, true)
		if err != nil {
			return fmt.Errorf("update check failed: %w", err)
		}
		for _, o := range report.Outcomes {
			logger.WithFields(map[string]interface{}{
				"extension": o.Key.String(),
				"outcome":   o.Label(),
				"tag":       o.Tag,
			}).Info("Update check outcome")
		}
		return nil
	}

	var scheduler *updater.Scheduler
	if cfg.Updates.Enabled {
		scheduler, err = updater.NewScheduler(checker, cfg.Updates.Schedule, engineLog)
		if err != nil {
			cached.Close()
			return err
		}
		scheduler.Start()
		logger.WithField("schedule", cfg.Updates.Schedule).Info("Update checks scheduled")
	}

	apiCfg := api.Config{
		Registry: reg,
		Messages: bus,
		Health:   health,
		Logger:   logger,
	}
	if scheduler != nil {
		apiCfg.Updates = scheduler
	}
	if cfg.Observability.MetricsEnabled {
		apiCfg.Metrics = metrics
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(apiCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("settings", func(ctx context.Context) error {
		return cached.Close()
	})
	shutdown.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.Register("activation pool", func(ctx context.Context) error {
		return pool.Shutdown(cfg.Discovery.ActivationTimeout)
	})
	shutdown.Register("discovery", func(ctx context.Context) error {
		cancel()
		return nil
	})
	if scheduler != nil {
		shutdown.Register("update scheduler", func(ctx context.Context) error {
			scheduler.Stop()
			return nil
		})
	}

	go func() {
		defer observability.RecoverPanic(logger, "http server")
		logger.WithField("addr", httpServer.Addr).Info("Starting trellis management API")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(ctx)
}

// openBackend opens the configured settings backend and registers its health check
func openBackend(ctx context.Context, cfg config.SettingsConfig, health *observability.HealthChecker) (settings.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		b, err := settings.OpenSQLBackend(ctx, "sqlite3", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite settings: %w", err)
		}
		health.AddCheck("settings", true, observability.SQLCheck(b.DB()))
		return b, nil
	case config.BackendPostgres:
		b, err := settings.OpenSQLBackend(ctx, "postgres", cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres settings: %w", err)
		}
		health.AddCheck("settings", true, observability.SQLCheck(b.DB()))
		return b, nil
	case config.BackendRedis:
		b, err := settings.NewRedisBackend(settings.RedisConfig{
			URL:        cfg.RedisURL,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
			PoolSize:   cfg.RedisPoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis settings: %w", err)
		}
		health.AddCheck("settings", true, observability.RedisCheck(b.Client()))
		return b, nil
	default:
		b := settings.NewMemoryBackend()
		health.AddCheck("settings", false, b.Ping)
		return b, nil
	}
}

// pipelinesFor builds the shipped, package and sideload pipelines of kind in
// provenance order
func pipelinesFor(kind extension.Kind, cfg config.DiscoveryConfig, managed *discovery.ManagedDir, loader *pipeline.Loader, log *logrus.Logger) ([]*pipeline.Pipeline, error) {
	shipped, err := discovery.NewBuiltinSource(builtin.Manifests(kind)...)
	if err != nil {
		return nil, fmt.Errorf("invalid shipped %s manifests: %w", kind, err)
	}
	packages := discovery.NewPackageSource(cfg.PackagesDir, kind, cfg.Namespace, log)
	sideload := discovery.NewDirectorySource(managed.KindDir(kind), kind, log)

	return []*pipeline.Pipeline{
		pipeline.New("builtin:"+string(kind), kind, shipped, discovery.NewManifestParser(kind, cfg.ParserCacheSize), loader, log),
		pipeline.New("packages:"+string(kind), kind, packages, discovery.NewManifestParser(kind, cfg.ParserCacheSize), loader, log),
		pipeline.New("sideload:"+string(kind), kind, sideload, discovery.NewManifestParser(kind, cfg.ParserCacheSize), loader, log),
	}, nil
}

// awaitDiscovery waits until every composer merged a first list from each of its
// pipelines and the registry listed the result
func awaitDiscovery(ctx context.Context, timeout time.Duration, composers []*pipeline.Composer, reg *registry.Registry) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, c := range composers {
		select {
		case <-c.Ready():
		case <-ctx.Done():
			return fmt.Errorf("discovery of %s extensions did not finish: %w", c.Kind(), ctx.Err())
		}
	}
	return reg.Synced(ctx)
}

func recordMessages(ctx context.Context, bus *messages.Bus, metrics *observability.Metrics) {
	sub := bus.Subscribe(64)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			metrics.RecordMessage(string(msg.Level))
		}
	}
}
