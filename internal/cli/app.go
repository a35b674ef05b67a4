package cli

import (
	"context"
	"fmt"
	"time"

	"fincast/internal/amqp"
	"fincast/internal/backend"
	"fincast/internal/cache"
	"fincast/internal/config"
	"fincast/internal/log"
	"fincast/internal/services"
)

// App holds everything a command needs once configuration is loaded.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Backend *backend.BackendResult
	Service *services.ForecastService
	// Processor is nil unless the backend can store snapshots.
	Processor *services.SnapshotProcessor
	// Broker is nil when no AMQP URL is configured.
	Broker *amqp.Client
	Caches *cache.Manager
}

// NewApp creates the backend and the forecast services for cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, factory backend.Factory) (*App, error) {
	if factory == nil {
		factory = backend.NewFactory(logger)
	}

	schedules, err := config.LoadTaxSchedules(cfg.TaxScheduleFile)
	if err != nil {
		return nil, fmt.Errorf("load tax schedules: %w", err)
	}
	adjustment, err := cfg.TaxAdjustment()
	if err != nil {
		return nil, err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Backend: res,
		Caches:  cache.NewManager(logger),
	}
	app.Service = services.NewForecastService(res.Reader, services.Options{
		LookbackMonths:       cfg.LookbackMonths,
		Schedules:            schedules,
		TaxAdjustmentPercent: adjustment,
		CacheTTL:             cfg.DatasetCacheTTL,
		Logger:               logger,
	})
	app.Caches.Register(app.Service.Cache())

	if cfg.AMQPEnabled() {
		broker, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		app.Broker = broker
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	if res.Store != nil {
		var publisher services.ComputedPublisher
		if app.Broker != nil {
			publisher = app.Broker
		}
		app.Processor = services.NewSnapshotProcessor(app.Service, res.Store, publisher)
	}

	return app, nil
}

// RunCacheSweeper evicts expired datasets until ctx is done.
func (a *App) RunCacheSweeper(ctx context.Context) {
	interval := a.Config.DatasetCacheTTL
	if interval <= 0 {
		return
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	a.Caches.Run(ctx, interval)
}

// Close releases the broker connection and the backend.
func (a *App) Close() error {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	}
	return a.Backend.Close()
}
