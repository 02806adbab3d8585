package app

import (
	"context"
	"fmt"
	"time"

	"focuswatch/internal/config"
	"focuswatch/internal/database"
	"focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/platform"
	"focuswatch/internal/repository"
	"focuswatch/internal/services"
	"focuswatch/internal/types"
)

const (
	healthCheckTimeout = 5 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// App wires the daemon's components. Constructed once at process start; the
// engine, scheduler and coordinator hang off it for the process lifetime.
type App struct {
	cfg         *config.Config
	dbService   database.Service
	repository  repository.UsageRepository
	collector   *platform.SamplingCollector
	engine      *services.MonitoringEngine
	aggregator  *services.ScoreAggregator
	scheduler   *services.DailyResetScheduler
	backfiller  *services.Backfiller
	coordinator *services.Coordinator
	bus         *services.EventBus
	logger      logging.Logger
}

// New builds the full component graph: database, repository, collector,
// dispatcher, aggregator, engine, reset scheduler, backfiller, coordinator.
func New(cfg *config.Config, notifier services.Notifier) (*App, error) {
	logger := logging.NewDefaultLogger()
	errors.SetDefaultRetryLogger()

	dbConfig := database.ConfigForEnvironment(cfg.Environment)
	if err := dbConfig.LoadFromEnvironment(); err != nil {
		return nil, err
	}

	dbService := database.NewSQLiteService(logger)
	if err := dbService.Connect(context.Background(), dbConfig); err != nil {
		return nil, err
	}
	if err := dbService.Migrate(context.Background()); err != nil {
		dbService.Close()
		return nil, err
	}

	repo := repository.NewSQLiteRepository(dbService, logger)

	collector := platform.NewSamplingCollector(platform.NewWindowAPI(), logger)

	clock := services.SystemClock{}
	bus := services.NewEventBus(logger)
	coordinator := services.NewCoordinator(bus, types.IntensityHarsh, logger)

	dispatcher := services.NewNotificationDispatcher(repo, notifier, cfg.CooldownTable(), clock, logger)
	aggregator := services.NewScoreAggregator(repo, cfg.AllowedDailyBudget, cfg.ScoreCacheTTL, cfg.SelfPackage, clock, logger)

	engine := services.NewMonitoringEngine(
		collector, repo, dispatcher, aggregator, bus,
		cfg.ThresholdTable(), cfg.PollInterval, cfg.TickTimeout,
		clock, logger,
	)

	scheduler := services.NewDailyResetScheduler(repo, aggregator, engine, coordinator, clock, logger)
	backfiller := services.NewBackfiller(repo, aggregator, cfg.BackfillWindowDays, clock, logger)

	return &App{
		cfg:         cfg,
		dbService:   dbService,
		repository:  repo,
		collector:   collector,
		engine:      engine,
		aggregator:  aggregator,
		scheduler:   scheduler,
		backfiller:  backfiller,
		coordinator: coordinator,
		bus:         bus,
		logger:      logger,
	}, nil
}

// Startup brings the daemon online: database health check (with reconnect),
// monitored-set seeding, historical backfill, then the collector, engine and
// reset scheduler.
func (a *App) Startup(ctx context.Context) error {
	if err := a.initializeDatabase(ctx); err != nil {
		return err
	}

	if err := a.seedMonitoredSet(ctx); err != nil {
		a.logger.Warn("Monitored set seeding failed", "error", err)
	}

	// Reconcile history before live monitoring starts writing today's rows
	if err := a.backfiller.Run(ctx); err != nil {
		a.logger.Warn("Startup backfill failed", "error", err)
	}

	a.collector.Start()
	a.engine.Start(ctx)
	a.engine.EnableRealtime()
	a.scheduler.Start(ctx)

	if a.cfg != nil {
		a.maybeCleanup(ctx)
	}

	a.logger.Info("Daemon started", "environment", a.cfg.Environment)
	return nil
}

// initializeDatabase verifies database health, reconnecting and re-running
// migrations when the failure looks transient.
func (a *App) initializeDatabase(ctx context.Context) error {
	if a.dbService == nil {
		return errors.NewStoreError("startup",
			fmt.Errorf("database service not initialized"),
			errors.ErrCodeConnection)
	}

	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := a.dbService.Health(healthCtx); err != nil {
		if errors.IsRetryable(err) {
			return a.reconnectDatabase(ctx)
		}
		return errors.NewStoreErrorWithContext("startup",
			err,
			errors.ClassifyError(err),
			map[string]string{"operation": "health_check"})
	}
	return nil
}

func (a *App) reconnectDatabase(ctx context.Context) error {
	a.logger.Warn("Database unhealthy, attempting to reconnect")

	reconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dbConfig := database.ConfigForEnvironment(a.cfg.Environment)
	if err := a.dbService.Connect(reconnectCtx, dbConfig); err != nil {
		return errors.NewStoreErrorWithContext("startup",
			err,
			errors.ErrCodeConnection,
			map[string]string{"operation": "reconnect", "db_path": dbConfig.Path})
	}

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	defer migrateCancel()

	if err := a.dbService.Migrate(migrateCtx); err != nil {
		return errors.NewStoreErrorWithContext("startup",
			err,
			errors.ClassifyError(err),
			map[string]string{"operation": "migrate", "db_path": dbConfig.Path})
	}

	a.logger.Info("Database reconnected and migrations completed")
	return nil
}

// seedMonitoredSet populates the structured monitored set from configuration
// on first run only; an existing set is authoritative.
func (a *App) seedMonitoredSet(ctx context.Context) error {
	existing, err := a.repository.ListMonitoredPackages(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	seed := a.cfg.MonitoredSeed()
	if len(seed) == 0 {
		return nil
	}

	if err := a.repository.ReplaceMonitoredPackages(ctx, seed); err != nil {
		return err
	}
	a.logger.Info("Monitored set seeded from configuration", "count", len(seed))
	return a.engine.SyncMonitoredSet(ctx)
}

func (a *App) maybeCleanup(ctx context.Context) {
	dbConfig := database.ConfigForEnvironment(a.cfg.Environment)
	if !dbConfig.EnableCleanup || dbConfig.RetentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -dbConfig.RetentionDays)
	if err := a.repository.DeleteOldData(ctx, cutoff); err != nil {
		a.logger.Warn("Retention cleanup failed", "error", err)
		return
	}
	a.logger.Info("Retention cleanup completed", "retention_days", dbConfig.RetentionDays)
}

// Coordinator exposes the blocking-signal observer.
func (a *App) Coordinator() *services.Coordinator {
	return a.coordinator
}

// Engine exposes the monitoring engine, mainly for lifecycle callbacks.
func (a *App) Engine() *services.MonitoringEngine {
	return a.engine
}

// ScoreForDate resolves the attention score and app breakdown for a date.
func (a *App) ScoreForDate(ctx context.Context, date time.Time) (*types.DailySummary, error) {
	return a.aggregator.ScoreForDate(ctx, date)
}

// Shutdown stops the daemon in reverse dependency order: scheduler, engine,
// collector, then an optimize pass and a bounded-timeout database close.
func (a *App) Shutdown(ctx context.Context) {
	a.logger.Info("Starting shutdown sequence")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	a.scheduler.Stop()
	a.engine.Stop()
	a.collector.Stop()

	// Best-effort maintenance; skipped for in-memory databases
	if err := a.dbService.Optimize(shutdownCtx); err != nil {
		a.logger.Debug("Optimize during shutdown failed", "error", err)
	}

	if err := a.closeDatabaseConnection(shutdownCtx); err != nil {
		a.logger.Error("Error during database closure", "error", err)
	}

	a.logger.Info("Shutdown completed")
}

// closeDatabaseConnection closes the database with timeout handling so a
// hung close cannot stall process exit.
func (a *App) closeDatabaseConnection(ctx context.Context) error {
	if a.dbService == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- a.dbService.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.NewStoreErrorWithContext("shutdown",
				err,
				errors.ClassifyError(err),
				map[string]string{"operation": "close_connection"})
		}
		return nil
	case <-ctx.Done():
		return errors.NewStoreError("shutdown", ctx.Err(), errors.ErrCodeTimeout)
	}
}

// Logger returns the application's structured logger.
func (a *App) Logger() logging.Logger {
	return a.logger
}
