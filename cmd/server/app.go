package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/apply-orchestrator/internal/cancel"
	"github.com/phrazzld/apply-orchestrator/internal/config"
	"github.com/phrazzld/apply-orchestrator/internal/events"
	"github.com/phrazzld/apply-orchestrator/internal/metrics"
	"github.com/phrazzld/apply-orchestrator/internal/platform/executor"
	"github.com/phrazzld/apply-orchestrator/internal/platform/memory"
	"github.com/phrazzld/apply-orchestrator/internal/platform/postgres"
	"github.com/phrazzld/apply-orchestrator/internal/secrets"
	"github.com/phrazzld/apply-orchestrator/internal/service"
	"github.com/phrazzld/apply-orchestrator/internal/service/auth"
	"github.com/phrazzld/apply-orchestrator/internal/staging"
	"github.com/phrazzld/apply-orchestrator/internal/store"
	"github.com/phrazzld/apply-orchestrator/internal/submit"
	"github.com/phrazzld/apply-orchestrator/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// application holds the shared dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	mirrorStore  store.MirrorStore
	profileStore store.ProfileStore
	jobStore     store.JobStore

	// Remote executor and the components driving it
	executor   *executor.Client
	submitter  *submit.Submitter
	stager     *staging.Stager
	controller *cancel.Controller

	// Service interfaces
	jwtService   auth.JWTService
	applyService service.ApplyService

	eventEmitter *events.InMemoryEventEmitter
	taskFactory  *task.ApplyTaskFactory
	taskRunner   *task.TaskRunner

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// newApplication wires every component. db is nil for the memory driver.
// The task runner is created but not started; Run starts it.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.MustNewMetrics(app.registry)

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	if err := app.setupStores(); err != nil {
		return nil, err
	}

	app.executor, err = executor.NewClient(executor.Config{
		BaseURL:           cfg.Executor.BaseURL,
		APIKey:            cfg.Executor.APIKey,
		RequestTimeout:    cfg.Executor.RequestTimeout(),
		AwaitPollInterval: cfg.Executor.AwaitPollInterval(),
		MaxRetries:        cfg.Executor.MaxRetries,
	}, logger, executor.WithObserver(app.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize executor client: %w", err)
	}
	if err := app.executor.Ready(); err != nil {
		logger.Warn("Executor credentials missing; submissions will be rejected until configured")
	}

	app.submitter = submit.NewSubmitter(app.executor, submit.Config{
		RunTimeout: cfg.Executor.RunTimeout(),
		MaxSteps:   cfg.Executor.MaxSteps,
		Vision:     cfg.Executor.Vision,
	}, logger)
	app.stager = staging.NewStager(app.executor, app.metrics, logger)
	app.controller = cancel.NewController(app.executor, app.metrics, logger)

	if err := app.setupTaskRunner(); err != nil {
		return nil, err
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(task.NewTaskFactoryEventHandler(app.taskFactory, app.taskRunner, logger))

	app.applyService, err = service.NewApplyService(service.ApplyServiceDeps{
		Mirrors:   app.mirrorStore,
		Profiles:  app.profileStore,
		Jobs:      app.jobStore,
		Preflight: app.submitter,
		Events:    app.eventEmitter,
		Remote:    app.executor,
		Canceller: app.controller,
		Recorder:  app.metrics,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create apply service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupStores selects Postgres or in-memory stores by driver. Sealed
// credentials need an age identity; without one they cannot be opened.
func (app *application) setupStores() error {
	var sealer *secrets.Sealer
	if path := app.config.Secrets.AgeIdentityPath; path != "" {
		var err error
		sealer, err = secrets.LoadSealer(path)
		if err != nil {
			return fmt.Errorf("failed to load credential identity: %w", err)
		}
		app.logger.Info("Credential sealing enabled")
	}

	if app.db == nil {
		return app.setupMemoryStores(sealer)
	}

	app.mirrorStore = postgres.NewPostgresMirrorStore(app.db, app.logger)
	app.profileStore = postgres.NewPostgresProfileStore(app.db, sealer, app.logger)
	app.jobStore = postgres.NewPostgresJobStore(app.db)
	return nil
}

func (app *application) setupMemoryStores(sealer *secrets.Sealer) error {
	profiles := memory.NewProfileStore()
	jobs := memory.NewJobStore()
	app.mirrorStore = memory.NewMirrorStore()
	app.profileStore = profiles
	app.jobStore = jobs

	path := app.config.Database.SeedFile
	if path == "" {
		return nil
	}
	seed, err := memory.LoadSeedFile(path)
	if err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}
	if err := seed.Apply(profiles, jobs, sealer); err != nil {
		return fmt.Errorf("failed to apply seed file: %w", err)
	}
	app.logger.Info("Loaded seed data",
		"profiles", len(seed.Profiles),
		"jobs", len(seed.Jobs))
	return nil
}

// setupTaskRunner creates the background runner. Its factory is the same
// apply task factory the event handler uses, so recovered records and new
// submissions run identically.
func (app *application) setupTaskRunner() error {
	var err error
	app.taskFactory, err = task.NewApplyTaskFactory(task.ApplyDeps{
		Mirrors:   app.mirrorStore,
		Profiles:  app.profileStore,
		Jobs:      app.jobStore,
		Submitter: app.submitter,
		Stager:    app.stager,
		Canceller: app.controller,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create apply task factory: %w", err)
	}
	app.taskRunner = task.NewTaskRunner(app.mirrorStore, app.taskFactory, task.TaskRunnerConfig{
		WorkerCount:            app.config.Task.WorkerCount,
		QueueSize:              app.config.Task.QueueSize,
		StuckTaskAge:           app.config.Task.StuckTaskAge(),
		StuckTaskCheckInterval: app.config.Task.StuckTaskCheckInterval(),
	}, app.logger)
	app.taskRunner.SetObserver(app.metrics)
	return nil
}

// Run starts the task runner and serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	if err := app.taskRunner.Start(); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
