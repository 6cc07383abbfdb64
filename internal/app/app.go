package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/queue"
	"github.com/ternarybob/tcsync/internal/services/actions"
	"github.com/ternarybob/tcsync/internal/services/certificates"
	"github.com/ternarybob/tcsync/internal/services/lms"
	"github.com/ternarybob/tcsync/internal/services/mailer"
	"github.com/ternarybob/tcsync/internal/services/matching"
	"github.com/ternarybob/tcsync/internal/services/notify"
	"github.com/ternarybob/tcsync/internal/services/pdf"
	"github.com/ternarybob/tcsync/internal/services/portal"
	"github.com/ternarybob/tcsync/internal/services/scheduler"
	"github.com/ternarybob/tcsync/internal/services/session"
	"github.com/ternarybob/tcsync/internal/storage/badger"
	"github.com/ternarybob/tcsync/internal/worker"
)

const startupTimeout = 30 * time.Second

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	BadgerDB      *badger.BadgerDB
	ReportStorage interfaces.ReportStorage
	Queue         interfaces.QueueStore
	LMS           *lms.PostgresStore
	Photos        *lms.PhotoStorage

	// Notifications
	PDFService interfaces.PDFService
	Mailer     *mailer.Service
	Notifier   *notify.Service

	// Portal
	Sessions *session.Manager
	Executor *actions.Executor

	// Worker
	Processor *worker.Processor
	Runner    *worker.Runner
	Scheduler *scheduler.Service
}

// New initializes the application with all dependencies. Nothing runs until Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := app.initStorage(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Notifications come up before the queue so a queue failure can still be reported.
	app.initNotifications()

	if err := app.initQueue(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.initServices(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("queue_backend", cfg.Queue.Backend).
		Bool("housekeeping_enabled", cfg.Housekeeping.Enabled).
		Msg("Application initialization complete")
	return app, nil
}

// initStorage opens Badger for batch reports and the embedded queue backend
func (a *App) initStorage() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.BadgerDB = db
	a.ReportStorage = badger.NewReportStorage(db, a.Logger)

	if err := os.MkdirAll(a.Config.Storage.Files.Temp, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	return nil
}

func (a *App) initNotifications() {
	a.PDFService = pdf.NewService(a.Config.Company.Name, a.Logger)
	a.Mailer = mailer.NewService(&a.Config.Mail, a.Logger)
	a.Notifier = notify.NewService(a.Mailer, a.PDFService, a.Config.Company, a.Config.Alerts, a.Logger)
}

// initQueue connects the queue store. A failure here is fatal and is reported to
// engineering before the process exits.
func (a *App) initQueue(ctx context.Context) error {
	store, err := queue.NewStore(ctx, a.Config, a.BadgerDB.DB(), a.Logger)
	if err != nil {
		err = fmt.Errorf("failed to connect to %s queue store: %w", a.Config.Queue.Backend, err)
		alert := []models.SystemErrorRecord{{
			Reason:     err.Error(),
			Stack:      common.Stack(),
			OccurredAt: time.Now(),
		}}
		if alertErr := a.Notifier.SystemAlert(ctx, alert); alertErr != nil {
			a.Logger.Error().Err(alertErr).Msg("Failed to send startup alert")
		}
		return err
	}
	a.Queue = store
	return nil
}

// initServices wires the LMS, portal, action executors and the worker
func (a *App) initServices(ctx context.Context) error {
	var err error

	a.LMS, err = lms.NewPostgresStore(ctx, &a.Config.Database, a.Logger)
	if err != nil {
		return err
	}
	a.Photos, err = lms.NewPhotoStorage(a.Config.Storage.Files.Photos, a.Logger)
	if err != nil {
		return err
	}

	renderer, err := certificates.NewRenderer(a.Config.Browser, a.Config.Company, a.Logger)
	if err != nil {
		return err
	}

	launcher := portal.NewLauncher(a.Config.Browser, a.Config.Portal, a.Logger)
	a.Sessions = session.NewManager(launcher, &a.Config.Session, a.Logger)

	locator := matching.NewLocator(&a.Config.Matching, a.Logger)
	a.Executor = actions.NewExecutor(locator, a.LMS, a.Photos, renderer, a.Queue, a.Config, a.Logger)

	a.Processor = worker.NewProcessor(a.Executor, a.Sessions, a.Notifier, a.ReportStorage, a.LMS, &a.Config.Queue, a.Logger)
	a.Runner = worker.NewRunner(a.Queue, a.Processor, &a.Config.Queue, a.Logger)

	a.Scheduler = scheduler.NewService(a.Logger)
	if a.Config.Housekeeping.Enabled {
		if err := a.Scheduler.RegisterHousekeeping(&a.Config.Housekeeping, a.ReportStorage, a.Config.Storage.Files.Temp); err != nil {
			return err
		}
	}
	return nil
}

// Start begins polling the queue and running housekeeping
func (a *App) Start() error {
	if !a.Config.Features.TrainingConnectEnabled {
		a.Logger.Warn().Msg("Training Connect sync disabled, queue runner not started")
	} else {
		a.Runner.Start()
	}

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close stops background work and releases resources. Safe on a partially built App.
func (a *App) Close() error {
	if a.Runner != nil {
		a.Runner.Stop()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Sessions != nil {
		a.Sessions.Teardown()
	}

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue store")
		}
	}
	if a.LMS != nil {
		a.LMS.Close()
	}
	if a.BadgerDB != nil {
		if err := a.BadgerDB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close badger")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
