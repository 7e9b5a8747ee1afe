// Package newsflow wires the repositories, plugin dispatch, job scheduler and
// content services into one application.
package newsflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/RealZimboGuy/newsflow/internal/config"
	"github.com/RealZimboGuy/newsflow/internal/definitions"
	"github.com/RealZimboGuy/newsflow/internal/jobqueue"
	"github.com/RealZimboGuy/newsflow/internal/lock"
	"github.com/RealZimboGuy/newsflow/internal/newsroom"
	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/internal/plugins"
	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// ErrSchedulerRunning is returned by Serve when another scheduler holds the
// lock file on this host.
var ErrSchedulerRunning = errors.New("another scheduler is already running")

// App holds every component of a running newsflow instance.
type App struct {
	DB    *sql.DB
	Clock core.Clock

	Users      *repository.UserAccountRepository
	Workflows  *repository.WorkflowRepository
	NewsItems  *repository.NewsItemRepository
	Editions   *repository.EditionRepository
	Newswire   *repository.NewswireRepository
	Configs    *repository.PluginConfigurationRepository
	Jobs       *repository.JobQueueRepository
	JobEvents  *repository.JobQueueEventRepository
	Executors  *repository.ExecutorRepository
	Registry   *plugin.Registry
	Context    *newsroom.PluginContext
	Dispatcher *plugin.Dispatcher
	Scheduler  *jobqueue.Scheduler
	Newsroom   *newsroom.Service
	Locks      *lock.Manager
	Importer   *definitions.Importer
}

// Open connects to the database named by the settings, migrating it first.
func Open(ctx context.Context) (*App, error) {
	target, err := repository.TargetFromSettings()
	if err != nil {
		return nil, err
	}
	db, err := repository.Open(ctx, target)
	if err != nil {
		return nil, err
	}
	app, err := New(db, target.Dialect, core.NewRealClock(), jobqueue.OptionsFromSettings())
	if err != nil {
		db.Close()
		return nil, err
	}
	return app, nil
}

// New builds an App on an already migrated database.
func New(db *sql.DB, d repository.Dialect, clock core.Clock, opts jobqueue.Options) (*App, error) {
	a := &App{
		DB:        db,
		Clock:     clock,
		Users:     repository.NewUserAccountRepository(db, d, clock),
		Workflows: repository.NewWorkflowRepository(db, d, clock),
		NewsItems: repository.NewNewsItemRepository(db, d, clock),
		Editions:  repository.NewEditionRepository(db, d),
		Newswire:  repository.NewNewswireRepository(db, d, clock),
		Configs:   repository.NewPluginConfigurationRepository(db, d),
		Jobs:      repository.NewJobQueueRepository(db, d, clock),
		JobEvents: repository.NewJobQueueEventRepository(db, d, clock),
		Executors: repository.NewExecutorRepository(db, d, clock),
		Registry:  plugin.NewRegistry(),
	}
	if err := plugins.Register(a.Registry, plugins.Deps{
		Client:       &http.Client{},
		EditionItems: a.NewsItems,
	}); err != nil {
		return nil, fmt.Errorf("register plugins: %w", err)
	}

	a.Context = newsroom.NewPluginContext(a.Newswire, a.Users, a.NewsItems, a.JobEvents, clock)
	a.Dispatcher = plugin.NewDispatcher(a.Registry, a.Context, a.Configs, plugin.Targets{
		NewsItems: a.NewsItems,
		Editions:  a.Editions,
		Newswire:  a.Newswire,
	}, plugin.ScheduleFunc(func(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error) {
		return a.Scheduler.Schedule(ctx, req)
	}), a.JobEvents, clock)
	a.Scheduler = jobqueue.NewScheduler(a.Jobs, a.JobEvents, a.Executors, a.Dispatcher, clock, opts)
	a.Newsroom = newsroom.NewService(a.NewsItems, a.Workflows, a.Users, a.Scheduler, clock)
	a.Locks = lock.NewManager(a.NewsItems, a.Workflows, clock)
	a.Importer = definitions.NewImporter(a.Configs, a.Workflows)
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Serve runs the scheduler and the cron maintenance until ctx is done. Only
// one scheduler per lock file may run.
func (a *App) Serve(ctx context.Context) error {
	lockPath := config.GetSystemSettingString(config.SCHEDULER_LOCK_FILE)
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s is held", ErrSchedulerRunning, lockPath)
	}
	defer fl.Unlock()

	maint, err := jobqueue.NewMaintenance(a.Scheduler, config.GetSystemSettingString(config.SCHEDULER_CLEANUP_CRON))
	if err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		maint.Run(ctx)
	}()

	err = a.Scheduler.Start(ctx)
	<-done
	return err
}

// ParseLevel maps NEWSFLOW_LOG_LEVEL values onto slog levels. Unknown values
// give INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetupLogger installs a tint handler on stderr as the default slog logger.
func SetupLogger(level slog.Level) {
	w := os.Stderr
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339Nano,
			NoColor:    !isatty.IsTerminal(w.Fd()),
		}),
	))
}
