// Package app opens a workspace and wires the stores, the generator registry
// and the engine together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"demopilot/internal/config"
	"demopilot/internal/db"
	"demopilot/internal/domain"
	"demopilot/internal/engine"
	"demopilot/internal/events"
	"demopilot/internal/generators"
	"demopilot/internal/host"
	"demopilot/internal/migrate"
	"demopilot/internal/progress"
	"demopilot/internal/registry"
	"demopilot/internal/repo"
	"demopilot/internal/tracker"
)

type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Host      *host.Store
	Repo      repo.Repo
	Journal   *events.Journal
	Tracker   tracker.Tracker
	Progress  *progress.Store
	Registry  *registry.Registry
	Engine    engine.Engine
	Logger    *log.Logger
}

// Options for Open. Zero values fall back to the workspace config and the
// standard logger.
type Options struct {
	Config *config.Config
	Logger *log.Logger
	// Seed feeds the generators' fakers; zero picks a random one.
	Seed uint64
}

// HostTarget returns the host driver and DSN for cfg. An empty SQLite DSN
// points at host.db inside the workspace state dir.
func HostTarget(workspace string, cfg *config.Config) (string, string) {
	driver, dsn := cfg.Host.Driver, cfg.Host.DSN
	if driver == "" {
		driver = host.SQLite
	}
	if dsn == "" && (driver == host.SQLite || driver == "sqlite3") {
		dsn = db.HostPath(workspace)
	}
	return driver, dsn
}

// Open loads config, migrates the bookkeeping db, connects to the host store
// and registers every enabled built-in generator.
func Open(ctx context.Context, workspace string, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadOptional(workspace)
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	a := &App{Workspace: workspace, Config: cfg, DB: conn, Repo: repo.Repo{DB: conn}, Logger: logger}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	jopts := events.Options{MaxEntries: cfg.Logging.MaxEntries, EnabledDefault: cfg.Logging.Enabled, Errors: logger}
	if cfg.Logging.DebugMirror {
		jopts.Mirror = logger
	}
	a.Journal, err = events.New(ctx, conn, jopts)
	if err != nil {
		a.Close()
		return nil, err
	}

	driver, dsn := HostTarget(workspace, cfg)
	a.Host, err = host.Open(driver, dsn)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Tracker = tracker.New(conn)
	a.Progress = progress.New(cfg.Progress.TTL)
	a.Registry = registry.New()
	_, errs := a.Registry.Discover(generators.Catalog(generators.Options{
		Store:  a.Host,
		Config: cfg,
		Logger: a.Journal,
		Seed:   opts.Seed,
	}), cfg.GeneratorEnabled)
	for _, err := range errs {
		logger.Printf("generator discovery: %v", err)
		a.Journal.Log(ctx, err.Error(), domain.LevelWarning, "")
	}
	a.Engine = engine.New(a.Registry, a.Tracker, a.Journal, a.Progress, cfg)
	return a, nil
}

// Close releases the stores.
func (a *App) Close() error {
	var errs []error
	if a.Host != nil {
		errs = append(errs, a.Host.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// InstallHost creates the host tables of the named generators (all when
// none are named).
func (a *App) InstallHost(ctx context.Context, slugs ...string) error {
	if err := generators.Install(ctx, a.Host, slugs...); err != nil {
		return err
	}
	a.Journal.Log(ctx, fmt.Sprintf("Installed host tables for %v", orAll(slugs)), domain.LevelInfo, "")
	return nil
}

func orAll(slugs []string) any {
	if len(slugs) == 0 {
		return "all generators"
	}
	return slugs
}

// AutoPrune runs a prune pass when cleanup.auto is set. It reports whether a
// pass ran.
func (a *App) AutoPrune(ctx context.Context) (engine.PruneResult, bool, error) {
	if !a.Config.Cleanup.Auto || a.Config.Cleanup.Days < 1 {
		return engine.PruneResult{}, false, nil
	}
	res, err := a.Engine.Prune(ctx, time.Duration(a.Config.Cleanup.Days)*24*time.Hour)
	return res, true, err
}

// UninstallResult counts what Uninstall removed.
type UninstallResult struct {
	TrackedRows int64 `json:"tracked_rows"`
	Dropped     bool  `json:"dropped"`
}

// Uninstall forgets every tracked record, the journal and the settings. Host
// data is left untouched. With drop the bookkeeping tables are removed too.
func (a *App) Uninstall(ctx context.Context, drop bool) (UninstallResult, error) {
	var res UninstallResult
	n, err := a.Tracker.Purge(ctx)
	if err != nil {
		return res, fmt.Errorf("purge tracked records: %w", err)
	}
	res.TrackedRows = n
	if err := a.Journal.Clear(ctx); err != nil {
		return res, fmt.Errorf("clear logs: %w", err)
	}
	if err := a.Repo.DeleteSettings(ctx); err != nil {
		return res, fmt.Errorf("delete settings: %w", err)
	}
	a.Progress.Purge()
	if drop {
		if err := migrate.Drop(ctx, a.DB); err != nil {
			return res, err
		}
		res.Dropped = true
	}
	return res, nil
}
