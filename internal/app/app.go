// Package app wires the capture daemon together: config, storage, watcher,
// pipeline and the backup scheduler.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/backup"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/bundle"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/clipboard"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/config"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/content"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
)

// Build-time variables (set by GoReleaser)
var (
	Version   = "0.0.0-dev" // Will be replaced by -ldflags
	BuildDate = "unknown"   // Will be replaced by -ldflags
	GitCommit = "unknown"   // Will be replaced by -ldflags
)

const AppName = "ClipKeeper"

type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	repo     *database.Repository
	store    *content.Store
	engine   *bundle.Engine
	backups  *backup.Manager
	watcher  *clipboard.Watcher
	pipeline *clipboard.Pipeline
}

// New loads configuration from configPath (empty means the default XDG
// location) and opens every component the daemon needs. The system clipboard
// is not touched until Run, so one-shot commands work headless.
func New(configPath string, logger *zap.Logger) (*App, error) {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		if err := cfg.Save(configPath); err != nil {
			logger.Warn("failed to write default config", zap.String("path", configPath), zap.Error(err))
		}
	}

	repo, err := database.Open(cfg.DatabasePath(), cfg.DebugSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	store, err := content.NewStore(cfg.ImagesDir())
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to open content store: %w", err)
	}

	engine := bundle.NewEngine(repo, store)
	backups := backup.NewManager(repo, store, engine, cfg, logger)

	watcher := clipboard.NewWatcher(time.Duration(cfg.MonitorInterval)*time.Millisecond, logger)
	pipeline := clipboard.NewPipeline(repo, store, cfg, backups, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		store:    store,
		engine:   engine,
		backups:  backups,
		watcher:  watcher,
		pipeline: pipeline,
	}, nil
}

// Run starts capture and the backup scheduler, then blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start clipboard watcher: %w", err)
	}

	go a.pipeline.Run(ctx, a.watcher.Events())

	if a.cfg.BackupEnabled {
		go a.backups.Run(ctx)
	}

	if a.cfg.CheckUpdatesOnStartup {
		go a.checkForUpdates(ctx)
	}

	a.logger.Info("clipkeeper started",
		zap.String("version", Version),
		zap.String("data_dir", a.cfg.DataDir),
		zap.Int("max_history", a.cfg.MaxHistory))

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// Close releases the database. Call after Run returns.
func (a *App) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}

// CopyClip puts a stored clip back onto the system clipboard and records the
// use. The watcher marks the hash as seen, so the write is not re-captured.
func (a *App) CopyClip(ctx context.Context, id int64) error {
	clip, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	var data []byte
	switch clip.Kind {
	case database.KindText:
		data = []byte(clip.Content)
	case database.KindImage:
		data, err = a.store.Get(clip.Hash)
		if err != nil {
			return fmt.Errorf("failed to load image content: %w", err)
		}
	default:
		return fmt.Errorf("unsupported clipboard kind: %s", clip.Kind)
	}

	if err := a.watcher.Apply(clip.Kind, data, clip.Hash); err != nil {
		return err
	}
	if err := a.repo.Touch(ctx, clip.ID); err != nil {
		return err
	}

	a.logger.Info("copied clip to clipboard", zap.Int64("id", clip.ID), zap.String("kind", clip.Kind))
	return nil
}

// DeleteClip removes a clip and, for images, its content file. The hash
// column is unique, so a deleted image row leaves its file unreferenced.
func (a *App) DeleteClip(ctx context.Context, id int64) error {
	clip, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := a.repo.Delete(ctx, clip.ID); err != nil {
		return err
	}

	if clip.Kind == database.KindImage {
		if err := a.store.Delete(clip.Hash); err != nil {
			a.logger.Warn("failed to remove image content", zap.String("hash", clip.Hash), zap.Error(err))
		}
	}
	return nil
}

// ClearHistory deletes every unpinned, non-favorite clip and prunes image
// files nothing references anymore.
func (a *App) ClearHistory(ctx context.Context) (int64, error) {
	removed, err := a.repo.ClearUnpinned(ctx)
	if err != nil {
		return 0, err
	}
	if err := a.backups.CollectGarbage(ctx); err != nil {
		return removed, err
	}

	a.logger.Info("cleared history", zap.Int64("clips", removed))
	return removed, nil
}

// ImportHistory loads a bundle file into the history and then enforces the
// configured retention ceilings, the same as a live capture would.
func (a *App) ImportHistory(ctx context.Context, path string, mode bundle.Mode) (bundle.Report, error) {
	report, err := a.engine.ImportFile(ctx, path, mode)
	if err != nil {
		return report, err
	}
	if err := a.backups.EnforceRetention(ctx); err != nil {
		return report, err
	}

	a.logger.Info("imported history",
		zap.String("path", path),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// SetPaused suspends or resumes clipboard polling entirely.
func (a *App) SetPaused(paused bool) {
	a.watcher.SetPaused(paused)
}

// SetIncognito keeps polling but stops storing captures.
func (a *App) SetIncognito(on bool) {
	a.pipeline.SetIncognito(on)
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Repository() *database.Repository { return a.repo }

func (a *App) Store() *content.Store { return a.store }

func (a *App) Bundle() *bundle.Engine { return a.engine }

func (a *App) Backups() *backup.Manager { return a.backups }

func (a *App) checkForUpdates(ctx context.Context) {
	checker, err := NewUpdateChecker(a.logger)
	if err != nil {
		a.logger.Warn("update check unavailable", zap.Error(err))
		return
	}

	release, err := checker.Check(ctx)
	if err != nil {
		a.logger.Warn("update check failed", zap.Error(err))
		return
	}
	if release != nil {
		a.logger.Info("update available",
			zap.String("current", Version),
			zap.String("latest", release.Version()))
	}
}
