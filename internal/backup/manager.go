// Package backup enforces history retention and writes periodic JSON
// archives of the full history.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/bundle"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/config"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/content"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
)

const (
	backupPrefix = "clipkeeper_backup_"
	backupExt    = ".json"

	// evictionBatch bounds how many rows one retention pass removes per
	// query, so a huge backlog cannot stall capture.
	evictionBatch = 100
)

// Info describes one archive on disk.
type Info struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Manager trims history back under its configured ceilings and maintains
// rotated JSON backups.
type Manager struct {
	repo   *database.Repository
	store  *content.Store
	engine *bundle.Engine
	cfg    *config.Config
	logger *zap.Logger
}

func NewManager(repo *database.Repository, store *content.Store, engine *bundle.Engine, cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		repo:   repo,
		store:  store,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

// EnforceRetention deletes the least recently used unpinned, non-favorite
// clips until the history is back under the configured count and byte
// ceilings. Image files orphaned by the deletions are garbage-collected.
// Pinned and favorite clips are never touched.
func (m *Manager) EnforceRetention(ctx context.Context) error {
	var trimmed int64
	removedImages := false

	if m.cfg.MaxHistory > 0 {
		for {
			count, err := m.repo.CountEvictable(ctx)
			if err != nil {
				return err
			}
			if count <= m.cfg.MaxHistory {
				break
			}

			excess := count - m.cfg.MaxHistory
			if excess > evictionBatch {
				excess = evictionBatch
			}

			victims, err := m.repo.OldestEvictable(ctx, excess)
			if err != nil {
				return err
			}
			if len(victims) == 0 {
				break
			}

			ids := make([]int64, 0, len(victims))
			for _, v := range victims {
				ids = append(ids, v.ID)
				if v.Kind == database.KindImage {
					removedImages = true
				}
			}

			deleted, err := m.repo.DeleteByIDs(ctx, ids)
			if err != nil {
				return err
			}
			if deleted == 0 {
				break
			}
			trimmed += deleted
		}
	}

	if m.cfg.MaxHistoryBytes > 0 {
		total, err := m.repo.TotalSize(ctx)
		if err != nil {
			return err
		}

		for total > m.cfg.MaxHistoryBytes {
			victims, err := m.repo.OldestEvictable(ctx, evictionBatch)
			if err != nil {
				return err
			}
			if len(victims) == 0 {
				break
			}

			ids := make([]int64, 0, len(victims))
			for _, v := range victims {
				ids = append(ids, v.ID)
				total -= v.SizeBytes
				if v.Kind == database.KindImage {
					removedImages = true
				}
				if total <= m.cfg.MaxHistoryBytes {
					break
				}
			}

			deleted, err := m.repo.DeleteByIDs(ctx, ids)
			if err != nil {
				return err
			}
			if deleted == 0 {
				break
			}
			trimmed += deleted
		}
	}

	if trimmed > 0 {
		m.logger.Info("trimmed history", zap.Int64("clips", trimmed))
	}

	if removedImages {
		if err := m.CollectGarbage(ctx); err != nil {
			return err
		}
	}

	return nil
}

// CollectGarbage removes image files no clip references anymore.
func (m *Manager) CollectGarbage(ctx context.Context) error {
	referenced, err := m.repo.ImageHashes(ctx)
	if err != nil {
		return err
	}

	removed, err := m.store.DeleteUnreferenced(referenced)
	if err != nil {
		return fmt.Errorf("failed to clean image store: %w", err)
	}
	if removed > 0 {
		m.logger.Info("removed orphaned image files", zap.Int("files", removed))
	}
	return nil
}

// CreateBackup exports the full history to a timestamped archive in the
// backups directory and prunes old archives past the keep count. The export
// goes through a temp file and rename, so a failed run never leaves a partial
// archive for rotation or the catch-up check to pick up.
func (m *Manager) CreateBackup(ctx context.Context) (*Info, error) {
	dir := m.cfg.BackupsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}

	now := time.Now()
	name := fmt.Sprintf("%s%s_%03d%s", backupPrefix, now.Format("20060102_150405"), now.Nanosecond()/1e6, backupExt)
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		name = fmt.Sprintf("%s%s_%03d_%d%s", backupPrefix, now.Format("20060102_150405"), now.Nanosecond()/1e6, os.Getpid(), backupExt)
		path = filepath.Join(dir, name)
	}

	// The .tmp suffix keeps the file invisible to ListBackups until the
	// rename.
	tempPath := path + ".tmp"
	if err := m.engine.ExportFile(ctx, tempPath, database.Filter{}); err != nil {
		os.Remove(tempPath)
		return nil, err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to finalize backup: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	if err := m.RotateBackups(); err != nil {
		m.logger.Warn("failed to rotate backups", zap.Error(err))
	}

	m.logger.Info("backup created", zap.String("path", path), zap.Int64("size", info.Size()))
	return &Info{Path: path, Size: info.Size(), CreatedAt: info.ModTime()}, nil
}

// RestoreBackup replaces the entire history with the archive at path, then
// brings the result back under the configured ceilings.
func (m *Manager) RestoreBackup(ctx context.Context, path string) (bundle.Report, error) {
	report, err := m.engine.ImportFile(ctx, path, bundle.Replace)
	if err != nil {
		return report, err
	}
	if err := m.EnforceRetention(ctx); err != nil {
		return report, err
	}
	m.logger.Info("backup restored", zap.String("path", path), zap.Int("clips", report.Imported))
	return report, nil
}

// ListBackups returns the archives in the backups directory, newest first.
func (m *Manager) ListBackups() ([]Info, error) {
	dir := m.cfg.BackupsDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupExt) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, name),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// RotateBackups removes the oldest archives beyond BackupKeepCount.
func (m *Manager) RotateBackups() error {
	keep := m.cfg.BackupKeepCount
	if keep < 1 {
		keep = 1
	}

	backups, err := m.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= keep {
		return nil
	}

	for _, old := range backups[keep:] {
		if err := os.Remove(old.Path); err != nil {
			return fmt.Errorf("failed to remove old backup: %w", err)
		}
		m.logger.Debug("removed old backup", zap.String("path", old.Path))
	}
	return nil
}

// Run writes backups on the configured interval until ctx is done. When the
// newest archive is already older than one interval, a catch-up backup runs
// immediately. Failures are logged and the schedule keeps going.
func (m *Manager) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.BackupInterval) * time.Minute

	if m.needsCatchUp(interval) {
		m.runScheduled(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runScheduled(ctx)
		}
	}
}

func (m *Manager) needsCatchUp(interval time.Duration) bool {
	backups, err := m.ListBackups()
	if err != nil || len(backups) == 0 {
		return true
	}
	return time.Since(backups[0].CreatedAt) > interval
}

// runScheduled skips empty histories so freshly installed daemons do not
// rotate real archives away with empty ones.
func (m *Manager) runScheduled(ctx context.Context) {
	stats, err := m.repo.Stats(ctx)
	if err == nil && stats.Total == 0 {
		m.logger.Debug("skipping backup, history is empty")
		return
	}

	if _, err := m.CreateBackup(ctx); err != nil {
		m.logger.Error("scheduled backup failed", zap.Error(err))
	}
}
