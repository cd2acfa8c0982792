// Package database persists clipboard history in SQLite through bun.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// ErrNotFound is returned when a lookup matches no clip.
var ErrNotFound = errors.New("database: clip not found")

type Repository struct {
	db *bun.DB
}

// Open opens (creating if necessary) the history database at dbPath and
// brings the schema up to date. With debugSQL set, every query is logged.
func Open(dbPath string, debugSQL bool) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if debugSQL {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	ctx := context.Background()

	models := []interface{}{
		(*Clip)(nil),
	}

	for _, model := range models {
		if _, err := r.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_clips_used_at ON clips(used_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_clips_pinned ON clips(pinned DESC)",
		"CREATE INDEX IF NOT EXISTS idx_clips_favorite ON clips(favorite DESC)",
		"CREATE INDEX IF NOT EXISTS idx_clips_category ON clips(category)",
		"CREATE INDEX IF NOT EXISTS idx_clips_kind ON clips(kind)",
		"CREATE INDEX IF NOT EXISTS idx_clips_hash ON clips(hash)",
	}

	for _, idx := range indexes {
		if _, err := r.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Insert stores a new clip, or bumps the existing row when a clip with the
// same hash is already present. It returns true when a row was created. On
// dedup the passed clip is overwritten with the surviving row, so pin,
// favorite and mask flags set by the user are never lost to a re-copy.
func (r *Repository) Insert(ctx context.Context, clip *Clip) (bool, error) {
	existing, err := r.FindByHash(ctx, clip.Hash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("failed to check existing clip: %w", err)
	}

	if existing != nil {
		now := time.Now()
		_, err = r.db.NewUpdate().
			Model((*Clip)(nil)).
			Set("used_at = ?", now).
			Set("use_count = use_count + 1").
			Where("id = ?", existing.ID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to bump existing clip: %w", err)
		}

		*clip = *existing
		clip.UsedAt = now
		clip.UseCount++
		return false, nil
	}

	now := time.Now()
	clip.CreatedAt = now
	clip.UsedAt = now
	if clip.UseCount <= 0 {
		clip.UseCount = 1
	}

	if _, err := r.db.NewInsert().Model(clip).Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to insert clip: %w", err)
	}

	return true, nil
}

func (r *Repository) FindByHash(ctx context.Context, hash string) (*Clip, error) {
	var clip Clip
	err := r.db.NewSelect().
		Model(&clip).
		Where("hash = ?", hash).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find clip by hash: %w", err)
	}
	return &clip, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*Clip, error) {
	var clip Clip
	err := r.db.NewSelect().
		Model(&clip).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find clip by id: %w", err)
	}
	return &clip, nil
}

// Filter narrows List results. All set fields must match. The zero value
// returns the most recent clips. Limit 0 means the default of 100; a
// negative Limit returns everything.
type Filter struct {
	Search        string
	Category      string
	Kind          string
	Tag           string
	PinnedOnly    bool
	FavoritesOnly bool
	Limit         int
	Offset        int
}

// List returns clips ordered pinned-first, most recently used next.
func (r *Repository) List(ctx context.Context, filter Filter) ([]*Clip, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = 100
	}

	var clips []*Clip
	q := r.db.NewSelect().Model(&clips)

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where("content LIKE ? OR preview LIKE ?", pattern, pattern)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Tag != "" {
		// Tags are stored as a JSON array, so an exact tag always appears
		// quoted in the column text.
		encoded, err := json.Marshal(filter.Tag)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tag filter: %w", err)
		}
		q = q.Where("tags LIKE ?", "%"+string(encoded)+"%")
	}
	if filter.PinnedOnly {
		q = q.Where("pinned = TRUE")
	}
	if filter.FavoritesOnly {
		q = q.Where("favorite = TRUE")
	}

	q = q.Order("pinned DESC", "used_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	return clips, nil
}

func (r *Repository) SetPinned(ctx context.Context, id int64, pinned bool) error {
	return r.setFlag(ctx, id, "pinned", pinned)
}

func (r *Repository) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return r.setFlag(ctx, id, "favorite", favorite)
}

func (r *Repository) SetMasked(ctx context.Context, id int64, masked bool) error {
	return r.setFlag(ctx, id, "masked", masked)
}

func (r *Repository) setFlag(ctx context.Context, id int64, column string, value bool) error {
	res, err := r.db.NewUpdate().
		Model((*Clip)(nil)).
		Set(column+" = ?", value).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetTags(ctx context.Context, id int64, tags []string) error {
	payload, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	res, err := r.db.NewUpdate().
		Model((*Clip)(nil)).
		Set("tags = ?", string(payload)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch records a use of the clip: used_at moves to now and use_count grows.
func (r *Repository) Touch(ctx context.Context, id int64) error {
	res, err := r.db.NewUpdate().
		Model((*Clip)(nil)).
		Set("used_at = ?", time.Now()).
		Set("use_count = use_count + 1").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to touch clip: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().
		Model((*Clip)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete clip: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearUnpinned deletes everything except pinned and favorite clips and
// returns how many rows went away.
func (r *Repository) ClearUnpinned(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*Clip)(nil)).
		Where("pinned = FALSE").
		Where("favorite = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear unpinned clips: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// CountEvictable counts clips that retention is allowed to remove, meaning
// neither pinned nor favorite.
func (r *Repository) CountEvictable(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*Clip)(nil)).
		Where("pinned = FALSE").
		Where("favorite = FALSE").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count evictable clips: %w", err)
	}
	return count, nil
}

// OldestEvictable returns up to limit evictable clips, least recently used
// first. Retention walks this list when trimming the history.
func (r *Repository) OldestEvictable(ctx context.Context, limit int) ([]*Clip, error) {
	var clips []*Clip
	err := r.db.NewSelect().
		Model(&clips).
		Where("pinned = FALSE").
		Where("favorite = FALSE").
		Order("used_at ASC", "created_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select evictable clips: %w", err)
	}
	return clips, nil
}

func (r *Repository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.NewDelete().
		Model((*Clip)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete clips: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// TotalSize sums size_bytes across the whole history.
func (r *Repository) TotalSize(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := r.db.NewRaw("SELECT SUM(size_bytes) FROM clips").Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum clip sizes: %w", err)
	}
	if total.Valid {
		return total.Int64, nil
	}
	return 0, nil
}

// ImageHashes returns the set of hashes referenced by image clips. The
// content store garbage-collects against this set.
func (r *Repository) ImageHashes(ctx context.Context) (map[string]struct{}, error) {
	var hashes []string
	err := r.db.NewRaw("SELECT hash FROM clips WHERE kind = ?", KindImage).Scan(ctx, &hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to list image hashes: %w", err)
	}

	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set, nil
}

// AllClips returns the full history in creation order, oldest first.
func (r *Repository) AllClips(ctx context.Context) ([]*Clip, error) {
	var clips []*Clip
	err := r.db.NewSelect().
		Model(&clips).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load clips: %w", err)
	}
	return clips, nil
}

// ReplaceAll atomically swaps the entire history for the given clips. IDs are
// reassigned; everything else is stored as passed.
func (r *Repository) ReplaceAll(ctx context.Context, clips []*Clip) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Clip)(nil)).Where("1=1").Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear clips: %w", err)
		}
		for _, clip := range clips {
			clip.ID = 0
			if _, err := tx.NewInsert().Model(clip).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert clip %q: %w", clip.Hash, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}

// Restore inserts a clip exactly as passed, keeping its timestamps, flags
// and use count. Importers use it; live capture goes through Insert.
func (r *Repository) Restore(ctx context.Context, clip *Clip) error {
	clip.ID = 0
	if _, err := r.db.NewInsert().Model(clip).Exec(ctx); err != nil {
		return fmt.Errorf("failed to restore clip %q: %w", clip.Hash, err)
	}
	return nil
}

// Stats aggregates totals for status output.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Categories: make(map[string]int)}

	var err error
	if stats.Total, err = r.db.NewSelect().Model((*Clip)(nil)).Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count clips: %w", err)
	}
	if stats.Pinned, err = r.db.NewSelect().Model((*Clip)(nil)).Where("pinned = TRUE").Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count pinned clips: %w", err)
	}
	if stats.Favorites, err = r.db.NewSelect().Model((*Clip)(nil)).Where("favorite = TRUE").Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count favorite clips: %w", err)
	}
	if stats.Images, err = r.db.NewSelect().Model((*Clip)(nil)).Where("kind = ?", KindImage).Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count image clips: %w", err)
	}
	if stats.TotalBytes, err = r.TotalSize(ctx); err != nil {
		return nil, err
	}

	var perCategory []struct {
		Category string `bun:"category"`
		N        int    `bun:"n"`
	}
	err = r.db.NewRaw("SELECT category, COUNT(*) AS n FROM clips GROUP BY category").Scan(ctx, &perCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	for _, row := range perCategory {
		stats.Categories[row.Category] = row.N
	}

	return stats, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
