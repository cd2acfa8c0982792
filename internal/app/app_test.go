package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/bundle"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/clipboard"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/config"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/util"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.BackupEnabled = false
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Save(cfgPath))

	a, err := New(cfgPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	return a
}

func seedText(t *testing.T, a *App, text string, pinned bool) *database.Clip {
	t.Helper()

	clip := &database.Clip{
		Kind:      database.KindText,
		Content:   text,
		Hash:      util.HashText(text),
		Preview:   text,
		Category:  clipboard.CategoryText,
		Pinned:    pinned,
		SizeBytes: int64(len(text)),
	}
	_, err := a.repo.Insert(context.Background(), clip)
	require.NoError(t, err)
	return clip
}

func seedImage(t *testing.T, a *App, data []byte) *database.Clip {
	t.Helper()

	hash := util.HashBytes(data)
	_, err := a.store.Put(hash, data)
	require.NoError(t, err)

	clip := &database.Clip{
		Kind:      database.KindImage,
		Hash:      hash,
		Preview:   "Image",
		Category:  clipboard.CategoryImage,
		SizeBytes: int64(len(data)),
	}
	_, err = a.repo.Insert(context.Background(), clip)
	require.NoError(t, err)
	return clip
}

func TestNewWritesDefaultConfig(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	a, err := New(cfgPath, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 500, a.Config().MaxHistory)
}

func TestNewKeepsExistingConfig(t *testing.T) {
	a := newTestApp(t, nil)

	assert.False(t, a.Config().BackupEnabled)
	assert.Equal(t, filepath.Join(a.Config().DataDir, "history.db"), a.Config().DatabasePath())
}

func TestDeleteClipRemovesImageFile(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	clip := seedImage(t, a, []byte("fake png bytes"))
	require.True(t, a.store.Exists(clip.Hash))

	require.NoError(t, a.DeleteClip(ctx, clip.ID))

	_, err := a.repo.FindByID(ctx, clip.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.False(t, a.store.Exists(clip.Hash))
}

func TestDeleteClipKeepsTextUntouchedByStore(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	clip := seedText(t, a, "hello", false)
	require.NoError(t, a.DeleteClip(ctx, clip.ID))

	_, err := a.repo.FindByID(ctx, clip.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestDeleteClipUnknownID(t *testing.T) {
	a := newTestApp(t, nil)

	err := a.DeleteClip(context.Background(), 9999)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestClearHistorySparesPinnedAndPrunesImages(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	pinned := seedText(t, a, "keep me", true)
	seedText(t, a, "plain", false)
	image := seedImage(t, a, []byte("pixels"))

	removed, err := a.ClearHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = a.repo.FindByID(ctx, pinned.ID)
	assert.NoError(t, err)

	_, err = a.repo.FindByID(ctx, image.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.False(t, a.store.Exists(image.Hash), "orphaned image file should be collected")
}

func TestImportHistoryEnforcesRetention(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.MaxHistory = 2
	})
	ctx := context.Background()

	raw := `{"version": 2, "clips": [
		{"content_type": "text", "text_content": "one"},
		{"content_type": "text", "text_content": "two"},
		{"content_type": "text", "text_content": "three"},
		{"content_type": "text", "text_content": "four"},
		{"content_type": "text", "text_content": "five"}
	]}`
	path := filepath.Join(t.TempDir(), "import.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	report, err := a.ImportHistory(ctx, path, bundle.Merge)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Imported)

	// The import itself brings the history back under the ceiling.
	count, err := a.repo.CountEvictable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSetIncognitoTogglesPipeline(t *testing.T) {
	a := newTestApp(t, nil)

	a.SetIncognito(true)
	assert.True(t, a.pipeline.Incognito())

	a.SetIncognito(false)
	assert.False(t, a.pipeline.Incognito())
}
