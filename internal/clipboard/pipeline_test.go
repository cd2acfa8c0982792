package clipboard

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/config"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/content"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/util"
)

type countingRetention struct {
	calls int
}

func (c *countingRetention) EnforceRetention(ctx context.Context) error {
	c.calls++
	return nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *database.Repository, *content.Store, *countingRetention) {
	t.Helper()

	dir := t.TempDir()
	repo, err := database.Open(filepath.Join(dir, "history.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	store, err := content.NewStore(filepath.Join(dir, "images"))
	require.NoError(t, err)

	cfg := config.Default()
	retention := &countingRetention{}
	return NewPipeline(repo, store, cfg, retention, zap.NewNop()), repo, store, retention
}

func textEvent(text string) Event {
	return Event{ID: uuid.New(), Kind: database.KindText, Data: []byte(text), At: time.Now()}
}

func pngEvent(t *testing.T, width, height int) Event {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return Event{ID: uuid.New(), Kind: database.KindImage, Data: buf.Bytes(), At: time.Now()}
}

func TestProcessTextEvent(t *testing.T) {
	pipeline, repo, _, retention := newTestPipeline(t)
	ctx := context.Background()

	clip, err := pipeline.Process(ctx, textEvent("https://example.com/docs"))
	require.NoError(t, err)
	require.NotNil(t, clip)
	assert.NotZero(t, clip.ID)
	assert.Equal(t, database.KindText, clip.Kind)
	assert.Equal(t, CategoryURL, clip.Category)
	assert.Equal(t, util.HashText("https://example.com/docs"), clip.Hash)
	assert.Equal(t, 1, retention.calls)

	stored, err := repo.FindByID(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", stored.Content)
	assert.Equal(t, "example.com", stored.Metadata["domain"])
}

func TestProcessTrimsText(t *testing.T) {
	pipeline, _, _, _ := newTestPipeline(t)

	clip, err := pipeline.Process(context.Background(), textEvent("  hello world \n"))
	require.NoError(t, err)
	require.NotNil(t, clip)
	assert.Equal(t, "hello world", clip.Content)
	assert.Equal(t, util.HashText("hello world"), clip.Hash)
	assert.Equal(t, int64(len("hello world")), clip.SizeBytes)
}

func TestProcessSkipsBlankText(t *testing.T) {
	pipeline, repo, _, retention := newTestPipeline(t)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		clip, err := pipeline.Process(ctx, textEvent(text))
		require.NoError(t, err)
		assert.Nil(t, clip)
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, retention.calls)
}

func TestProcessRejectsOversized(t *testing.T) {
	pipeline, repo, _, _ := newTestPipeline(t)
	pipeline.cfg.MaxItemSize = 8

	clip, err := pipeline.Process(context.Background(), textEvent("123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, clip)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestProcessIncognitoSkipsStorage(t *testing.T) {
	pipeline, repo, _, _ := newTestPipeline(t)
	ctx := context.Background()

	pipeline.SetIncognito(true)
	assert.True(t, pipeline.Incognito())

	clip, err := pipeline.Process(ctx, textEvent("secret plans"))
	require.NoError(t, err)
	assert.Nil(t, clip)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	pipeline.SetIncognito(false)
	clip, err = pipeline.Process(ctx, textEvent("secret plans"))
	require.NoError(t, err)
	require.NotNil(t, clip)
	assert.Equal(t, "secret plans", clip.Content)
}

func TestProcessImageEvent(t *testing.T) {
	pipeline, repo, store, _ := newTestPipeline(t)
	ctx := context.Background()

	ev := pngEvent(t, 3, 2)
	clip, err := pipeline.Process(ctx, ev)
	require.NoError(t, err)
	require.NotNil(t, clip)
	assert.Equal(t, database.KindImage, clip.Kind)
	assert.Equal(t, CategoryImage, clip.Category)
	assert.Equal(t, 3, clip.Width)
	assert.Equal(t, 2, clip.Height)
	assert.Equal(t, "Image 3×2", clip.Preview)
	assert.Empty(t, clip.Content)
	assert.True(t, store.Exists(clip.Hash))

	data, err := store.Get(clip.Hash)
	require.NoError(t, err)
	assert.Equal(t, ev.Data, data)

	stored, err := repo.FindByID(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, clip.Hash, stored.Hash)
}

func TestProcessDedupBumpsAndSkipsRetention(t *testing.T) {
	pipeline, repo, _, retention := newTestPipeline(t)
	ctx := context.Background()

	first, err := pipeline.Process(ctx, textEvent("same text"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, retention.calls)

	second, err := pipeline.Process(ctx, textEvent("same text"))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.UseCount)
	assert.Equal(t, 1, retention.calls)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestProcessUnknownKind(t *testing.T) {
	pipeline, _, _, _ := newTestPipeline(t)

	_, err := pipeline.Process(context.Background(), Event{ID: uuid.New(), Kind: "files", Data: []byte("x")})
	require.Error(t, err)
}

func TestRunConsumesEvents(t *testing.T) {
	pipeline, repo, _, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipeline.Run(ctx, events)
	}()

	events <- textEvent("first")
	events <- textEvent("second")

	require.Eventually(t, func() bool {
		stats, err := repo.Stats(context.Background())
		return err == nil && stats.Total == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}
