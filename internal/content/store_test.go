package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "images"))
	require.NoError(t, err)
	return store
}

func TestPutGet(t *testing.T) {
	store := newTestStore(t)

	data := []byte("fake png bytes")
	hash := util.HashBytes(data)

	path, err := store.Put(hash, data)
	require.NoError(t, err)
	assert.Equal(t, store.Path(hash), path)
	assert.True(t, store.Exists(hash))

	got, err := store.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	data := []byte("payload")
	hash := util.HashBytes(data)

	first, err := store.Put(hash, data)
	require.NoError(t, err)
	second, err := store.Put(hash, data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingIsNoError(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Delete("deadbeef"))
}

func TestSize(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put(util.HashBytes([]byte("aaaa")), []byte("aaaa"))
	require.NoError(t, err)
	_, err = store.Put(util.HashBytes([]byte("bb")), []byte("bb"))
	require.NoError(t, err)

	total, err := store.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
}

func TestDeleteUnreferenced(t *testing.T) {
	store := newTestStore(t)

	keep := util.HashBytes([]byte("keep"))
	drop := util.HashBytes([]byte("drop"))

	_, err := store.Put(keep, []byte("keep"))
	require.NoError(t, err)
	_, err = store.Put(drop, []byte("drop"))
	require.NoError(t, err)

	// Stray temp file from an interrupted write.
	strayTemp := store.Path("aborted") + ".tmp"
	require.NoError(t, os.WriteFile(strayTemp, []byte("x"), 0644))

	removed, err := store.DeleteUnreferenced(map[string]struct{}{keep: {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.True(t, store.Exists(keep))
	assert.False(t, store.Exists(drop))
	_, statErr := os.Stat(strayTemp)
	assert.True(t, os.IsNotExist(statErr))
}
