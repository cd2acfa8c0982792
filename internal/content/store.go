// Package content stores image payloads on the filesystem, one file per
// SHA-256 content hash. The database keeps only the hash, so identical
// images captured twice share a single file.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no payload exists for a hash.
var ErrNotFound = errors.New("content: not found")

const fileExt = ".png"

// Store is a content-addressed file store rooted at a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location a payload with the given hash lives at, whether
// or not it exists yet.
func (s *Store) Path(hash string) string {
	return filepath.Join(s.dir, hash+fileExt)
}

// Exists reports whether a payload for the hash is on disk.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.Path(hash))
	return err == nil
}

// Put writes data under its hash and returns the final path. The write goes
// through a temp file and rename so readers never observe a partial payload.
// Storing the same hash twice is a no-op: content-addressing guarantees the
// bytes already on disk are identical.
func (s *Store) Put(hash string, data []byte) (string, error) {
	path := s.Path(hash)
	if s.Exists(hash) {
		return path, nil
	}

	// Write to temp file first (atomic write)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write payload: %w", err)
	}

	// Rename to final location (atomic on POSIX)
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to finalize payload: %w", err)
	}

	return path, nil
}

// Get reads the payload stored for the hash.
func (s *Store) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}

// Delete removes the payload for the hash. Missing payloads are not an error.
func (s *Store) Delete(hash string) error {
	if err := os.Remove(s.Path(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete payload: %w", err)
	}
	return nil
}

// Size sums the bytes of every stored payload.
func (s *Store) Size() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list content directory: %w", err)
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// DeleteUnreferenced removes every payload whose hash is not in referenced
// and returns how many files were deleted. Stray temp files from interrupted
// writes are cleaned up as well.
func (s *Store) DeleteUnreferenced(referenced map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list content directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".tmp") {
			os.Remove(filepath.Join(s.dir, name))
			continue
		}
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		hash := strings.TrimSuffix(name, fileExt)
		if _, ok := referenced[hash]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}
