// Package bundle reads and writes the portable JSON export format.
package bundle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/content"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/util"
)

// Version is the current bundle format version. Older bundles import fine;
// newer ones are rejected.
const Version = 2

var (
	ErrVersionUnsupported = errors.New("bundle: unsupported version")
	ErrIntegrity          = errors.New("bundle: integrity check failed")
	ErrEmptyBundle        = errors.New("bundle: no clips")
)

// Mode selects how Import treats the existing history.
type Mode int

const (
	// Merge keeps the current history and skips clips whose hash already
	// exists.
	Merge Mode = iota
	// Replace swaps the entire history for the bundle contents.
	Replace
)

// Bundle is the on-disk container. Image clips embed their PNG bytes, so a
// single file carries the complete history.
type Bundle struct {
	Version    int       `json:"version"`
	BundleID   uuid.UUID `json:"bundle_id"`
	ExportedAt time.Time `json:"exported_at"`
	Clips      []Clip    `json:"clips"`
}

// Clip is the serialized form of one history entry.
type Clip struct {
	Kind      string            `json:"content_type"`
	Category  string            `json:"category"`
	Subtype   string            `json:"content_subtype,omitempty"`
	Content   string            `json:"text_content,omitempty"`
	ImageB64  string            `json:"image_data_b64,omitempty"`
	Width     int               `json:"image_width,omitempty"`
	Height    int               `json:"image_height,omitempty"`
	Preview   string            `json:"preview"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Pinned    bool              `json:"pinned"`
	Favorite  bool              `json:"favorite"`
	Masked    bool              `json:"is_sensitive"`
	UseCount  int               `json:"use_count"`
	SizeBytes int64             `json:"size_bytes,omitempty"`
	Hash      string            `json:"content_hash"`
	CreatedAt time.Time         `json:"created_at"`
	UsedAt    time.Time         `json:"used_at"`
}

// Report summarizes an import.
type Report struct {
	Imported int
	Skipped  int
}

// Engine moves clips between the repository/content store and bundle files.
type Engine struct {
	repo  *database.Repository
	store *content.Store
}

func NewEngine(repo *database.Repository, store *content.Store) *Engine {
	return &Engine{repo: repo, store: store}
}

// Export writes a bundle of all clips matching filter, oldest first. The
// zero filter exports the full history. Image clips whose stored file has
// gone missing are left out.
func (e *Engine) Export(ctx context.Context, w io.Writer, filter database.Filter) error {
	var clips []*database.Clip
	var err error
	if filter == (database.Filter{}) {
		clips, err = e.repo.AllClips(ctx)
	} else {
		if filter.Limit == 0 {
			filter.Limit = -1
		}
		clips, err = e.repo.List(ctx, filter)
	}
	if err != nil {
		return err
	}

	b := Bundle{
		Version:    Version,
		BundleID:   uuid.New(),
		ExportedAt: time.Now().UTC(),
		Clips:      make([]Clip, 0, len(clips)),
	}

	for _, clip := range clips {
		if err := ctx.Err(); err != nil {
			return err
		}

		dto := fromModel(clip)
		if clip.Kind == database.KindImage {
			data, err := e.store.Get(clip.Hash)
			if errors.Is(err, content.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read image %s: %w", clip.Hash, err)
			}
			dto.ImageB64 = base64.StdEncoding.EncodeToString(data)
		}
		b.Clips = append(b.Clips, dto)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&b); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	return nil
}

// ExportFile writes a bundle to path.
func (e *Engine) ExportFile(ctx context.Context, path string, filter database.Filter) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}
	if err := e.Export(ctx, f, filter); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write bundle file: %w", err)
	}
	return nil
}

// Import loads a bundle. The whole bundle is validated up front, so a bad
// file changes nothing. Merge skips clips already in the history; Replace
// swaps the history for the bundle contents and garbage-collects image files
// the new history no longer references.
func (e *Engine) Import(ctx context.Context, r io.Reader, mode Mode) (Report, error) {
	var report Report

	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return report, fmt.Errorf("failed to decode bundle: %w", err)
	}

	if b.Version < 1 || b.Version > Version {
		return report, fmt.Errorf("%w: version %d, supported up to %d", ErrVersionUnsupported, b.Version, Version)
	}
	if len(b.Clips) == 0 {
		return report, ErrEmptyBundle
	}

	items, skipped, err := validate(&b)
	if err != nil {
		return report, err
	}
	report.Skipped = skipped

	switch mode {
	case Merge:
		return e.merge(ctx, items, report)
	case Replace:
		return e.replace(ctx, items, report)
	default:
		return report, fmt.Errorf("unknown import mode %d", mode)
	}
}

// ImportFile loads a bundle from path.
func (e *Engine) ImportFile(ctx context.Context, path string, mode Mode) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open bundle file: %w", err)
	}
	defer f.Close()
	return e.Import(ctx, f, mode)
}

// item is one validated bundle entry ready to store.
type item struct {
	clip  *database.Clip
	image []byte
}

// validate checks every clip before anything is written. Image clips must
// carry decodable bytes matching their hash. Entries with no content at all
// and in-bundle duplicates are counted as skipped.
func validate(b *Bundle) ([]item, int, error) {
	items := make([]item, 0, len(b.Clips))
	skipped := 0
	seen := make(map[string]struct{}, len(b.Clips))

	for i, dto := range b.Clips {
		kind := dto.Kind
		if kind == "" {
			kind = database.KindText
		}

		var image []byte
		hash := dto.Hash

		switch kind {
		case database.KindText:
			if dto.Content == "" && hash == "" {
				skipped++
				continue
			}
			if hash == "" {
				hash = util.HashText(dto.Content)
			}

		case database.KindImage:
			if dto.ImageB64 == "" {
				return nil, 0, fmt.Errorf("%w: clip %d has no image data", ErrIntegrity, i)
			}
			data, err := base64.StdEncoding.DecodeString(dto.ImageB64)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: clip %d image data is not valid base64", ErrIntegrity, i)
			}
			sum := util.HashBytes(data)
			if hash == "" {
				hash = sum
			} else if hash != sum {
				return nil, 0, fmt.Errorf("%w: clip %d image bytes do not match hash %s", ErrIntegrity, i, hash)
			}
			image = data

		default:
			return nil, 0, fmt.Errorf("%w: clip %d has unsupported kind %q", ErrIntegrity, i, kind)
		}

		if _, dup := seen[hash]; dup {
			skipped++
			continue
		}
		seen[hash] = struct{}{}

		items = append(items, item{clip: dto.toModel(kind, hash, int64(len(image))), image: image})
	}

	return items, skipped, nil
}

func (e *Engine) merge(ctx context.Context, items []item, report Report) (Report, error) {
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		_, err := e.repo.FindByHash(ctx, it.clip.Hash)
		if err == nil {
			report.Skipped++
			continue
		}
		if !errors.Is(err, database.ErrNotFound) {
			return report, err
		}

		if it.image != nil {
			if _, err := e.store.Put(it.clip.Hash, it.image); err != nil {
				return report, fmt.Errorf("failed to store image %s: %w", it.clip.Hash, err)
			}
		}
		if err := e.repo.Restore(ctx, it.clip); err != nil {
			return report, err
		}
		report.Imported++
	}
	return report, nil
}

func (e *Engine) replace(ctx context.Context, items []item, report Report) (Report, error) {
	// Image files land before the row swap, so the new history never
	// references a missing file.
	clips := make([]*database.Clip, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if it.image != nil {
			if _, err := e.store.Put(it.clip.Hash, it.image); err != nil {
				return report, fmt.Errorf("failed to store image %s: %w", it.clip.Hash, err)
			}
		}
		clips = append(clips, it.clip)
	}

	if err := e.repo.ReplaceAll(ctx, clips); err != nil {
		return report, err
	}
	report.Imported = len(clips)

	referenced, err := e.repo.ImageHashes(ctx)
	if err != nil {
		return report, err
	}
	if _, err := e.store.DeleteUnreferenced(referenced); err != nil {
		return report, fmt.Errorf("failed to clean image store: %w", err)
	}

	return report, nil
}

func fromModel(c *database.Clip) Clip {
	return Clip{
		Kind:      c.Kind,
		Category:  c.Category,
		Subtype:   c.Subtype,
		Content:   c.Content,
		Width:     c.Width,
		Height:    c.Height,
		Preview:   c.Preview,
		Metadata:  c.Metadata,
		Tags:      c.Tags,
		Pinned:    c.Pinned,
		Favorite:  c.Favorite,
		Masked:    c.Masked,
		UseCount:  c.UseCount,
		SizeBytes: c.SizeBytes,
		Hash:      c.Hash,
		CreatedAt: c.CreatedAt,
		UsedAt:    c.UsedAt,
	}
}

func (c Clip) toModel(kind, hash string, imageSize int64) *database.Clip {
	clip := &database.Clip{
		Kind:      kind,
		Content:   c.Content,
		Hash:      hash,
		Preview:   c.Preview,
		Category:  c.Category,
		Subtype:   c.Subtype,
		Tags:      c.Tags,
		Metadata:  c.Metadata,
		Masked:    c.Masked,
		Pinned:    c.Pinned,
		Favorite:  c.Favorite,
		SizeBytes: c.SizeBytes,
		Width:     c.Width,
		Height:    c.Height,
		UseCount:  c.UseCount,
		CreatedAt: c.CreatedAt,
		UsedAt:    c.UsedAt,
	}

	if clip.Category == "" {
		clip.Category = "text"
	}
	if clip.SizeBytes == 0 {
		if kind == database.KindImage {
			clip.SizeBytes = imageSize
		} else {
			clip.SizeBytes = int64(len(c.Content))
		}
	}
	if clip.UseCount < 1 {
		clip.UseCount = 1
	}
	if clip.CreatedAt.IsZero() {
		clip.CreatedAt = time.Now()
	}
	if clip.UsedAt.IsZero() {
		clip.UsedAt = clip.CreatedAt
	}

	return clip
}
