package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/config"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/content"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/util"
)

// ErrTooLarge is returned for payloads above the configured size ceiling.
var ErrTooLarge = errors.New("clipboard: item exceeds max size")

const previewLen = 120

// Retention runs after every newly stored clip to trim history back under
// its configured ceilings.
type Retention interface {
	EnforceRetention(ctx context.Context) error
}

// Pipeline turns clipboard events into stored history clips. A single Run
// goroutine consumes the event stream, so all capture-path writes are
// serialized.
type Pipeline struct {
	repo      *database.Repository
	store     *content.Store
	cfg       *config.Config
	retention Retention
	logger    *zap.Logger

	incognito atomic.Bool
}

func NewPipeline(repo *database.Repository, store *content.Store, cfg *config.Config, retention Retention, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		repo:      repo,
		store:     store,
		cfg:       cfg,
		retention: retention,
		logger:    logger,
	}
}

// SetIncognito toggles capture suppression. Unlike pause, the watcher keeps
// polling (and keeps recording hashes), so content seen during incognito is
// not captured retroactively once incognito ends.
func (p *Pipeline) SetIncognito(on bool) {
	p.incognito.Store(on)

	if on {
		p.logger.Info("incognito enabled, clipboard changes will not be stored")
	} else {
		p.logger.Info("incognito disabled")
	}
}

func (p *Pipeline) Incognito() bool {
	return p.incognito.Load()
}

// Run consumes events until ctx is cancelled or the channel closes.
// Per-event failures are logged and the loop continues.
func (p *Pipeline) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := p.Process(ctx, ev); err != nil {
				p.logger.Error("failed to process clipboard event",
					zap.String("event_id", ev.ID.String()),
					zap.String("kind", ev.Kind),
					zap.Error(err))
			}
		}
	}
}

// Process stores a single event. It returns the stored (or refreshed, on a
// re-copy of known content) clip, or nil when the event was skipped because
// the payload was empty or incognito is active.
func (p *Pipeline) Process(ctx context.Context, ev Event) (*database.Clip, error) {
	if p.cfg.MaxItemSize > 0 && len(ev.Data) > p.cfg.MaxItemSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(ev.Data), p.cfg.MaxItemSize)
	}

	if p.incognito.Load() {
		p.logger.Debug("incognito active, skipping clipboard event", zap.String("kind", ev.Kind))
		return nil, nil
	}

	clip, err := p.buildClip(ev)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, nil
	}

	// Write image bytes before the row referencing them. A crash in between
	// leaves only an orphaned file, which the next content GC removes.
	if clip.Kind == database.KindImage {
		if _, err := p.store.Put(clip.Hash, ev.Data); err != nil {
			return nil, fmt.Errorf("failed to store image content: %w", err)
		}
	}

	created, err := p.repo.Insert(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("failed to save clip: %w", err)
	}

	if !created {
		p.logger.Debug("refreshed existing clip",
			zap.Int64("id", clip.ID),
			zap.Int("use_count", clip.UseCount))
		return clip, nil
	}

	p.logger.Info("captured clip",
		zap.Int64("id", clip.ID),
		zap.String("kind", clip.Kind),
		zap.String("category", clip.Category),
		zap.Int64("size", clip.SizeBytes))

	if p.retention != nil {
		if err := p.retention.EnforceRetention(ctx); err != nil {
			p.logger.Warn("retention enforcement failed", zap.Error(err))
		}
	}

	return clip, nil
}

func (p *Pipeline) buildClip(ev Event) (*database.Clip, error) {
	switch ev.Kind {
	case database.KindText:
		text := strings.TrimSpace(string(ev.Data))
		if text == "" {
			return nil, nil
		}

		det := Detect(text)
		return &database.Clip{
			Kind:      database.KindText,
			Content:   text,
			Hash:      util.HashText(text),
			Preview:   util.Preview(text, previewLen),
			Category:  det.Category,
			Subtype:   det.Subtype,
			Metadata:  det.Metadata,
			Masked:    det.Masked,
			SizeBytes: int64(len(text)),
		}, nil

	case database.KindImage:
		clip := &database.Clip{
			Kind:      database.KindImage,
			Hash:      util.HashBytes(ev.Data),
			Category:  CategoryImage,
			Preview:   "Image",
			SizeBytes: int64(len(ev.Data)),
		}

		if cfg, _, err := image.DecodeConfig(bytes.NewReader(ev.Data)); err == nil {
			clip.Width = cfg.Width
			clip.Height = cfg.Height
			clip.Preview = fmt.Sprintf("Image %d×%d", cfg.Width, cfg.Height)
		}

		return clip, nil

	default:
		return nil, fmt.Errorf("unsupported clipboard kind: %s", ev.Kind)
	}
}
