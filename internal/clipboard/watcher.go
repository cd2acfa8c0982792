package clipboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.design/x/clipboard"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/util"
)

// eventQueueCap bounds how many unprocessed clipboard changes are held. When
// the queue is full the oldest queued change is dropped, never the newest.
const eventQueueCap = 100

// Watcher polls the system clipboard and emits an Event whenever the content
// changes. Writes made through Apply are recorded as already seen, so the
// next poll does not capture them back.
type Watcher struct {
	interval time.Duration
	logger   *zap.Logger
	events   chan Event

	mu       sync.Mutex
	lastHash string
	paused   bool
	running  bool
}

func NewWatcher(interval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		interval: interval,
		logger:   logger,
		events:   make(chan Event, eventQueueCap),
	}
}

// Start initializes the system clipboard and begins polling in a background
// goroutine. It fails when no clipboard is available (e.g. headless session).
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}

	if err := clipboard.Init(); err != nil {
		return fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	w.running = true
	w.logger.Info("clipboard watcher started", zap.Duration("interval", w.interval))

	go w.loop(ctx)

	return nil
}

// SetPaused stops or resumes polling. While paused nothing is read at all, so
// content copied during the pause is picked up on resume if it is still on
// the clipboard.
func (w *Watcher) SetPaused(paused bool) {
	w.mu.Lock()
	w.paused = paused
	w.mu.Unlock()

	if paused {
		w.logger.Info("clipboard watcher paused")
	} else {
		w.logger.Info("clipboard watcher resumed")
	}
}

func (w *Watcher) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Events is the stream of observed clipboard changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Apply writes a payload back to the system clipboard and marks its hash as
// last seen, so our own write is not re-captured on the next poll.
func (w *Watcher) Apply(kind string, data []byte, hash string) error {
	switch kind {
	case database.KindText:
		clipboard.Write(clipboard.FmtText, data)
	case database.KindImage:
		clipboard.Write(clipboard.FmtImage, data)
	default:
		return fmt.Errorf("unsupported clipboard kind: %s", kind)
	}

	w.mu.Lock()
	w.lastHash = hash
	w.mu.Unlock()

	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Paused() {
				continue
			}
			w.poll()
		}
	}
}

// poll tries text first, then image, so a selection exposed in both formats
// is captured once as text.
func (w *Watcher) poll() {
	if data := clipboard.Read(clipboard.FmtText); len(data) > 0 {
		w.emit(database.KindText, data)
		return
	}

	if data := clipboard.Read(clipboard.FmtImage); len(data) > 0 {
		w.emit(database.KindImage, data)
	}
}

func (w *Watcher) emit(kind string, data []byte) {
	hash := util.HashBytes(data)

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.mu.Unlock()

	ev := Event{
		ID:   uuid.New(),
		Kind: kind,
		Data: data,
		At:   time.Now(),
	}

	select {
	case w.events <- ev:
	default:
		// Full queue: make room by dropping the oldest queued change. The
		// newest one must land, its hash is already recorded as last seen.
		select {
		case old := <-w.events:
			w.logger.Warn("event queue full, dropped oldest clipboard change",
				zap.String("kind", old.Kind),
				zap.Int("size", len(old.Data)))
		default:
		}
		// emit is the only sender, so this cannot block.
		w.events <- ev
	}
}
