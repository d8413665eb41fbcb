package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher signals when a catalog source file changes on disk. It only
// reports the change; the engine decides when to rebuild the catalog,
// because a reload must be gated behind its readers-drained barrier.
type Watcher struct {
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	source  string
	changes chan struct{}
}

// NewWatcher starts watching the directory containing the catalog source.
// Watching the directory rather than the file survives the
// rename-and-replace pattern editors and exporters use.
func NewWatcher(logger zerolog.Logger, source string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
	}

	dir := filepath.Dir(source)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		logger:  logger.With().Str("component", "catalog-watcher").Logger(),
		watcher: fsw,
		source:  filepath.Clean(source),
		changes: make(chan struct{}, 1),
	}, nil
}

// Changes returns a channel that receives a signal whenever the catalog
// source is written, created, or renamed. Signals are coalesced: a slow
// consumer sees at most one pending notification.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run processes filesystem events until the context is cancelled or the
// watcher is closed. The changes channel is closed when Run returns, so
// consumers ranging over it terminate with it.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.changes)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.source {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().
				Str("source", w.source).
				Str("op", event.Op.String()).
				Msg("Catalog source changed")
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Catalog watcher error")

		case <-ctx.Done():
			return
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
