package requirements

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mchmarny/permitctl/pkg/score"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher keeps a file corpus current by reloading it when the file changes.
// A failed reload keeps the last good corpus.
type Watcher struct {
	path     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	onReload func(score.Corpus, error)

	mu     sync.RWMutex
	corpus score.Corpus
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long to wait for more changes before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(score.Corpus, error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher loads path and starts watching its directory. Editors often
// replace files by rename, so the directory is watched instead of the file.
func NewWatcher(ctx context.Context, path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	w := &Watcher{
		path:     abs,
		debounce: defaultDebounce,
		logger:   slog.Default().With("requirements", abs),
	}
	for _, o := range opts {
		o(w)
	}

	if w.corpus, err = (FileSource{Path: abs}).Load(ctx); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	w.fsw = fsw

	return w, nil
}

// Corpus returns a copy of the current corpus.
func (w *Watcher) Corpus() score.Corpus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append(score.Corpus(nil), w.corpus...)
}

// Load implements Source.
func (w *Watcher) Load(context.Context) (score.Corpus, error) {
	return w.Corpus(), nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	c, err := FileSource{Path: w.path}.Load(ctx)
	if err != nil {
		w.logger.Warn("reload failed, keeping previous requirements", "error", err)
	} else {
		w.mu.Lock()
		w.corpus = c
		w.mu.Unlock()
		w.logger.Info("requirements reloaded", "count", len(c))
	}
	if w.onReload != nil {
		w.onReload(c, err)
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
