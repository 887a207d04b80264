package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-resolves the anchor of a host page whenever the page is
// rewritten and reports code changes through OnChange.
type Watcher struct {
	page        string
	markerClass string
	debounce    time.Duration
	logger      *zap.Logger
	onChange    func(code string)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	current string
	done    chan struct{}
}

// NewWatcher watches page. current is the code already mounted.
func NewWatcher(page, markerClass, current string, logger *zap.Logger, onChange func(code string)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files by rename, which drops
	// a watch placed on the file itself.
	if err := w.Add(filepath.Dir(page)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", page, err)
	}
	return &Watcher{
		page:        filepath.Clean(page),
		markerClass: markerClass,
		debounce:    250 * time.Millisecond,
		logger:      logger,
		onChange:    onChange,
		watcher:     w,
		current:     current,
		done:        make(chan struct{}),
	}, nil
}

// Run blocks until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.page || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("page watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.rescan()
		}
	}
}

// Done is closed once Run has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) rescan() {
	a, err := FindAnchorFile(w.page, w.markerClass)
	if err != nil {
		w.logger.Warn("page rescan failed", zap.String("page", w.page), zap.Error(err))
		return
	}
	if !ValidCode(a.ID) {
		w.logger.Warn("page anchor has invalid code", zap.String("code", a.ID))
		return
	}

	w.mu.Lock()
	changed := a.ID != w.current
	w.current = a.ID
	w.mu.Unlock()

	if changed {
		w.logger.Info("country anchor changed", zap.String("code", a.ID))
		w.onChange(a.ID)
	}
}
