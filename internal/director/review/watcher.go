package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

const watchDebounce = 100 * time.Millisecond

// WatcherStats counts watcher activity.
type WatcherStats struct {
	Reloads  int64
	Rejected int64
}

// Watcher reloads a draft whenever its plan file changes on disk, so
// reviewers can edit the JSON in any editor. Invalid content is rejected
// and the draft keeps its previous state.
type Watcher struct {
	draft *Draft
	path  string
	log   *zap.Logger
	fw    *fsnotify.Watcher

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	reloads  atomic.Int64
	rejected atomic.Int64
}

// Watch starts watching path for external edits to the draft. The parent
// directory is watched rather than the file itself, since editors replace
// files on save.
func Watch(path string, d *Draft, log *zap.Logger) (*Watcher, error) {
	if d == nil {
		return nil, fmt.Errorf("draft is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		draft: d,
		path:  abs,
		log:   log,
		fw:    fw,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Stats returns the reload counters.
func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		Reloads:  w.reloads.Load(),
		Rejected: w.rejected.Load(),
	}
}

// Close stops the watcher and releases the underlying notifier.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
	})
	return w.fw.Close()
}

func (w *Watcher) run() {
	defer close(w.done)

	// Editors fire several events per save; settle before reloading.
	var pending <-chan time.Time
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(watchDebounce)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("plan watch error", zap.Error(err))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		w.rejected.Add(1)
		w.log.Warn("plan file unreadable", zap.String("path", w.path), zap.Error(err))
		return
	}

	var p plan.MergedPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		w.rejected.Add(1)
		w.log.Warn("plan file rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := p.Validate(); err != nil {
		w.rejected.Add(1)
		w.log.Warn("plan file rejected", zap.String("path", w.path), zap.Error(err))
		return
	}

	if err := w.draft.Replace(&p); err != nil {
		w.rejected.Add(1)
		w.log.Warn("draft replace failed", zap.Error(err))
		return
	}
	w.reloads.Add(1)
	w.log.Info("draft reloaded from disk",
		zap.String("path", w.path),
		zap.Int64("revision", w.draft.Revision()))
}
