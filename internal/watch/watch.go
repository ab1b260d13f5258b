// Package watch signals on-disk changes of one file. Notifications come
// from the OS through fsnotify, with a periodic stat poll as a fallback
// for filesystems that deliver no events.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"linedex/internal/common"
)

const DefaultPollInterval = 2 * time.Second

// Watcher coalesces change notifications for one file into a buffered
// signal channel: a burst of writes yields a single pending signal.
type Watcher struct {
	path     string
	interval time.Duration
	logger   *zap.Logger

	signal   chan struct{}
	fs       *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pollDone <-chan struct{}

	mu   sync.Mutex
	last fileStamp
}

func New(path string, pollInterval time.Duration, logger *zap.Logger) *Watcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Watcher{
		path:     filepath.Clean(path),
		interval: pollInterval,
		logger:   logger.With(zap.String("file", path)),
		signal:   make(chan struct{}, 1),
	}
}

// Signals delivers one pending signal per burst of file changes.
func (w *Watcher) Signals() <-chan struct{} {
	return w.signal
}

// Start spawns the notification loops. The file itself may not exist
// yet: the parent directory is watched and its appearance signals too.
// When OS notifications cannot be set up the poll loop carries alone.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("os notifications unavailable, polling only", zap.Error(err))
	} else if err := fs.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("cannot watch directory, polling only", zap.Error(err))
		_ = fs.Close()
	} else {
		w.fs = fs
		w.wg.Add(1)
		go w.consumeEvents()
	}

	w.mu.Lock()
	w.last = w.stamp()
	w.mu.Unlock()

	w.pollDone = common.RepeatEvery(ctx, w.interval, w.poll)
}

// Close stops both notification loops and returns once neither can touch
// the file or the signal channel anymore. Pending signals stay readable.
func (w *Watcher) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.fs != nil {
		_ = w.fs.Close()
	}
	if w.pollDone != nil {
		<-w.pollDone
	}
	w.wg.Wait()
}

func (w *Watcher) consumeEvents() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("file event", zap.Stringer("op", ev.Op))
			w.notify()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) poll() {
	current := w.stamp()

	w.mu.Lock()
	changed := current != w.last
	w.mu.Unlock()

	if changed {
		w.logger.Debug("file stamp changed")
		w.notify()
	}
}

func (w *Watcher) notify() {
	w.mu.Lock()
	w.last = w.stamp()
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// fileStamp is the polled identity of the file. A missing file is the
// zero stamp, so removal and reappearance both register as changes.
type fileStamp struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (w *Watcher) stamp() fileStamp {
	fi, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{exists: true, size: fi.Size(), modTime: fi.ModTime()}
}
