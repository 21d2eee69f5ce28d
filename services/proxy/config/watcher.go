package config

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadHandler is called with the freshly loaded config after the watched
// file changes. Only StaticRoot and ThrottleSecs vary safely at runtime,
// so the handler receives only those two fields.
type ReloadHandler func(cfg Reloadable)

// Reloadable is the subset of proxy.Config a running server can pick up
// without a restart.
type Reloadable struct {
	StaticRoot   string
	ThrottleSecs float64
}

// ThrottleInterval converts ThrottleSecs to a time.Duration for rate
// limiters and read deadlines.
func (r Reloadable) ThrottleInterval() time.Duration {
	return time.Duration(r.ThrottleSecs * float64(time.Second))
}

// Watcher reloads a config file on write, debouncing bursts of edits into
// a single callback the way an editor's save-triggered rewrite would
// otherwise fire several times in a row.
type Watcher struct {
	path     string
	handler  ReloadHandler
	debounce time.Duration
	watcher  *fsnotify.Watcher

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher for path. Call Start to begin watching and
// Stop to release the underlying inotify/kqueue handle.
func NewWatcher(path string, handler ReloadHandler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		handler:  handler,
		debounce: 200 * time.Millisecond,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the config file's parent directory (fsnotify cannot watch
// a single non-existent or rewritten-by-rename file reliably) and begins
// debounced reloads.
func (w *Watcher) Start() error {
	dir := parentDir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		return
	}
	if w.handler != nil {
		w.handler(Reloadable{StaticRoot: cfg.StaticRoot, ThrottleSecs: cfg.ThrottleSecs})
	}
}

// Live holds the hot-reloadable fields behind an atomic pointer so request
// handlers can read the current value without locking.
type Live struct {
	v atomic.Pointer[Reloadable]
}

// NewLive seeds a Live holder with an initial value.
func NewLive(initial Reloadable) *Live {
	l := &Live{}
	l.v.Store(&initial)
	return l
}

// Get returns the current value.
func (l *Live) Get() Reloadable {
	return *l.v.Load()
}

// Set replaces the current value, the Watcher's ReloadHandler.
func (l *Live) Set(cfg Reloadable) {
	l.v.Store(&cfg)
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
