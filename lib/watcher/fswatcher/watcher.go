// Package fswatcher implements the watcher.IWatcher interface on top of
// filesystem notifications for a lock directory laid out by fsbacking. It
// watches the base directory for key subdirectories appearing and each
// subscribed key's directory for lock file changes.
//
// Notifications are debounced per key: a release can fire several events in
// quick succession (temp file create, rename, unlink), and under contention
// bursts from many holders arrive together, so hints within the debounce
// window collapse into a single notification. Hints are lossy and advisory,
// matching the watcher contract; waiters still poll on an interval.
package fswatcher

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/overengineeringstudio/fsema/lib/backing"
	"github.com/overengineeringstudio/fsema/lib/watcher"
)

const defaultDebounce = 50 * time.Millisecond

// Options configures the filesystem watcher.
type Options struct {
	// LockDir is the same base directory the filesystem backing uses. It is
	// created if missing so the base watch can be established immediately.
	LockDir string

	// Debounce is the per-key coalescing window. Zero means 50ms.
	Debounce time.Duration

	// Logger receives watch-stream errors. Nil means slog.Default.
	Logger *slog.Logger
}

type fsWatcher struct {
	fsw      *fsnotify.Watcher
	lockDir  string
	debounce time.Duration
	logger   *slog.Logger

	keys *xsync.MapOf[string, *keyFanout]

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// keyFanout is one key's set of subscribers plus its pending debounce timer.
type keyFanout struct {
	mu     sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64
	timer  *time.Timer
}

// New creates a watcher over the given lock directory and starts its event
// loop. The directory is created if it does not exist.
func New(opts *Options) (watcher.IWatcher, error) {
	if opts == nil || opts.LockDir == "" {
		return nil, backing.NewError(backing.RetCInvalidOperation, "LockDir must be set")
	}
	if err := os.MkdirAll(opts.LockDir, 0o755); err != nil {
		return nil, backing.WrapError(backing.RetCInternalError, "create lock directory "+opts.LockDir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, backing.WrapError(backing.RetCInternalError, "create fsnotify watcher", err)
	}
	if err := fsw.Add(opts.LockDir); err != nil {
		fsw.Close()
		return nil, backing.WrapError(backing.RetCInternalError, "watch lock directory "+opts.LockDir, err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &fsWatcher{
		fsw:      fsw,
		lockDir:  opts.LockDir,
		debounce: debounce,
		logger:   logger,
		keys:     xsync.NewMapOf[string, *keyFanout](),
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see watcher/interface.go)
// --------------------------------------------------------------------------

func (w *fsWatcher) Watch(key string) (<-chan struct{}, func(), error) {
	if err := backing.ValidateName("key", key); err != nil {
		return nil, nil, err
	}

	fo, _ := w.keys.LoadOrCompute(key, func() *keyFanout {
		return &keyFanout{subs: make(map[uint64]chan struct{})}
	})

	fo.mu.Lock()
	id := fo.nextID
	fo.nextID++
	ch := make(chan struct{}, 1)
	fo.subs[id] = ch
	fo.mu.Unlock()

	// Watch the key directory if it already exists. If not, the base watch
	// picks up its creation and adds it then.
	if err := w.fsw.Add(filepath.Join(w.lockDir, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Debug("deferred key directory watch", "key", key, "err", err)
	}

	cancel := func() {
		fo.mu.Lock()
		delete(fo.subs, id)
		fo.mu.Unlock()
	}
	return ch, cancel, nil
}

func (w *fsWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
		w.wg.Wait()

		w.keys.Range(func(_ string, fo *keyFanout) bool {
			fo.mu.Lock()
			if fo.timer != nil {
				fo.timer.Stop()
				fo.timer = nil
			}
			fo.mu.Unlock()
			return true
		})
	})
	return w.closeErr
}

// --------------------------------------------------------------------------
// Event loop
// --------------------------------------------------------------------------

func (w *fsWatcher) run() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch stream error", "err", err)
		case <-w.done:
			return
		}
	}
}

func (w *fsWatcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.lockDir, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch len(parts) {
	case 1:
		// A key directory appeared (or vanished) directly under the base
		// directory. Start watching it if anyone subscribed, and hint: the
		// first lock file write follows immediately after dir creation and
		// could otherwise slip through before the watch is established.
		key := parts[0]
		if _, subscribed := w.keys.Load(key); !subscribed {
			return
		}
		if ev.Op.Has(fsnotify.Create) {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Debug("watch new key directory", "key", key, "err", err)
			}
		}
		w.scheduleNotify(key)
	case 2:
		// A lock file changed inside a key directory.
		w.scheduleNotify(parts[0])
	}
}

// scheduleNotify coalesces hints: the first event in a quiet period arms the
// key's debounce timer, and further events within the window ride along.
func (w *fsWatcher) scheduleNotify(key string) {
	fo, ok := w.keys.Load(key)
	if !ok {
		return
	}

	fo.mu.Lock()
	defer fo.mu.Unlock()
	if fo.timer != nil {
		return
	}
	fo.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}

		fo.mu.Lock()
		fo.timer = nil
		for _, ch := range fo.subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		fo.mu.Unlock()
	})
}
