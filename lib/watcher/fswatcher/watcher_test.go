package fswatcher_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overengineeringstudio/fsema/lib/watcher"
	"github.com/overengineeringstudio/fsema/lib/watcher/fswatcher"
)

const notifyTimeout = 3 * time.Second

func newWatcher(t *testing.T, lockDir string) watcher.IWatcher {
	t.Helper()
	w, err := fswatcher.New(&fswatcher.Options{
		LockDir:  lockDir,
		Debounce: 20 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("fswatcher.New failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func awaitNotify(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(notifyTimeout):
		t.Fatalf("no notification within %v after %s", notifyTimeout, what)
	}
}

func writeLockFile(t *testing.T, lockDir, key, holder string) {
	t.Helper()
	dir := filepath.Join(lockDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"permits":1,"expiresAt":99999999999999}`)
	if err := os.WriteFile(filepath.Join(dir, holder+".lock"), body, 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestNotifyOnLockFileChange covers the common case: the key directory
// exists before anyone subscribes.
func TestNotifyOnLockFileChange(t *testing.T) {
	lockDir := t.TempDir()
	writeLockFile(t, lockDir, "key", "existing")
	w := newWatcher(t, lockDir)

	ch, cancel, err := w.Watch("key")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cancel()

	writeLockFile(t, lockDir, "key", "h1")
	awaitNotify(t, ch, "lock file write")
}

// TestNotifyOnKeyDirCreation covers a waiter subscribing before the key has
// ever been acquired: the base watch must pick up the directory appearing.
func TestNotifyOnKeyDirCreation(t *testing.T) {
	lockDir := t.TempDir()
	w := newWatcher(t, lockDir)

	ch, cancel, err := w.Watch("fresh-key")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cancel()

	writeLockFile(t, lockDir, "fresh-key", "h1")
	awaitNotify(t, ch, "key directory creation")
}

// TestNotifyOnRemoval verifies that releases (file unlinks) wake waiters,
// the case a blocked Acquire actually cares about.
func TestNotifyOnRemoval(t *testing.T) {
	lockDir := t.TempDir()
	writeLockFile(t, lockDir, "key", "h1")
	w := newWatcher(t, lockDir)

	ch, cancel, err := w.Watch("key")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cancel()

	if err := os.Remove(filepath.Join(lockDir, "key", "h1.lock")); err != nil {
		t.Fatal(err)
	}
	awaitNotify(t, ch, "lock file removal")
}

// TestDebounceCoalesces verifies a burst collapses into one pending hint.
func TestDebounceCoalesces(t *testing.T) {
	lockDir := t.TempDir()
	writeLockFile(t, lockDir, "key", "seed")
	w := newWatcher(t, lockDir)

	ch, cancel, err := w.Watch("key")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cancel()

	for i := 0; i < 10; i++ {
		writeLockFile(t, lockDir, "key", "burst")
	}
	awaitNotify(t, ch, "burst of writes")

	// The channel holds at most one hint, so after a quiet period at most
	// one more (from events that landed after the first fire) remains.
	time.Sleep(200 * time.Millisecond)
	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	if drained > 1 {
		t.Errorf("burst produced %d extra notifications, want at most 1", drained)
	}
}

// TestCancelStopsDelivery verifies a cancelled subscription gets nothing.
func TestCancelStopsDelivery(t *testing.T) {
	lockDir := t.TempDir()
	writeLockFile(t, lockDir, "key", "seed")
	w := newWatcher(t, lockDir)

	ch, cancel, err := w.Watch("key")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	cancel()

	writeLockFile(t, lockDir, "key", "h1")
	select {
	case <-ch:
		t.Errorf("notification delivered after cancel")
	case <-time.After(300 * time.Millisecond):
	}
}

// TestKeyIsolation verifies events on one key never wake another's waiter.
func TestKeyIsolation(t *testing.T) {
	lockDir := t.TempDir()
	writeLockFile(t, lockDir, "key-a", "seed")
	writeLockFile(t, lockDir, "key-b", "seed")
	w := newWatcher(t, lockDir)

	chA, cancelA, err := w.Watch("key-a")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cancelA()

	writeLockFile(t, lockDir, "key-b", "h1")
	select {
	case <-chA:
		t.Errorf("key-a waiter woken by key-b event")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestInvalidKey(t *testing.T) {
	w := newWatcher(t, t.TempDir())
	if _, _, err := w.Watch("a/b"); err == nil {
		t.Errorf("Watch accepted a key with a path separator")
	}
}

func TestCloseIdempotent(t *testing.T) {
	w := newWatcher(t, t.TempDir())
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
