package semaphore_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/overengineeringstudio/fsema/lib/backing"
	"github.com/overengineeringstudio/fsema/lib/backing/fsbacking"
	"github.com/overengineeringstudio/fsema/lib/backing/membacking"
	"github.com/overengineeringstudio/fsema/lib/semaphore"
	"github.com/overengineeringstudio/fsema/lib/watcher/fswatcher"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSem(t *testing.T, b backing.IBacking, opts *semaphore.Options) semaphore.ISemaphore {
	t.Helper()
	if opts == nil {
		opts = &semaphore.Options{}
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s, err := semaphore.New(b, opts)
	if err != nil {
		t.Fatalf("semaphore.New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTryAcquireReleaseRoundTrip(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()
	s := newSem(t, b, &semaphore.Options{Limit: 3})

	ok, err := s.TryAcquire("key", 2)
	if err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	if count, err := b.GetCount("key", time.Minute); err != nil || count != 2 {
		t.Fatalf("GetCount: count=%d err=%v", count, err)
	}

	released, err := s.Release("key", 2)
	if err != nil || released != 2 {
		t.Fatalf("Release: released=%d err=%v", released, err)
	}
	if count, err := b.GetCount("key", time.Minute); err != nil || count != 0 {
		t.Fatalf("GetCount after release: count=%d err=%v", count, err)
	}
}

func TestDistinctHolderIdentities(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()

	s1 := newSem(t, b, nil)
	s2 := newSem(t, b, nil)
	if s1.Holder() == s2.Holder() {
		t.Errorf("two semaphores share holder identity %q", s1.Holder())
	}

	s3 := newSem(t, b, &semaphore.Options{Holder: "pinned"})
	if s3.Holder() != "pinned" {
		t.Errorf("explicit holder not respected: %q", s3.Holder())
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()

	holder := newSem(t, b, &semaphore.Options{Limit: 1})
	waiter := newSem(t, b, &semaphore.Options{Limit: 1, PollInterval: 20 * time.Millisecond})

	if ok, err := holder.TryAcquire("key", 1); err != nil || !ok {
		t.Fatalf("holder TryAcquire: ok=%v err=%v", ok, err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- waiter.Acquire(context.Background(), "key", 1)
	}()

	select {
	case err := <-acquired:
		t.Fatalf("waiter acquired while the permit was held (err=%v)", err)
	case <-time.After(150 * time.Millisecond):
	}

	if _, err := holder.Release("key", 1); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter Acquire failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter did not acquire after release")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()

	holder := newSem(t, b, &semaphore.Options{Limit: 1})
	waiter := newSem(t, b, &semaphore.Options{Limit: 1, PollInterval: 20 * time.Millisecond})

	if ok, err := holder.TryAcquire("key", 1); err != nil || !ok {
		t.Fatalf("holder TryAcquire: ok=%v err=%v", ok, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := waiter.Acquire(ctx, "key", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire returned %v, want context.DeadlineExceeded", err)
	}

	// The abandoned wait left nothing behind.
	if count, err := b.GetCount("key", time.Minute); err != nil || count != 1 {
		t.Fatalf("GetCount: count=%d err=%v, want the holder's single permit", count, err)
	}
}

func TestWithPermitsReleasesOnError(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()
	s := newSem(t, b, &semaphore.Options{Limit: 2})

	boom := errors.New("boom")
	err := s.WithPermits(context.Background(), "key", 2, func(ctx context.Context) error {
		if count, err := b.GetCount("key", time.Minute); err != nil || count != 2 {
			t.Errorf("GetCount inside scope: count=%d err=%v", count, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithPermits returned %v, want the fn's error", err)
	}

	if count, err := b.GetCount("key", time.Minute); err != nil || count != 0 {
		t.Fatalf("GetCount after scope: count=%d err=%v", count, err)
	}
}

func TestWithPermitsHeartbeatOutlivesTTL(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()
	s := newSem(t, b, &semaphore.Options{Limit: 1, TTL: 150 * time.Millisecond})

	err := s.WithPermits(context.Background(), "key", 1, func(ctx context.Context) error {
		// Run well past the original lease; the heartbeat must keep it.
		time.Sleep(500 * time.Millisecond)
		if count, err := b.GetCount("key", time.Minute); err != nil || count != 1 {
			t.Errorf("lease lapsed mid-scope: count=%d err=%v", count, err)
		}
		if ctx.Err() != nil {
			t.Errorf("scope context cancelled: %v", ctx.Err())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithPermits failed: %v", err)
	}
}

func TestWithPermitsLostLeaseCancelsScope(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()
	s := newSem(t, b, &semaphore.Options{Limit: 1, TTL: 100 * time.Millisecond})

	err := s.WithPermits(context.Background(), "key", 1, func(ctx context.Context) error {
		// Sabotage the lease: release it behind the heartbeat's back so the
		// next refresh fails.
		if _, err := s.Release("key", 1); err != nil {
			t.Fatalf("sabotage release: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			t.Errorf("scope context not cancelled after lost lease")
			return nil
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithPermits returned %v, want context.Canceled", err)
	}
}

// TestWatcherWakesAcquire wires the full filesystem stack: the waiter's poll
// interval is far longer than the test, so only the fswatcher hint can
// complete the acquisition in time.
func TestWatcherWakesAcquire(t *testing.T) {
	lockDir := t.TempDir()
	b, err := fsbacking.New(&fsbacking.Options{LockDir: lockDir, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("fsbacking.New: %v", err)
	}
	defer b.Close()

	w, err := fswatcher.New(&fswatcher.Options{LockDir: lockDir, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("fswatcher.New: %v", err)
	}

	holder := newSem(t, b, &semaphore.Options{Limit: 1})
	waiter := newSem(t, b, &semaphore.Options{
		Limit:        1,
		PollInterval: time.Minute,
		Watcher:      w,
	})

	if ok, err := holder.TryAcquire("key", 1); err != nil || !ok {
		t.Fatalf("holder TryAcquire: ok=%v err=%v", ok, err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- waiter.Acquire(context.Background(), "key", 1)
	}()

	time.Sleep(200 * time.Millisecond)
	if _, err := holder.Release("key", 1); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter Acquire failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher hint never woke the waiter")
	}
}
