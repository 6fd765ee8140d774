package semaphore

import (
	"context"
	"log/slog"
	"time"

	"github.com/overengineeringstudio/fsema/lib/backing"
	"github.com/overengineeringstudio/fsema/lib/watcher"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

const (
	defaultTTL          = 30 * time.Second
	defaultLimit        = 1
	defaultPollInterval = 250 * time.Millisecond
)

// Options configures a semaphore instance.
type Options struct {
	// TTL is the lease length written on every acquisition and refresh.
	// Zero means 30s.
	TTL time.Duration

	// Limit is the maximum total permits admitted per key. Zero means 1,
	// which makes the semaphore a mutex-like lock.
	Limit uint32

	// PollInterval is how often a blocked Acquire retries when no watcher
	// hint arrives. Zero means 250ms.
	PollInterval time.Duration

	// Watcher wakes blocked Acquire calls early. Nil means no watcher:
	// pure interval polling.
	Watcher watcher.IWatcher

	// Holder is this semaphore's identity. Empty means a random identity
	// is generated, which is the normal case; set it only to resume a
	// previous holder's reservations (e.g. after a process restart with
	// persisted identity).
	Holder string

	// DisableHeartbeat turns off the background refresh loop inside
	// WithPermits. Long-running fns then risk losing their lease.
	DisableHeartbeat bool

	// Logger receives heartbeat warnings. Nil means slog.Default.
	Logger *slog.Logger
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

type semImpl struct {
	backing   backing.IBacking
	watcher   watcher.IWatcher
	holder    string
	ttl       time.Duration
	limit     uint32
	poll      time.Duration
	heartbeat bool
	logger    *slog.Logger
}

// New creates a semaphore over the given backing. The semaphore holds no
// state of its own beyond the holder identity; it is safe to create many
// instances over the same backing, and each gets its own identity unless
// one is supplied.
func New(b backing.IBacking, opts *Options) (ISemaphore, error) {
	if b == nil {
		return nil, backing.NewError(backing.RetCInvalidOperation, "backing must be set")
	}
	if opts == nil {
		opts = &Options{}
	}

	holder := opts.Holder
	if holder == "" {
		var err error
		if holder, err = generateHolderID(); err != nil {
			return nil, backing.WrapError(backing.RetCInternalError, "generate holder identity", err)
		}
	}
	if err := backing.ValidateName("holder", holder); err != nil {
		return nil, err
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	w := opts.Watcher
	if w == nil {
		w = watcher.NewNoop()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &semImpl{
		backing:   b,
		watcher:   w,
		holder:    holder,
		ttl:       ttl,
		limit:     limit,
		poll:      poll,
		heartbeat: !opts.DisableHeartbeat,
		logger:    logger,
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (s *semImpl) Acquire(ctx context.Context, key string, permits uint32) error {
	ch, cancel, err := s.watcher.Watch(key)
	if err != nil {
		return err
	}
	defer cancel()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		ok, err := s.backing.TryAcquire(key, s.holder, s.ttl, s.limit, permits)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		// Wait for a hint, the next poll tick, or cancellation. A denied
		// attempt leaves no state behind, so abandoning here needs no
		// cleanup.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-ticker.C:
		}
	}
}

func (s *semImpl) TryAcquire(key string, permits uint32) (bool, error) {
	return s.backing.TryAcquire(key, s.holder, s.ttl, s.limit, permits)
}

func (s *semImpl) Release(key string, permits uint32) (uint32, error) {
	return s.backing.Release(key, s.holder, permits)
}

func (s *semImpl) Refresh(key string, permits uint32) (bool, error) {
	return s.backing.Refresh(key, s.holder, s.ttl, s.limit, permits)
}

func (s *semImpl) WithPermits(ctx context.Context, key string, permits uint32, fn func(ctx context.Context) error) error {
	if err := s.Acquire(ctx, key, permits); err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	hbDone := make(chan struct{})
	if s.heartbeat {
		go s.heartbeatLoop(runCtx, cancelRun, key, permits, hbDone)
	} else {
		close(hbDone)
	}

	err := fn(runCtx)

	cancelRun()
	<-hbDone

	if _, relErr := s.backing.Release(key, s.holder, permits); relErr != nil && err == nil {
		err = relErr
	}
	return err
}

func (s *semImpl) Holder() string {
	return s.holder
}

func (s *semImpl) Close() error {
	return s.watcher.Close()
}

// --------------------------------------------------------------------------
// Heartbeat
// --------------------------------------------------------------------------

// heartbeatLoop refreshes the lease at a third of the TTL while fn runs.
// Losing the lease (expired, or an environmental failure on refresh) cancels
// fn's context: the permits may already be someone else's.
func (s *semImpl) heartbeatLoop(ctx context.Context, cancelRun context.CancelFunc, key string, permits uint32, done chan<- struct{}) {
	defer close(done)

	interval := s.ttl / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := s.backing.Refresh(key, s.holder, s.ttl, s.limit, permits)
		if err != nil || !ok {
			s.logger.Warn("lease lost, cancelling permit scope",
				"key", key, "holder", s.holder, "refreshed", ok, "err", err)
			cancelRun()
			return
		}
	}
}
