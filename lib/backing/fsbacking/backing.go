package fsbacking

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/overengineeringstudio/fsema/lib/backing"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the filesystem backing during initialization.
type Options struct {
	// LockDir is the base directory holding one subdirectory per key. It is
	// created (including parents) on construction; key subdirectories are
	// created lazily on each key's first acquisition.
	LockDir string

	// Strict wraps TryAcquire's read-decide-write sequence in an OS advisory
	// exclusive lock on a per-key sentinel file, closing the admission race
	// between processes described in the package documentation. Optional
	// strengthening, off by default, Unix only: on other platforms the flag
	// silently keeps the baseline best-effort behavior.
	Strict bool

	// Clock supplies the current time. Nil means time.Now. Only tests
	// should override this.
	Clock func() time.Time

	// Logger receives warnings about corrupt lock files. Nil means
	// slog.Default.
	Logger *slog.Logger
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

type fsBacking struct {
	lockDir string
	strict  bool
	clock   func() time.Time
	logger  *slog.Logger
}

// New creates a filesystem backing rooted at opts.LockDir. The directory is
// created if it does not exist. The returned backing holds no authoritative
// in-memory state: every operation re-derives truth from disk, so any number
// of instances (in any number of processes) may be created over the same
// directory.
func New(opts *Options) (backing.IBacking, error) {
	if opts == nil || opts.LockDir == "" {
		return nil, backing.NewError(backing.RetCInvalidOperation, "LockDir must be set")
	}

	if err := os.MkdirAll(opts.LockDir, 0o755); err != nil {
		return nil, backing.WrapError(backing.RetCInternalError, "create lock directory "+opts.LockDir, err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &fsBacking{
		lockDir: opts.LockDir,
		strict:  opts.Strict,
		clock:   clock,
		logger:  logger,
	}, nil
}

// keyDir returns the directory holding all of a key's lock files.
func (b *fsBacking) keyDir(key string) string {
	return filepath.Join(b.lockDir, key)
}

// entryPath returns the lock file path for a (key, holder) pair.
func (b *fsBacking) entryPath(key, holder string) string {
	return filepath.Join(b.lockDir, key, holder+lockSuffix)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backing/interface.go)
// --------------------------------------------------------------------------

func (b *fsBacking) TryAcquire(key, holder string, ttl time.Duration, limit, permits uint32) (bool, error) {
	if err := validateOp(key, holder, permits); err != nil {
		return false, err
	}

	if b.strict {
		unlock, err := b.lockSentinel(key)
		if err != nil {
			return false, err
		}
		defer unlock()
	}

	now := b.clock()
	valid, expired, err := b.listValid(key, now)
	if err != nil {
		return false, err
	}

	// Admission check against the other holders only: a re-acquire replaces
	// this holder's previous reservation rather than stacking on top of it.
	othersTotal := sumPermits(valid, holder)
	if othersTotal+uint64(permits) > uint64(limit) {
		metricAcquireDenied.Inc()
		return false, nil
	}

	ownPath := b.entryPath(key, holder)
	if err := writeEntryFile(ownPath, backing.NewEntry(now, ttl, permits)); err != nil {
		return false, err
	}

	// Opportunistic cleanup of the expired files observed above, except the
	// holder's own path, which now carries the fresh reservation. Best
	// effort: a failure leaves litter that the expiry predicate already
	// excludes from every sum.
	for _, path := range expired {
		if path == ownPath {
			continue
		}
		if err := os.Remove(path); err == nil {
			metricExpiredRemoved.Inc()
		}
	}

	metricAcquireGranted.Inc()
	return true, nil
}

func (b *fsBacking) Release(key, holder string, permits uint32) (uint32, error) {
	if err := backing.ValidateName("key", key); err != nil {
		return 0, err
	}
	if err := backing.ValidateName("holder", holder); err != nil {
		return 0, err
	}

	// Validity is deliberately not checked: an expired but unreleased
	// reservation still counts as held for release bookkeeping, so a holder
	// that overran its lease can clean up gracefully.
	entry, found, err := b.readEntry(key, holder)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	released := permits
	if released > entry.Permits {
		released = entry.Permits
	}
	remaining := entry.Permits - released

	if released == 0 {
		return 0, nil
	}

	path := b.entryPath(key, holder)
	if remaining == 0 {
		if err := removeEntryFile(path); err != nil {
			return 0, err
		}
	} else {
		// Partial release keeps the lease window untouched.
		if err := writeEntryFile(path, backing.LockEntry{Permits: remaining, ExpiresAt: entry.ExpiresAt}); err != nil {
			return 0, err
		}
	}

	metricRelease.Inc()
	return released, nil
}

func (b *fsBacking) Refresh(key, holder string, ttl time.Duration, limit, permits uint32) (bool, error) {
	if err := validateOp(key, holder, permits); err != nil {
		return false, err
	}

	now := b.clock()
	entry, found, err := b.readEntry(key, holder)
	if err != nil {
		return false, err
	}
	if !found || !entry.Valid(now) || entry.Permits < permits {
		metricRefreshFailed.Inc()
		return false, nil
	}

	if err := writeEntryFile(b.entryPath(key, holder), backing.NewEntry(now, ttl, permits)); err != nil {
		return false, err
	}

	metricRefreshOK.Inc()
	return true, nil
}

func (b *fsBacking) GetCount(key string, _ time.Duration) (uint32, error) {
	if err := backing.ValidateName("key", key); err != nil {
		return 0, err
	}

	valid, _, err := b.listValid(key, b.clock())
	if err != nil {
		return 0, err
	}

	total := sumPermits(valid, "")
	if total > uint64(^uint32(0)) {
		total = uint64(^uint32(0))
	}
	return uint32(total), nil
}

func (b *fsBacking) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// validateOp checks the arguments shared by TryAcquire and Refresh. A permit
// count of zero is rejected because neither operation ever writes a
// zero-permit reservation: zero permits is expressed by file absence.
func validateOp(key, holder string, permits uint32) error {
	if err := backing.ValidateName("key", key); err != nil {
		return err
	}
	if err := backing.ValidateName("holder", holder); err != nil {
		return err
	}
	if permits == 0 {
		return backing.NewError(backing.RetCInvalidOperation, "permits must be > 0")
	}
	return nil
}
