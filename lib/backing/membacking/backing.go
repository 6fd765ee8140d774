package membacking

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/overengineeringstudio/fsema/lib/backing"
)

// keyState holds one key's reservations. The mutex scopes each operation's
// read-decide-write sequence to the key, so membacking always provides the
// strict admission that the filesystem backing only offers in strict mode.
type keyState struct {
	mu      sync.Mutex
	holders map[string]backing.LockEntry
}

type memBacking struct {
	keys  *xsync.MapOf[string, *keyState]
	clock func() time.Time
}

// Options configures the in-memory backing.
type Options struct {
	// Clock supplies the current time. Nil means time.Now. Only tests
	// should override this.
	Clock func() time.Time
}

// New creates an in-memory backing. State lives entirely in the returned
// instance: two instances share nothing, so all coordinating goroutines
// must use the same one.
func New(opts *Options) backing.IBacking {
	clock := time.Now
	if opts != nil && opts.Clock != nil {
		clock = opts.Clock
	}
	return &memBacking{
		keys:  xsync.NewMapOf[string, *keyState](),
		clock: clock,
	}
}

// state returns the key's state, creating it on first use.
func (b *memBacking) state(key string) *keyState {
	ks, _ := b.keys.LoadOrCompute(key, func() *keyState {
		return &keyState{holders: make(map[string]backing.LockEntry)}
	})
	return ks
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backing/interface.go)
// --------------------------------------------------------------------------

func (b *memBacking) TryAcquire(key, holder string, ttl time.Duration, limit, permits uint32) (bool, error) {
	if err := validateOp(key, holder, permits); err != nil {
		return false, err
	}

	now := b.clock()
	ks := b.state(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var othersTotal uint64
	for h, e := range ks.holders {
		if !e.Valid(now) {
			delete(ks.holders, h)
			continue
		}
		if h != holder {
			othersTotal += uint64(e.Permits)
		}
	}

	if othersTotal+uint64(permits) > uint64(limit) {
		return false, nil
	}

	ks.holders[holder] = backing.NewEntry(now, ttl, permits)
	return true, nil
}

func (b *memBacking) Release(key, holder string, permits uint32) (uint32, error) {
	if err := backing.ValidateName("key", key); err != nil {
		return 0, err
	}
	if err := backing.ValidateName("holder", holder); err != nil {
		return 0, err
	}

	ks := b.state(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	// Expired reservations are still releasable, matching the filesystem
	// backing's graceful-cleanup bookkeeping.
	entry, found := ks.holders[holder]
	if !found {
		return 0, nil
	}

	released := permits
	if released > entry.Permits {
		released = entry.Permits
	}
	remaining := entry.Permits - released

	if remaining == 0 {
		delete(ks.holders, holder)
	} else {
		ks.holders[holder] = backing.LockEntry{Permits: remaining, ExpiresAt: entry.ExpiresAt}
	}
	return released, nil
}

func (b *memBacking) Refresh(key, holder string, ttl time.Duration, limit, permits uint32) (bool, error) {
	if err := validateOp(key, holder, permits); err != nil {
		return false, err
	}

	now := b.clock()
	ks := b.state(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	entry, found := ks.holders[holder]
	if !found || !entry.Valid(now) || entry.Permits < permits {
		return false, nil
	}

	ks.holders[holder] = backing.NewEntry(now, ttl, permits)
	return true, nil
}

func (b *memBacking) GetCount(key string, _ time.Duration) (uint32, error) {
	if err := backing.ValidateName("key", key); err != nil {
		return 0, err
	}

	now := b.clock()
	ks := b.state(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var total uint64
	for _, e := range ks.holders {
		if e.Valid(now) {
			total += uint64(e.Permits)
		}
	}
	if total > uint64(^uint32(0)) {
		total = uint64(^uint32(0))
	}
	return uint32(total), nil
}

func (b *memBacking) Close() error {
	return nil
}

// validateOp mirrors the filesystem backing's argument checks so both
// implementations reject the same inputs.
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
