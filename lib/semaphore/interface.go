package semaphore

import (
	"context"
)

// ISemaphore is a counting semaphore over a backing store. One semaphore
// instance represents one holder identity; all its reservations are made
// under that identity.
type ISemaphore interface {
	// Acquire blocks until the requested permits are reserved or ctx is
	// done. It polls the backing on an interval and is woken early by the
	// configured watcher when the key's state changes.
	Acquire(ctx context.Context, key string, permits uint32) error

	// TryAcquire attempts a single, non-blocking reservation.
	TryAcquire(key string, permits uint32) (acquired bool, err error)

	// Release gives back up to permits of this holder's reservation and
	// returns how many were actually released.
	Release(key string, permits uint32) (released uint32, err error)

	// Refresh renews this holder's reservation for another TTL window.
	Refresh(key string, permits uint32) (refreshed bool, err error)

	// WithPermits acquires, runs fn, and releases. The release happens
	// whether or not fn fails. While fn runs, a background heartbeat
	// refreshes the lease (unless disabled); if the lease is lost anyway,
	// fn's context is cancelled.
	WithPermits(ctx context.Context, key string, permits uint32, fn func(ctx context.Context) error) error

	// Holder returns this semaphore's holder identity.
	Holder() string

	// Close releases the watcher subscription resources. It does not
	// release outstanding permits.
	Close() error
}
