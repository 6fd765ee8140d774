// Package semaphore implements a counting semaphore on top of any
// backing.IBacking implementation. It provides the blocking and scoping
// layer the backings deliberately omit: retry loops with watcher wake-ups,
// context cancellation, permit-scoped execution and lease heartbeats.
//
// The semaphore only ever stores through the provided backing and has no
// other internal state besides its holder identity. It is safe to create
// multiple instances over the same backing; each instance is one holder.
// As long as the same backing (or the same lock directory, for the
// filesystem backing) is used everywhere, all semaphores coordinate as
// expected: across goroutines with membacking, across processes with
// fsbacking.
//
// Core Functionality:
//   - Blocking Acquire with interval polling, woken early by an optional
//     watcher when the key's state changes
//   - WithPermits scoping: acquire, run, release, with the release
//     guaranteed even when the scoped function fails
//   - Lease heartbeats: while a WithPermits function runs, the reservation
//     is refreshed at a third of the TTL; a lost lease cancels the
//     function's context, since the permits may already be someone else's
//   - Random 128-bit holder identities, overridable for holders that
//     persist their identity across restarts
//
// Blocking Behavior:
//
//	Acquire never spins: after each denied attempt it waits for a watcher
//	hint, the next poll tick, or context cancellation, whichever comes
//	first. Because a denied attempt leaves no state in the backing, a
//	caller can abandon a wait at any time without cleanup.
//
// Usage Example:
//
//	b, _ := fsbacking.New(&fsbacking.Options{LockDir: "/var/lock/myapp"})
//	sem, _ := semaphore.New(b, &semaphore.Options{TTL: 30 * time.Second, Limit: 4})
//	defer sem.Close()
//
//	err := sem.WithPermits(ctx, "gpu", 1, func(ctx context.Context) error {
//	    return doWork(ctx)
//	})
package semaphore
