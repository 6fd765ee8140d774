// Package backing defines the storage contract for fsema's counting
// semaphores. A backing tracks, per key, how many permits each holder has
// reserved and when each reservation lapses. It is the lowest layer of the
// system: the semaphore façade (lib/semaphore) layers retry, blocking waits
// and permit scoping on top of it, and never touches storage directly.
//
// Data Model:
//
//   - Key: an arbitrary non-empty string naming a logical resource.
//   - Holder: an arbitrary string identifying a requester.
//   - LockEntry: the permit count and absolute expiry (epoch milliseconds)
//     of one holder's reservation on one key.
//
// A holder has an entry for a key iff it currently holds at least one
// permit; zero permits always means absence of the entry, never a
// zero-valued entry. Entries are independent across keys.
//
// Semantics shared by all implementations:
//
//   - TryAcquire replaces: a holder re-acquiring on a key it already holds
//     is admitted against the *other* holders' aggregate only, so it can
//     grow or shrink its own grant without being penalized by its earlier
//     reservation.
//   - Release clamps: releasing more permits than held releases exactly the
//     held amount, and releasing an unknown holder releases zero. Neither
//     is an error. Expired-but-present reservations can still be released.
//   - Refresh renews, never admits: it extends the lease of an existing,
//     still-valid reservation and may shrink but never grow the count.
//   - Expiry is passive: a lapsed reservation drops out of every sum the
//     moment its expiry passes, whether or not its storage has been
//     reclaimed.
//
// Two implementations ship with this module: fsbacking persists entries as
// JSON lock files under a shared directory and coordinates independent OS
// processes on one host; membacking keeps entries in a concurrent map and
// coordinates goroutines within one process. Both are exercised by the
// shared conformance suite in lib/backing/testing.
//
// Error Handling:
//
// Contention is not an error. Operations return a *Error (with a RetCode)
// only for environmental failures (permissions, disk, directory creation)
// that mean the backing itself cannot function. Missing entries are normal
// absent states, and corrupt stored entries are logged and treated as
// absent rather than propagated, so one poisoned record never wedges a key.
package backing
