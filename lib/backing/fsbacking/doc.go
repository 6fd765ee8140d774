// Package fsbacking implements the backing.IBacking interface on the local
// filesystem, letting independent OS processes on one host coordinate
// bounded concurrent access to named resources without a daemon or network
// service. The only shared state is a directory tree of small JSON files;
// the only primitives relied on are atomic same-filesystem rename and plain
// directory listing.
//
// On-Disk Layout:
//
//	{lockDir}/
//	  {key}/
//	    {holder}.lock      # JSON: { "permits": <uint>, "expiresAt": <epoch-ms> }
//
// Each key maps to one subdirectory, created lazily on the key's first
// acquisition, and each holder's reservation is one file inside it. A file
// exists iff the holder has at least one permit. Keys are fully independent:
// no operation on one key ever touches another key's directory.
//
// Implementation Approach:
//
//   - Filesystem as the single source of truth: the backing keeps no
//     authoritative in-memory state. Every operation re-reads the key
//     directory, so any number of instances across any number of processes
//     can safely share a lock directory.
//
//   - Torn-write safety: every write goes through a sibling temp file
//     followed by an atomic rename, so a concurrent reader sees either the
//     old complete entry or the new complete entry. Unlinking handles the
//     rest; no file is ever mutated in place.
//
//   - Expiry: each reservation carries an absolute expiry. A lapsed entry
//     silently drops out of every sum, which is also the crash-recovery
//     story: a holder that dies with permits held leaves its file behind,
//     and the capacity returns to the pool once the lease runs out.
//     TryAcquire opportunistically unlinks expired files it encounters after
//     a successful admission; nothing depends on that cleanup happening.
//
//   - Corruption: a file that fails to parse (a crash mid-write by some
//     foreign writer, a partially synced disk) is logged, counted and
//     treated as absent. It heals on the next successful write to the same
//     path, since writes always replace wholesale.
//
// Consistency Model:
//
// TryAcquire's read-then-decide-then-write sequence is NOT wrapped in a
// cross-process mutual exclusion lock by default. Two processes racing for
// the last permits of a key can both observe an admissible state and both
// write, transiently overshooting the limit. This is a deliberate,
// documented tradeoff for a dependency-free single-host primitive: good
// enough coordination, not consensus. Callers that need strict admission
// can set Options.Strict, which serializes the sequence with an advisory
// exclusive flock on a per-key sentinel file (Unix only; elsewhere the flag
// is a no-op). Strict mode is optional strengthening, not baseline
// behavior.
//
// Error Handling:
//
// A lost admission race returns (false, nil): contention is the expected
// outcome, not a failure. Errors are reserved for environmental problems
// (permissions, disk, directory creation) and carry a backing.RetCode.
// Missing files on read or remove are normal absent states.
package fsbacking
