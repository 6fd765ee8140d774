// Package membacking implements the backing.IBacking interface in process
// memory. It offers the same semantics as the filesystem backing (permit
// limits per key, TTL leases, replace-not-add re-acquire, clamped release)
// but coordinates only goroutines holding the same instance, not separate
// processes. Nothing is persisted.
//
// Each key's reservations live behind a per-key mutex inside a concurrent
// map, so every operation's read-decide-write sequence is atomic with
// respect to that key. membacking therefore has no admission race at all,
// which makes it the reference model in the shared conformance suite
// (lib/backing/testing) as well as a drop-in for tests and single-process
// applications that do not need cross-process coordination.
package membacking
