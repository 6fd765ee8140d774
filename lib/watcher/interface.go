// Package watcher defines how waiters learn that a key's admission state
// may have changed, so that a blocked Acquire can retry immediately instead
// of sleeping out its full poll interval. Notifications are advisory and
// lossy by design: a waiter must always be prepared to retry on a timer,
// and a notification does not promise that a permit is actually free.
package watcher

// IWatcher wakes waiters when a key's admission state may have changed.
type IWatcher interface {
	// Watch subscribes to change hints for a key. The returned channel
	// receives at most one pending notification at a time (further hints
	// are coalesced). The cancel function removes the subscription and
	// must be called when the waiter is done.
	Watch(key string) (ch <-chan struct{}, cancel func(), err error)

	// Close shuts down the watcher and all subscriptions.
	Close() error
}
