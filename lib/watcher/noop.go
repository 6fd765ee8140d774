package watcher

// NewNoop returns a watcher that never notifies. Watch hands out a nil
// channel, which blocks forever in a select, so callers degrade cleanly to
// pure interval polling.
func NewNoop() IWatcher {
	return noopWatcher{}
}

type noopWatcher struct{}

func (noopWatcher) Watch(string) (<-chan struct{}, func(), error) {
	return nil, func() {}, nil
}

func (noopWatcher) Close() error {
	return nil
}
