//go:build unix

package fsbacking

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/overengineeringstudio/fsema/lib/backing"
)

// sentinelName lies inside the key directory but carries no lock suffix, so
// the holder listing never mistakes it for a reservation.
const sentinelName = ".sentinel"

// lockSentinel takes an advisory exclusive flock on the key's sentinel file,
// serializing TryAcquire's read-decide-write sequence across processes. The
// returned function releases the lock. Blocking is fine: every critical
// section is a handful of filesystem calls.
func (b *fsBacking) lockSentinel(key string) (func(), error) {
	dir := b.keyDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, backing.WrapError(backing.RetCInternalError, "create key directory "+dir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, sentinelName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, backing.WrapError(backing.RetCInternalError, "open sentinel file", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, backing.WrapError(backing.RetCInternalError, "flock sentinel file", err)
	}

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
