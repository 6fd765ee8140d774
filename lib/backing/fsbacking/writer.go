package fsbacking

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/overengineeringstudio/fsema/lib/backing"
)

// writeEntryFile persists an entry to path so that a concurrent reader sees
// either the previous complete content or the new complete content, never a
// torn write: the entry is written to a sibling temp file in the same
// directory and renamed over the target (same-filesystem rename is atomic).
// The parent key directory is created on first write.
func writeEntryFile(path string, entry backing.LockEntry) error {
	data, err := backing.MarshalEntry(entry)
	if err != nil {
		return backing.WrapError(backing.RetCInternalError, "serialize lock entry", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return backing.WrapError(backing.RetCInternalError, fmt.Sprintf("create key directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return backing.WrapError(backing.RetCInternalError, "create temp lock file", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return backing.WrapError(backing.RetCInternalError, "write temp lock file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return backing.WrapError(backing.RetCInternalError, "close temp lock file", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return backing.WrapError(backing.RetCInternalError, fmt.Sprintf("rename lock file into place at %s", path), err)
	}

	return nil
}

// removeEntryFile unlinks a lock file. An already-absent file is success,
// not an error: removal is idempotent so a raced cleanup never fails.
func removeEntryFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return backing.WrapError(backing.RetCInternalError, fmt.Sprintf("remove lock file %s", path), err)
	}
	return nil
}
