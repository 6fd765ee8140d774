package fsbacking

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/overengineeringstudio/fsema/lib/backing"
)

// lockSuffix is the extension of every holder's lock file. Files without it
// (the strict-mode sentinel, editor droppings) are never treated as entries.
const lockSuffix = ".lock"

// holderEntry pairs a holder name with its parsed reservation.
type holderEntry struct {
	Holder string
	Entry  backing.LockEntry
}

// listValid enumerates the key's directory and returns the reservations
// still live at now, together with the paths of expired ones (candidates
// for opportunistic cleanup by the caller).
//
// Robustness rules, in order:
//   - missing key directory: an unused key simply has no holders
//   - file vanished between list and read: a raced release, skip
//   - unparsable content: corrupt (crash mid-write outside the atomic
//     writer), logged and skipped; the next successful write to that path
//     replaces it wholesale
//   - any other read failure: environmental, propagated
func (b *fsBacking) listValid(key string, now time.Time) (valid []holderEntry, expired []string, err error) {
	dir := b.keyDir(key)

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, backing.WrapError(backing.RetCInternalError, "list key directory "+dir, err)
	}

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, lockSuffix) {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, backing.WrapError(backing.RetCInternalError, "read lock file "+path, err)
		}

		entry, err := backing.UnmarshalEntry(data)
		if err != nil {
			b.logger.Warn("dropping corrupt lock file", "key", key, "file", name, "err", err)
			metricCorruptDropped.Inc()
			continue
		}

		holder := strings.TrimSuffix(name, lockSuffix)
		if !entry.Valid(now) {
			expired = append(expired, path)
			continue
		}
		valid = append(valid, holderEntry{Holder: holder, Entry: entry})
	}

	return valid, expired, nil
}

// sumPermits totals the permits of the given reservations, excluding the
// named holder (empty string excludes nothing). The sum is computed in
// uint64 so that many large grants cannot wrap the admission arithmetic.
func sumPermits(entries []holderEntry, excludeHolder string) uint64 {
	var total uint64
	for _, he := range entries {
		if excludeHolder != "" && he.Holder == excludeHolder {
			continue
		}
		total += uint64(he.Entry.Permits)
	}
	return total
}

// readEntry loads a single holder's reservation. The boolean reports
// presence; an unparsable file is logged and reported as absent.
func (b *fsBacking) readEntry(key, holder string) (backing.LockEntry, bool, error) {
	path := b.entryPath(key, holder)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return backing.LockEntry{}, false, nil
		}
		return backing.LockEntry{}, false, backing.WrapError(backing.RetCInternalError, "read lock file "+path, err)
	}

	entry, err := backing.UnmarshalEntry(data)
	if err != nil {
		b.logger.Warn("dropping corrupt lock file", "key", key, "holder", holder, "err", err)
		metricCorruptDropped.Inc()
		return backing.LockEntry{}, false, nil
	}
	return entry, true, nil
}
