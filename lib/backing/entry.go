package backing

import (
	"encoding/json"
	"time"
)

// LockEntry is the complete persisted state of one holder's reservation on a
// key. In the filesystem backing it is the entire content of the holder's
// lock file, serialized as JSON.
type LockEntry struct {
	Permits   uint32 `json:"permits"`
	ExpiresAt int64  `json:"expiresAt"` // epoch milliseconds
}

// Valid reports whether the entry's lease is still live at the given time.
// This predicate is the sole staleness authority in the system: every count,
// admission check and refresh goes through it.
func (e LockEntry) Valid(now time.Time) bool {
	return e.ExpiresAt > now.UnixMilli()
}

// NewEntry builds an entry for the given permit count expiring ttl after now.
func NewEntry(now time.Time, ttl time.Duration, permits uint32) LockEntry {
	return LockEntry{
		Permits:   permits,
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
}

// MarshalEntry serializes an entry into its on-disk JSON form.
func MarshalEntry(e LockEntry) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEntry parses the on-disk JSON form of an entry. A parse failure
// means the file is corrupt (typically a crash mid-write outside the atomic
// writer's control) and the caller treats the entry as absent.
func UnmarshalEntry(b []byte) (LockEntry, error) {
	var e LockEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return LockEntry{}, err
	}
	return e, nil
}
