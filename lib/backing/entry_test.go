package backing

import (
	"testing"
	"time"
)

func TestEntryValidityBoundary(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	// Validity is strict: an entry expiring exactly at now is already stale.
	if (LockEntry{Permits: 1, ExpiresAt: now.UnixMilli()}).Valid(now) {
		t.Errorf("entry expiring exactly at now must be invalid")
	}
	if !(LockEntry{Permits: 1, ExpiresAt: now.UnixMilli() + 1}).Valid(now) {
		t.Errorf("entry expiring one millisecond after now must be valid")
	}
	if (LockEntry{Permits: 1, ExpiresAt: now.UnixMilli() - 1}).Valid(now) {
		t.Errorf("entry expired one millisecond ago must be invalid")
	}
}

func TestNewEntryComputesAbsoluteExpiry(t *testing.T) {
	now := time.UnixMilli(5_000)
	e := NewEntry(now, 30*time.Second, 4)
	if e.Permits != 4 {
		t.Errorf("Permits = %d, want 4", e.Permits)
	}
	if want := now.Add(30 * time.Second).UnixMilli(); e.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d", e.ExpiresAt, want)
	}
}

func TestUnmarshalEntryRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "{truncated", "not json at all", "[]"} {
		if _, err := UnmarshalEntry([]byte(body)); err == nil {
			t.Errorf("UnmarshalEntry(%q) succeeded, want parse error", body)
		}
	}

	// Unknown fields are tolerated; the wire format may grow.
	e, err := UnmarshalEntry([]byte(`{"permits":2,"expiresAt":123,"future":"x"}`))
	if err != nil {
		t.Fatalf("UnmarshalEntry with extra field failed: %v", err)
	}
	if e.Permits != 2 || e.ExpiresAt != 123 {
		t.Errorf("UnmarshalEntry = %+v, want permits=2 expiresAt=123", e)
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"key", "my-key", "worker.7", "a b"} {
		if err := ValidateName("key", name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		err := ValidateName("key", name)
		if err == nil {
			t.Errorf("ValidateName(%q) succeeded, want error", name)
			continue
		}
		berr, ok := err.(*Error)
		if !ok || berr.Code != RetCInvalidOperation {
			t.Errorf("ValidateName(%q) = %v, want RetCInvalidOperation", name, err)
		}
	}
}
