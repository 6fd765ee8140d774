package testing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/overengineeringstudio/fsema/lib/backing"
)

// BackingFactory is a function that creates a fresh instance of a backing
// implementation. Every subtest gets its own instance.
type BackingFactory func() backing.IBacking

// Long-lived lease for tests that must not hit expiry, and a short lease
// plus a comfortably larger sleep for tests that must.
const (
	longTTL    = time.Minute
	shortTTL   = 100 * time.Millisecond
	expirySlop = 400 * time.Millisecond
)

// RunBackingTests runs the conformance suite for a backing implementation.
func RunBackingTests(t *testing.T, name string, factory BackingFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("AcquireAndCount", func(t *testing.T) {
			testAcquireAndCount(t, factory())
		})

		t.Run("AdmissionBound", func(t *testing.T) {
			testAdmissionBound(t, factory())
		})

		t.Run("ReplaceNotAdd", func(t *testing.T) {
			testReplaceNotAdd(t, factory())
		})

		t.Run("MultiHolderCapacity", func(t *testing.T) {
			testMultiHolderCapacity(t, factory())
		})

		t.Run("PartialRelease", func(t *testing.T) {
			testPartialRelease(t, factory())
		})

		t.Run("OverReleaseClamps", func(t *testing.T) {
			testOverReleaseClamps(t, factory())
		})

		t.Run("ReleaseUnknownHolder", func(t *testing.T) {
			testReleaseUnknownHolder(t, factory())
		})

		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, factory())
		})

		t.Run("ReleaseAfterExpiry", func(t *testing.T) {
			testReleaseAfterExpiry(t, factory())
		})

		t.Run("KeyIndependence", func(t *testing.T) {
			testKeyIndependence(t, factory())
		})

		t.Run("RefreshRenews", func(t *testing.T) {
			testRefreshRenews(t, factory())
		})

		t.Run("RefreshRejections", func(t *testing.T) {
			testRefreshRejections(t, factory())
		})

		t.Run("CountIgnoresTTLArgument", func(t *testing.T) {
			testCountIgnoresTTLArgument(t, factory())
		})

		t.Run("InvalidArguments", func(t *testing.T) {
			testInvalidArguments(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// mustAcquire fails the test unless the acquisition succeeds.
func mustAcquire(t *testing.T, b backing.IBacking, key, holder string, ttl time.Duration, limit, permits uint32) {
	t.Helper()
	ok, err := b.TryAcquire(key, holder, ttl, limit, permits)
	if err != nil {
		t.Fatalf("TryAcquire(%s, %s, %d) failed: %v", key, holder, permits, err)
	}
	if !ok {
		t.Fatalf("TryAcquire(%s, %s, %d) was denied, expected admission", key, holder, permits)
	}
}

// mustCount fails the test unless GetCount returns the expected total.
func mustCount(t *testing.T, b backing.IBacking, key string, want uint32) {
	t.Helper()
	got, err := b.GetCount(key, longTTL)
	if err != nil {
		t.Fatalf("GetCount(%s) failed: %v", key, err)
	}
	if got != want {
		t.Errorf("GetCount(%s) = %d, want %d", key, got, want)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testAcquireAndCount(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustCount(t, b, "unused-key", 0)

	mustAcquire(t, b, "key", "holder", longTTL, 5, 3)
	mustCount(t, b, "key", 3)

	released, err := b.Release("key", "holder", 3)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released != 3 {
		t.Errorf("Release returned %d, want 3", released)
	}
	mustCount(t, b, "key", 0)
}

func testAdmissionBound(t *testing.T, b backing.IBacking) {
	defer b.Close()

	const limit = 5
	requests := []uint32{2, 2, 3, 1, 2, 1}

	for i, permits := range requests {
		holder := fmt.Sprintf("holder-%d", i)
		ok, err := b.TryAcquire("bound-key", holder, longTTL, limit, permits)
		if err != nil {
			t.Fatalf("TryAcquire failed: %v", err)
		}

		count, err := b.GetCount("bound-key", longTTL)
		if err != nil {
			t.Fatalf("GetCount failed: %v", err)
		}
		if count > limit {
			t.Errorf("after request %d (admitted=%v): count %d exceeds limit %d", i, ok, count, limit)
		}
	}
}

func testReplaceNotAdd(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustAcquire(t, b, "key", "h", longTTL, 2, 1)

	// Re-acquire with 2 against limit 2: the holder's own prior permit must
	// not count against it.
	mustAcquire(t, b, "key", "h", longTTL, 2, 2)
	mustCount(t, b, "key", 2)
}

func testMultiHolderCapacity(t *testing.T, b backing.IBacking) {
	defer b.Close()

	for _, h := range []string{"h1", "h2", "h3"} {
		mustAcquire(t, b, "key", h, longTTL, 3, 1)
	}

	ok, err := b.TryAcquire("key", "h4", longTTL, 3, 1)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Errorf("4th holder was admitted beyond limit 3")
	}
	mustCount(t, b, "key", 3)
}

func testPartialRelease(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustAcquire(t, b, "key", "h1", longTTL, 3, 3)

	released, err := b.Release("key", "h1", 1)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released != 1 {
		t.Errorf("Release returned %d, want 1", released)
	}
	mustCount(t, b, "key", 2)

	// One freed permit: a second holder fits 1 but not 2.
	ok, err := b.TryAcquire("key", "h2", longTTL, 3, 2)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Errorf("h2 acquired 2 permits with only 1 free")
	}
	mustAcquire(t, b, "key", "h2", longTTL, 3, 1)
	mustCount(t, b, "key", 3)
}

func testOverReleaseClamps(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustAcquire(t, b, "key", "h", longTTL, 5, 2)

	released, err := b.Release("key", "h", 5)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released != 2 {
		t.Errorf("over-release returned %d, want clamped 2", released)
	}
	mustCount(t, b, "key", 0)
}

func testReleaseUnknownHolder(t *testing.T, b backing.IBacking) {
	defer b.Close()

	released, err := b.Release("key", "nonexistent", 1)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released != 0 {
		t.Errorf("Release of unknown holder returned %d, want 0", released)
	}
}

func testExpiry(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustAcquire(t, b, "key", "h", shortTTL, 5, 3)
	mustCount(t, b, "key", 3)

	time.Sleep(expirySlop)
	mustCount(t, b, "key", 0)

	// The lapsed capacity is available again.
	mustAcquire(t, b, "key", "h2", longTTL, 5, 5)
}

func testReleaseAfterExpiry(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustAcquire(t, b, "key", "h", shortTTL, 5, 2)
	time.Sleep(expirySlop)
	mustCount(t, b, "key", 0)

	// An expired but unreleased reservation still counts as held for
	// release bookkeeping.
	released, err := b.Release("key", "h", 2)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released != 2 {
		t.Errorf("Release after expiry returned %d, want 2", released)
	}
}

func testKeyIndependence(t *testing.T, b backing.IBacking) {
	defer b.Close()

	// Exhaust key-1.
	mustAcquire(t, b, "key-1", "h", longTTL, 2, 2)
	ok, err := b.TryAcquire("key-1", "h2", longTTL, 2, 1)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Errorf("key-1 admitted beyond its limit")
	}

	// key-2 is unaffected.
	mustAcquire(t, b, "key-2", "h", longTTL, 2, 2)
	mustCount(t, b, "key-1", 2)
	mustCount(t, b, "key-2", 2)
}

func testRefreshRenews(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustAcquire(t, b, "key", "h", shortTTL, 5, 2)

	refreshed, err := b.Refresh("key", "h", longTTL, 5, 2)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !refreshed {
		t.Fatalf("Refresh of a live reservation was rejected")
	}

	// Outlive the original lease: the renewed expiry must govern.
	time.Sleep(expirySlop)
	mustCount(t, b, "key", 2)
}

func testRefreshRejections(t *testing.T, b backing.IBacking) {
	defer b.Close()

	// Absent holder.
	refreshed, err := b.Refresh("key", "ghost", longTTL, 5, 1)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed {
		t.Errorf("Refresh of absent holder succeeded")
	}

	// Expired reservation.
	mustAcquire(t, b, "key", "late", shortTTL, 5, 1)
	time.Sleep(expirySlop)
	refreshed, err = b.Refresh("key", "late", longTTL, 5, 1)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed {
		t.Errorf("Refresh of expired reservation succeeded")
	}

	// Growing the grant is not a refresh.
	mustAcquire(t, b, "key", "h", longTTL, 5, 1)
	refreshed, err = b.Refresh("key", "h", longTTL, 5, 2)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed {
		t.Errorf("Refresh grew a grant from 1 to 2 permits")
	}

	// Shrinking is allowed.
	mustAcquire(t, b, "key", "h3", longTTL, 9, 3)
	refreshed, err = b.Refresh("key", "h3", longTTL, 9, 2)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !refreshed {
		t.Errorf("Refresh shrinking a grant from 3 to 2 was rejected")
	}
	count, err := b.GetCount("key", longTTL)
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 3 { // h3 shrunk to 2, h still holds 1, late is expired
		t.Errorf("GetCount = %d, want 3", count)
	}
}

// testCountIgnoresTTLArgument pins the decision that GetCount's ttl
// parameter is vestigial: validity comes solely from each reservation's
// stored expiry.
func testCountIgnoresTTLArgument(t *testing.T, b backing.IBacking) {
	defer b.Close()

	mustAcquire(t, b, "key", "h", longTTL, 5, 2)

	for _, ttl := range []time.Duration{0, time.Nanosecond, time.Hour} {
		count, err := b.GetCount("key", ttl)
		if err != nil {
			t.Fatalf("GetCount(ttl=%v) failed: %v", ttl, err)
		}
		if count != 2 {
			t.Errorf("GetCount(ttl=%v) = %d, want 2 regardless of ttl argument", ttl, count)
		}
	}
}

func testInvalidArguments(t *testing.T, b backing.IBacking) {
	defer b.Close()

	assertInvalid := func(op string, err error) {
		t.Helper()
		var berr *backing.Error
		if !errors.As(err, &berr) || berr.Code != backing.RetCInvalidOperation {
			t.Errorf("%s: expected RetCInvalidOperation error, got %v", op, err)
		}
	}

	// Zero permits would persist a zero-valued reservation; absence is the
	// only representation of "no permits".
	_, err := b.TryAcquire("key", "h", longTTL, 5, 0)
	assertInvalid("TryAcquire(permits=0)", err)
	_, err = b.Refresh("key", "h", longTTL, 5, 0)
	assertInvalid("Refresh(permits=0)", err)

	// Names map to filesystem entries in the filesystem backing.
	_, err = b.TryAcquire("", "h", longTTL, 5, 1)
	assertInvalid("TryAcquire(empty key)", err)
	_, err = b.TryAcquire("a/b", "h", longTTL, 5, 1)
	assertInvalid("TryAcquire(key with separator)", err)
	_, err = b.TryAcquire("key", "..", longTTL, 5, 1)
	assertInvalid("TryAcquire(dot-dot holder)", err)
	_, err = b.Release("key", "", 1)
	assertInvalid("Release(empty holder)", err)
	_, err = b.GetCount("", longTTL)
	assertInvalid("GetCount(empty key)", err)
}
