// Package testing provides a shared conformance and benchmark suite for
// backing.IBacking implementations. Any implementation is expected to pass
// RunBackingTests unchanged: the suite encodes the contract, including the
// admission
// bounds, replace-not-add re-acquire, clamped release, passive expiry,
// renew-only refresh, key independence, the vestigial GetCount ttl argument
// and the argument validation rules, so implementations cannot drift apart.
//
// Usage (from an implementation's own test file):
//
//	func TestConformance(t *testing.T) {
//	    backingtesting.RunBackingTests(t, "fsbacking", func() backing.IBacking {
//	        b, err := fsbacking.New(&fsbacking.Options{LockDir: t.TempDir()})
//	        ...
//	        return b
//	    })
//	}
//
// Expiry-related subtests use real short leases and sleeps rather than a
// mock clock, since the factory only exposes the finished backing.
package testing
