//go:build !unix

package fsbacking

// lockSentinel is a no-op on platforms without flock. Strict mode degrades
// to the baseline best-effort admission documented in the package comment.
func (b *fsBacking) lockSentinel(_ string) (func(), error) {
	return func() {}, nil
}
