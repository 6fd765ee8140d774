package semaphore

import (
	"crypto/rand"
	"encoding/hex"
)

const idByteLength = 16

// generateHolderID creates a new unique holder identity: 128 random bits,
// hex encoded so it is safe as a filename component in the filesystem
// backing.
func generateHolderID() (string, error) {
	randomBytes := make([]byte, idByteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}
