package common

import "crypto/rand"

// GenerateRandByteArray returns size cryptographically random bytes. Used
// for GCM nonces and credential salts. It panics only if the platform CSPRNG
// is broken, which is unrecoverable.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray overwrites the contents of b with zeros. Used to remove
// secrets from memory after use. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
