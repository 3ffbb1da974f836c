package common

import "crypto/rand"

// RandomBytes returns n bytes from crypto/rand. It panics if the system
// source fails, which leaves nothing safe to seal with.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// Wipe zeroes key material once it is no longer needed.
func Wipe(b []byte) {
	clear(b)
}
