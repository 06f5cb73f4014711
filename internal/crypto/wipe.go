package crypto

import "crypto/subtle"

// Wipe overwrites b with zeros. The copy goes through crypto/subtle so the
// compiler cannot elide the stores as dead writes.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
