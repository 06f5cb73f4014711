package domain

import "fmt"

// PublicKey is an X25519 public key.
type PublicKey [32]byte

func (p PublicKey) Slice() []byte { return p[:] }

// PrivateKey is an X25519 private key.
type PrivateKey [32]byte

func (k PrivateKey) Slice() []byte { return k[:] }

// PublicKeyFromBytes copies b into a PublicKey, rejecting wrong sizes.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var out PublicKey
	if len(b) != 32 {
		return out, fmt.Errorf("public key: want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
