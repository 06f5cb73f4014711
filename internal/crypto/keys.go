package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"peerchat/internal/domain"
)

// GenerateKeyPair returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748. Failure means the entropy
// source is exhausted and is not retryable.
func GenerateKeyPair() (priv domain.PrivateKey, pub domain.PublicKey, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pb)
	return
}

// PublicFromPrivate recomputes the public half of a clamped private key.
func PublicFromPrivate(priv domain.PrivateKey) (domain.PublicKey, error) {
	var pub domain.PublicKey
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], pb)
	return pub, nil
}

func clamp(k *domain.PrivateKey) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
