// Package identity manages the ephemeral key material a session lives on.
// An identity exists for a single process run: it is generated at session
// start, never persisted, and wiped at teardown.
package identity

import (
	"crypto/rand"
	"errors"
	"sync"

	"peerchat/internal/crypto"
	"peerchat/internal/domain"
)

// NonceSize is the length of handshake nonces in bytes.
const NonceSize = 32

// ErrDestroyed is returned when the private key is requested after Destroy.
var ErrDestroyed = errors.New("identity destroyed")

// Identity owns an ephemeral X25519 key pair. The private key never leaves
// the struct except by value for a single handshake derivation.
type Identity struct {
	mu        sync.Mutex
	priv      domain.PrivateKey
	pub       domain.PublicKey
	destroyed bool
}

// New generates a fresh identity. Failure means the entropy source is
// exhausted, which is fatal and non-retryable.
func New() (*Identity, error) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, pub: pub}, nil
}

// Public returns the public key.
func (id *Identity) Public() domain.PublicKey {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.pub
}

// Private returns the private key for a handshake derivation. It fails
// once the identity has been destroyed.
func (id *Identity) Private() (domain.PrivateKey, error) {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.destroyed {
		return domain.PrivateKey{}, ErrDestroyed
	}
	return id.priv, nil
}

// Nonce returns 32 bytes of fresh randomness. Each handshake message uses
// its own nonce; a value is never handed out twice.
func (id *Identity) Nonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Destroy wipes the private key. Subsequent Private calls fail with
// ErrDestroyed.
func (id *Identity) Destroy() {
	id.mu.Lock()
	defer id.mu.Unlock()
	crypto.Wipe(id.priv[:])
	id.destroyed = true
}
