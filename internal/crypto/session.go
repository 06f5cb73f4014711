package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"peerchat/internal/domain"
)

const sessionKeySize = 32

// Domain-separation labels for the derivation chain.
const (
	labelSharedSecret = "peerchat/shared-secret"
	labelSessionKey   = "peerchat/session-key"
	labelMessageKey   = "peerchat/message-key"
)

var (
	// ErrHandshakeFailed is returned by Establish on malformed key input.
	ErrHandshakeFailed = errors.New("handshake failed: malformed key material")

	// ErrNoSessionKey is returned when encrypting before a handshake completed.
	ErrNoSessionKey = errors.New("no session key established")

	// ErrDecryptionFailed covers any integrity or format error on decrypt.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Ciphertext is the output of Session.Encrypt, ready to be placed on the
// wire. The Poly1305 tag is embedded in Ciphertext, so the wire record's
// separate tag field stays empty.
type Ciphertext struct {
	Ciphertext []byte
	IV         []byte
	Counter    uint64
}

// Session turns two parties' key material into a symmetric session key and
// a stream of independent per-message keys.
//
// The message counter increments by exactly one per successful Encrypt and
// is never reused within a session. Decrypt re-derives the message key from
// the counter the sender supplied, so reordered or replayed records remain
// decryptable; callers that need freshness must track counters themselves.
type Session struct {
	mu           sync.Mutex
	sharedSecret []byte
	sessionKey   []byte
	counter      uint64
}

// NewSession returns an empty session with no key material.
func NewSession() *Session { return &Session{} }

// Establish derives the shared session key from our private key and the
// peer's public key.
//
// Both sides must arrive at the same key regardless of role, so the local
// public key is recomputed from the private key and the two public
// encodings are sorted lexicographically before hashing. The derivation is
// a labelled hash chain, not a Diffie-Hellman exchange; see the package
// documentation for the security caveat.
func (s *Session) Establish(localPriv domain.PrivateKey, remotePub domain.PublicKey) error {
	var zero domain.PublicKey
	if remotePub == zero {
		return ErrHandshakeFailed
	}
	localPub, err := PublicFromPrivate(localPriv)
	if err != nil {
		return ErrHandshakeFailed
	}

	lo, hi := localPub.Slice(), remotePub.Slice()
	if bytes.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}

	h := sha256.New()
	h.Write([]byte(labelSharedSecret))
	h.Write(lo)
	h.Write(hi)
	secret := h.Sum(nil)

	h = sha256.New()
	h.Write([]byte(labelSessionKey))
	h.Write(secret)
	key := h.Sum(nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedSecret = secret
	s.sessionKey = key
	s.counter = 0
	return nil
}

// Established reports whether a session key is present.
func (s *Session) Established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionKey != nil
}

// Encrypt seals plaintext under a fresh message key and advances the
// counter. The IV is random per message.
func (s *Session) Encrypt(plaintext []byte) (Ciphertext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == nil {
		return Ciphertext{}, ErrNoSessionKey
	}

	mk, err := messageKey(s.sessionKey, s.counter)
	if err != nil {
		return Ciphertext{}, err
	}
	defer Wipe(mk)

	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return Ciphertext{}, err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return Ciphertext{}, err
	}

	out := Ciphertext{
		Ciphertext: aead.Seal(nil, iv, plaintext, nil),
		IV:         iv,
		Counter:    s.counter,
	}
	s.counter++
	return out, nil
}

// Decrypt opens a ciphertext using the sender-supplied counter.
func (s *Session) Decrypt(ciphertext, iv []byte, counter uint64) ([]byte, error) {
	s.mu.Lock()
	key := s.sessionKey
	s.mu.Unlock()

	if key == nil {
		return nil, ErrNoSessionKey
	}

	mk, err := messageKey(key, counter)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer Wipe(mk)

	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(iv) != aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	plain, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// Counter returns the next counter value Encrypt will use.
func (s *Session) Counter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Destroy wipes the shared secret and session key and resets the counter.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	Wipe(s.sharedSecret)
	Wipe(s.sessionKey)
	s.sharedSecret = nil
	s.sessionKey = nil
	s.counter = 0
}

// messageKey derives a single-use key from (sessionKey, counter, label)
// via HKDF-SHA256.
func messageKey(sessionKey []byte, counter uint64) ([]byte, error) {
	info := make([]byte, 0, len(labelMessageKey)+8)
	info = append(info, labelMessageKey...)
	info = binary.BigEndian.AppendUint64(info, counter)

	r := hkdf.New(sha256.New, sessionKey, nil, info)
	mk := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(r, mk); err != nil {
		return nil, err
	}
	return mk, nil
}
