// Package crypto holds the primitives behind a chat session.
//
// Contents
//
//   - X25519 key pair generation with RFC 7748 clamping (GenerateKeyPair)
//   - Session key derivation and per-message encryption (Session)
//   - Best-effort wiping of sensitive byte slices (Wipe)
//
// # Notes
//
// The session key is derived deterministically by hashing a canonical
// ordering of both public key encodings under domain-separation labels.
// This is not a Diffie-Hellman exchange: anyone who observes both public
// values can derive the same key. The scheme matches the wire protocol this
// package implements and must not be reused as a template elsewhere.
package crypto
