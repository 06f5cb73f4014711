package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrInvalidDescriptor is returned when an out-of-band token cannot be
// decoded back into a descriptor.
var ErrInvalidDescriptor = errors.New("invalid connection descriptor")

// Descriptor bundles everything a peer needs to reach us: an opaque peer
// identifier, the listening port and the key material that seeds the
// handshake. It is shared out-of-band as a single base64 token.
//
// The key material is not a usable encryption key on its own; the session
// key only exists after the handshake completes.
type Descriptor struct {
	ID   string `json:"id"`
	Port int    `json:"p"`
	Key  string `json:"k"`
}

// Encode renders the descriptor as an opaque shareable token.
func (d Descriptor) Encode() string {
	raw, _ := json.Marshal(d)
	return base64.StdEncoding.EncodeToString(raw)
}

// ParseDescriptor decodes a token produced by Encode. Any malformed input
// yields ErrInvalidDescriptor.
func ParseDescriptor(token string) (Descriptor, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Descriptor{}, ErrInvalidDescriptor
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, ErrInvalidDescriptor
	}
	if d.ID == "" || d.Port <= 0 || d.Port > 65535 || d.Key == "" {
		return Descriptor{}, ErrInvalidDescriptor
	}
	return d, nil
}
