package domain

import "encoding/json"

// Record types carried on the wire. Each logical message is one JSON
// object terminated by a newline.
const (
	RecordHandshakeInitiate = "handshake-initiate"
	RecordHandshakeComplete = "handshake-complete"
	RecordEncryptedMessage  = "encrypted-message"
)

// Record is the single wire envelope. The Type field selects which of the
// remaining fields are meaningful:
//
//   - handshake-initiate / handshake-complete: PublicKey, Nonce
//   - encrypted-message: Encrypted, IV, Tag (may be empty), Counter
//
// All byte-valued fields are base64 strings. Counter is serialized even at
// zero so the first encrypted message carries it explicitly.
type Record struct {
	Type      string `json:"type"`
	PublicKey string `json:"publicKey,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Encrypted string `json:"encrypted,omitempty"`
	IV        string `json:"iv,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Counter   uint64 `json:"counter"`
}

// Marshal encodes the record as a single JSON line without the trailing
// newline; the transport appends the delimiter.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ParseRecord decodes one framed line into a Record.
func ParseRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
