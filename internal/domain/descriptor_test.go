package domain_test

import (
	"errors"
	"strings"
	"testing"

	"peerchat/internal/domain"
)

func TestDescriptorRoundTrip(t *testing.T) {
	in := domain.Descriptor{ID: "a1b2c3d4e5f60718", Port: 31337, Key: "c29tZSBrZXkgbWF0ZXJpYWw="}

	out, err := domain.ParseDescriptor(in.Encode())
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestParseDescriptorRejectsCorruptTokens(t *testing.T) {
	valid := domain.Descriptor{ID: "peer", Port: 40000, Key: "aw=="}.Encode()

	cases := map[string]string{
		"not base64":     "!!!not-base64!!!",
		"not json":       "bm90IGpzb24=",
		"empty":          "",
		"truncated":      valid[:len(valid)/2],
		"missing fields": domain.Descriptor{}.Encode(),
	}
	for name, token := range cases {
		if _, err := domain.ParseDescriptor(token); !errors.Is(err, domain.ErrInvalidDescriptor) {
			t.Errorf("%s: want ErrInvalidDescriptor, got %v", name, err)
		}
	}
}

func TestParseDescriptorRejectsBadPorts(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		token := domain.Descriptor{ID: "peer", Port: port, Key: "aw=="}.Encode()
		if _, err := domain.ParseDescriptor(token); !errors.Is(err, domain.ErrInvalidDescriptor) {
			t.Errorf("port %d: want ErrInvalidDescriptor, got %v", port, err)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	in := domain.Record{
		Type:      domain.RecordEncryptedMessage,
		Encrypted: "Y2lwaGVy",
		IV:        "aXY=",
		Counter:   7,
	}
	line, err := in.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := domain.ParseRecord(line)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestRecordCounterZeroOnWire(t *testing.T) {
	in := domain.Record{
		Type:      domain.RecordEncryptedMessage,
		Encrypted: "Y2lwaGVy",
		IV:        "aXY=",
		Counter:   0,
	}
	line, err := in.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// The first message of a session is counter zero; the field must not
	// be dropped from the encoding.
	if !strings.Contains(string(line), `"counter":0`) {
		t.Fatalf("encoded record omits counter zero: %s", line)
	}
}
