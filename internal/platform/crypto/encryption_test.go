package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const hexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestRoundTrip(t *testing.T) {
	svc, err := New(hexKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sealed, err := svc.EncryptString("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("JBSWY3DPEHPK3PXP")) {
		t.Fatal("ciphertext contains the plaintext")
	}
	plain, err := svc.DecryptString(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("unexpected plaintext %q", plain)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := svc.Decrypt(sealed); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}
	if _, err := svc.Decrypt([]byte{1, 2}); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("expected short ciphertext error, got %v", err)
	}
}

func TestKeyFormats(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, 32)
	for _, key := range []string{base64.StdEncoding.EncodeToString(raw), base64.RawURLEncoding.EncodeToString(raw)} {
		svc, err := New(key)
		if err != nil || !svc.Configured() {
			t.Fatalf("key %q: configured=%v err=%v", key, svc.Configured(), err)
		}
	}
	if _, err := New(base64.StdEncoding.EncodeToString(raw[:16])); err == nil {
		t.Fatal("expected short key to fail")
	}
	if _, err := New(strings.Repeat("!", 10)); err == nil {
		t.Fatal("expected undecodable key to fail")
	}
}

func TestUnconfigured(t *testing.T) {
	svc, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Configured() {
		t.Fatal("empty key must not be configured")
	}
	if _, err := svc.EncryptString("x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
