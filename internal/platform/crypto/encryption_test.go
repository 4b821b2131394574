package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	svc, err := New(testKey, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	aad := []byte("vault/ARL-SURA/password")
	ct, err := svc.Seal([]byte("s3cret"), aad)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if ct[0] != VersionAESGCM {
		t.Fatalf("expected version byte, got %x", ct[0])
	}
	if !IsTagged(ct) {
		t.Fatal("expected sealed value to be tagged")
	}
	plain, err := svc.Open(ct, aad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(plain) != "s3cret" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestOpenRejectsTamperingAndWrongAAD(t *testing.T) {
	svc, _ := New(testKey, "")
	ct, _ := svc.Seal([]byte("user"), []byte("a"))

	if _, err := svc.Open(ct, []byte("b")); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error for wrong aad, got %v", err)
	}

	tampered := bytes.Clone(ct)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := svc.Open(tampered, []byte("a")); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error for tampered ciphertext, got %v", err)
	}
}

func TestOpenRejectsUntaggedAndUnknownVersions(t *testing.T) {
	svc, _ := New(testKey, "")
	if _, err := svc.Open([]byte("plaintext-password"), nil); !errors.Is(err, ErrUntagged) {
		t.Fatalf("expected untagged error, got %v", err)
	}
	future := append([]byte{0x02}, make([]byte, 40)...)
	if _, err := svc.Open(future, nil); !errors.Is(err, ErrUntagged) {
		t.Fatalf("expected untagged error for unknown prefix, got %v", err)
	}
}

func TestNewKeyHandling(t *testing.T) {
	if _, err := New("", ""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := New("short-passphrase", ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected invalid key without salt, got %v", err)
	}
	a, err := New("correct horse battery staple", "montero-salt")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, _ := New("correct horse battery staple", "montero-salt")
	ct, _ := a.Seal([]byte("x"), nil)
	if _, err := b.Open(ct, nil); err != nil {
		t.Fatalf("expected derived keys to match: %v", err)
	}

	raw, _ := hex.DecodeString(testKey)
	if len(raw) != keySize {
		t.Fatalf("unexpected test key size %d", len(raw))
	}
}
