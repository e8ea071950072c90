package vault

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func newTestVault(t *testing.T, secret string) *Vault {
	t.Helper()
	v, err := New(secret)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t, "master-secret")

	blob, err := v.Encrypt("abc123", "order-1")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := v.Decrypt(blob, "order-1")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "abc123" {
		t.Errorf("plaintext = %q, want %q", got, "abc123")
	}
}

func TestDecryptWithFreshVaultSameSecret(t *testing.T) {
	blob, err := newTestVault(t, "master-secret").Encrypt("abc123", "order-1")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := newTestVault(t, "master-secret").Decrypt(blob, "order-1")
	if err != nil {
		t.Fatalf("decrypt with restarted vault: %v", err)
	}
	if got != "abc123" {
		t.Errorf("plaintext = %q, want %q", got, "abc123")
	}
}

func TestBlobAloneIsNotEnough(t *testing.T) {
	blob, _ := newTestVault(t, "master-secret").Encrypt("abc123", "order-1")

	if _, err := newTestVault(t, "other-secret").Decrypt(blob, "order-1"); err == nil {
		t.Fatal("expected decrypt with a different master secret to fail")
	}

	raw, _ := base64.StdEncoding.DecodeString(blob)
	if bytes.Contains(raw, []byte("abc123")) {
		t.Error("blob must not contain the plaintext")
	}
}

func TestContextBinding(t *testing.T) {
	v := newTestVault(t, "master-secret")
	blob, _ := v.Encrypt("abc123", "order-1")

	if _, err := v.Decrypt(blob, "order-2"); err == nil {
		t.Fatal("expected decrypt under a different order to fail")
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	v := newTestVault(t, "master-secret")
	a, _ := v.Encrypt("abc123", "order-1")
	b, _ := v.Encrypt("abc123", "order-1")
	if a == b {
		t.Error("two encryptions of the same value should differ")
	}
}

func TestDecryptMalformed(t *testing.T) {
	v := newTestVault(t, "master-secret")

	tests := []string{
		"not base64!",
		base64.StdEncoding.EncodeToString([]byte("short")),
		base64.StdEncoding.EncodeToString(append([]byte{9}, bytes.Repeat([]byte{0}, headerSize)...)),
	}
	for _, blob := range tests {
		if _, err := v.Decrypt(blob, "order-1"); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decrypt(%q) error = %v, want ErrMalformed", blob, err)
		}
	}
}

func TestTamperedBlob(t *testing.T) {
	v := newTestVault(t, "master-secret")
	blob, _ := v.Encrypt(strings.Repeat("x", 40), "order-1")

	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0xff
	if _, err := v.Decrypt(base64.StdEncoding.EncodeToString(raw), "order-1"); err == nil {
		t.Fatal("expected tampered ciphertext to fail authentication")
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrNoMasterKey) {
		t.Errorf("New(\"\") error = %v, want ErrNoMasterKey", err)
	}
}
