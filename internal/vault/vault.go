// Package vault encrypts buyer credentials at rest.
//
// Each credential gets a fresh data key. The data key is wrapped by a key
// derived from the master secret with Argon2id and a per-record salt, so the
// stored blob alone is not enough to recover the password.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	version    = 1
	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	wrappedLen = keySize + 16 // data key plus GCM tag
	argonTime  = 1
	argonMem   = 64 * 1024
	argonPar   = 4

	headerSize = 1 + saltSize + nonceSize + wrappedLen + nonceSize
)

var (
	ErrNoMasterKey = errors.New("vault: master secret is empty")
	ErrMalformed   = errors.New("vault: malformed blob")
)

type Vault struct {
	master []byte
}

// New returns a Vault keyed by the given master secret.
func New(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, ErrNoMasterKey
	}
	return &Vault{master: []byte(masterSecret)}, nil
}

func (v *Vault) deriveKEK(salt []byte) []byte {
	return argon2.IDKey(v.master, salt, argonTime, argonMem, argonPar, keySize)
}

// Encrypt seals plaintext and binds it to context (typically the order ID).
// Output: base64(version | salt | wrapNonce | wrappedKey | nonce | ciphertext).
func (v *Vault) Encrypt(plaintext, context string) (string, error) {
	salt, err := randomBytes(saltSize)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	dataKey, err := randomBytes(keySize)
	if err != nil {
		return "", fmt.Errorf("generate data key: %w", err)
	}

	wrapNonce, wrapped, err := seal(v.deriveKEK(salt), dataKey, salt)
	if err != nil {
		return "", fmt.Errorf("wrap data key: %w", err)
	}
	nonce, ciphertext, err := seal(dataKey, []byte(plaintext), []byte(context))
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	out := make([]byte, 0, headerSize+len(ciphertext))
	out = append(out, version)
	out = append(out, salt...)
	out = append(out, wrapNonce...)
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. The context must match the one used to encrypt.
func (v *Vault) Decrypt(blob, context string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) < headerSize || data[0] != version {
		return "", ErrMalformed
	}

	off := 1
	salt := data[off : off+saltSize]
	off += saltSize
	wrapNonce := data[off : off+nonceSize]
	off += nonceSize
	wrapped := data[off : off+wrappedLen]
	off += wrappedLen
	nonce := data[off : off+nonceSize]
	off += nonceSize
	ciphertext := data[off:]

	dataKey, err := open(v.deriveKEK(salt), wrapNonce, wrapped, salt)
	if err != nil {
		return "", fmt.Errorf("unwrap data key: %w", err)
	}
	plaintext, err := open(dataKey, nonce, ciphertext, []byte(context))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func seal(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = randomBytes(nonceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, aad), nil
}

func open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
