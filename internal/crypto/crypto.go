package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/mkraev/vaultcore/internal/model"
)

const (
	// KeySize is the master key and derived key length.
	KeySize = 32
	// SaltSize is the KDF salt length for passphrase-derived keys.
	SaltSize = 16
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

// ErrDecrypt is returned on any authenticated-decryption failure. A wrong
// passphrase is indistinguishable from corrupted data; both surface as this
// single error.
var ErrDecrypt = errors.New("decryption failed")

// Params are Argon2id key-derivation parameters.
type Params struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultParams returns interactive-grade Argon2id parameters.
func DefaultParams() Params {
	return Params{Time: 3, MemoryKiB: 64 * 1024, Parallelism: 4}
}

// NewMasterKey generates a fresh random 32-byte master key.
func NewMasterKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return key, nil
}

// EncryptWithPassphrase derives a key from the passphrase and a fresh
// random salt using Argon2id, then encrypts plaintext with AES-256-GCM
// under a fresh random nonce. A new salt and nonce are generated on every
// call; nonce reuse under one key breaks the scheme.
func EncryptWithPassphrase(plaintext []byte, passphrase string, p Params) (model.EncryptedBlob, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return model.EncryptedBlob{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt, p)
	blob, err := seal(plaintext, key)
	if err != nil {
		return model.EncryptedBlob{}, err
	}
	wipe(key)

	blob.Salt = salt
	return blob, nil
}

// DecryptWithPassphrase re-derives the key from the passphrase and the
// blob's stored salt and performs authenticated decryption. Returns
// ErrDecrypt on tag mismatch.
func DecryptWithPassphrase(blob model.EncryptedBlob, passphrase string, p Params) ([]byte, error) {
	if len(blob.Salt) != SaltSize {
		return nil, ErrDecrypt
	}

	key := deriveKey(passphrase, blob.Salt, p)
	plaintext, err := open(blob, key)
	wipe(key)
	return plaintext, err
}

// EncryptWithKey encrypts plaintext with AES-256-GCM directly under the
// given 32-byte key. The salt field of the returned blob is left empty.
func EncryptWithKey(plaintext, key []byte) (model.EncryptedBlob, error) {
	return seal(plaintext, key)
}

// DecryptWithKey performs authenticated decryption directly under the given
// 32-byte key. Returns ErrDecrypt on tag mismatch.
func DecryptWithKey(blob model.EncryptedBlob, key []byte) ([]byte, error) {
	return open(blob, key)
}

// SafeCompare reports whether a and b are equal without leaking content
// through timing. Unequal lengths return false immediately; only the length
// mismatch is observable.
func SafeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func deriveKey(passphrase string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKiB, p.Parallelism, KeySize)
}

func seal(plaintext, key []byte) (model.EncryptedBlob, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return model.EncryptedBlob{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return model.EncryptedBlob{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	return model.EncryptedBlob{
		Nonce:      nonce,
		Ciphertext: sealed[:len(sealed)-TagSize],
		AuthTag:    sealed[len(sealed)-TagSize:],
	}, nil
}

func open(blob model.EncryptedBlob, key []byte) ([]byte, error) {
	if len(blob.Nonce) != NonceSize || len(blob.AuthTag) != TagSize {
		return nil, ErrDecrypt
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(blob.Ciphertext)+TagSize)
	sealed = append(sealed, blob.Ciphertext...)
	sealed = append(sealed, blob.AuthTag...)

	plaintext, err := aead.Open(nil, blob.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return aead, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
