package model

import (
	"context"
	"encoding/json"
	"time"
)

// VaultVersion is the current stored vault format version.
const VaultVersion = 1

// SecretsBlobVersion is the current plaintext secrets blob format version.
const SecretsBlobVersion = 1

// VaultStore defines persistence operations for vault records, one record
// per user. Both operations must be atomic at single-record granularity.
type VaultStore interface {
	Get(ctx context.Context, userID string) (StoredVault, error)
	Put(ctx context.Context, userID string, vault StoredVault) error
}

// EncryptedBlob is an authenticated-encryption envelope. Salt is present
// only for passphrase-derived keys and empty for raw-key encryption.
type EncryptedBlob struct {
	Salt       []byte `json:"salt,omitempty"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"auth_tag"`
}

// StoredVault is the persisted vault record for one user. PassphraseWrapper
// and RecoveryWrapper decrypt, under their respective secret, to the same
// 32-byte master key. EncryptedSecrets decrypts under that master key to a
// SecretsBlob.
type StoredVault struct {
	Version           int           `json:"version"`
	PassphraseWrapper EncryptedBlob `json:"passphrase_wrapper"`
	RecoveryWrapper   EncryptedBlob `json:"recovery_wrapper"`
	EncryptedSecrets  EncryptedBlob `json:"encrypted_secrets"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// SecretsBlob is the plaintext form of the encrypted secrets payload.
// Values are opaque to the vault: it stores and returns them without ever
// inspecting their shape.
type SecretsBlob struct {
	Version int                        `json:"version"`
	Values  map[string]json.RawMessage `json:"values"`
}

// Mutator reads and/or mutates the secret values in place and returns an
// arbitrary result to pass back to the caller.
type Mutator func(values map[string]json.RawMessage) (any, error)

// VaultStatus reports per-user vault state. Unlocked is a property of a
// live session, not of the stored record.
type VaultStatus struct {
	Initialized bool
	Unlocked    bool
}

// Unlock is the result of a successful unlock: the bearer token for the
// secrets accessor and the idle TTL of the session behind it.
type Unlock struct {
	Token string
	TTL   time.Duration
}

// Recovery is the result of a successful recovery: the replacement recovery
// phrase and a fresh unlock session.
type Recovery struct {
	Phrase string
	Unlock
}
