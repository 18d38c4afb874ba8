package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"

	"github.com/mkraev/vaultcore/internal/crypto"
	"github.com/mkraev/vaultcore/internal/logger"
	"github.com/mkraev/vaultcore/internal/mnemonic"
	"github.com/mkraev/vaultcore/internal/model"
	"github.com/mkraev/vaultcore/internal/session"
)

// Vault implements the per-user vault lifecycle: initialization, passphrase
// unlock, credential rotation via recovery, and locking. A stored vault has
// no persisted locked/unlocked state; "unlocked" means a live session
// exists in the session manager.
type Vault struct {
	store    model.VaultStore
	sessions *session.Manager
	kdf      crypto.Params
	logger   *logger.Logger
}

// NewVault creates the lifecycle controller.
func NewVault(store model.VaultStore, sessions *session.Manager, kdf crypto.Params, logger *logger.Logger) *Vault {
	return &Vault{
		store:    store,
		sessions: sessions,
		kdf:      kdf,
		logger:   logger,
	}
}

// Status reports whether a vault exists for the user and whether a live
// unlock session is present. Side-effect-free.
func (s *Vault) Status(ctx context.Context, userID string) (model.VaultStatus, error) {
	_, err := s.store.Get(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.VaultStatus{}, nil
	}
	if err != nil {
		return model.VaultStatus{}, fmt.Errorf("failed to get vault: %w", err)
	}

	return model.VaultStatus{
		Initialized: true,
		Unlocked:    s.sessions.IsUnlocked(userID),
	}, nil
}

// Init creates the vault for a user that has none. It generates a fresh
// master key, wraps it under the passphrase and under a recovery phrase
// (generated unless supplied), encrypts an empty secrets blob under the
// master key, and persists the record. The recovery phrase is returned to
// the caller exactly once; it is not retrievable afterward.
func (s *Vault) Init(ctx context.Context, userID, passphrase, recoveryPhrase string) (string, error) {
	if passphrase == "" {
		return "", model.ErrMissingPassphrase
	}

	_, err := s.store.Get(ctx, userID)
	if err == nil {
		return "", model.ErrAlreadyInitialized
	}
	if !errors.Is(err, model.ErrNotFound) {
		return "", fmt.Errorf("failed to get vault: %w", err)
	}

	phrase := recoveryPhrase
	if phrase == "" {
		phrase, err = mnemonic.New()
		if err != nil {
			return "", fmt.Errorf("failed to generate recovery phrase: %w", err)
		}
	}

	master, err := crypto.NewMasterKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	defer memguard.WipeBytes(master)

	passphraseWrapper, recoveryWrapper, err := s.wrapMasterKey(master, passphrase, phrase)
	if err != nil {
		return "", err
	}

	emptySecrets, err := encryptSecrets(map[string]json.RawMessage{}, master)
	if err != nil {
		return "", err
	}

	now := time.Now()
	vault := model.StoredVault{
		Version:           model.VaultVersion,
		PassphraseWrapper: passphraseWrapper,
		RecoveryWrapper:   recoveryWrapper,
		EncryptedSecrets:  emptySecrets,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.Put(ctx, userID, vault); err != nil {
		return "", fmt.Errorf("failed to persist vault: %w", err)
	}

	s.logger.Info("Vault service: vault initialized", "userID", userID)

	return phrase, nil
}

// Unlock checks the passphrase against the stored wrapper and, on success,
// opens an unlock session carrying the decrypted master key in memory only.
func (s *Vault) Unlock(ctx context.Context, userID, passphrase string) (model.Unlock, error) {
	vault, err := s.store.Get(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Unlock{}, model.ErrNotInitialized
	}
	if err != nil {
		return model.Unlock{}, fmt.Errorf("failed to get vault: %w", err)
	}

	master, err := crypto.DecryptWithPassphrase(vault.PassphraseWrapper, passphrase, s.kdf)
	if errors.Is(err, crypto.ErrDecrypt) {
		s.logger.Debug("Vault service: unlock rejected", "userID", userID)
		return model.Unlock{}, model.ErrInvalidPassphrase
	}
	if err != nil {
		return model.Unlock{}, fmt.Errorf("failed to unwrap master key: %w", err)
	}

	// Create moves the master key into the session; the local copy is
	// wiped by the move.
	token, err := s.sessions.Create(userID, master)
	if err != nil {
		memguard.WipeBytes(master)
		return model.Unlock{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("Vault service: vault unlocked", "userID", userID)

	return model.Unlock{Token: token, TTL: s.sessions.IdleTimeout()}, nil
}

// Lock destroys the session behind the token. Always succeeds, including
// for unknown tokens.
func (s *Vault) Lock(token string) {
	s.sessions.Destroy(token)
}

// Recover rotates credentials using the recovery phrase: the same master
// key is re-wrapped under the new passphrase and under a replacement
// recovery phrase (generated unless supplied). The previous recovery phrase
// is permanently invalid the instant this succeeds. A fresh unlock session
// is returned so the caller needs no second round trip.
func (s *Vault) Recover(ctx context.Context, userID, recoveryPhrase, newPassphrase, nextRecoveryPhrase string) (model.Recovery, error) {
	if newPassphrase == "" {
		return model.Recovery{}, model.ErrMissingPassphrase
	}

	vault, err := s.store.Get(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Recovery{}, model.ErrNotInitialized
	}
	if err != nil {
		return model.Recovery{}, fmt.Errorf("failed to get vault: %w", err)
	}

	master, err := crypto.DecryptWithPassphrase(vault.RecoveryWrapper, recoveryPhrase, s.kdf)
	if errors.Is(err, crypto.ErrDecrypt) {
		s.logger.Debug("Vault service: recovery rejected", "userID", userID)
		return model.Recovery{}, model.ErrInvalidRecoveryPhrase
	}
	if err != nil {
		return model.Recovery{}, fmt.Errorf("failed to unwrap master key: %w", err)
	}
	defer memguard.WipeBytes(master)

	phrase := nextRecoveryPhrase
	if phrase == "" {
		phrase, err = mnemonic.New()
		if err != nil {
			return model.Recovery{}, fmt.Errorf("failed to generate recovery phrase: %w", err)
		}
	}

	passphraseWrapper, recoveryWrapper, err := s.wrapMasterKey(master, newPassphrase, phrase)
	if err != nil {
		return model.Recovery{}, err
	}

	vault.PassphraseWrapper = passphraseWrapper
	vault.RecoveryWrapper = recoveryWrapper
	vault.UpdatedAt = time.Now()

	if err := s.store.Put(ctx, userID, vault); err != nil {
		return model.Recovery{}, fmt.Errorf("failed to persist vault: %w", err)
	}

	token, err := s.sessions.Create(userID, master)
	if err != nil {
		return model.Recovery{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Vault service: credentials rotated", "userID", userID)

	return model.Recovery{
		Phrase: phrase,
		Unlock: model.Unlock{Token: token, TTL: s.sessions.IdleTimeout()},
	}, nil
}

// wrapMasterKey wraps the same master key under two independent secrets.
// Rotating either credential later only re-wraps 32 bytes, never the
// secrets blob itself.
func (s *Vault) wrapMasterKey(master []byte, passphrase, recoveryPhrase string) (model.EncryptedBlob, model.EncryptedBlob, error) {
	passphraseWrapper, err := crypto.EncryptWithPassphrase(master, passphrase, s.kdf)
	if err != nil {
		return model.EncryptedBlob{}, model.EncryptedBlob{}, fmt.Errorf("failed to wrap master key under passphrase: %w", err)
	}

	recoveryWrapper, err := crypto.EncryptWithPassphrase(master, recoveryPhrase, s.kdf)
	if err != nil {
		return model.EncryptedBlob{}, model.EncryptedBlob{}, fmt.Errorf("failed to wrap master key under recovery phrase: %w", err)
	}

	return passphraseWrapper, recoveryWrapper, nil
}

// encryptSecrets serializes values into a fresh SecretsBlob and encrypts it
// under the master key with a fresh nonce.
func encryptSecrets(values map[string]json.RawMessage, master []byte) (model.EncryptedBlob, error) {
	payload, err := json.Marshal(model.SecretsBlob{
		Version: model.SecretsBlobVersion,
		Values:  values,
	})
	if err != nil {
		return model.EncryptedBlob{}, fmt.Errorf("failed to serialize secrets blob: %w", err)
	}

	blob, err := crypto.EncryptWithKey(payload, master)
	if err != nil {
		return model.EncryptedBlob{}, fmt.Errorf("failed to encrypt secrets blob: %w", err)
	}

	return blob, nil
}
