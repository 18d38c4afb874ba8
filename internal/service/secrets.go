package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mkraev/vaultcore/internal/crypto"
	"github.com/mkraev/vaultcore/internal/logger"
	"github.com/mkraev/vaultcore/internal/model"
	"github.com/mkraev/vaultcore/internal/session"
)

// Secrets is the transactional accessor for the encrypted secrets blob.
// Every call re-encrypts and re-persists the blob, pure reads included.
type Secrets struct {
	store    model.VaultStore
	sessions *session.Manager
	logger   *logger.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewSecrets creates the secrets accessor.
func NewSecrets(store model.VaultStore, sessions *session.Manager, logger *logger.Logger) *Secrets {
	return &Secrets{
		store:     store,
		sessions:  sessions,
		logger:    logger,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// WithSecrets validates the token, decrypts the user's secrets blob under
// the session master key, runs the mutator against the live values map,
// then re-encrypts under a fresh nonce and persists the whole record.
// Returns the mutator's result.
//
// Calls for the same user are serialized by an in-process mutex, so two
// concurrent mutations cannot silently drop each other's writes. Mutator
// errors abort the call before anything is persisted.
func (s *Secrets) WithSecrets(ctx context.Context, token, userID string, fn model.Mutator) (any, error) {
	sess, err := s.sessions.Touch(token)
	if err != nil {
		return nil, err
	}

	if sess.UserID != userID {
		// A token issued for one user must never open another user's
		// vault, whatever the caller claims.
		return nil, model.ErrTokenUserMismatch
	}

	unlock := s.lockUser(userID)
	defer unlock()

	vault, err := s.store.Get(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault: %w", err)
	}

	keyBuf, err := sess.Key.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open master key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	values, err := decryptSecrets(vault.EncryptedSecrets, keyBuf.Bytes())
	if err != nil {
		return nil, err
	}

	result, err := fn(values)
	if err != nil {
		return nil, err
	}

	reencrypted, err := encryptSecrets(values, keyBuf.Bytes())
	if err != nil {
		return nil, err
	}

	vault.EncryptedSecrets = reencrypted
	vault.UpdatedAt = time.Now()

	if err := s.store.Put(ctx, userID, vault); err != nil {
		return nil, fmt.Errorf("failed to persist vault: %w", err)
	}

	s.logger.Debug("Secrets service: blob re-persisted", "userID", userID)

	return result, nil
}

// lockUser acquires the per-user mutex, creating it on first use, and
// returns the release function.
func (s *Secrets) lockUser(userID string) func() {
	s.mu.Lock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// decryptSecrets decrypts and parses the secrets blob, validating format
// version and shape. Any failure here signals corruption or format drift,
// not a legitimate vault error.
func decryptSecrets(blob model.EncryptedBlob, master []byte) (map[string]json.RawMessage, error) {
	payload, err := crypto.DecryptWithKey(blob, master)
	if err != nil {
		return nil, model.ErrCorruptSecretsBlob
	}

	var secrets model.SecretsBlob
	if err := json.Unmarshal(payload, &secrets); err != nil {
		return nil, model.ErrCorruptSecretsBlob
	}

	if secrets.Version != model.SecretsBlobVersion || secrets.Values == nil {
		return nil, model.ErrCorruptSecretsBlob
	}

	return secrets.Values, nil
}
