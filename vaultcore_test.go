package vaultcore_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkraev/vaultcore"
)

// memStore is a map-backed VaultStore, standing in for whatever the
// surrounding application persists vault records with.
type memStore struct {
	mu     sync.Mutex
	vaults map[string]vaultcore.StoredVault
}

func newMemStore() *memStore {
	return &memStore{vaults: make(map[string]vaultcore.StoredVault)}
}

func (s *memStore) Get(ctx context.Context, userID string) (vaultcore.StoredVault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vault, ok := s.vaults[userID]
	if !ok {
		return vaultcore.StoredVault{}, vaultcore.ErrNotFound
	}
	return vault, nil
}

func (s *memStore) Put(ctx context.Context, userID string, vault vaultcore.StoredVault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults[userID] = vault
	return nil
}

func newTestService() *vaultcore.Service {
	return vaultcore.New(
		newMemStore(),
		vaultcore.WithIdleTimeout(time.Minute),
		vaultcore.WithKDFParams(1, 1024, 1),
	)
}

// The full lifecycle, end to end: init, unlock, store a secret, lock,
// recover with the one-time phrase, read the secret back under the new
// credentials, and confirm the old passphrase is dead.
func TestService_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	defer svc.Close()

	phrase1, err := svc.Init(ctx, "u1", "p@ss1", "")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(phrase1), 24)

	unlock, err := svc.Unlock(ctx, "u1", "p@ss1")
	require.NoError(t, err)

	_, err = svc.WithSecrets(ctx, unlock.Token, "u1", func(values map[string]json.RawMessage) (any, error) {
		values["github"] = json.RawMessage(`{"token":"ghp_x"}`)
		return nil, nil
	})
	require.NoError(t, err)

	svc.Lock(unlock.Token)
	_, err = svc.WithSecrets(ctx, unlock.Token, "u1", readSecret("github"))
	assert.ErrorIs(t, err, vaultcore.ErrInvalidToken)

	recovery, err := svc.Recover(ctx, "u1", phrase1, "p@ss2", "")
	require.NoError(t, err)
	assert.NotEqual(t, phrase1, recovery.Phrase)

	result, err := svc.WithSecrets(ctx, recovery.Token, "u1", readSecret("github"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"ghp_x"}`, string(result.(json.RawMessage)))

	_, err = svc.Unlock(ctx, "u1", "p@ss1")
	assert.ErrorIs(t, err, vaultcore.ErrInvalidPassphrase)

	_, err = svc.Unlock(ctx, "u1", "p@ss2")
	assert.NoError(t, err)
}

func TestService_Status(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	defer svc.Close()

	status, err := svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Initialized)

	_, err = svc.Init(ctx, "u1", "p@ss1", "")
	require.NoError(t, err)

	status, err = svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.False(t, status.Unlocked)

	unlock, err := svc.Unlock(ctx, "u1", "p@ss1")
	require.NoError(t, err)

	status, err = svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Unlocked)

	svc.Lock(unlock.Token)
	status, err = svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Unlocked)
}

func TestService_TokensAreUserBound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	defer svc.Close()

	_, err := svc.Init(ctx, "alice", "p@ssA", "")
	require.NoError(t, err)
	_, err = svc.Init(ctx, "bob", "p@ssB", "")
	require.NoError(t, err)

	unlockA, err := svc.Unlock(ctx, "alice", "p@ssA")
	require.NoError(t, err)

	_, err = svc.WithSecrets(ctx, unlockA.Token, "bob", readSecret("anything"))
	assert.ErrorIs(t, err, vaultcore.ErrTokenUserMismatch)
}

func TestService_Close_DropsSessions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Init(ctx, "u1", "p@ss1", "")
	require.NoError(t, err)
	unlock, err := svc.Unlock(ctx, "u1", "p@ss1")
	require.NoError(t, err)

	require.NoError(t, svc.Close())

	_, err = svc.WithSecrets(ctx, unlock.Token, "u1", readSecret("x"))
	assert.ErrorIs(t, err, vaultcore.ErrInvalidToken)
}

// Two service instances never share session state: a token issued by one
// is meaningless to the other.
func TestService_InstancesDoNotShareSessions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	first := vaultcore.New(store, vaultcore.WithKDFParams(1, 1024, 1))
	second := vaultcore.New(store, vaultcore.WithKDFParams(1, 1024, 1))
	defer first.Close()
	defer second.Close()

	_, err := first.Init(ctx, "u1", "p@ss1", "")
	require.NoError(t, err)
	unlock, err := first.Unlock(ctx, "u1", "p@ss1")
	require.NoError(t, err)

	_, err = second.WithSecrets(ctx, unlock.Token, "u1", readSecret("x"))
	assert.ErrorIs(t, err, vaultcore.ErrInvalidToken)
}

func readSecret(name string) vaultcore.Mutator {
	return func(values map[string]json.RawMessage) (any, error) {
		return values[name], nil
	}
}
