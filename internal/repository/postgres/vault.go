package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mkraev/vaultcore/internal/model"
)

var _ model.VaultStore = (*VaultRepository)(nil)

// VaultRepository persists one vault record per user. Put is an upsert, so
// single-record writes stay atomic; a concurrent reader never observes a
// half-written record.
type VaultRepository struct {
	db *Connection
}

func NewVaultRepository(db *Connection) *VaultRepository {
	return &VaultRepository{
		db: db,
	}
}

func (r *VaultRepository) Get(ctx context.Context, userID string) (model.StoredVault, error) {
	query := `
		SELECT v.version,
		       v.pass_salt, v.pass_nonce, v.pass_ciphertext, v.pass_tag,
		       v.recovery_salt, v.recovery_nonce, v.recovery_ciphertext, v.recovery_tag,
		       v.secrets_nonce, v.secrets_ciphertext, v.secrets_tag,
		       v.created_at, v.updated_at
		FROM vaults v
		WHERE v.user_id = $1`

	var vault model.StoredVault
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&vault.Version,
		&vault.PassphraseWrapper.Salt, &vault.PassphraseWrapper.Nonce,
		&vault.PassphraseWrapper.Ciphertext, &vault.PassphraseWrapper.AuthTag,
		&vault.RecoveryWrapper.Salt, &vault.RecoveryWrapper.Nonce,
		&vault.RecoveryWrapper.Ciphertext, &vault.RecoveryWrapper.AuthTag,
		&vault.EncryptedSecrets.Nonce, &vault.EncryptedSecrets.Ciphertext, &vault.EncryptedSecrets.AuthTag,
		&vault.CreatedAt, &vault.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StoredVault{}, model.ErrNotFound
		}
		return model.StoredVault{}, err
	}

	return vault, nil
}

func (r *VaultRepository) Put(ctx context.Context, userID string, vault model.StoredVault) error {
	query := `
		INSERT INTO vaults (
			user_id, version,
			pass_salt, pass_nonce, pass_ciphertext, pass_tag,
			recovery_salt, recovery_nonce, recovery_ciphertext, recovery_tag,
			secrets_nonce, secrets_ciphertext, secrets_tag,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id) DO UPDATE SET
			version = EXCLUDED.version,
			pass_salt = EXCLUDED.pass_salt,
			pass_nonce = EXCLUDED.pass_nonce,
			pass_ciphertext = EXCLUDED.pass_ciphertext,
			pass_tag = EXCLUDED.pass_tag,
			recovery_salt = EXCLUDED.recovery_salt,
			recovery_nonce = EXCLUDED.recovery_nonce,
			recovery_ciphertext = EXCLUDED.recovery_ciphertext,
			recovery_tag = EXCLUDED.recovery_tag,
			secrets_nonce = EXCLUDED.secrets_nonce,
			secrets_ciphertext = EXCLUDED.secrets_ciphertext,
			secrets_tag = EXCLUDED.secrets_tag,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		userID, vault.Version,
		vault.PassphraseWrapper.Salt, vault.PassphraseWrapper.Nonce,
		vault.PassphraseWrapper.Ciphertext, vault.PassphraseWrapper.AuthTag,
		vault.RecoveryWrapper.Salt, vault.RecoveryWrapper.Nonce,
		vault.RecoveryWrapper.Ciphertext, vault.RecoveryWrapper.AuthTag,
		vault.EncryptedSecrets.Nonce, vault.EncryptedSecrets.Ciphertext, vault.EncryptedSecrets.AuthTag,
		vault.CreatedAt, vault.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return nil
}
