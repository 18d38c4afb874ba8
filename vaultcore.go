// Package vaultcore implements an encrypted per-user secrets vault: an
// arbitrary set of name→secret entries protected behind a passphrase, with
// a single-use recovery phrase independent of that passphrase.
//
// The package is a library. The surrounding application owns transport and
// user authentication, passes an opaque user identifier into every call,
// and maps the error taxonomy onto its own status codes. Vault records are
// persisted through the VaultStore interface; postgres and MinIO-backed
// stores ship in the box, or the caller plugs in its own.
package vaultcore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mkraev/vaultcore/internal/config"
	"github.com/mkraev/vaultcore/internal/crypto"
	"github.com/mkraev/vaultcore/internal/logger"
	"github.com/mkraev/vaultcore/internal/model"
	"github.com/mkraev/vaultcore/internal/repository/postgres"
	"github.com/mkraev/vaultcore/internal/service"
	"github.com/mkraev/vaultcore/internal/session"
	miniostore "github.com/mkraev/vaultcore/internal/storage/minio"
)

// Public aliases over the internal model, so embedders can name every type
// that crosses the package boundary.
type (
	VaultStore    = model.VaultStore
	StoredVault   = model.StoredVault
	EncryptedBlob = model.EncryptedBlob
	SecretsBlob   = model.SecretsBlob
	Mutator       = model.Mutator
	VaultStatus   = model.VaultStatus
	Unlock        = model.Unlock
	Recovery      = model.Recovery
)

// Error taxonomy. ErrNotFound is the sentinel VaultStore implementations
// return for absent records.
var (
	ErrNotFound              = model.ErrNotFound
	ErrNotInitialized        = model.ErrNotInitialized
	ErrAlreadyInitialized    = model.ErrAlreadyInitialized
	ErrInvalidPassphrase     = model.ErrInvalidPassphrase
	ErrInvalidRecoveryPhrase = model.ErrInvalidRecoveryPhrase
	ErrMissingPassphrase     = model.ErrMissingPassphrase
	ErrInvalidToken          = model.ErrInvalidToken
	ErrTokenExpired          = model.ErrTokenExpired
	ErrTokenUserMismatch     = model.ErrTokenUserMismatch
	ErrCorruptSecretsBlob    = model.ErrCorruptSecretsBlob
)

// Service is one vault service instance: lifecycle controller, secrets
// accessor, and the session store they share. Sessions are in-memory only;
// they do not survive a restart and are not shared across instances.
type Service struct {
	vault    *service.Vault
	secrets  *service.Secrets
	sessions *session.Manager
	closers  []func() error
}

type options struct {
	idleTimeout time.Duration
	kdf         crypto.Params
	log         *slog.Logger
}

// Option configures a Service.
type Option func(*options)

// WithIdleTimeout sets the sliding idle window of unlock sessions.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithKDFParams sets Argon2id parameters for passphrase key derivation.
func WithKDFParams(timeCost, memKiB uint32, par uint8) Option {
	return func(o *options) {
		o.kdf = crypto.Params{Time: timeCost, MemoryKiB: memKiB, Parallelism: par}
	}
}

// WithLogger routes service logs to the given slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New creates a vault service over the given store.
func New(store VaultStore, opts ...Option) *Service {
	o := options{
		idleTimeout: 15 * time.Minute,
		kdf:         crypto.DefaultParams(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var log *logger.Logger
	if o.log != nil {
		log = &logger.Logger{Logger: o.log}
	} else {
		log = logger.New(0)
	}

	sessions := session.NewManager(o.idleTimeout)

	return &Service{
		vault:    service.NewVault(store, sessions, o.kdf, log.Component("vault")),
		secrets:  service.NewSecrets(store, sessions, log.Component("secrets")),
		sessions: sessions,
	}
}

// NewFromEnv builds a service wired from environment configuration with a
// postgres-backed store. Close releases the connection pool.
func NewFromEnv(ctx context.Context) (*Service, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	svc := New(
		postgres.NewVaultRepository(db),
		WithIdleTimeout(cfg.Session.IdleTimeout),
		WithKDFParams(cfg.KDF.Time, cfg.KDF.MemKiB, cfg.KDF.Par),
		WithLogger(logger.New(cfg.LogLevel).Logger),
	)
	svc.closers = append(svc.closers, db.Close)

	return svc, nil
}

// NewPostgresStore opens a pgx pool against dsn, applies migrations, and
// returns the store plus a release function for the pool.
func NewPostgresStore(ctx context.Context, dsn string) (VaultStore, func() error, error) {
	db, err := postgres.NewConnection(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewVaultRepository(db), db.Close, nil
}

// NewMinioStore returns a MinIO/S3-backed store, provisioning the bucket if
// needed.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (VaultStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return miniostore.NewClient(ctx, client, bucket)
}

// Status reports whether the user's vault exists and whether a live unlock
// session is present.
func (s *Service) Status(ctx context.Context, userID string) (VaultStatus, error) {
	return s.vault.Status(ctx, userID)
}

// Init creates the user's vault and returns the recovery phrase — the only
// time it is ever returned from Init. Pass recoveryPhrase to supply your
// own instead of generating one.
func (s *Service) Init(ctx context.Context, userID, passphrase, recoveryPhrase string) (string, error) {
	return s.vault.Init(ctx, userID, passphrase, recoveryPhrase)
}

// Unlock opens a session with the passphrase and returns the bearer token
// plus its idle TTL.
func (s *Service) Unlock(ctx context.Context, userID, passphrase string) (Unlock, error) {
	return s.vault.Unlock(ctx, userID, passphrase)
}

// Lock forgets the session behind the token. Idempotent.
func (s *Service) Lock(token string) {
	s.vault.Lock(token)
}

// Recover rotates the passphrase using the recovery phrase, invalidating
// the old phrase, and returns the replacement phrase with a fresh session.
func (s *Service) Recover(ctx context.Context, userID, recoveryPhrase, newPassphrase, nextRecoveryPhrase string) (Recovery, error) {
	return s.vault.Recover(ctx, userID, recoveryPhrase, newPassphrase, nextRecoveryPhrase)
}

// WithSecrets runs the mutator against the user's decrypted secret values
// under an active session, then re-encrypts and persists them. The blob is
// re-persisted even for pure reads.
func (s *Service) WithSecrets(ctx context.Context, token, userID string, fn Mutator) (any, error) {
	return s.secrets.WithSecrets(ctx, token, userID, fn)
}

// Close drops every unlock session and releases owned resources.
func (s *Service) Close() error {
	s.sessions.Drop()
	for _, c := range s.closers {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}
