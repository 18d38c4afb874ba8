package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewVaultRepository(t *testing.T) {
	db := &Connection{}
	repo := NewVaultRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestConnection_Ping_NilPool(t *testing.T) {
	conn := &Connection{}
	assert.Error(t, conn.Ping(context.Background()))
}

func TestConnection_Close_NilPool(t *testing.T) {
	conn := &Connection{}
	assert.NoError(t, conn.Close())
}
