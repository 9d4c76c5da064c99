package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/internal/platform/config"
)

func TestOpenWithoutURLIsDisabled(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestOpenFailsOnUnreachableServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, config.DatabaseConfig{URL: "postgres://u:p@127.0.0.1:1/db?sslmode=disable"})
	assert.Error(t, err)
}
