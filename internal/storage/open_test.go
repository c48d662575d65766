package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytebuddy/config"
	"bytebuddy/internal/database/memstore"
)

func TestOpenMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory

	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assert.IsType(t, &memstore.Store{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"

	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown database driver")
}
