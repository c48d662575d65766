//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"bytebuddy/config"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestCacheServiceAgainstRedis(t *testing.T) {
	addr := startRedis(t)
	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	require.True(t, cs.IsHealthy())

	ctx := context.Background()
	_, err = cs.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cs.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	v, err := cs.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, v)

	require.NoError(t, cs.Delete(ctx, "k"))
	_, err = cs.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.True(t, cs.GetStats().Healthy)
}
