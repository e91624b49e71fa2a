//go:build integration

package xdlock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/omeyang/xatomic/pkg/distributed/xdlock"
)

// startContainer 启动容器并返回映射后的 host:port，失败时跳过测试。
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("无法启动容器 %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, port, "")
	require.NoError(t, err)
	return endpoint
}

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("XATOMIC_REDIS_ADDR")
	if addr == "" {
		addr = startContainer(t, testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}, "6379/tcp")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("无法连接到 Redis %s: %v", addr, err)
	}
	return client
}

func setupEtcd(t *testing.T) *xdlock.EtcdConfig {
	t.Helper()
	endpoint := os.Getenv("XATOMIC_ETCD_ENDPOINT")
	if endpoint == "" {
		endpoint = startContainer(t, testcontainers.ContainerRequest{
			Image:        "quay.io/coreos/etcd:v3.6.8",
			ExposedPorts: []string{"2379/tcp"},
			Cmd: []string{
				"etcd",
				"--listen-client-urls=http://0.0.0.0:2379",
				"--advertise-client-urls=http://0.0.0.0:2379",
			},
			WaitingFor: wait.ForListeningPort("2379/tcp"),
		}, "2379/tcp")
	}
	cfg := xdlock.DefaultEtcdConfig()
	cfg.Endpoints = []string{endpoint}
	return cfg
}

func TestIntegration_RedisMutex(t *testing.T) {
	client := setupRedis(t)
	factory, err := xdlock.NewRedisFactory(client)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, factory.Health(ctx))

	a, err := xdlock.NewMutex(factory, "integration", xdlock.WithExpiry(5*time.Second))
	require.NoError(t, err)
	b, err := xdlock.NewMutex(factory, "integration", xdlock.WithExpiry(5*time.Second))
	require.NoError(t, err)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Extend(ctx))
	require.NoError(t, a.Unlock(ctx))

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx))
}

func TestIntegration_EtcdFactory(t *testing.T) {
	cfg := setupEtcd(t)
	ctx := context.Background()

	factory, client, err := xdlock.NewEtcdFactoryFromConfig(cfg,
		[]xdlock.EtcdClientOption{xdlock.WithEtcdHealthCheck(true, 10*time.Second)},
		xdlock.WithEtcdTTL(10),
	)
	if err != nil {
		t.Skipf("无法连接到 etcd: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	t.Cleanup(func() { _ = factory.Close(context.Background()) })
	require.NoError(t, factory.Health(ctx))

	h, err := factory.TryLock(ctx, "integration")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "lock:integration", h.Key())
	require.NoError(t, h.Extend(ctx))

	// 另一个 Session 代表另一个持有者
	other, err := xdlock.NewEtcdFactory(client, xdlock.WithEtcdTTL(10))
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close(context.Background()) })

	busy, err := other.TryLock(ctx, "integration")
	require.NoError(t, err)
	assert.Nil(t, busy)

	require.NoError(t, h.Unlock(ctx))
	assert.ErrorIs(t, h.Unlock(ctx), xdlock.ErrNotLocked)

	h2, err := other.TryLock(ctx, "integration")
	require.NoError(t, err)
	require.NotNil(t, h2)
	require.NoError(t, h2.Unlock(ctx))
}
