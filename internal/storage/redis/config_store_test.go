package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/session"
	"github.com/taoyao-code/pmu-gateway/internal/testutil"
)

// 注意: 集成测试需要 Redis 服务器，未设置 TEST_REDIS_ADDR 时跳过

func setupRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("需要Redis服务器，跳过测试")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis不可用: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestConfigStore_Key(t *testing.T) {
	s := NewConfigStore(nil, "", 0)
	assert.Equal(t, "pmu:cfg:7734", s.key(7734))
	assert.Equal(t, "x:1", NewConfigStore(nil, "x:", 0).key(1))
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(context.Background(), cfgpkg.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestConfigStore_Redis(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	prefix := "pmu:test:" + time.Now().Format("150405.000000") + ":"
	s := NewConfigStore(rdb, prefix, time.Minute)

	_, err := s.Load(ctx, testutil.SampleIDCode)
	assert.ErrorIs(t, err, session.ErrConfigNotFound)

	cfg := testutil.SampleConfig(testutil.SampleIDCode)
	require.NoError(t, s.Save(ctx, cfg))
	ttl, err := rdb.TTL(ctx, s.key(testutil.SampleIDCode)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, err := s.Load(ctx, testutil.SampleIDCode)
	require.NoError(t, err)
	assert.Equal(t, cfg.Stations[0].Name, got.Stations[0].Name)
	assert.Equal(t, cfg.DataFrameSize(), got.DataFrameSize())

	t.Run("损坏缓存按未命中处理", func(t *testing.T) {
		require.NoError(t, rdb.Set(ctx, s.key(1), []byte("garbage"), time.Minute).Err())
		_, err := s.Load(ctx, 1)
		assert.ErrorIs(t, err, session.ErrConfigNotFound)
		n, err := rdb.Exists(ctx, s.key(1)).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	require.NoError(t, s.Delete(ctx, testutil.SampleIDCode))
	_, err = s.Load(ctx, testutil.SampleIDCode)
	assert.ErrorIs(t, err, session.ErrConfigNotFound)
}
