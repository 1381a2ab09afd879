package app

import (
	"context"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/session"
	redisstorage "github.com/taoyao-code/pmu-gateway/internal/storage/redis"
)

// NewConfigStore Redis 启用时返回 Redis 配置缓存，否则回退到进程内缓存。
// 返回的 client 在未启用时为 nil。
func NewConfigStore(ctx context.Context, cfg cfgpkg.RedisConfig, logger *zap.Logger) (session.ConfigStore, *redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, using in-memory config cache")
		return session.NewMemoryStore(), nil, nil
	}
	client, err := redisstorage.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("redis config cache initialized",
		zap.String("addr", cfg.Addr),
		zap.String("key_prefix", cfg.KeyPrefix),
		zap.Duration("ttl", cfg.TTL),
	)
	return client.ConfigStore(), client, nil
}
