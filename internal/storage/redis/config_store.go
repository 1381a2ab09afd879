package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/session"
)

// DefaultKeyPrefix 配置帧缓存键前缀
const DefaultKeyPrefix = "pmu:cfg:"

// ConfigStore 以持久化信封字节缓存配置帧，键为 前缀+IDCODE
type ConfigStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ session.ConfigStore = (*ConfigStore)(nil)

// NewConfigStore ttl 为 0 表示不过期
func NewConfigStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *ConfigStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ConfigStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *ConfigStore) key(idcode uint16) string {
	return s.prefix + strconv.FormatUint(uint64(idcode), 10)
}

func (s *ConfigStore) Load(ctx context.Context, idcode uint16) (*c37118.ConfigFrame, error) {
	b, err := s.rdb.Get(ctx, s.key(idcode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get config %d: %w", idcode, err)
	}
	cfg, err := c37118.UnmarshalConfig(b)
	if err != nil {
		// 损坏的缓存直接丢弃，按未命中处理
		_ = s.rdb.Del(ctx, s.key(idcode)).Err()
		return nil, fmt.Errorf("%w: %v", session.ErrConfigNotFound, err)
	}
	return cfg, nil
}

func (s *ConfigStore) Save(ctx context.Context, cfg *c37118.ConfigFrame) error {
	b, err := c37118.MarshalConfig(cfg)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(cfg.IDCode()), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set config %d: %w", cfg.IDCode(), err)
	}
	return nil
}

func (s *ConfigStore) Delete(ctx context.Context, idcode uint16) error {
	return s.rdb.Del(ctx, s.key(idcode)).Err()
}
