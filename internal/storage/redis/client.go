// Package redis Redis 连接封装与配置帧缓存
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
)

// Client 网关使用的 Redis 连接，附带缓存键配置
type Client struct {
	*redis.Client
	cfg cfgpkg.RedisConfig
}

// NewClient 建立连接并探活，失败时关闭连接
func NewClient(ctx context.Context, cfg cfgpkg.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: ping failed: %w", cfg.Addr, err)
	}
	return &Client{Client: rdb, cfg: cfg}, nil
}

// ConfigStore 按配置的键前缀与 TTL 构造配置帧缓存
func (c *Client) ConfigStore() *ConfigStore {
	return NewConfigStore(c.Client, c.cfg.KeyPrefix, c.cfg.TTL)
}

func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
