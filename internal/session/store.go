package session

import (
	"context"
	"errors"
	"sync"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

// ErrConfigNotFound 缓存中没有该 IDCODE 的配置帧
var ErrConfigNotFound = errors.New("config not found")

// ConfigStore 配置帧缓存接口，支持内存和 Redis 两种实现
type ConfigStore interface {
	// Load 读取缓存的配置帧，不存在时返回 ErrConfigNotFound
	Load(ctx context.Context, idcode uint16) (*c37118.ConfigFrame, error)
	// Save 写入（覆盖）配置帧
	Save(ctx context.Context, cfg *c37118.ConfigFrame) error
	// Delete 丢弃缓存的配置帧
	Delete(ctx context.Context, idcode uint16) error
}

// MemoryStore 进程内配置缓存，保存持久化信封字节而非对象引用
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[uint16][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[uint16][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, idcode uint16) (*c37118.ConfigFrame, error) {
	m.mu.RLock()
	b, ok := m.blobs[idcode]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrConfigNotFound
	}
	return c37118.UnmarshalConfig(b)
}

func (m *MemoryStore) Save(_ context.Context, cfg *c37118.ConfigFrame) error {
	b, err := c37118.MarshalConfig(cfg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[cfg.IDCode()] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, idcode uint16) error {
	m.mu.Lock()
	delete(m.blobs, idcode)
	m.mu.Unlock()
	return nil
}

// Len 缓存条目数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
