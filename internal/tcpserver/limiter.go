package tcpserver

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ConnectionLimiter 并发订阅连接上限（信号量）
type ConnectionLimiter struct {
	sem      chan struct{}
	max      int
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter max<=0 时默认 64
func NewConnectionLimiter(max int) *ConnectionLimiter {
	if max <= 0 {
		max = 64
	}
	return &ConnectionLimiter{sem: make(chan struct{}, max), max: max}
}

// TryAcquire 非阻塞获取许可
func (l *ConnectionLimiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		l.rejected.Add(1)
		return false
	}
}

// Release 释放许可
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
	default:
	}
}

func (l *ConnectionLimiter) Current() int { return int(l.active.Load()) }

func (l *ConnectionLimiter) Max() int { return l.max }

// Rejected 累计拒绝数
func (l *ConnectionLimiter) Rejected() int64 { return l.rejected.Load() }

// RateLimiter 接入速率限制（令牌桶）
type RateLimiter struct {
	limiter  *rate.Limiter
	allowed  atomic.Int64
	rejected atomic.Int64
}

// NewRateLimiter perSec<=0 时默认每秒 20 次；burst<=0 时取速率的 2 倍
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if perSec <= 0 {
		perSec = 20
	}
	if burst <= 0 {
		burst = int(perSec * 2)
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow 非阻塞检查
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

func (l *RateLimiter) Allowed() int64 { return l.allowed.Load() }

func (l *RateLimiter) Rejected() int64 { return l.rejected.Load() }
