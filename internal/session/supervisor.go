package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/pmu-gateway/internal/metrics"
)

// Supervisor 管理全部设备会话：会话异常退出后按间隔重连，
// 全局令牌桶限制重连频率，避免大量设备同时掉线时的重连风暴
type Supervisor struct {
	log      *zap.Logger
	m        *metrics.AppMetrics
	limiter  *rate.Limiter
	sessions []*Session
	byID     map[uint16]*Session

	wg sync.WaitGroup
}

// NewSupervisor restartRate 为全局每秒允许的重连次数，burst 为突发容量
func NewSupervisor(sessions []*Session, restartRate float64, burst int, log *zap.Logger, m *metrics.AppMetrics) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if restartRate <= 0 {
		restartRate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	sv := &Supervisor{
		log:      log,
		m:        m,
		limiter:  rate.NewLimiter(rate.Limit(restartRate), burst),
		sessions: sessions,
		byID:     make(map[uint16]*Session, len(sessions)),
	}
	for _, s := range sessions {
		sv.byID[s.IDCode()] = s
	}
	return sv
}

// Sessions 全部会话（配置顺序）
func (sv *Supervisor) Sessions() []*Session { return sv.sessions }

// Session 按 IDCODE 查找会话
func (sv *Supervisor) Session(idcode uint16) (*Session, bool) {
	s, ok := sv.byID[idcode]
	return s, ok
}

// Ready 所有会话均已取得配置帧
func (sv *Supervisor) Ready() bool {
	for _, s := range sv.sessions {
		if s.Config() == nil {
			return false
		}
	}
	return true
}

// Start 为每个会话启动守护 goroutine
func (sv *Supervisor) Start(ctx context.Context) {
	for _, s := range sv.sessions {
		sv.wg.Add(1)
		go sv.supervise(ctx, s)
	}
}

// Wait 等待所有守护 goroutine 退出（ctx 结束后）
func (sv *Supervisor) Wait() { sv.wg.Wait() }

func (sv *Supervisor) supervise(ctx context.Context, s *Session) {
	defer sv.wg.Done()
	for {
		err := s.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		sv.m.ObserveRestart()
		sv.log.Warn("pmu session ended, reconnecting",
			zap.String("device", s.Name()),
			zap.Duration("delay", s.opts.ReconnectDelay),
			zap.Error(err),
		)

		if d := s.opts.ReconnectDelay; d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if err := sv.limiter.Wait(ctx); err != nil {
			return
		}
	}
}
