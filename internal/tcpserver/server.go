// Package tcpserver 中继推送服务：将解码后的数据帧编码为中继帧，广播给下游 TCP 订阅者
package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/metrics"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/transfer"
)

// Server 中继服务，实现 session.Sink
type Server struct {
	cfg  cfgpkg.RelayConfig
	log  *zap.Logger
	m    *metrics.AppMetrics
	enc  transfer.EncodeOptions
	ln   net.Listener
	wg   sync.WaitGroup
	stop chan struct{}

	stopOnce sync.Once

	connLimiter *ConnectionLimiter
	rateLimiter *RateLimiter

	mu         sync.RWMutex
	subs       map[uint64]*Conn
	nextConnID uint64
	sent       atomic.Uint64
}

// New 创建中继服务
func New(cfg cfgpkg.RelayConfig, log *zap.Logger, m *metrics.AppMetrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:         cfg,
		log:         log.Named("relay"),
		m:           m,
		enc:         transfer.EncodeOptions{CRC: cfg.CRC},
		stop:        make(chan struct{}),
		connLimiter: NewConnectionLimiter(cfg.MaxConnections),
		rateLimiter: NewRateLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		subs:        make(map[uint64]*Conn),
	}
}

// Start 监听并接受订阅连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("relay listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.rateLimiter.Allow() {
			s.log.Warn("relay accept rate exceeded", zap.String("remote", c.RemoteAddr().String()))
			_ = c.Close()
			continue
		}
		if !s.connLimiter.TryAcquire() {
			s.log.Warn("relay connection limit reached", zap.Int("max", s.connLimiter.Max()))
			_ = c.Close()
			continue
		}
		cc := s.register(c)
		if cc == nil {
			s.connLimiter.Release()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			cc.run()
			s.unregister(cc)
		}()
	}
}

// register 登记订阅者；服务已停止时关闭连接并返回 nil
func (s *Server) register(c net.Conn) *Conn {
	s.mu.Lock()
	select {
	case <-s.stop:
		s.mu.Unlock()
		_ = c.Close()
		return nil
	default:
	}
	s.nextConnID++
	cc := newConn(s, c, s.nextConnID)
	s.subs[cc.id] = cc
	n := len(s.subs)
	s.mu.Unlock()
	s.m.SetRelaySubscribers(n)
	s.log.Info("relay subscriber connected", zap.Uint64("conn_id", cc.id), zap.String("remote", c.RemoteAddr().String()))
	return cc
}

func (s *Server) unregister(cc *Conn) {
	s.mu.Lock()
	delete(s.subs, cc.id)
	n := len(s.subs)
	s.mu.Unlock()
	s.connLimiter.Release()
	s.m.SetRelaySubscribers(n)
	s.log.Info("relay subscriber disconnected", zap.Uint64("conn_id", cc.id), zap.Uint64("dropped", cc.dropped.Load()))
}

// Subscribers 当前订阅者数量
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Sent 累计成功入队的中继帧数
func (s *Server) Sent() uint64 { return s.sent.Load() }

// OnData 编码中继帧并广播；慢订阅者的写队列满时丢帧
func (s *Server) OnData(df *c37118.DataFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return
	}
	b := transfer.NewFrame(df).Encode(s.enc)
	n := 0
	for _, cc := range s.subs {
		if cc.enqueue(b) {
			n++
		}
	}
	s.sent.Add(uint64(n))
	s.m.ObserveRelaySent(n)
}

// Shutdown 关闭监听与全部订阅连接并等待退出，可重复调用
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.ln != nil {
			_ = s.ln.Close()
		}
		// 与 register 互斥：停止后不会再有新订阅者漏过关闭
		s.mu.Lock()
		close(s.stop)
		for _, cc := range s.subs {
			_ = cc.Close()
		}
		s.mu.Unlock()
	})

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
