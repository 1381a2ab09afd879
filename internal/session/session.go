// Package session 单台 PMU 的采集会话：命令收发、配置帧管理与数据帧解码循环
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/pmu-gateway/internal/logging"
	"github.com/taoyao-code/pmu-gateway/internal/metrics"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/transport"
)

// ErrNotConnected 会话尚未建立传输连接
var ErrNotConnected = errors.New("session not connected")

// State 会话状态
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateFetchingConfig
	StateStreaming
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateConnecting:     "connecting",
	StateFetchingConfig: "fetching_config",
	StateStreaming:      "streaming",
	StateClosed:         "closed",
}

func (s State) String() string { return stateNames[s] }

// Sink 解码后数据帧的消费者；在会话 goroutine 中同步调用，实现不得阻塞
type Sink interface {
	OnData(df *c37118.DataFrame)
}

// DialFunc 建立传输连接，测试中可替换
type DialFunc func(ctx context.Context, network, addr string, opts transport.Options) (transport.Transport, error)

// Options 会话参数
type Options struct {
	Name    string
	IDCode  uint16
	Network string
	Addr    string

	Transport transport.Options

	// ConfigVersion 请求 CFG-1 或 CFG-2，默认 2
	ConfigVersion   int
	VerifyCRC       bool
	ApplyScaling    bool
	Trace           bool
	UseCachedConfig bool
	ReconnectDelay  time.Duration
}

// Deps 会话依赖
type Deps struct {
	Logger  *zap.Logger
	Store   ConfigStore
	Sinks   []Sink
	Metrics *metrics.AppMetrics
	Dial    DialFunc
}

// Stats 会话计数快照
type Stats struct {
	Frames        uint64 `json:"frames"`
	DataFrames    uint64 `json:"data_frames"`
	ConfigFrames  uint64 `json:"config_frames"`
	Dropped       uint64 `json:"dropped"`
	ConfigChanges uint64 `json:"config_changes"`
}

// Session 单台 PMU 的采集会话
type Session struct {
	id    string
	opts  Options
	log   *zap.Logger
	store ConfigStore
	sinks []Sink
	m     *metrics.AppMetrics
	dial  DialFunc
	parse c37118.ParseOptions

	state  atomic.Int32
	cfg    atomic.Pointer[c37118.ConfigFrame]
	latest atomic.Pointer[c37118.DataFrame]

	mu     sync.Mutex
	tr     transport.Transport
	framer *transport.Framer

	// refetchPending 已发出配置重新请求，等待新配置帧
	refetchPending bool
	// statLatch 非 nil 表示本次 STAT 配置变更通告已请求过配置，值为当时生效的 CFGCNT；
	// 收到变更位清零的数据帧后解除
	statLatch []uint16

	frames        atomic.Uint64
	dataFrames    atomic.Uint64
	configFrames  atomic.Uint64
	dropped       atomic.Uint64
	configChanges atomic.Uint64
}

// New 创建会话，不建立连接
func New(opts Options, deps Deps) *Session {
	if opts.ConfigVersion == 0 {
		opts.ConfigVersion = 2
	}
	if opts.Network == "" {
		opts.Network = "tcp"
	}
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("pmu-%d", opts.IDCode)
	}
	s := &Session{
		id:    uuid.New().String(),
		opts:  opts,
		log:   deps.Logger,
		store: deps.Store,
		sinks: deps.Sinks,
		m:     deps.Metrics,
		dial:  deps.Dial,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.dial == nil {
		s.dial = transport.Dial
	}
	s.log = s.log.With(
		zap.String("session_id", s.id),
		zap.String("device", opts.Name),
		zap.Uint16("idcode", opts.IDCode),
	)
	s.parse = c37118.ParseOptions{VerifyCRC: opts.VerifyCRC, ApplyScaling: opts.ApplyScaling}
	if opts.Trace {
		s.parse.Trace = logging.CodecTrace(s.log)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Name() string { return s.opts.Name }

func (s *Session) IDCode() uint16 { return s.opts.IDCode }

func (s *Session) Addr() string { return s.opts.Network + "://" + s.opts.Addr }

func (s *Session) State() State { return State(s.state.Load()) }

// Config 当前生效的配置帧，未取得时为 nil
func (s *Session) Config() *c37118.ConfigFrame { return s.cfg.Load() }

// Latest 最近一次成功解码的数据帧
func (s *Session) Latest() *c37118.DataFrame { return s.latest.Load() }

func (s *Session) Stats() Stats {
	return Stats{
		Frames:        s.frames.Load(),
		DataFrames:    s.dataFrames.Load(),
		ConfigFrames:  s.configFrames.Load(),
		Dropped:       s.dropped.Load(),
		ConfigChanges: s.configChanges.Load(),
	}
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Connect 建立传输连接
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)
	tr, err := s.dial(ctx, s.opts.Network, s.opts.Addr, s.opts.Transport)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tr = tr
	s.framer = transport.NewFramer(tr)
	s.mu.Unlock()
	s.log.Info("pmu connected", zap.String("addr", s.Addr()), zap.String("transport", tr.Kind().String()))
	return nil
}

// Close 关闭传输连接
func (s *Session) Close() error {
	s.mu.Lock()
	tr := s.tr
	s.tr, s.framer = nil, nil
	s.mu.Unlock()
	s.setState(StateClosed)
	if tr == nil {
		return nil
	}
	return tr.Close()
}

func (s *Session) conn() (transport.Transport, *transport.Framer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr == nil {
		return nil, nil, ErrNotConnected
	}
	return s.tr, s.framer, nil
}

// SendCommand 发送命令帧
func (s *Session) SendCommand(ctx context.Context, name string) error {
	tr, _, err := s.conn()
	if err != nil {
		return err
	}
	cmd, err := c37118.NewCommandFrame(name, s.opts.IDCode)
	if err != nil {
		return err
	}
	if err := tr.Send(ctx, cmd.Bytes()); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	s.log.Debug("command sent", zap.String("cmd", name))
	return nil
}

func (s *Session) configCommand() string {
	if s.opts.ConfigVersion == 1 {
		return "CONFIG1"
	}
	return "CONFIG2"
}

// Start 请求 PMU 开始推送数据帧
func (s *Session) Start(ctx context.Context) error { return s.SendCommand(ctx, "DATAON") }

// Stop 请求 PMU 停止推送数据帧
func (s *Session) Stop(ctx context.Context) error { return s.SendCommand(ctx, "DATAOFF") }

// FetchConfigTimeout FetchConfig 等待配置帧的上限
const FetchConfigTimeout = 15 * time.Second

// FetchConfig 请求配置帧并读取直到收到为止；期间到达的其他帧被丢弃
func (s *Session) FetchConfig(ctx context.Context) (*c37118.ConfigFrame, error) {
	s.setState(StateFetchingConfig)
	ctx, cancel := context.WithTimeout(ctx, FetchConfigTimeout)
	defer cancel()
	if err := s.SendCommand(ctx, s.configCommand()); err != nil {
		return nil, err
	}
	_, framer, err := s.conn()
	if err != nil {
		return nil, err
	}
	for {
		frame, err := framer.ReadFrame(ctx)
		if err != nil {
			if isTerminal(err) {
				return nil, err
			}
			s.countError(err)
			continue
		}
		h, err := c37118.ParseHeader(frame)
		if err != nil {
			s.countError(err)
			continue
		}
		s.frames.Add(1)
		s.m.ObserveFrame(h.Type, len(frame))
		if h.Type != c37118.FrameConfig1 && h.Type != c37118.FrameConfig2 {
			s.dropped.Add(1)
			continue
		}
		cfg, err := s.parseConfig(frame)
		if err != nil {
			s.countError(err)
			continue
		}
		s.install(ctx, cfg)
		return cfg, nil
	}
}

func (s *Session) parseConfig(frame []byte) (*c37118.ConfigFrame, error) {
	cfg, err := c37118.ParseConfigFrame(frame, s.parse)
	if err != nil {
		return nil, err
	}
	s.configFrames.Add(1)
	if cfg.IDCode() != s.opts.IDCode {
		return nil, fmt.Errorf("%w: config idcode %d, device idcode %d", c37118.ErrConfigDataMismatch, cfg.IDCode(), s.opts.IDCode)
	}
	return cfg, nil
}

// install 生效新配置并写入缓存
func (s *Session) install(ctx context.Context, cfg *c37118.ConfigFrame) {
	s.cfg.Store(cfg)
	s.refetchPending = false
	if err := s.store.Save(ctx, cfg); err != nil {
		s.log.Warn("config cache save failed", zap.Error(err))
	}
	s.log.Info("config accepted",
		zap.Stringer("type", cfg.Header.Type),
		zap.Int("stations", len(cfg.Stations)),
		zap.Uint32("time_base", cfg.TimeBase.Base),
		zap.Int16("data_rate", cfg.DataRate),
		zap.Int("data_frame_size", cfg.DataFrameSize()),
	)
}

// loadCached 从缓存恢复配置（暖启动）
func (s *Session) loadCached(ctx context.Context) bool {
	cfg, err := s.store.Load(ctx, s.opts.IDCode)
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			s.log.Warn("config cache load failed", zap.Error(err))
		}
		return false
	}
	s.cfg.Store(cfg)
	s.log.Info("config restored from cache", zap.Int("stations", len(cfg.Stations)))
	return true
}

// Run 连接、取配置、开启数据流并持续解码，直到 ctx 结束或遇到不可恢复错误
func (s *Session) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.refetchPending = false
	s.statLatch = nil
	s.m.SessionUp(true)
	defer func() {
		s.m.SessionUp(false)
		_ = s.Close()
	}()

	if !s.opts.UseCachedConfig || !s.loadCached(ctx) {
		// PMU 可能仍在推送上一次会话的数据流
		if err := s.Stop(ctx); err != nil {
			return s.exit(ctx, err)
		}
		if _, err := s.FetchConfig(ctx); err != nil {
			return s.exit(ctx, err)
		}
	}
	return s.exit(ctx, s.Stream(ctx))
}

// Stream 在已取得配置的连接上开启数据流并持续解码；
// ctx 结束时发送 DATAOFF 并返回 nil
func (s *Session) Stream(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.setState(StateStreaming)

	err := s.loop(ctx)
	if ctx.Err() != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.Stop(stopCtx)
		cancel()
		return nil
	}
	return err
}

func (s *Session) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Session) loop(ctx context.Context) error {
	_, framer, err := s.conn()
	if err != nil {
		return err
	}
	for {
		frame, err := framer.ReadFrame(ctx)
		if err != nil {
			if isTerminal(err) {
				return err
			}
			s.countError(err)
			continue
		}
		if err := s.handleFrame(ctx, frame); err != nil {
			if isTerminal(err) {
				return err
			}
			s.countError(err)
		}
	}
}

// handleFrame 按帧类型分发
func (s *Session) handleFrame(ctx context.Context, frame []byte) error {
	h, err := c37118.ParseHeader(frame)
	if err != nil {
		return err
	}
	s.frames.Add(1)
	s.m.ObserveFrame(h.Type, len(frame))

	switch h.Type {
	case c37118.FrameConfig1, c37118.FrameConfig2:
		cfg, err := s.parseConfig(frame)
		if err != nil {
			return err
		}
		return s.onConfig(ctx, cfg)
	case c37118.FrameData:
		return s.onData(ctx, frame)
	case c37118.FrameHeader:
		s.log.Info("header frame", zap.ByteString("text", frame[c37118.HeaderSize:len(frame)-c37118.ChecksumSize]))
		return nil
	default:
		s.dropped.Add(1)
		return fmt.Errorf("%w: %s on data stream", c37118.ErrUnexpectedFrameType, h.Type)
	}
}

// onConfig 处理数据流中出现的配置帧。
// 与当前配置 CFGCNT 不同视为配置变更：丢弃缓存、请求新配置，
// 新配置到达前所有数据帧都会因缺少配置而被丢弃。
func (s *Session) onConfig(ctx context.Context, cfg *c37118.ConfigFrame) error {
	old := s.cfg.Load()
	if old == nil || !configChanged(old, cfg) {
		s.install(ctx, cfg)
		return nil
	}

	s.configChanges.Add(1)
	s.m.ObserveConfigChange()
	s.log.Warn("config change detected, discarding cached config",
		zap.Uint16s("old_cfgcnt", configCounts(old)),
		zap.Uint16s("new_cfgcnt", configCounts(cfg)),
	)
	s.cfg.Store(nil)
	if err := s.store.Delete(ctx, s.opts.IDCode); err != nil {
		s.log.Warn("config cache delete failed", zap.Error(err))
	}
	return s.requestConfig(ctx)
}

func (s *Session) requestConfig(ctx context.Context) error {
	if err := s.SendCommand(ctx, s.configCommand()); err != nil {
		return err
	}
	s.refetchPending = true
	return nil
}

func (s *Session) onData(ctx context.Context, frame []byte) error {
	cfg := s.cfg.Load()
	if cfg != nil && len(frame) != cfg.DataFrameSize() {
		s.dropped.Add(1)
		return s.onStaleConfig(ctx, cfg, len(frame))
	}
	df, err := c37118.ParseDataFrame(frame, cfg, s.parse)
	if err != nil {
		s.dropped.Add(1)
		return err
	}
	s.dataFrames.Add(1)
	s.latest.Store(df)
	for _, sink := range s.sinks {
		sink.OnData(df)
	}

	// STAT 配置变更位：继续解码，每次通告只请求一次新配置
	if !df.ConfigChangePending() {
		s.statLatch = nil
		return nil
	}
	counts := configCounts(cfg)
	if s.refetchPending || (s.statLatch != nil && slices.Equal(s.statLatch, counts)) {
		return nil
	}
	s.log.Info("config change flagged in STAT, requesting config")
	if err := s.requestConfig(ctx); err != nil {
		return err
	}
	s.statLatch = counts
	return nil
}

// onStaleConfig 数据帧长度与当前配置不符，通常是缓存配置已过期而 CFGCNT 未变。
// 按配置变更处理：丢弃配置与缓存并重新请求。
func (s *Session) onStaleConfig(ctx context.Context, cfg *c37118.ConfigFrame, size int) error {
	s.configChanges.Add(1)
	s.m.ObserveConfigChange()
	s.log.Warn("data frame size does not match config, discarding config",
		zap.Int("frame_size", size),
		zap.Int("expected_size", cfg.DataFrameSize()),
		zap.Uint16s("cfgcnt", configCounts(cfg)),
	)
	s.cfg.Store(nil)
	if err := s.store.Delete(ctx, s.opts.IDCode); err != nil {
		s.log.Warn("config cache delete failed", zap.Error(err))
	}
	if !s.refetchPending {
		if err := s.requestConfig(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: data frame of %d bytes, config expects %d", c37118.ErrLengthMismatch, size, cfg.DataFrameSize())
}

func (s *Session) countError(err error) {
	s.m.ObserveError(err)
	s.log.Warn("frame skipped", zap.String("kind", c37118.Kind(err)), zap.Error(err))
}

// isTerminal 超时、短读与传输层 I/O 错误终止会话，编解码错误跳过当前帧
func isTerminal(err error) bool {
	if errors.Is(err, transport.ErrTimeout) || errors.Is(err, transport.ErrShortRead) {
		return true
	}
	return c37118.Kind(err) == "other"
}

func configChanged(old, cfg *c37118.ConfigFrame) bool {
	if len(old.Stations) != len(cfg.Stations) {
		return true
	}
	for i := range old.Stations {
		if old.Stations[i].ConfigCount != cfg.Stations[i].ConfigCount {
			return true
		}
	}
	return false
}

func configCounts(cfg *c37118.ConfigFrame) []uint16 {
	out := make([]uint16, len(cfg.Stations))
	for i, st := range cfg.Stations {
		out[i] = st.ConfigCount
	}
	return out
}
