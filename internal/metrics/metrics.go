package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 网关业务指标；nil 接收者上的方法均为空操作
type AppMetrics struct {
	FramesTotal      *prometheus.CounterVec // labels: type
	FrameErrorsTotal *prometheus.CounterVec // labels: kind
	BytesReceived    prometheus.Counter
	ConfigChanges    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionRestarts  prometheus.Counter
	RelaySubscribers prometheus.Gauge
	RelayFramesSent  prometheus.Counter
	ArchiveWrites    *prometheus.CounterVec // labels: result=ok|error|rejected
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmu_frames_total",
			Help: "Decoded C37.118 frames by frame type.",
		}, []string{"type"}),
		FrameErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmu_frame_errors_total",
			Help: "Frame read or decode failures by error kind.",
		}, []string{"kind"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pmu_bytes_received_total",
			Help: "Total frame bytes received from PMUs.",
		}),
		ConfigChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pmu_config_changes_total",
			Help: "Configuration changes detected on PMU streams.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pmu_sessions_active",
			Help: "Current number of connected PMU sessions.",
		}),
		SessionRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pmu_session_restarts_total",
			Help: "PMU session restarts after a terminal error.",
		}),
		RelaySubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_subscribers",
			Help: "Current number of relay subscribers.",
		}),
		RelayFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_sent_total",
			Help: "Transfer frames queued to relay subscribers.",
		}),
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Sample archive batch writes by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.FramesTotal, m.FrameErrorsTotal, m.BytesReceived, m.ConfigChanges,
		m.SessionsActive, m.SessionRestarts, m.RelaySubscribers, m.RelayFramesSent, m.ArchiveWrites,
	)
	return m
}

// ObserveFrame 记录一个成功读取的帧
func (m *AppMetrics) ObserveFrame(t c37118.FrameType, size int) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(t.String()).Inc()
	m.BytesReceived.Add(float64(size))
}

// ObserveError 按错误类别计数
func (m *AppMetrics) ObserveError(err error) {
	if m == nil || err == nil {
		return
	}
	m.FrameErrorsTotal.WithLabelValues(c37118.Kind(err)).Inc()
}

// ObserveConfigChange 配置变更计数
func (m *AppMetrics) ObserveConfigChange() {
	if m == nil {
		return
	}
	m.ConfigChanges.Inc()
}

// SessionUp 会话建立/断开
func (m *AppMetrics) SessionUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.SessionsActive.Inc()
	} else {
		m.SessionsActive.Dec()
	}
}

// ObserveRestart 会话重启计数
func (m *AppMetrics) ObserveRestart() {
	if m == nil {
		return
	}
	m.SessionRestarts.Inc()
}

// SetRelaySubscribers 当前订阅者数量
func (m *AppMetrics) SetRelaySubscribers(n int) {
	if m == nil {
		return
	}
	m.RelaySubscribers.Set(float64(n))
}

// ObserveRelaySent 中继帧发送计数
func (m *AppMetrics) ObserveRelaySent(n int) {
	if m == nil {
		return
	}
	m.RelayFramesSent.Add(float64(n))
}

// ObserveArchive 归档写入结果计数
func (m *AppMetrics) ObserveArchive(result string) {
	if m == nil {
		return
	}
	m.ArchiveWrites.WithLabelValues(result).Inc()
}
