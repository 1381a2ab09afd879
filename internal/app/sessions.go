package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/metrics"
	"github.com/taoyao-code/pmu-gateway/internal/session"
	"github.com/taoyao-code/pmu-gateway/internal/transport"
)

// 全局重连速率：每秒 2 次，突发容量为设备数
const restartRate = 2.0

// SessionOptions 设备配置转换为会话参数
func SessionOptions(d cfgpkg.DeviceConfig) session.Options {
	return session.Options{
		Name:    d.Name,
		IDCode:  d.IDCode,
		Network: d.Network,
		Addr:    d.Addr,
		Transport: transport.Options{
			DialTimeout:  d.DialTimeout,
			ReadTimeout:  d.ReadTimeout,
			WriteTimeout: d.WriteTimeout,
		},
		ConfigVersion:   d.ConfigVersion,
		VerifyCRC:       d.VerifyCRC,
		ApplyScaling:    d.ApplyScaling,
		Trace:           d.Trace,
		UseCachedConfig: d.UseCachedConfig,
		ReconnectDelay:  d.ReconnectDelay,
	}
}

// NewSupervisor 为每台设备创建会话并交由 Supervisor 管理
func NewSupervisor(devs []cfgpkg.DeviceConfig, store session.ConfigStore, sinks []session.Sink, log *zap.Logger, m *metrics.AppMetrics) *session.Supervisor {
	sessions := make([]*session.Session, 0, len(devs))
	for _, d := range devs {
		sessions = append(sessions, session.New(SessionOptions(d), session.Deps{
			Logger:  log,
			Store:   store,
			Sinks:   sinks,
			Metrics: m,
		}))
	}
	return session.NewSupervisor(sessions, restartRate, len(devs), log.Named("supervisor"), m)
}
