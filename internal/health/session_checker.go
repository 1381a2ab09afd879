package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/pmu-gateway/internal/session"
)

// SessionSource 会话来源，*session.Supervisor 满足该接口
type SessionSource interface {
	Sessions() []*session.Session
}

// SessionChecker 采集会话检查：全部设备已取得配置为 Healthy，
// 部分取得为 Degraded，一台都没有为 Unhealthy
type SessionChecker struct {
	src SessionSource
}

func NewSessionChecker(src SessionSource) *SessionChecker {
	return &SessionChecker{src: src}
}

func (c *SessionChecker) Name() string { return "sessions" }

func (c *SessionChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	sessions := c.src.Sessions()
	configured, streaming := 0, 0
	states := make(map[string]string, len(sessions))
	for _, s := range sessions {
		if s.Config() != nil {
			configured++
		}
		if s.State() == session.StateStreaming {
			streaming++
		}
		states[s.Name()] = s.State().String()
	}

	status, message := StatusHealthy, "ok"
	switch {
	case len(sessions) == 0:
		message = "no devices configured"
	case configured == 0:
		status, message = StatusUnhealthy, "no device has a configuration"
	case configured < len(sessions):
		status = StatusDegraded
		message = fmt.Sprintf("%d/%d devices configured", configured, len(sessions))
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"devices":    len(sessions),
			"configured": configured,
			"streaming":  streaming,
			"states":     states,
		},
		Latency: time.Since(start),
	}
}
