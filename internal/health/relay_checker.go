package health

import (
	"context"
	"fmt"
	"time"
)

// SubscriberCounter 中继服务订阅者计数
type SubscriberCounter interface {
	Subscribers() int
}

// RelayChecker 中继订阅连接占用检查
type RelayChecker struct {
	relay SubscriberCounter
	max   int
}

func NewRelayChecker(relay SubscriberCounter, maxConns int) *RelayChecker {
	return &RelayChecker{relay: relay, max: maxConns}
}

func (c *RelayChecker) Name() string { return "relay" }

func (c *RelayChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	n := c.relay.Subscribers()
	details := map[string]any{"subscribers": n}
	status, message := StatusHealthy, "ok"
	if c.max > 0 {
		utilization := float64(n) / float64(c.max)
		details["max_connections"] = c.max
		details["utilization"] = fmt.Sprintf("%.1f%%", utilization*100)
		if utilization >= 1 {
			status, message = StatusDegraded, "subscriber limit reached"
		}
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
