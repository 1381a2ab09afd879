package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	pgstorage "github.com/taoyao-code/pmu-gateway/internal/storage/pg"
)

// ArchiveBreaker 归档写入熔断器，*pg.Breaker 满足该接口
type ArchiveBreaker interface {
	State() pgstorage.BreakerState
	Trips() int64
}

// DatabaseChecker 样本归档检查：连接池探活与写入熔断状态。
// 归档不可用时采集与中继照常运行，因此最差为 Degraded。
type DatabaseChecker struct {
	pool    *pgxpool.Pool
	breaker ArchiveBreaker
}

// NewDatabaseChecker breaker 可为 nil
func NewDatabaseChecker(pool *pgxpool.Pool, breaker ArchiveBreaker) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, breaker: breaker}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]any{}
	if c.breaker != nil {
		details["breaker"] = c.breaker.State().String()
		details["breaker_trips"] = c.breaker.Trips()
	}

	if err := c.pool.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Details: details,
			Latency: time.Since(start),
		}
	}

	st := c.pool.Stat()
	details["acquired_conns"] = st.AcquiredConns()
	details["max_conns"] = st.MaxConns()

	status, message := StatusHealthy, "ok"
	if c.breaker != nil && c.breaker.State() != pgstorage.BreakerClosed {
		status, message = StatusDegraded, "archive writes suspended"
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
