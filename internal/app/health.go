package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/pmu-gateway/internal/health"
	"github.com/taoyao-code/pmu-gateway/internal/session"
	pgstorage "github.com/taoyao-code/pmu-gateway/internal/storage/pg"
	redisstorage "github.com/taoyao-code/pmu-gateway/internal/storage/redis"
	"github.com/taoyao-code/pmu-gateway/internal/tcpserver"
)

// NewHealthAggregator 会话检查必选，其余组件启用时才加入
func NewHealthAggregator(sv *session.Supervisor, rdb *redisstorage.Client, pool *pgxpool.Pool, archive *pgstorage.Archive) *health.Aggregator {
	agg := health.NewAggregator(health.NewSessionChecker(sv))
	if rdb != nil {
		agg.AddChecker(health.NewRedisChecker(rdb.Client))
	}
	if pool != nil {
		var breaker health.ArchiveBreaker
		if archive != nil {
			breaker = archive.Breaker()
		}
		agg.AddChecker(health.NewDatabaseChecker(pool, breaker))
	}
	return agg
}

// AddRelayChecker 中继服务启动后加入检查
func AddRelayChecker(agg *health.Aggregator, relay *tcpserver.Server, maxConns int) {
	agg.AddChecker(health.NewRelayChecker(relay, maxConns))
}
