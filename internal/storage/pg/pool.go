// Package pg PostgreSQL 连接池与测量样本归档
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
)

// NewPool 按数据库配置创建 pgx 连接池并探活
func NewPool(ctx context.Context, c cfgpkg.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		// COPY 批量写入频繁，只输出告警与错误
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   &zapTraceLogger{log: logger.Named("pgx")},
			LogLevel: tracelog.LogLevelWarn,
		}
	}

	cfg.MaxConns = 8
	if c.MaxOpenConns > 0 {
		cfg.MaxConns = int32(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		cfg.MinConns = int32(c.MaxIdleConns)
	}
	cfg.MaxConnLifetime = time.Hour
	if c.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = c.ConnMaxLifetime
	}
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// zapTraceLogger 将 pgx tracelog 输出转到 zap
type zapTraceLogger struct {
	log *zap.Logger
}

func (l *zapTraceLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		l.log.Debug(msg, fields...)
	case tracelog.LogLevelWarn:
		l.log.Warn(msg, fields...)
	case tracelog.LogLevelError:
		l.log.Error(msg, fields...)
	default:
		l.log.Info(msg, fields...)
	}
}
