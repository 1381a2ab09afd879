// Package bootstrap 网关启动流程
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/pmu-gateway/internal/api"
	"github.com/taoyao-code/pmu-gateway/internal/app"
	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/httpserver"
	"github.com/taoyao-code/pmu-gateway/internal/metrics"
	"github.com/taoyao-code/pmu-gateway/internal/session"
	"github.com/taoyao-code/pmu-gateway/internal/tcpserver"
)

// Run 统一启动流程，阻塞至 ctx 结束后优雅关闭。
// 顺序：指标 → 配置缓存 → 归档 → 中继 → 采集会话 → HTTP。
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting pmu gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Int("devices", len(cfg.Devices)),
	)

	// ========== 阶段1: 指标 ==========
	reg, appm := app.NewMetrics()

	// ========== 阶段2: 配置帧缓存 ==========
	store, rdb, err := app.NewConfigStore(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ========== 阶段3: 样本归档（可选）==========
	var sinks []session.Sink
	pool, archive, err := app.NewArchive(ctx, cfg.Database, log, appm)
	if err != nil {
		log.Error("database initialization failed", zap.Error(err))
		return err
	}
	// 归档写入 goroutine 独立于 ctx 退出顺序：会话先停，再写出剩余样本
	archiveCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()
	if archive != nil {
		archive.Start(archiveCtx)
		sinks = append(sinks, archive)
		defer func() {
			stopArchive()
			archive.Wait()
			pool.Close()
		}()
	}

	// ========== 阶段4: 中继推送服务（可选）==========
	var relay *tcpserver.Server
	if cfg.Relay.Enabled {
		relay = tcpserver.New(cfg.Relay, log, appm)
		if err := relay.Start(); err != nil {
			log.Error("relay server start failed", zap.Error(err))
			return err
		}
		sinks = append(sinks, relay)
	}

	// ========== 阶段5: 采集会话 ==========
	sv := app.NewSupervisor(cfg.Devices, store, sinks, log, appm)
	sv.Start(ctx)
	log.Info("pmu sessions started", zap.Int("count", len(sv.Sessions())))

	// ========== 阶段6: HTTP ==========
	agg := app.NewHealthAggregator(sv, rdb, pool, archive)
	if relay != nil {
		app.AddRelayChecker(agg, relay, cfg.Relay.MaxConnections)
	}
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		metricsHandler = metrics.Handler(reg)
	}
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, agg)
	api.RegisterRoutes(httpSrv.Engine(), sv, cfg.HTTP.Auth, log)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段7: 等待关闭 ==========
	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("http server stopped")

	sv.Wait()
	log.Info("pmu sessions stopped")

	if relay != nil {
		_ = relay.Shutdown(shutdownCtx)
		log.Info("relay server stopped")
	}
	if archive != nil {
		stopArchive()
		archive.Wait()
		log.Info("sample archive flushed")
	}
	log.Info("shutdown complete")
	return nil
}
