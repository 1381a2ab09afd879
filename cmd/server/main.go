package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taoyao-code/pmu-gateway/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认 PMU_CONFIG 或 configs/example.yaml）")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 信号处理，优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx, cfg, logger); err != nil {
		logger.Error("gateway exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
