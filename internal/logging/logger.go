package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

// InitLogger 初始化 zap 日志器（支持 lumberjack 滚动文件，未配置文件名时仅输出到控制台）
func InitLogger(cfg cfgpkg.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	ws := zapcore.AddSync(os.Stdout)
	if cfg.File.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		// 控制台 + 文件双写
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(lj))
	}
	core := Sampled(zapcore.NewCore(encoder, ws, level), cfg.Sampling)

	return zap.New(core, zap.AddCaller()), nil
}

// Sampled 按消息内容每秒采样；会话在 PMU 数据速率下逐帧记录告警
func Sampled(core zapcore.Core, cfg cfgpkg.SamplingConfig) zapcore.Core {
	if cfg.Initial <= 0 {
		return core
	}
	return zapcore.NewSamplerWithOptions(core, time.Second, cfg.Initial, cfg.Thereafter)
}

// CodecTrace 将解码器的逐字段回调输出为 Debug 日志；Debug 未开启时返回 nil 以跳过回调
func CodecTrace(l *zap.Logger) c37118.TraceFunc {
	if l == nil || !l.Core().Enabled(zapcore.DebugLevel) {
		return nil
	}
	return func(field string, offset int, value any) {
		l.Debug("decode field",
			zap.String("field", field),
			zap.Int("offset", offset),
			zap.Any("value", value),
		)
	}
}
