package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/pmu-gateway/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
)

// RegisterRoutes 注册 /api/v1 设备查询路由
func RegisterRoutes(r *gin.Engine, src DeviceSource, authCfg cfgpkg.AuthConfig, logger *zap.Logger) {
	if r == nil || src == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewDeviceHandler(src)

	v1 := r.Group("/api/v1")
	if authCfg.Enabled {
		v1.Use(middleware.APIKeyAuth(authCfg, logger))
	} else {
		logger.Warn("api authentication disabled")
	}
	v1.GET("/devices", h.ListDevices)
	v1.GET("/devices/:idcode", h.GetDevice)
	v1.GET("/devices/:idcode/config", h.GetConfig)
	v1.GET("/devices/:idcode/latest", h.GetLatest)
}
