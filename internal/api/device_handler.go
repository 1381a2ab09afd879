// Package api 设备会话只读查询接口
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/pmu-gateway/internal/session"
)

// DeviceSource 会话查询来源，*session.Supervisor 满足该接口
type DeviceSource interface {
	Sessions() []*session.Session
	Session(idcode uint16) (*session.Session, bool)
}

// DeviceHandler 设备查询处理器
type DeviceHandler struct {
	src DeviceSource
}

func NewDeviceHandler(src DeviceSource) *DeviceHandler {
	return &DeviceHandler{src: src}
}

// ListDevices GET /api/v1/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	sessions := h.src.Sessions()
	out := make([]DeviceView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newDeviceView(s))
	}
	c.JSON(http.StatusOK, gin.H{"devices": out, "total": len(out)})
}

// GetDevice GET /api/v1/devices/:idcode
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newDeviceView(s))
}

// GetConfig GET /api/v1/devices/:idcode/config
func (h *DeviceHandler) GetConfig(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	cfg := s.Config()
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "config_not_available"})
		return
	}
	c.JSON(http.StatusOK, NewConfigView(cfg))
}

// GetLatest GET /api/v1/devices/:idcode/latest
func (h *DeviceHandler) GetLatest(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	df := s.Latest()
	if df == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_data"})
		return
	}
	c.JSON(http.StatusOK, NewSampleView(df))
}

func (h *DeviceHandler) lookup(c *gin.Context) (*session.Session, bool) {
	id, err := strconv.ParseUint(c.Param("idcode"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_idcode"})
		return nil, false
	}
	s, ok := h.src.Session(uint16(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device_not_found"})
		return nil, false
	}
	return s, true
}
