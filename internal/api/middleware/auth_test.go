package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
)

func TestAPIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	newRouter := func(cfg cfgpkg.AuthConfig) *gin.Engine {
		r := gin.New()
		r.Use(APIKeyAuth(cfg, zap.NewNop()))
		r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		return r
	}
	do := func(r *gin.Engine, h map[string]string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		for k, v := range h {
			req.Header.Set(k, v)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	on := newRouter(cfgpkg.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_123456"}})
	assert.Equal(t, http.StatusUnauthorized, do(on, nil))
	assert.Equal(t, http.StatusForbidden, do(on, map[string]string{"X-API-Key": "nope"}))
	assert.Equal(t, http.StatusOK, do(on, map[string]string{"X-API-Key": "sk_test_123456"}))
	assert.Equal(t, http.StatusOK, do(on, map[string]string{"Authorization": "Bearer sk_test_123456"}))

	off := newRouter(cfgpkg.AuthConfig{})
	assert.Equal(t, http.StatusOK, do(off, nil))

	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk_t****3456", maskAPIKey("sk_test_123456"))
}
