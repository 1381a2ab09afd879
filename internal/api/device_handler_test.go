package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pmu-gateway/internal/config"
	"github.com/taoyao-code/pmu-gateway/internal/session"
	"github.com/taoyao-code/pmu-gateway/internal/testutil"
	"github.com/taoyao-code/pmu-gateway/internal/transport"
)

func setupRouter(t *testing.T) (*gin.Engine, *session.Supervisor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pmu := testutil.NewFakePMU(t, testutil.SampleConfig(testutil.SampleIDCode), 5*time.Millisecond)
	live := session.New(session.Options{
		Name:      "station-a",
		IDCode:    testutil.SampleIDCode,
		Addr:      pmu.Addr(),
		Transport: transport.Options{DialTimeout: time.Second, ReadTimeout: time.Second},
	}, session.Deps{})
	// 未连接的设备：无配置、无数据
	idle := session.New(session.Options{IDCode: 2, Addr: "127.0.0.1:1"}, session.Deps{})

	sv := session.NewSupervisor([]*session.Session{live}, 10, 1, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sv.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sv.Wait()
	})
	require.Eventually(t, func() bool { return live.Latest() != nil }, 3*time.Second, 10*time.Millisecond)

	src := session.NewSupervisor([]*session.Session{live, idle}, 1, 1, nil, nil)
	r := gin.New()
	RegisterRoutes(r, src, cfgpkg.AuthConfig{}, zap.NewNop())
	return r, src
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestDeviceRoutes(t *testing.T) {
	r, _ := setupRouter(t)

	t.Run("设备列表", func(t *testing.T) {
		rr := get(r, "/api/v1/devices")
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Devices []DeviceView `json:"devices"`
			Total   int          `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Total)
		assert.Equal(t, "station-a", body.Devices[0].Name)
		assert.True(t, body.Devices[0].HasConfig)
		assert.NotNil(t, body.Devices[0].LastData)
		assert.False(t, body.Devices[1].HasConfig)
		assert.Equal(t, "idle", body.Devices[1].State)
	})

	t.Run("配置摘要", func(t *testing.T) {
		rr := get(r, "/api/v1/devices/7734/config")
		require.Equal(t, http.StatusOK, rr.Code)
		var v ConfigView
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
		assert.Equal(t, "CONFIG2", v.Type)
		assert.Equal(t, int16(30), v.DataRate)
		require.Len(t, v.Stations, 1)
		st := v.Stations[0]
		require.Len(t, st.Phasors, 2)
		assert.Equal(t, "VB", st.Phasors[1].Name)
		assert.Equal(t, "VOLTAGE", st.Phasors[0].Kind)
		assert.Len(t, st.Digitals, 16)
		assert.Equal(t, 60.0, st.NominalFreq)
		assert.Equal(t, v.DataFrameSize, 34)
	})

	t.Run("最近数据", func(t *testing.T) {
		rr := get(r, "/api/v1/devices/7734/latest")
		require.Equal(t, http.StatusOK, rr.Code)
		var v SampleView
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
		require.Len(t, v.PMUs, 1)
		assert.InDelta(t, 45, v.PMUs[0].Phasors[1].AngleDeg, 1e-9)
		assert.Equal(t, "GOOD", v.PMUs[0].DataError)
		assert.True(t, v.PMUs[0].Digitals["BREAKER 0"])
		assert.True(t, v.PMUs[0].Digitals["BREAKER 15"])
		assert.False(t, v.PMUs[0].Digitals["BREAKER 1"])
	})

	t.Run("无配置与无数据", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/devices/2/config").Code)
		assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/devices/2/latest").Code)
		assert.Equal(t, http.StatusOK, get(r, "/api/v1/devices/2").Code)
	})

	t.Run("非法与未知IDCODE", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/devices/abc").Code)
		assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/devices/70000/config").Code)
		assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/devices/9/latest").Code)
	})
}
