package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

func TestAppMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.ObserveFrame(c37118.FrameData, 34)
	m.ObserveFrame(c37118.FrameData, 34)
	m.ObserveFrame(c37118.FrameConfig2, 374)
	m.ObserveError(fmt.Errorf("wrap: %w", c37118.ErrTruncatedFrame))
	m.ObserveError(nil)
	m.SessionUp(true)
	m.SessionUp(true)
	m.SessionUp(false)
	m.ObserveArchive("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("DATA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("CONFIG2")))
	assert.Equal(t, 442.0, testutil.ToFloat64(m.BytesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameErrorsTotal.WithLabelValues("truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("ok")))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "pmu_frames_total"))
}

func TestAppMetrics_Nil(t *testing.T) {
	var m *AppMetrics
	assert.NotPanics(t, func() {
		m.ObserveFrame(c37118.FrameData, 1)
		m.ObserveError(c37118.ErrMalformedFrame)
		m.ObserveConfigChange()
		m.SessionUp(true)
		m.ObserveRestart()
		m.SetRelaySubscribers(3)
		m.ObserveRelaySent(1)
		m.ObserveArchive("error")
	})
}
