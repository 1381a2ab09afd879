package session

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pmu-gateway/internal/metrics"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	pmutest "github.com/taoyao-code/pmu-gateway/internal/testutil"
	"github.com/taoyao-code/pmu-gateway/internal/transport"
)

func TestSupervisor_Lookup(t *testing.T) {
	a := New(Options{IDCode: 1}, Deps{})
	b := New(Options{IDCode: 2}, Deps{})
	sv := NewSupervisor([]*Session{a, b}, 0, 0, nil, nil)

	got, ok := sv.Session(2)
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = sv.Session(3)
	assert.False(t, ok)
	assert.Len(t, sv.Sessions(), 2)
	assert.False(t, sv.Ready())

	a.cfg.Store(pmutest.SampleConfig(1))
	b.cfg.Store(pmutest.SampleConfig(2))
	assert.True(t, sv.Ready())
}

func TestSupervisor_Restart(t *testing.T) {
	cfg := pmutest.SampleConfig(pmutest.SampleIDCode)
	m := metrics.NewAppMetrics(metrics.NewRegistry())

	// 每次拨号返回一个只应答配置帧的脚本传输，读尽即短读退出
	var dials atomic.Int32
	dial := func(context.Context, string, string, transport.Options) (transport.Transport, error) {
		dials.Add(1)
		tr := &scriptTransport{}
		tr.onSend = func(cmd c37118.Command, in *bytes.Buffer) {
			if cmd == c37118.CmdConfig2 {
				in.Write(pmutest.MustEncodeConfig(cfg))
			}
		}
		return tr, nil
	}
	s := New(Options{IDCode: pmutest.SampleIDCode, ReconnectDelay: time.Millisecond}, Deps{Metrics: m, Dial: dial})
	sv := NewSupervisor([]*Session{s}, 1000, 10, nil, m)

	ctx, cancel := context.WithCancel(context.Background())
	sv.Start(ctx)
	require.Eventually(t, func() bool { return dials.Load() >= 3 }, 3*time.Second, 5*time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() { sv.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.SessionRestarts), 2.0)
	assert.True(t, sv.Ready())
}

func TestSupervisor_FakePMUReconnect(t *testing.T) {
	cfg := pmutest.SampleConfig(pmutest.SampleIDCode)
	pmu := pmutest.NewFakePMU(t, cfg, 5*time.Millisecond)

	sink := &recordSink{}
	s := New(Options{
		IDCode:         pmutest.SampleIDCode,
		Addr:           pmu.Addr(),
		Transport:      transport.Options{DialTimeout: time.Second, ReadTimeout: time.Second},
		ReconnectDelay: 10 * time.Millisecond,
	}, Deps{Sinks: []Sink{sink}})
	sv := NewSupervisor([]*Session{s}, 100, 5, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		sv.Wait()
	}()
	sv.Start(ctx)

	require.Eventually(t, func() bool { return len(sink.all()) > 0 }, 3*time.Second, 10*time.Millisecond)
	first := s.ID()
	pmu.DropConnections()
	n := len(sink.all())
	// 断线后重新建连并恢复数据流
	require.Eventually(t, func() bool { return len(sink.all()) > n+3 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, first, s.ID())
}
