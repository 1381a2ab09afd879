package pg

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pmu-gateway/internal/metrics"
	"github.com/taoyao-code/pmu-gateway/internal/migrate"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	pmutest "github.com/taoyao-code/pmu-gateway/internal/testutil"
)

// fakeDB 记录 COPY 的行
type fakeDB struct {
	mu     sync.Mutex
	rows   [][]any
	copies int
	err    error
}

func (f *fakeDB) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies++
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for src.Next() {
		v, err := src.Values()
		if err != nil {
			return n, err
		}
		f.rows = append(f.rows, v)
		n++
	}
	return n, nil
}

func (f *fakeDB) snapshot() ([][]any, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.rows...), f.copies
}

func sampleDataFrame(t *testing.T) *c37118.DataFrame {
	t.Helper()
	cfg := pmutest.SampleConfig(pmutest.SampleIDCode)
	df, err := c37118.ParseDataFrame(pmutest.MustBuildDataFrame(cfg, cfg.Header.SOC, 500000, pmutest.SampleBlock()), cfg, c37118.ParseOptions{})
	require.NoError(t, err)
	return df
}

func TestMigrationsEmbedded(t *testing.T) {
	ups, err := migrate.Discover(Migrations)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "migrations/0001_pmu_samples_up.sql", ups[0].Path)
}

func TestArchive_BatchBySize(t *testing.T) {
	db := &fakeDB{}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	a := NewArchive(db, ArchiveOptions{BatchSize: 3, FlushInterval: time.Hour}, nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)

	df := sampleDataFrame(t)
	for i := 0; i < 3; i++ {
		a.OnData(df)
	}
	require.Eventually(t, func() bool { rows, _ := db.snapshot(); return len(rows) == 3 }, 2*time.Second, 5*time.Millisecond)

	rows, copies := db.snapshot()
	assert.Equal(t, 1, copies)
	row := rows[0]
	require.Len(t, row, len(sampleColumns))
	assert.Equal(t, df.Timestamp, row[0])
	assert.Equal(t, int32(pmutest.SampleIDCode), row[1])
	assert.Equal(t, []string{"VA", "VB"}, row[6])
	assert.InDelta(t, 45, row[8].([]float64)[1], 1e-9)

	cancel()
	a.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("ok")))
}

func TestArchive_FlushOnIntervalAndShutdown(t *testing.T) {
	db := &fakeDB{}
	a := NewArchive(db, ArchiveOptions{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)

	a.OnData(sampleDataFrame(t))
	require.Eventually(t, func() bool { rows, _ := db.snapshot(); return len(rows) == 1 }, 2*time.Second, 5*time.Millisecond)

	// 退出时写出队列中剩余样本
	cancel()
	a.OnData(sampleDataFrame(t))
	a.Wait()
	rows, _ := db.snapshot()
	assert.GreaterOrEqual(t, len(rows), 1)
}

func TestArchive_BreakerAndQueueFull(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	br := NewBreaker(2, time.Hour)
	a := NewArchive(db, ArchiveOptions{BatchSize: 1, QueueSize: 1, Breaker: br}, nil, m)

	df := sampleDataFrame(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		a.flush(ctx, [][]any{sampleRow(df, df.PMUs[0])})
	}
	_, copies := db.snapshot()
	assert.Equal(t, 2, copies)
	assert.Equal(t, BreakerOpen, br.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("rejected")))

	// 未启动写入 goroutine，队列容量 1，第二个样本被丢弃
	a.OnData(df)
	a.OnData(df)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("rejected")))
}

// 集成测试需要 PostgreSQL，未设置 TEST_DATABASE_URL 时跳过
func TestArchive_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("测试数据库不可用，跳过测试")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("测试数据库不可用: %v", err)
	}
	_, err = migrate.Runner{FS: Migrations}.Up(ctx, pool)
	require.NoError(t, err)

	const idcode = 65001
	_, _ = pool.Exec(ctx, "DELETE FROM pmu_samples WHERE idcode = $1", idcode)
	cfg := pmutest.SampleConfig(idcode)
	df, err := c37118.ParseDataFrame(pmutest.MustBuildDataFrame(cfg, cfg.Header.SOC, 0, pmutest.SampleBlock()), cfg, c37118.ParseOptions{})
	require.NoError(t, err)

	a := NewArchive(pool, ArchiveOptions{BatchSize: 1}, nil, nil)
	a.flush(ctx, [][]any{sampleRow(df, df.PMUs[0])})

	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM pmu_samples WHERE idcode = $1", idcode).Scan(&n))
	assert.Equal(t, 1, n)
	_, _ = pool.Exec(ctx, "DELETE FROM pmu_samples WHERE idcode = $1", idcode)
}
