package pg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/taoyao-code/pmu-gateway/internal/metrics"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

// SamplesTable 样本归档表
const SamplesTable = "pmu_samples"

var sampleColumns = []string{"ts", "idcode", "station", "stat", "freq", "rocof", "channels", "magnitudes", "angles"}

// DB 归档所需的最小数据库能力，*pgxpool.Pool 满足该接口
type DB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// ArchiveOptions 批量写入参数
type ArchiveOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	// QueueSize 待写入样本队列容量，满时丢弃新样本
	QueueSize int
	Breaker   *Breaker
}

// Archive 将解码后的数据帧按站点展开为样本行，批量 COPY 到 PostgreSQL。
// 实现 session.Sink；OnData 只入队不阻塞。
type Archive struct {
	db      DB
	log     *zap.Logger
	m       *metrics.AppMetrics
	opts    ArchiveOptions
	breaker *Breaker

	queue chan []any
	wg    sync.WaitGroup
}

func NewArchive(db DB, opts ArchiveOptions, log *zap.Logger, m *metrics.AppMetrics) *Archive {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.BatchSize * 8
	}
	if opts.Breaker == nil {
		opts.Breaker = NewBreaker(0, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Archive{
		db:      db,
		log:     log,
		m:       m,
		opts:    opts,
		breaker: opts.Breaker,
		queue:   make(chan []any, opts.QueueSize),
	}
}

// OnData 展开并入队
func (a *Archive) OnData(df *c37118.DataFrame) {
	for _, p := range df.PMUs {
		select {
		case a.queue <- sampleRow(df, p):
		default:
			a.m.ObserveArchive("rejected")
		}
	}
}

func sampleRow(df *c37118.DataFrame, p *c37118.PMU) []any {
	names := make([]string, len(p.Phasors))
	mags := make([]float64, len(p.Phasors))
	angles := make([]float64, len(p.Phasors))
	for i, ph := range p.Phasors {
		names[i] = ph.Name
		mags[i] = ph.Magnitude
		angles[i] = ph.AngleDeg
	}
	return []any{
		df.Timestamp,
		int32(p.Station.IDCode),
		p.Station.Name,
		int32(p.Stat.Raw),
		p.Freq,
		p.ROCOF,
		names,
		mags,
		angles,
	}
}

// Start 启动写入 goroutine；ctx 结束后写出剩余样本再退出
func (a *Archive) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

// Wait 等待写入 goroutine 退出
func (a *Archive) Wait() { a.wg.Wait() }

// Breaker 写入熔断器
func (a *Archive) Breaker() *Breaker { return a.breaker }

func (a *Archive) run(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([][]any, 0, a.opts.BatchSize)
	for {
		select {
		case row := <-a.queue:
			batch = append(batch, row)
			if len(batch) >= a.opts.BatchSize {
				batch = a.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = a.flush(ctx, batch)
		case <-ctx.Done():
			for len(a.queue) > 0 {
				batch = append(batch, <-a.queue)
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.flush(flushCtx, batch)
			cancel()
			return
		}
	}
}

// flush 写出一批样本，返回清空后的切片。熔断或失败时整批丢弃。
func (a *Archive) flush(ctx context.Context, batch [][]any) [][]any {
	if len(batch) == 0 {
		return batch
	}
	err := a.breaker.Do(func() error {
		_, err := a.db.CopyFrom(ctx, pgx.Identifier{SamplesTable}, sampleColumns, pgx.CopyFromRows(batch))
		return err
	})
	switch {
	case err == nil:
		a.m.ObserveArchive("ok")
	case errors.Is(err, ErrBreakerOpen):
		a.m.ObserveArchive("rejected")
	default:
		a.m.ObserveArchive("error")
		a.log.Warn("archive flush failed", zap.Int("rows", len(batch)), zap.Error(err))
	}
	return batch[:0]
}
