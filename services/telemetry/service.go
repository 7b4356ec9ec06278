package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/database/types"
	"github.com/MeowSalty/transtat/errs"
)

const (
	// defaultBatchSize 惰性序列每次从存储层读取的记录数
	defaultBatchSize = 200

	// defaultStorageTimeout 单次存储调用的默认超时
	defaultStorageTimeout = 5 * time.Second
)

// Storage 服务依赖的存储层能力，由 *database.Store 实现
type Storage interface {
	Insert(ctx context.Context, event *types.TranslationEvent) (uint64, error)
	MaxID(ctx context.Context) (uint64, error)
	ListByModel(ctx context.Context, scan database.ModelScan) ([]*types.TranslationEvent, error)
	ListByTimeRange(ctx context.Context, scan database.RangeScan) ([]*types.TranslationEvent, error)
	GroupStats(ctx context.Context, fn string, q database.AggregateQuery) ([]database.GroupStat, error)
	StreamMetric(ctx context.Context, q database.AggregateQuery, fn func(keys []string, value float64) error) error
	Mean(ctx context.Context, metric string, f database.AggregateFilter) (float64, int64, error)
	CountMatching(ctx context.Context, f database.AggregateFilter) (int64, error)
}

var _ Storage = (*database.Store)(nil)

// Service 定义翻译遥测的写入与查询接口
type Service interface {
	// RecordTranslation 记录一次已完成的翻译，返回分配的 ID
	RecordTranslation(ctx context.Context, in RecordInput) (uint64, error)

	// QueryByModel 按 ID 升序返回指定模型的记录，可选时间范围
	QueryByModel(ctx context.Context, modelName string, tr *TimeRange, opts ...QueryOption) (Events, error)

	// QueryByTimeRange 返回 [start, end) 内的记录，按时间戳升序、ID 次序
	QueryByTimeRange(ctx context.Context, tr TimeRange, opts ...QueryOption) (Events, error)

	// Aggregate 按分组计算指标的统计值
	Aggregate(ctx context.Context, req AggregateRequest) (map[string]float64, error)

	// Overview 获取时间窗口内的全局概览
	Overview(ctx context.Context, duration time.Duration) (*Overview, error)

	// Realtime 获取实时写入数据
	Realtime(ctx context.Context) (*Realtime, error)

	// Collector 返回实时数据采集器
	Collector() *Collector
}

// Options 服务配置
type Options struct {
	TextLimit      int           // 文本载荷字节上限，0 表示不限
	TextPolicy     string        // 超限策略：reject 或 truncate
	StorageTimeout time.Duration // 单次存储调用超时
	BatchSize      int           // 惰性序列批大小
}

// service 是 Service 接口的具体实现
type service struct {
	store     Storage
	opts      Options
	collector *Collector
	logger    *slog.Logger
	now       func() time.Time
}

// New 创建一个新的遥测服务实例
func New(store Storage, opts Options, collector *Collector, logger *slog.Logger) Service {
	if opts.TextPolicy == "" {
		opts.TextPolicy = PolicyReject
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = defaultStorageTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if collector == nil {
		collector = NewCollector(logger)
	}
	return &service{
		store:     store,
		opts:      opts,
		collector: collector,
		logger:    logger.WithGroup("telemetry"),
		now:       time.Now,
	}
}

// Collector 返回实时数据采集器
func (s *service) Collector() *Collector {
	return s.collector
}

// storageCall 在独立超时内执行一次存储调用
//
// 调用方上下文未结束而存储超时，说明存储层响应过慢，归类为可重试的 StorageUnavailable。
func storageCall[T any](s *service, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, errs.Unavailable(op+" 超时", true, err)
	}
	return v, err
}
