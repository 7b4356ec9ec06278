package telemetry

import (
	"context"
	"iter"
	"strings"

	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/database/types"
	"github.com/MeowSalty/transtat/errs"
)

// Events 遥测记录的惰性序列
//
// 每次 range 都会重新查询；序列在开始时记录最大 ID 作为上界，因此总是有限的。
type Events = iter.Seq2[*types.TranslationEvent, error]

func (s *service) queryOptions(opts []QueryOption) queryOptions {
	o := queryOptions{batchSize: s.opts.BatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// QueryByModel 按 ID 升序返回指定模型的记录
//
// 参数非法时立即返回 RequestError；存储错误在迭代时作为序列的最后一个元素给出。
func (s *service) QueryByModel(ctx context.Context, modelName string, tr *TimeRange, opts ...QueryOption) (Events, error) {
	if strings.TrimSpace(modelName) == "" {
		return nil, errs.Request("model_name", "不能为空")
	}
	if tr != nil {
		if err := tr.Validate(); err != nil {
			return nil, err
		}
	}
	o := s.queryOptions(opts)

	s.logger.DebugContext(ctx, "按模型查询遥测记录", "model", modelName, "after_id", o.afterID)

	return func(yield func(*types.TranslationEvent, error) bool) {
		maxID, err := storageCall(s, ctx, "查询最大 ID", s.store.MaxID)
		if err != nil {
			yield(nil, err)
			return
		}
		if maxID <= o.afterID {
			return
		}

		scan := database.ModelScan{
			ModelName: modelName,
			AfterID:   o.afterID,
			MaxID:     maxID,
			Limit:     o.batchSize,
		}
		if tr != nil {
			scan.Start, scan.End = &tr.Start, &tr.End
		}

		for {
			batch, err := storageCall(s, ctx, "按模型查询", func(ctx context.Context) ([]*types.TranslationEvent, error) {
				return s.store.ListByModel(ctx, scan)
			})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, event := range batch {
				if !yield(event, nil) {
					return
				}
			}
			if len(batch) < scan.Limit {
				return
			}
			scan.AfterID = batch[len(batch)-1].ID
		}
	}, nil
}

// QueryByTimeRange 返回 [Start, End) 内的记录，按时间戳升序，时间戳相同时按 ID 升序
func (s *service) QueryByTimeRange(ctx context.Context, tr TimeRange, opts ...QueryOption) (Events, error) {
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	o := s.queryOptions(opts)

	s.logger.DebugContext(ctx, "按时间范围查询遥测记录", "start", tr.Start, "end", tr.End)

	return func(yield func(*types.TranslationEvent, error) bool) {
		if !tr.Start.Before(tr.End) {
			return
		}
		maxID, err := storageCall(s, ctx, "查询最大 ID", s.store.MaxID)
		if err != nil {
			yield(nil, err)
			return
		}
		if maxID == 0 {
			return
		}

		scan := database.RangeScan{
			Start: tr.Start,
			End:   tr.End,
			After: o.after,
			MaxID: maxID,
			Limit: o.batchSize,
		}

		for {
			batch, err := storageCall(s, ctx, "按时间范围查询", func(ctx context.Context) ([]*types.TranslationEvent, error) {
				return s.store.ListByTimeRange(ctx, scan)
			})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, event := range batch {
				if !yield(event, nil) {
					return
				}
			}
			if len(batch) < scan.Limit {
				return
			}
			last := batch[len(batch)-1]
			scan.After = &Cursor{Timestamp: last.Timestamp, ID: last.ID}
		}
	}, nil
}
