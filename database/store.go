package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/MeowSalty/transtat/database/types"
	"github.com/MeowSalty/transtat/errs"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// ModelScan 按模型名称的键集分页参数
type ModelScan struct {
	ModelName string
	Start     *time.Time // 可选，包含
	End       *time.Time // 可选，不包含
	AfterID   uint64     // 只返回 ID 大于该值的记录
	MaxID     uint64     // 快照上界，0 表示不限
	Limit     int
}

// RangeScan 按时间范围的键集分页参数，排序为 (timestamp, id)
type RangeScan struct {
	Start time.Time // 包含
	End   time.Time // 不包含
	After *Cursor   // 从该位置之后继续
	MaxID uint64    // 快照上界，0 表示不限
	Limit int
}

// Cursor 时间范围扫描的位置
type Cursor struct {
	Timestamp time.Time
	ID        uint64
}

// primary 返回读写一致的查询会话
//
// 注册了只读副本时强制走主库，保证同一写入方能读到自己的写入。
func (s *Store) primary(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if s.hasReplicas {
		db = db.Clauses(dbresolver.Write)
	}
	return db
}

// analytics 返回分析查询会话，注册了只读副本时路由到副本
func (s *Store) analytics(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if s.hasReplicas {
		db = db.Clauses(dbresolver.Read)
	}
	return db
}

// Insert 追加一条遥测记录并返回分配的 ID
//
// 校验失败时返回 ValidationError，不会写入任何数据。
func (s *Store) Insert(ctx context.Context, event *types.TranslationEvent) (uint64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC().Truncate(types.TimestampPrecision)

	if err := s.primary(ctx).Create(event).Error; err != nil {
		event.ID = 0
		return 0, classify("写入遥测记录", err)
	}
	return event.ID, nil
}

// MaxID 返回当前最大 ID，空表返回 0
func (s *Store) MaxID(ctx context.Context) (uint64, error) {
	var maxID sql.NullInt64
	err := s.primary(ctx).
		Model(&types.TranslationEvent{}).
		Select("MAX(id)").
		Row().
		Scan(&maxID)
	if err != nil {
		return 0, classify("查询最大 ID", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return uint64(maxID.Int64), nil
}

// ListByModel 按 ID 升序返回指定模型的一批记录
func (s *Store) ListByModel(ctx context.Context, scan ModelScan) ([]*types.TranslationEvent, error) {
	q := s.primary(ctx).
		Where("model_name = ?", scan.ModelName).
		Where("id > ?", scan.AfterID)
	if scan.MaxID > 0 {
		q = q.Where("id <= ?", scan.MaxID)
	}
	if scan.Start != nil {
		q = q.Where("timestamp >= ?", scan.Start.UTC())
	}
	if scan.End != nil {
		q = q.Where("timestamp < ?", scan.End.UTC())
	}

	var events []*types.TranslationEvent
	if err := q.Order("id").Limit(scan.Limit).Find(&events).Error; err != nil {
		return nil, classify("按模型查询", err)
	}
	return events, nil
}

// ListByTimeRange 按 (timestamp, id) 升序返回 [Start, End) 内的一批记录
func (s *Store) ListByTimeRange(ctx context.Context, scan RangeScan) ([]*types.TranslationEvent, error) {
	q := s.primary(ctx).
		Where("timestamp >= ? AND timestamp < ?", scan.Start.UTC(), scan.End.UTC())
	if scan.MaxID > 0 {
		q = q.Where("id <= ?", scan.MaxID)
	}
	if scan.After != nil {
		ts := scan.After.Timestamp.UTC()
		q = q.Where("(timestamp > ? OR (timestamp = ? AND id > ?))", ts, ts, scan.After.ID)
	}

	var events []*types.TranslationEvent
	if err := q.Order("timestamp").Order("id").Limit(scan.Limit).Find(&events).Error; err != nil {
		return nil, classify("按时间范围查询", err)
	}
	return events, nil
}

// Count 返回记录总数
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.primary(ctx).Model(&types.TranslationEvent{}).Count(&n).Error; err != nil {
		return 0, classify("统计记录数", err)
	}
	return n, nil
}

// PurgeBefore 批量删除 timestamp 早于 cutoff 的记录，返回删除行数
//
// 仅供外部保留策略进程调用，服务本身不会调度删除。
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.primary(ctx).
		Where("timestamp < ?", cutoff.UTC()).
		Delete(&types.TranslationEvent{})
	if result.Error != nil {
		return 0, classify("按时间清理", result.Error)
	}
	s.logger.InfoContext(ctx, "按时间清理完成", "cutoff", cutoff, "deleted", result.RowsAffected)
	return result.RowsAffected, nil
}

// PurgeKeepLatest 只保留 ID 最大的 keep 条记录，返回删除行数
//
// keep 为负数时返回 RequestError，不删除任何记录。
func (s *Store) PurgeKeepLatest(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, errs.Request("keep", "不能为负数")
	}
	var threshold []uint64
	err := s.primary(ctx).
		Model(&types.TranslationEvent{}).
		Order("id DESC").
		Offset(keep).
		Limit(1).
		Pluck("id", &threshold).Error
	if err != nil {
		return 0, classify("查询保留边界", err)
	}
	if len(threshold) == 0 {
		return 0, nil
	}

	result := s.primary(ctx).
		Where("id <= ?", threshold[0]).
		Delete(&types.TranslationEvent{})
	if result.Error != nil {
		return 0, classify("按数量清理", result.Error)
	}
	s.logger.InfoContext(ctx, "按数量清理完成", "keep", keep, "deleted", result.RowsAffected)
	return result.RowsAffected, nil
}
