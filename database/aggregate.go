package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MeowSalty/transtat/database/types"
	"gorm.io/gorm"
)

// 可聚合的指标列
const (
	ColumnLatencyMs    = "latency_ms"
	ColumnTokensPerSec = "tokens_per_sec"
	ColumnSimilarity   = "similarity_score"
)

// 可分组的列
const (
	ColumnModelName  = "model_name"
	ColumnSourceLang = "source_lang"
	ColumnTargetLang = "target_lang"
)

// SQL 聚合函数
const (
	FuncAvg   = "AVG"
	FuncMin   = "MIN"
	FuncMax   = "MAX"
	FuncCount = "COUNT"
)

var metricColumns = map[string]bool{
	ColumnLatencyMs:    true,
	ColumnTokensPerSec: true,
	ColumnSimilarity:   true,
}

var groupColumns = map[string]bool{
	ColumnModelName:  true,
	ColumnSourceLang: true,
	ColumnTargetLang: true,
}

var sqlFuncs = map[string]bool{
	FuncAvg:   true,
	FuncMin:   true,
	FuncMax:   true,
	FuncCount: true,
}

// AggregateFilter 聚合查询的过滤条件，空字段表示不过滤
type AggregateFilter struct {
	ModelName  string
	SourceLang string
	TargetLang string
	Start      *time.Time // 包含
	End        *time.Time // 不包含
}

// AggregateQuery 聚合查询参数
type AggregateQuery struct {
	Metric  string   // 指标列
	GroupBy []string // 分组列，按顺序组成分组键
	Filter  AggregateFilter
}

// GroupStat 单个分组的聚合结果
type GroupStat struct {
	Keys  []string // 与 GroupBy 一一对应
	Value float64
	Count int64 // 参与计算的非空值数量
}

func (q AggregateQuery) validate() error {
	if !metricColumns[q.Metric] {
		return fmt.Errorf("不支持的聚合指标：%s", q.Metric)
	}
	if len(q.GroupBy) == 0 {
		return fmt.Errorf("至少需要一个分组列")
	}
	for _, col := range q.GroupBy {
		if !groupColumns[col] {
			return fmt.Errorf("不支持的分组列：%s", col)
		}
	}
	return nil
}

// scope 构造带过滤条件的基础查询，只包含指标非空的行
//
// 指标全为空的分组因此不会出现在结果中。
func (s *Store) scope(ctx context.Context, q AggregateQuery) *gorm.DB {
	db := s.analytics(ctx).
		Model(&types.TranslationEvent{}).
		Where(q.Metric + " IS NOT NULL")

	f := q.Filter
	if f.ModelName != "" {
		db = db.Where("model_name = ?", f.ModelName)
	}
	if f.SourceLang != "" {
		db = db.Where("source_lang = ?", f.SourceLang)
	}
	if f.TargetLang != "" {
		db = db.Where("target_lang = ?", f.TargetLang)
	}
	if f.Start != nil {
		db = db.Where("timestamp >= ?", f.Start.UTC())
	}
	if f.End != nil {
		db = db.Where("timestamp < ?", f.End.UTC())
	}
	return db
}

// GroupStats 使用数据库聚合函数按分组计算统计值
//
// 相比在应用层遍历所有记录，数据库聚合只传输每个分组一行。
func (s *Store) GroupStats(ctx context.Context, fn string, q AggregateQuery) ([]GroupStat, error) {
	if !sqlFuncs[fn] {
		return nil, fmt.Errorf("不支持的聚合函数：%s", fn)
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	groupBy := strings.Join(q.GroupBy, ", ")
	// SELECT model_name, AVG(latency_ms) AS value, COUNT(latency_ms) AS n
	// FROM translation_events
	// WHERE latency_ms IS NOT NULL AND ...
	// GROUP BY model_name
	// ORDER BY model_name
	rows, err := s.scope(ctx, q).
		Select(fmt.Sprintf("%s, %s(%s) AS value, COUNT(%s) AS n", groupBy, fn, q.Metric, q.Metric)).
		Group(groupBy).
		Order(groupBy).
		Rows()
	if err != nil {
		return nil, classify("聚合查询", err)
	}
	defer rows.Close()

	var stats []GroupStat
	for rows.Next() {
		keys := make([]string, len(q.GroupBy))
		var (
			value float64
			count int64
		)
		dest := make([]any, 0, len(keys)+2)
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		dest = append(dest, &value, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, classify("读取聚合结果", err)
		}
		if count == 0 {
			continue
		}
		stats = append(stats, GroupStat{Keys: keys, Value: value, Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("读取聚合结果", err)
	}
	return stats, nil
}

// StreamMetric 按分组顺序流式读取指标值，组内按值升序
//
// 每读取一行调用一次 fn，keys 切片在回调之间复用，需要保留时应复制。
// fn 返回错误或 ctx 取消时立即停止，不留下任何状态。
func (s *Store) StreamMetric(ctx context.Context, q AggregateQuery, fn func(keys []string, value float64) error) error {
	if err := q.validate(); err != nil {
		return err
	}

	cols := append(append([]string{}, q.GroupBy...), q.Metric)
	rows, err := s.scope(ctx, q).
		Select(strings.Join(cols, ", ")).
		Order(strings.Join(cols, ", ")).
		Rows()
	if err != nil {
		return classify("读取指标", err)
	}
	defer rows.Close()

	keys := make([]string, len(q.GroupBy))
	var value float64
	dest := make([]any, 0, len(cols))
	for i := range keys {
		dest = append(dest, &keys[i])
	}
	dest = append(dest, &value)

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return classify("读取指标", err)
		}
		if err := fn(keys, value); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return classify("读取指标", err)
	}
	return ctx.Err()
}

// Mean 计算过滤条件下某指标的总体均值，没有非空值时 n 为 0
func (s *Store) Mean(ctx context.Context, metric string, f AggregateFilter) (mean float64, n int64, err error) {
	if !metricColumns[metric] {
		return 0, 0, fmt.Errorf("不支持的聚合指标：%s", metric)
	}

	var result struct {
		Value *float64
		N     int64
	}
	err = s.scope(ctx, AggregateQuery{Metric: metric, Filter: f}).
		Select(fmt.Sprintf("AVG(%s) AS value, COUNT(%s) AS n", metric, metric)).
		Scan(&result).Error
	if err != nil {
		return 0, 0, classify("计算均值", err)
	}
	if result.Value == nil || result.N == 0 {
		return 0, 0, nil
	}
	return *result.Value, result.N, nil
}

// CountMatching 统计过滤条件下的记录数
func (s *Store) CountMatching(ctx context.Context, f AggregateFilter) (int64, error) {
	var n int64
	err := s.scope(ctx, AggregateQuery{Metric: ColumnLatencyMs, Filter: f}).Count(&n).Error
	if err != nil {
		return 0, classify("统计记录数", err)
	}
	return n, nil
}
