package telemetry

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/database/types"
	"github.com/MeowSalty/transtat/errs"
)

// 分组键名称
const (
	GroupModelName    = "model_name"
	GroupLanguagePair = "language_pair"
	GroupSourceLang   = "source_lang"
	GroupTargetLang   = "target_lang"
)

// 统计量名称
const (
	StatMean  = "mean"
	StatMin   = "min"
	StatMax   = "max"
	StatCount = "count"
)

// KeySeparator 多个分组维度之间的分隔符
const KeySeparator = types.KeySeparator

// pairSeparator 语言对中源语言与目标语言之间的分隔符
const pairSeparator = types.PairSeparator

// cancelCheckInterval 流式计算百分位数时检查取消的行间隔
const cancelCheckInterval = 1024

var metrics = map[string]string{
	"latency_ms":       database.ColumnLatencyMs,
	"tokens_per_sec":   database.ColumnTokensPerSec,
	"similarity_score": database.ColumnSimilarity,
}

var sqlStats = map[string]string{
	StatMean:  database.FuncAvg,
	StatMin:   database.FuncMin,
	StatMax:   database.FuncMax,
	StatCount: database.FuncCount,
}

// groupPlan 描述分组键如何由查询列拼出
type groupPlan struct {
	columns []string // 传给存储层的分组列
	parts   [][]int  // 每个分组维度对应的列下标
}

func (p groupPlan) key(values []string) string {
	var b strings.Builder
	for i, idx := range p.parts {
		if i > 0 {
			b.WriteString(KeySeparator)
		}
		if len(idx) == 2 {
			b.WriteString(values[idx[0]])
			b.WriteString(pairSeparator)
			b.WriteString(values[idx[1]])
			continue
		}
		b.WriteString(values[idx[0]])
	}
	return b.String()
}

// planGroups 解析分组键，列去重后保持首次出现的顺序
func planGroups(groupBy []string) (groupPlan, error) {
	if len(groupBy) == 0 {
		return groupPlan{}, errs.Request("group_by", "至少需要一个分组键")
	}

	var plan groupPlan
	index := map[string]int{}
	col := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		index[name] = len(plan.columns)
		plan.columns = append(plan.columns, name)
		return index[name]
	}

	seen := map[string]bool{}
	for _, g := range groupBy {
		if seen[g] {
			return groupPlan{}, errs.Request("group_by", "重复的分组键："+g)
		}
		seen[g] = true

		switch g {
		case GroupModelName:
			plan.parts = append(plan.parts, []int{col(database.ColumnModelName)})
		case GroupSourceLang:
			plan.parts = append(plan.parts, []int{col(database.ColumnSourceLang)})
		case GroupTargetLang:
			plan.parts = append(plan.parts, []int{col(database.ColumnTargetLang)})
		case GroupLanguagePair:
			plan.parts = append(plan.parts, []int{
				col(database.ColumnSourceLang),
				col(database.ColumnTargetLang),
			})
		default:
			return groupPlan{}, errs.Request("group_by", "未知的分组键："+g)
		}
	}
	return plan, nil
}

// parsePercentile 解析 pNN 形式的统计量，返回 (0, 100] 内的百分位
func parsePercentile(stat string) (float64, bool) {
	rest, ok := strings.CutPrefix(stat, "p")
	if !ok || rest == "" {
		return 0, false
	}
	p, err := strconv.ParseFloat(rest, 64)
	if err != nil || math.IsNaN(p) || p <= 0 || p > 100 {
		return 0, false
	}
	return p, true
}

// percentile 对升序数据做线性插值
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// Aggregate 按分组计算指标的统计值
//
// 没有该指标非空值的分组不会出现在结果中；没有任何匹配时返回空映射。
func (s *service) Aggregate(ctx context.Context, req AggregateRequest) (map[string]float64, error) {
	metric, ok := metrics[req.Metric]
	if !ok {
		return nil, errs.Request("metric", "未知的指标："+req.Metric)
	}
	stat := req.Statistic
	if stat == "" {
		stat = StatMean
	}
	plan, err := planGroups(req.GroupBy)
	if err != nil {
		return nil, err
	}

	filter := database.AggregateFilter{
		ModelName:  req.ModelName,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
	}
	if req.Range != nil {
		if err := req.Range.Validate(); err != nil {
			return nil, err
		}
		filter.Start, filter.End = &req.Range.Start, &req.Range.End
	}
	q := database.AggregateQuery{Metric: metric, GroupBy: plan.columns, Filter: filter}

	s.logger.DebugContext(ctx, "开始聚合查询",
		"metric", req.Metric,
		"statistic", stat,
		"group_by", req.GroupBy,
	)

	var result map[string]float64
	if fn, ok := sqlStats[stat]; ok {
		result, err = s.aggregateSQL(ctx, fn, q, plan)
	} else if p, ok := parsePercentile(stat); ok {
		result, err = s.aggregatePercentile(ctx, p, q, plan)
	} else {
		return nil, errs.Request("statistic", "未知的统计量："+stat)
	}
	if err != nil {
		return nil, fmt.Errorf("聚合 %s 失败：%w", req.Metric, err)
	}
	return result, nil
}

func (s *service) aggregateSQL(ctx context.Context, fn string, q database.AggregateQuery, plan groupPlan) (map[string]float64, error) {
	stats, err := s.store.GroupStats(ctx, fn, q)
	if err != nil {
		return nil, err
	}
	result := make(map[string]float64, len(stats))
	for _, st := range stats {
		key := plan.key(st.Keys)
		if _, dup := result[key]; dup {
			return nil, keyCollision(key)
		}
		result[key] = st.Value
	}
	return result, nil
}

// keyCollision 不同分组渲染出相同的键时返回，不能静默合并
func keyCollision(key string) error {
	return errs.Request("group_by", "不同分组的键发生冲突："+key)
}

// aggregatePercentile 流式读取每个分组的指标值并计算百分位数
//
// 存储层保证同一分组的行连续出现，因此内存中只保留当前分组的数据。
func (s *service) aggregatePercentile(ctx context.Context, p float64, q database.AggregateQuery, plan groupPlan) (map[string]float64, error) {
	result := map[string]float64{}
	var (
		current []string
		values  []float64
		rows    int
	)
	flush := func() error {
		if len(values) == 0 {
			return nil
		}
		key := plan.key(current)
		if _, dup := result[key]; dup {
			return keyCollision(key)
		}
		slices.Sort(values)
		result[key] = percentile(values, p)
		values = values[:0]
		return nil
	}

	err := s.store.StreamMetric(ctx, q, func(keys []string, value float64) error {
		rows++
		if rows%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !slices.Equal(keys, current) {
			if err := flush(); err != nil {
				return err
			}
			current = slices.Clone(keys)
		}
		values = append(values, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return result, nil
}
