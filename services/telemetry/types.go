package telemetry

import (
	"time"

	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/errs"
)

// 文本超限策略
const (
	PolicyReject   = "reject"   // 拒绝写入
	PolicyTruncate = "truncate" // 截断并标记
)

// RecordInput 翻译服务上报的一次翻译结果
//
// 指针字段用于区分"未提供"与零值。
type RecordInput struct {
	Timestamp       *time.Time `json:"timestamp,omitempty"`        // 可选，缺省为写入时间；不能为零值，精度不超过微秒
	ModelName       string     `json:"model_name"`                 // 模型名称
	SourceLang      string     `json:"source_lang"`                // 源语言
	TargetLang      string     `json:"target_lang"`                // 目标语言
	InputLength     *int64     `json:"input_length"`               // 输入长度
	OutputLength    *int64     `json:"output_length"`              // 输出长度
	LatencyMs       *float64   `json:"latency_ms"`                 // 耗时（毫秒）
	TokensPerSec    *float64   `json:"tokens_per_sec,omitempty"`   // 吞吐（可选）
	SimilarityScore *float64   `json:"similarity_score,omitempty"` // 质量分（可选）
	InputText       *string    `json:"input_text,omitempty"`       // 原文（可选）
	OutputText      *string    `json:"output_text,omitempty"`      // 译文（可选）
}

// TimeRange 半开时间区间 [Start, End)
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate 校验时间区间，Start 晚于 End 视为非法请求；相等时为空区间
func (r TimeRange) Validate() error {
	if r.Start.IsZero() {
		return errs.Request("start", "不能为空")
	}
	if r.End.IsZero() {
		return errs.Request("end", "不能为空")
	}
	if r.Start.After(r.End) {
		return errs.Request("start", "不能晚于 end")
	}
	return nil
}

// Cursor 时间范围查询的续读位置
type Cursor = database.Cursor

// QueryOption 查询选项
type QueryOption func(*queryOptions)

type queryOptions struct {
	afterID   uint64
	after     *Cursor
	batchSize int
}

// WithAfterID 按模型查询时只返回 ID 大于 id 的记录
func WithAfterID(id uint64) QueryOption {
	return func(o *queryOptions) {
		o.afterID = id
	}
}

// WithAfter 按时间范围查询时从 cursor 之后继续
func WithAfter(cursor Cursor) QueryOption {
	return func(o *queryOptions) {
		o.after = &cursor
	}
}

// WithBatchSize 设置每次从存储层读取的记录数
func WithBatchSize(n int) QueryOption {
	return func(o *queryOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// AggregateRequest 聚合请求
type AggregateRequest struct {
	Metric     string     `json:"metric"`               // latency_ms, tokens_per_sec, similarity_score
	Statistic  string     `json:"statistic,omitempty"`  // mean（默认）, min, max, count, p50, p90, p95, p99 ...
	GroupBy    []string   `json:"group_by"`             // model_name, language_pair, source_lang, target_lang
	ModelName  string     `json:"model_name,omitempty"` // 过滤：模型名称
	SourceLang string     `json:"source_lang,omitempty"`
	TargetLang string     `json:"target_lang,omitempty"`
	Range      *TimeRange `json:"range,omitempty"`
}

// Overview 全局概览
type Overview struct {
	TotalEvents      int64   `json:"total_events"`       // 记录总数
	AvgLatencyMs     float64 `json:"avg_latency_ms"`     // 平均耗时
	AvgTokensPerSec  float64 `json:"avg_tokens_per_sec"` // 平均吞吐
	AvgSimilarity    float64 `json:"avg_similarity"`     // 平均质量分
	ScoredEvents     int64   `json:"scored_events"`      // 带质量分的记录数
	WindowStart      string  `json:"window_start"`       // 统计窗口起点 (RFC3339)
	WindowDurationMs int64   `json:"window_duration_ms"` // 统计窗口长度
}

// Realtime 实时写入数据
type Realtime struct {
	RPM      int64 `json:"rpm"`       // 过去一分钟记录数
	InFlight int64 `json:"in_flight"` // 正在处理的写入请求
}
