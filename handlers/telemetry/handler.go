package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MeowSalty/transtat/database/types"
	"github.com/MeowSalty/transtat/errs"
	"github.com/MeowSalty/transtat/services/telemetry"
)

// 分页参数
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handler 遥测处理器结构体
type Handler struct {
	service      telemetry.Service
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewHandler 创建遥测处理器实例
//
// 参数：
//   - service: 遥测服务接口实例
//   - queryTimeout: 单个查询请求的超时时间，0 表示不限
//   - logger: 日志记录器
func NewHandler(service telemetry.Service, queryTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// requestContext 派生带查询超时的请求上下文
func (h *Handler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.queryTimeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.queryTimeout)
}

// RecordResponse 写入成功的响应
type RecordResponse struct {
	ID uint64 `json:"id"`
}

// Record 记录一次翻译
//
// 返回值：
//   - 成功：201 与分配的 ID
//   - 失败：400 校验错误，503 存储不可用
func (h *Handler) Record(c *fiber.Ctx) error {
	var in telemetry.RecordInput
	if err := c.BodyParser(&in); err != nil {
		return h.writeError(c, errs.Validation("body", "请求体格式无效："+err.Error()))
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	id, err := h.service.RecordTranslation(ctx, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(RecordResponse{ID: id})
}

// NextCursor 下一页的续读位置
type NextCursor struct {
	AfterTime *time.Time `json:"after_time,omitempty"`
	AfterID   uint64     `json:"after_id"`
}

// ListResponse 列表查询的响应
type ListResponse struct {
	Events []*types.TranslationEvent `json:"events"`
	Next   *NextCursor               `json:"next,omitempty"`
}

// ListByTimeRange 按时间范围分页查询
//
// 查询参数：start、end（RFC3339，必填），limit，after_time 与 after_id（续读位置）
func (h *Handler) ListByTimeRange(c *fiber.Ctx) error {
	tr, err := parseRange(c, true)
	if err != nil {
		return h.writeError(c, err)
	}
	limit, err := parseLimit(c)
	if err != nil {
		return h.writeError(c, err)
	}
	opts := []telemetry.QueryOption{telemetry.WithBatchSize(limit + 1)}
	if cursor, err := parseCursor(c); err != nil {
		return h.writeError(c, err)
	} else if cursor != nil {
		opts = append(opts, telemetry.WithAfter(*cursor))
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	seq, err := h.service.QueryByTimeRange(ctx, *tr, opts...)
	if err != nil {
		return h.writeError(c, err)
	}
	events, more, err := takePage(seq, limit)
	if err != nil {
		return h.writeError(c, err)
	}

	resp := ListResponse{Events: events}
	if more {
		last := events[len(events)-1]
		ts := last.Timestamp
		resp.Next = &NextCursor{AfterTime: &ts, AfterID: last.ID}
	}
	return c.JSON(resp)
}

// ListByModel 按模型分页查询
//
// 查询参数：start、end（可选，需同时提供），limit，after_id
func (h *Handler) ListByModel(c *fiber.Ctx) error {
	model, err := modelParam(c)
	if err != nil {
		return h.writeError(c, err)
	}
	tr, err := parseRange(c, false)
	if err != nil {
		return h.writeError(c, err)
	}
	limit, err := parseLimit(c)
	if err != nil {
		return h.writeError(c, err)
	}
	afterID, err := parseUint(c, "after_id")
	if err != nil {
		return h.writeError(c, err)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	seq, err := h.service.QueryByModel(ctx, model, tr,
		telemetry.WithAfterID(afterID),
		telemetry.WithBatchSize(limit+1),
	)
	if err != nil {
		return h.writeError(c, err)
	}
	events, more, err := takePage(seq, limit)
	if err != nil {
		return h.writeError(c, err)
	}

	resp := ListResponse{Events: events}
	if more {
		resp.Next = &NextCursor{AfterID: events[len(events)-1].ID}
	}
	return c.JSON(resp)
}

// AggregateResponse 聚合查询的响应
type AggregateResponse struct {
	Metric    string             `json:"metric"`
	Statistic string             `json:"statistic"`
	GroupBy   []string           `json:"group_by"`
	Groups    map[string]float64 `json:"groups"`
}

// Aggregate 按分组聚合指标
//
// 查询参数：metric，statistic（默认 mean），group_by（逗号分隔），
// model_name、source_lang、target_lang、start、end（可选过滤）
func (h *Handler) Aggregate(c *fiber.Ctx) error {
	req := telemetry.AggregateRequest{
		Metric:     c.Query("metric"),
		Statistic:  c.Query("statistic", telemetry.StatMean),
		GroupBy:    splitList(c.Query("group_by")),
		ModelName:  c.Query("model_name"),
		SourceLang: c.Query("source_lang"),
		TargetLang: c.Query("target_lang"),
	}
	tr, err := parseRange(c, false)
	if err != nil {
		return h.writeError(c, err)
	}
	req.Range = tr

	ctx, cancel := h.requestContext(c)
	defer cancel()

	groups, err := h.service.Aggregate(ctx, req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(AggregateResponse{
		Metric:    req.Metric,
		Statistic: req.Statistic,
		GroupBy:   req.GroupBy,
		Groups:    groups,
	})
}

// Overview 获取全局概览数据
//
// 查询参数：duration（如 1h、24h，默认 24h）
func (h *Handler) Overview(c *fiber.Ctx) error {
	var duration time.Duration
	if raw := c.Query("duration"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return h.writeError(c, errs.Request("duration", "格式无效："+raw))
		}
		duration = d
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	overview, err := h.service.Overview(ctx, duration)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(overview)
}

// Realtime 获取实时写入数据
func (h *Handler) Realtime(c *fiber.Ctx) error {
	realtime, err := h.service.Realtime(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(realtime)
}

// takePage 从序列中读取至多 limit 条记录，并报告是否还有更多
func takePage(seq telemetry.Events, limit int) ([]*types.TranslationEvent, bool, error) {
	events := make([]*types.TranslationEvent, 0, limit)
	for event, err := range seq {
		if err != nil {
			return nil, false, err
		}
		if len(events) == limit {
			return events, true, nil
		}
		events = append(events, event)
	}
	return events, false, nil
}
