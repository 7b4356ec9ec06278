package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/errs"
	"golang.org/x/sync/errgroup"
)

// defaultDuration 默认统计时间范围
const defaultDuration = 24 * time.Hour

// Overview 获取时间窗口内的全局概览
//
// 各项统计相互独立，并发查询；任一查询失败时取消其余查询。
//
// 参数：
//   - ctx: 上下文，用于控制请求生命周期
//   - duration: 统计时间范围，0 值将使用默认的 24 小时
func (s *service) Overview(ctx context.Context, duration time.Duration) (*Overview, error) {
	if duration < 0 {
		return nil, errs.Request("duration", "不能为负数")
	}
	if duration == 0 {
		duration = defaultDuration
	}
	start := s.now().UTC().Add(-duration)
	filter := database.AggregateFilter{Start: &start}

	s.logger.InfoContext(ctx, "开始获取全局概览数据", "duration", duration, "start_time", start)

	resp := &Overview{
		WindowStart:      start.Format(time.RFC3339),
		WindowDurationMs: duration.Milliseconds(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountMatching(gctx, filter)
		if err != nil {
			return fmt.Errorf("统计记录数失败：%w", err)
		}
		resp.TotalEvents = n
		return nil
	})
	g.Go(func() error {
		mean, _, err := s.store.Mean(gctx, database.ColumnLatencyMs, filter)
		if err != nil {
			return fmt.Errorf("计算平均耗时失败：%w", err)
		}
		resp.AvgLatencyMs = mean
		return nil
	})
	g.Go(func() error {
		mean, _, err := s.store.Mean(gctx, database.ColumnTokensPerSec, filter)
		if err != nil {
			return fmt.Errorf("计算平均吞吐失败：%w", err)
		}
		resp.AvgTokensPerSec = mean
		return nil
	})
	g.Go(func() error {
		mean, n, err := s.store.Mean(gctx, database.ColumnSimilarity, filter)
		if err != nil {
			return fmt.Errorf("计算平均质量分失败：%w", err)
		}
		resp.AvgSimilarity = mean
		resp.ScoredEvents = n
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "获取全局概览数据失败", "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "全局概览数据获取完成", "total_events", resp.TotalEvents)
	return resp, nil
}

// Realtime 获取实时写入数据
func (s *service) Realtime(ctx context.Context) (*Realtime, error) {
	return &Realtime{
		RPM:      s.collector.RPM(),
		InFlight: s.collector.InFlight(),
	}, nil
}
