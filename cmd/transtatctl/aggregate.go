package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeowSalty/transtat/services/telemetry"
)

func newAggregateCmd(flags *globalFlags) *cobra.Command {
	var (
		req        telemetry.AggregateRequest
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "离线聚合查询，结果以 JSON 输出",
		Example: `  transtatctl aggregate --metric latency_ms --group-by model_name
  transtatctl aggregate --metric similarity_score --statistic p90 --group-by language_pair`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if start != "" || end != "" {
				tr, err := parseRange(start, end)
				if err != nil {
					return err
				}
				req.Range = tr
			}

			store, appLogger, err := openStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			collector := telemetry.NewCollector(appLogger)
			defer collector.Close()
			svc := telemetry.New(store, telemetry.Options{}, collector, appLogger.WithGroup("services"))

			groups, err := svc.Aggregate(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(groups)
		},
	}
	cmd.Flags().StringVar(&req.Metric, "metric", "latency_ms", "指标 (latency_ms, tokens_per_sec, similarity_score)")
	cmd.Flags().StringVar(&req.Statistic, "statistic", telemetry.StatMean, "统计量 (mean, min, max, count, p50, p90, p95, p99)")
	cmd.Flags().StringSliceVar(&req.GroupBy, "group-by", []string{telemetry.GroupModelName}, "分组键 (model_name, language_pair, source_lang, target_lang)")
	cmd.Flags().StringVar(&req.ModelName, "model", "", "按模型过滤")
	cmd.Flags().StringVar(&req.SourceLang, "source", "", "按源语言过滤")
	cmd.Flags().StringVar(&req.TargetLang, "target", "", "按目标语言过滤")
	cmd.Flags().StringVar(&start, "start", "", "起始时间（RFC3339，包含）")
	cmd.Flags().StringVar(&end, "end", "", "结束时间（RFC3339，不包含）")
	return cmd
}

func parseRange(start, end string) (*telemetry.TimeRange, error) {
	if start == "" || end == "" {
		return nil, fmt.Errorf("--start 与 --end 需同时提供")
	}
	s, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return nil, fmt.Errorf("--start 格式无效：%w", err)
	}
	e, err := time.Parse(time.RFC3339Nano, end)
	if err != nil {
		return nil, fmt.Errorf("--end 格式无效：%w", err)
	}
	return &telemetry.TimeRange{Start: s, End: e}, nil
}
