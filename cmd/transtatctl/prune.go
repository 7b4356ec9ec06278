package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// parseCutoff 解析 --before，支持 RFC3339 时间或相对当前时间的时长（如 720h）
func parseCutoff(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("--before 应为 RFC3339 时间或正的时长：%s", raw)
	}
	return now.Add(-d), nil
}

func newPruneCmd(flags *globalFlags) *cobra.Command {
	var (
		before string
		keep   int
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "按保留策略批量删除旧记录",
		Long: `按时间或数量批量删除记录，二者只能选其一：
  --before 2024-01-01T00:00:00Z  删除该时间之前的记录
  --before 720h                  删除 30 天之前的记录
  --keep 100000                  只保留最新的 N 条记录`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hasBefore, hasKeep := cmd.Flags().Changed("before"), cmd.Flags().Changed("keep")
			if hasBefore == hasKeep {
				return errors.New("需要且只能指定 --before 或 --keep 其中之一")
			}
			if hasKeep && keep < 0 {
				return fmt.Errorf("--keep 不能为负数：%d", keep)
			}

			var cutoff time.Time
			if hasBefore {
				var err error
				if cutoff, err = parseCutoff(before, time.Now()); err != nil {
					return err
				}
			}

			store, _, err := openStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			var deleted int64
			if hasBefore {
				deleted, err = store.PurgeBefore(cmd.Context(), cutoff)
			} else {
				deleted, err = store.PurgeKeepLatest(cmd.Context(), keep)
			}
			if err != nil {
				return fmt.Errorf("清理失败：%w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已删除 %d 条记录\n", deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "删除早于该时间的记录（RFC3339 或时长）")
	cmd.Flags().IntVar(&keep, "keep", 0, "只保留最新的 N 条记录")
	return cmd
}
