package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeowSalty/transtat/config"
	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/logger"
)

// globalFlags 所有子命令共享的参数
type globalFlags struct {
	logLevel string
	dbType   string
	dbPath   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "transtatctl",
		Short: "翻译遥测存储维护工具",
		Long: `transtatctl 直接连接遥测数据库，用于执行迁移、按保留策略清理以及离线聚合查询。
数据库连接参数与服务端一致，从 .env 文件和环境变量读取（DB_TYPE、DB_PATH、DB_HOST 等）。`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "WARN", "日志输出等级 (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().StringVar(&flags.dbType, "db-type", "", "覆盖 DB_TYPE")
	root.PersistentFlags().StringVar(&flags.dbPath, "db-path", "", "覆盖 DB_PATH")

	root.AddCommand(
		newMigrateCmd(flags),
		newPruneCmd(flags),
		newCountCmd(flags),
		newAggregateCmd(flags),
	)
	return root
}

// openStore 按环境变量与命令行参数连接数据库
func openStore(flags *globalFlags) (*database.Store, *slog.Logger, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, nil, err
	}
	cfg := config.FromEnv(env)
	cfg.LogLevel = flags.logLevel
	if flags.dbType != "" {
		cfg.DBType = flags.dbType
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, _ := cfg.Level()
	appLogger, _ := logger.InitLogger(level, "", "transtatctl")

	store, err := database.Connect(cfg.DatabaseOptions(), appLogger.WithGroup("gorm"))
	if err != nil {
		return nil, nil, fmt.Errorf("数据库连接失败：%w", err)
	}
	return store, appLogger, nil
}
