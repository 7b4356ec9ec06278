package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	slogfiber "github.com/samber/slog-fiber"

	"github.com/MeowSalty/transtat/config"
	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/logger"
	"github.com/MeowSalty/transtat/router"
	"github.com/MeowSalty/transtat/services/telemetry"
)

// shutdownTimeout 关闭 Web 服务时等待进行中请求的时间
const shutdownTimeout = 10 * time.Second

// Run 启动服务器，收到关闭信号后依次关闭 Web 服务、采集器与数据库
func Run(cfg *config.Config) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}

	// 初始化日志记录器
	appLogger, logFile := logger.InitLogger(level, cfg.LogDir, "transtat")
	defer logFile.Close()

	// 创建日志组
	fiberLogger := appLogger.WithGroup("fiber")
	gormLogger := appLogger.WithGroup("gorm")
	routerLogger := appLogger.WithGroup("router")
	servicesLogger := appLogger.WithGroup("services")

	slog.SetDefault(appLogger)

	// 连接数据库
	store, err := database.Connect(cfg.DatabaseOptions(), gormLogger)
	if err != nil {
		return fmt.Errorf("数据库连接失败：%w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error("关闭数据库连接失败", "error", err)
		} else {
			appLogger.Info("数据库连接已成功关闭")
		}
	}()

	// 初始化服务
	collector := telemetry.NewCollector(servicesLogger)
	defer collector.Close()
	svc := telemetry.New(store, telemetry.Options{
		TextLimit:      cfg.TextLimit,
		TextPolicy:     cfg.TextPolicy,
		StorageTimeout: cfg.StorageTimeout,
		BatchSize:      cfg.QueryBatchSize,
	}, collector, servicesLogger)

	// 创建 fiber 应用
	fiberApp := fiber.New(fiber.Config{
		Prefork: cfg.Prod,
	})

	// 中间件
	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			stack := debug.Stack()
			// 将堆栈信息按行分割，以数组形式记录，提高 JSON 日志可读性
			stackLines := strings.Split(strings.TrimSpace(string(stack)), "\n")
			fiberLogger.Error("发生 panic",
				"panic", e,
				"path", c.Path(),
				"method", c.Method(),
				"stack", stackLines,
			)
		},
	}))
	fiberApp.Use(slogfiber.NewWithConfig(fiberLogger, slogfiber.Config{
		Filters: []slogfiber.Filter{
			// 忽略健康检查
			slogfiber.IgnorePathContains("/ping"),
		},
	}))

	// 如果没有设置管理令牌，则使用 API Token，并输出警告
	if cfg.AdminToken == "" && cfg.APIToken != "" {
		appLogger.Warn("未设置独立的管理 API Token，查询接口将与写入接口使用相同的令牌")
	}
	if cfg.APIToken == "" {
		appLogger.Warn("未启用 API Token，将不进行身份验证")
	}

	// 设置路由
	routerConfig := router.Config{
		ApiToken:     cfg.APIToken,
		AdminToken:   cfg.ReadToken(),
		QueryTimeout: cfg.QueryTimeout,
	}
	if err := router.SetupRoutes(fiberApp, svc, store, routerConfig, routerLogger); err != nil {
		return fmt.Errorf("路由设置失败：%w", err)
	}

	// 启动 Web 服务
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- fiberApp.Listen(cfg.Port)
	}()

	// 等待关闭信号
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case err := <-listenErr:
		fiberLogger.Error("无法启动 Web 服务", "error", err)
		return fmt.Errorf("无法启动 Web 服务：%w", err)
	case <-c:
		appLogger.Info("收到关闭信号，正在关闭应用...")
	}

	// 关闭 Web 服务
	if err := fiberApp.ShutdownWithTimeout(shutdownTimeout); err != nil {
		fiberLogger.Error("关闭 Web 服务失败", "error", err)
	} else {
		fiberLogger.Info("Web 服务已成功关闭")
	}

	appLogger.Info("应用已成功关闭")
	return nil
}
