package router

import (
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/MeowSalty/transtat/handlers/health"
	"github.com/MeowSalty/transtat/handlers/telemetry"
	telemetryService "github.com/MeowSalty/transtat/services/telemetry"
)

type Config struct {
	ApiToken     string // 写入接口 Token，为空则不启用身份验证
	AdminToken   string // 查询接口 Token，为空则不启用身份验证
	QueryTimeout time.Duration
}

// SetupRoutes 配置 API 路由
func SetupRoutes(web *fiber.App, svc telemetryService.Service, store health.Pinger, config Config, logger *slog.Logger) error {
	web.Use(cors.New())
	webAPI := web.Group("/api")

	webAPI.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "pong",
		})
	})

	health.SetupHealthRoutes(webAPI, store)

	// 写入接口统计实时数据；如果设置了 token，分别为写入与查询接口添加身份验证
	ingest := []fiber.Handler{createCollectorMiddleware(svc.Collector())}
	var read []fiber.Handler
	if config.ApiToken != "" {
		ingest = append([]fiber.Handler{createAuthMiddleware(config.ApiToken)}, ingest...)
	}
	if config.AdminToken != "" {
		read = append(read, createAuthMiddleware(config.AdminToken))
	}

	telemetry.SetupTelemetryRoutes(webAPI, svc, telemetry.RouteConfig{
		QueryTimeout: config.QueryTimeout,
		Ingest:       ingest,
		Read:         read,
	}, logger)

	return nil
}

// createAuthMiddleware 创建 Bearer Token 身份验证中间件
func createAuthMiddleware(validToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 获取 Authorization 头
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "缺少 Authorization 头",
				"code":  "UNAUTHORIZED",
			})
		}

		// 验证 Bearer token 格式
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization 头格式无效，应为：Bearer <token>",
				"code":  "UNAUTHORIZED",
			})
		}

		// 验证 token
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(validToken)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "无效的 API token",
				"code":  "UNAUTHORIZED",
			})
		}

		return c.Next()
	}
}

// createCollectorMiddleware 创建实时数据采集中间件，统计正在处理的写入请求
func createCollectorMiddleware(collector *telemetryService.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		collector.Begin()
		defer collector.End()
		return c.Next()
	}
}
