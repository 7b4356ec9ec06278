package telemetry

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MeowSalty/transtat/services/telemetry"
)

// RouteConfig 遥测路由配置
type RouteConfig struct {
	QueryTimeout time.Duration
	Ingest       []fiber.Handler // 写入接口的中间件
	Read         []fiber.Handler // 查询接口的中间件
}

// SetupTelemetryRoutes 配置遥测相关的路由
func SetupTelemetryRoutes(router fiber.Router, service telemetry.Service, config RouteConfig, logger *slog.Logger) {
	handler := NewHandler(service, config.QueryTimeout, logger)

	with := func(middleware []fiber.Handler, h fiber.Handler) []fiber.Handler {
		chain := make([]fiber.Handler, 0, len(middleware)+1)
		return append(append(chain, middleware...), h)
	}

	group := router.Group("/translations")
	group.Post("/", with(config.Ingest, handler.Record)...)
	group.Get("/", with(config.Read, handler.ListByTimeRange)...)
	group.Get("/aggregate", with(config.Read, handler.Aggregate)...)
	group.Get("/overview", with(config.Read, handler.Overview)...)
	group.Get("/realtime", with(config.Read, handler.Realtime)...)
	group.Get("/models/*", with(config.Read, handler.ListByModel)...)
}
