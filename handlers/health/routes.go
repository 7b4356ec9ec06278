package health

import (
	"github.com/gofiber/fiber/v2"
)

// SetupHealthRoutes 配置健康检查路由
func SetupHealthRoutes(router fiber.Router, store Pinger) {
	handler := NewHandler(store)
	router.Get("/health", handler.GetStatus)
}
