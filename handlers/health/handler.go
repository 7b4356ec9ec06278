package health

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// pingTimeout 单次存储探活的超时
const pingTimeout = 2 * time.Second

// Pinger 可探活的存储
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler 健康状态处理器结构体
type Handler struct {
	store Pinger
}

// NewHandler 创建健康状态处理器实例
func NewHandler(store Pinger) *Handler {
	return &Handler{store: store}
}

// StatusResponse 健康状态
type StatusResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// GetStatus 检查存储是否可用
//
// 返回值：
//   - 成功：200 {"status":"ok"}
//   - 失败：503 与探活错误
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(StatusResponse{
			Status:   "degraded",
			Database: "unavailable",
			Error:    err.Error(),
		})
	}
	return c.JSON(StatusResponse{Status: "ok", Database: "ok"})
}
