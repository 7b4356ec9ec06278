package telemetry

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/MeowSalty/transtat/errs"
)

// retryAfterSeconds 存储暂时不可用时建议的重试间隔
const retryAfterSeconds = "1"

// 非领域错误使用的错误码
const (
	codeTimeout  = "TIMEOUT"
	codeCanceled = "CANCELED"
	codeInternal = "INTERNAL_ERROR"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError 将错误映射为 HTTP 状态码和统一的错误响应
func (h *Handler) writeError(c *fiber.Ctx, err error) error {
	if e, ok := errs.As(err); ok {
		if e.Code == errs.CodeStorageUnavailable {
			h.logger.ErrorContext(c.UserContext(), "存储不可用", "path", c.Path(), "error", err)
		}
		status := fiber.StatusBadRequest
		if e.Code == errs.CodeStorageUnavailable {
			status = fiber.StatusServiceUnavailable
			if e.Retryable {
				c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
			}
		}
		return c.Status(status).JSON(ErrorResponse{
			Error:     e.Error(),
			Code:      string(e.Code),
			Field:     e.Field,
			Retryable: e.Retryable,
		})
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(ErrorResponse{
			Error: "查询超时：" + err.Error(),
			Code:  codeTimeout,
		})
	case errors.Is(err, context.Canceled):
		return c.Status(fiber.StatusRequestTimeout).JSON(ErrorResponse{
			Error: "请求已取消：" + err.Error(),
			Code:  codeCanceled,
		})
	}
	h.logger.ErrorContext(c.UserContext(), "处理请求失败", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: err.Error(),
		Code:  codeInternal,
	})
}
