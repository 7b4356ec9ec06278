package telemetry

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MeowSalty/transtat/errs"
	"github.com/MeowSalty/transtat/services/telemetry"
)

// parseTime 解析 RFC3339 格式的时间参数，缺省时返回 nil
func parseTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, errs.Request(key, "时间格式无效，应为 RFC3339："+raw)
	}
	return &t, nil
}

// parseRange 解析 start 与 end 参数
//
// required 为 false 时两者都缺省返回 nil，只提供其中一个视为非法请求。
func parseRange(c *fiber.Ctx, required bool) (*telemetry.TimeRange, error) {
	start, err := parseTime(c, "start")
	if err != nil {
		return nil, err
	}
	end, err := parseTime(c, "end")
	if err != nil {
		return nil, err
	}
	if start == nil && end == nil && !required {
		return nil, nil
	}
	if start == nil {
		return nil, errs.Request("start", "不能为空")
	}
	if end == nil {
		return nil, errs.Request("end", "不能为空")
	}
	return &telemetry.TimeRange{Start: *start, End: *end}, nil
}

func parseUint(c *fiber.Ctx, key string) (uint64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errs.Request(key, "必须是非负整数："+raw)
	}
	return v, nil
}

// parseLimit 解析分页大小，缺省为 defaultLimit，上限 maxLimit
func parseLimit(c *fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxLimit {
		return 0, errs.Request("limit", "必须在 1 到 "+strconv.Itoa(maxLimit)+" 之间")
	}
	return limit, nil
}

// parseCursor 解析时间范围查询的续读位置，after_time 与 after_id 需同时提供
func parseCursor(c *fiber.Ctx) (*telemetry.Cursor, error) {
	afterTime, err := parseTime(c, "after_time")
	if err != nil {
		return nil, err
	}
	if afterTime == nil {
		if c.Query("after_id") != "" {
			return nil, errs.Request("after_time", "与 after_id 需同时提供")
		}
		return nil, nil
	}
	afterID, err := parseUint(c, "after_id")
	if err != nil {
		return nil, err
	}
	return &telemetry.Cursor{Timestamp: *afterTime, ID: afterID}, nil
}

// modelParam 取出路径中的模型名称，模型名称可以包含 "/"
func modelParam(c *fiber.Ctx) (string, error) {
	model, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return "", errs.Request("model_name", "路径编码无效")
	}
	return model, nil
}

// splitList 拆分逗号分隔的参数并去掉空项
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
