package router

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/services/telemetry"
)

func newTestApp(t *testing.T, config Config) *fiber.App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := database.Connect(database.Options{
		Type: database.TypeSQLite,
		Path: filepath.Join(t.TempDir(), "router.db"),
	}, logger)
	if err != nil {
		t.Fatalf("连接测试数据库失败：%v", err)
	}
	collector := telemetry.NewCollector(logger)
	t.Cleanup(func() {
		collector.Close()
		store.Close()
	})

	app := fiber.New()
	svc := telemetry.New(store, telemetry.Options{}, collector, logger)
	if err := SetupRoutes(app, svc, store, config, logger); err != nil {
		t.Fatalf("路由设置失败：%v", err)
	}
	return app
}

const body = `{"model_name":"m","source_lang":"en","target_lang":"fr","input_length":1,"output_length":1,"latency_ms":1}`

func call(t *testing.T, app *fiber.App, method, target, token string) int {
	t.Helper()
	var r io.Reader
	if method == http.MethodPost {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	return resp.StatusCode
}

func TestTokens(t *testing.T) {
	app := newTestApp(t, Config{ApiToken: "ingest", AdminToken: "admin"})

	cases := []struct {
		method, target, token string
		want                  int
	}{
		{http.MethodGet, "/api/ping", "", fiber.StatusOK},
		{http.MethodGet, "/api/health", "", fiber.StatusOK},
		{http.MethodPost, "/api/translations", "", fiber.StatusUnauthorized},
		{http.MethodPost, "/api/translations", "admin", fiber.StatusUnauthorized},
		{http.MethodPost, "/api/translations", "ingest", fiber.StatusCreated},
		{http.MethodGet, "/api/translations/models/m", "", fiber.StatusUnauthorized},
		{http.MethodGet, "/api/translations/models/m", "ingest", fiber.StatusUnauthorized},
		{http.MethodGet, "/api/translations/models/m", "admin", fiber.StatusOK},
	}
	for _, c := range cases {
		if got := call(t, app, c.method, c.target, c.token); got != c.want {
			t.Fatalf("%s %s (token=%q)：期望 %d，实际 %d", c.method, c.target, c.token, c.want, got)
		}
	}
}

func TestNoTokens(t *testing.T) {
	app := newTestApp(t, Config{})
	if got := call(t, app, http.MethodPost, "/api/translations", ""); got != fiber.StatusCreated {
		t.Fatalf("未配置 Token 时应直接放行，实际 %d", got)
	}
	if got := call(t, app, http.MethodGet, "/api/translations/realtime", ""); got != fiber.StatusOK {
		t.Fatalf("未配置 Token 时应直接放行，实际 %d", got)
	}
}
