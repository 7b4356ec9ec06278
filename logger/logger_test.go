package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPlainTextHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPlainTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.WithGroup("telemetry").With("component", "store").Info("已记录翻译遥测", "model", "gpt-mini")
	logger.Debug("不应输出")

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("期望输出一行，实际：%q", out)
	}
	for _, want := range []string{"INFO 已记录翻译遥测", "telemetry.component=store", "telemetry.model=gpt-mini"} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：%q", want, out)
		}
	}
}

func TestPlainTextHandlerNestedGroupAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPlainTextHandler(&buf, nil))
	logger.Info("msg", slog.Group("req", "method", "POST", "status", 201))

	if !strings.Contains(buf.String(), "req.method=POST req.status=201") {
		t.Fatalf("分组属性未展开：%q", buf.String())
	}
}

func TestDailyWriterRotates(t *testing.T) {
	dir := t.TempDir()
	w, err := newDailyWriter(dir, "transtat")
	if err != nil {
		t.Fatalf("创建日志文件失败：%v", err)
	}
	defer w.Close()

	day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.Local)
	w.now = func() time.Time { return day }
	if _, err := w.Write([]byte("a\n")); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	day = day.Add(2 * time.Minute)
	if _, err := w.Write([]byte("b\n")); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	for date, want := range map[string]string{"2024-03-01": "a\n", "2024-03-02": "b\n"} {
		data, err := os.ReadFile(filepath.Join(dir, "transtat-"+date+".log"))
		if err != nil {
			t.Fatalf("读取日志文件失败：%v", err)
		}
		if string(data) != want {
			t.Fatalf("%s 内容错误：%q", date, data)
		}
	}
}

func TestInitLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger, closer := InitLogger(slog.LevelInfo, dir, "transtat")
	logger.WithGroup("telemetry").Info("hello", "model", "m")
	if err := closer.Close(); err != nil {
		t.Fatalf("关闭日志文件失败：%v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "transtat-*.log"))
	if len(matches) != 1 {
		t.Fatalf("期望一个日志文件，实际 %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("读取日志文件失败：%v", err)
	}
	var entry struct {
		Msg       string            `json:"msg"`
		Telemetry map[string]string `json:"telemetry"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("日志不是 JSON：%v %q", err, data)
	}
	if entry.Msg != "hello" || entry.Telemetry["model"] != "m" {
		t.Fatalf("日志内容错误：%+v", entry)
	}
}
