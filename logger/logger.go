package logger

import (
	"io"
	"log/slog"
	"os"
)

// InitLogger 初始化日志记录器
//
// 终端输出普通文本格式；logDir 非空时同时按日期写入 JSON 格式的日志文件。
// 返回的 io.Closer 用于在退出时关闭日志文件。
func InitLogger(level slog.Level, logDir, baseName string) (*slog.Logger, io.Closer) {
	// 创建终端处理器（普通文本格式）
	consoleHandler := newPlainTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	if logDir == "" {
		return slog.New(consoleHandler), nopCloser{}
	}

	// 创建按日期分割的日志文件（JSON 格式）
	file, err := newDailyWriter(logDir, baseName)
	if err != nil {
		// 如果无法创建日志文件，仅使用终端输出
		logger := slog.New(consoleHandler)
		logger.Error("无法创建日志文件，将仅输出到终端", "error", err)
		return logger, nopCloser{}
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(newMultiHandler(consoleHandler, fileHandler)), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
