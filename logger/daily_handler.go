package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dailyWriter 按日期分割的日志文件
//
// 所有派生的 slog.Handler 共享同一个 dailyWriter，轮转时不会丢失 WithAttrs/WithGroup 的上下文。
type dailyWriter struct {
	logDir      string
	baseName    string
	mu          sync.Mutex
	currentDate string
	file        *os.File
	now         func() time.Time
}

// newDailyWriter 创建日志目录并打开当天的日志文件
func newDailyWriter(logDir, baseName string) (*dailyWriter, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败：%w", err)
	}
	w := &dailyWriter{
		logDir:   logDir,
		baseName: baseName,
		now:      time.Now,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotate(); err != nil {
		return nil, err
	}
	return w, nil
}

// rotate 日期变化时切换到新文件，调用方需持有锁
func (w *dailyWriter) rotate() error {
	currentDate := w.now().Format("2006-01-02")
	if w.currentDate == currentDate && w.file != nil {
		return nil
	}

	filePath := filepath.Join(w.logDir, w.baseName+"-"+currentDate+".log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败：%w", err)
	}

	// 关闭旧文件
	if w.file != nil {
		w.file.Close()
	}
	w.currentDate = currentDate
	w.file = file
	return nil
}

// Write 写入一条日志，必要时先轮转
func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotate(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

// Close 关闭日志文件
func (w *dailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
