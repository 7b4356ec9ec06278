package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
)

// plainTextHandler 实现普通文本格式的日志处理器
//
// 分组以 "group.key" 的形式展开，WithAttrs 附加的属性预先渲染。
type plainTextHandler struct {
	opts   slog.HandlerOptions
	mu     *sync.Mutex
	out    io.Writer
	prefix string // 当前分组前缀，形如 "telemetry."
	attrs  []byte // 预先渲染的属性
}

// newPlainTextHandler 创建普通文本格式的日志处理器
func newPlainTextHandler(out io.Writer, opts *slog.HandlerOptions) *plainTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &plainTextHandler{
		opts: *opts,
		mu:   &sync.Mutex{},
		out:  out,
	}
}

// Enabled 检查日志级别是否启用
func (h *plainTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle 处理日志记录
func (h *plainTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer

	// 格式：时间 级别 消息 属性...
	buf.WriteString(r.Time.Format("2006/01/02 15:04:05.000"))
	buf.WriteString(" ")
	buf.WriteString(r.Level.String())
	buf.WriteString(" ")
	buf.WriteString(r.Message)
	buf.Write(h.attrs)

	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

// appendAttr 渲染单个属性，分组属性递归展开
func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(buf, groupPrefix, ga)
		}
		return
	}
	buf.WriteString(" ")
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteString("=")
	buf.WriteString(a.Value.String())
}

// WithAttrs 返回带有额外属性的处理器
func (h *plainTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var buf bytes.Buffer
	buf.Write(h.attrs)
	for _, a := range attrs {
		appendAttr(&buf, h.prefix, a)
	}
	h2 := *h
	h2.attrs = buf.Bytes()
	return &h2
}

// WithGroup 返回带有组的处理器
func (h *plainTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}
