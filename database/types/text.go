package types

import (
	"unicode/utf8"

	"github.com/MeowSalty/transtat/errs"
)

// TextPolicy 文本载荷的字节上限与超限处理方式
type TextPolicy struct {
	Limit    int  // 字节上限，0 表示不限
	Truncate bool // 超限时截断并标记，否则拒绝
}

// Apply 对 input_text 与 output_text 应用上限
//
// 拒绝策略下返回指向超限字段的 ValidationError，事件保持不变。
func (p TextPolicy) Apply(e *TranslationEvent) error {
	input, inputCut, err := p.apply("input_text", e.InputText)
	if err != nil {
		return err
	}
	output, outputCut, err := p.apply("output_text", e.OutputText)
	if err != nil {
		return err
	}
	e.InputText, e.InputTruncated = input, e.InputTruncated || inputCut
	e.OutputText, e.OutputTruncated = output, e.OutputTruncated || outputCut
	return nil
}

func (p TextPolicy) apply(field string, text *string) (*string, bool, error) {
	if text == nil || p.Limit <= 0 || len(*text) <= p.Limit {
		return text, false, nil
	}
	if !p.Truncate {
		return nil, false, errs.Validation(field, "文本超过长度上限")
	}
	cut := TruncateUTF8(*text, p.Limit)
	return &cut, true, nil
}

// TruncateUTF8 截断到不超过 limit 字节的最后一个完整字符
func TruncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}
