package types

import (
	"errors"
	"testing"
	"time"

	"github.com/MeowSalty/transtat/errs"
)

func TestTruncateUTF8(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"abcdef", 3, "abc"},
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"日本語", 2, ""},
		{"日本語", 6, "日本"},
		{"short", 10, "short"},
	}
	for _, c := range cases {
		if got := TruncateUTF8(c.in, c.limit); got != c.want {
			t.Errorf("TruncateUTF8(%q, %d) = %q，期望 %q", c.in, c.limit, got, c.want)
		}
	}
}

func TestTextPolicyApply(t *testing.T) {
	text := func(s string) *string { return &s }

	e := &TranslationEvent{InputText: text("hello"), OutputText: text("日本語")}
	if err := (TextPolicy{Limit: 5, Truncate: true}).Apply(e); err != nil {
		t.Fatalf("截断策略不应返回错误：%v", err)
	}
	if *e.InputText != "hello" || e.InputTruncated || *e.OutputText != "日" || !e.OutputTruncated {
		t.Fatalf("截断结果错误：%q %v %q %v", *e.InputText, e.InputTruncated, *e.OutputText, e.OutputTruncated)
	}

	e = &TranslationEvent{OutputText: text("日本語")}
	err := (TextPolicy{Limit: 5}).Apply(e)
	if ee, ok := errs.As(err); !ok || ee.Field != "output_text" {
		t.Fatalf("期望 output_text 的 ValidationError，实际 %v", err)
	}
	if *e.OutputText != "日本語" || e.OutputTruncated {
		t.Fatalf("拒绝时事件不应被修改")
	}

	e = &TranslationEvent{InputText: text("任意长度的文本")}
	if err := (TextPolicy{}).Apply(e); err != nil || e.InputTruncated {
		t.Fatalf("上限为 0 时不应限制：%v", err)
	}
}

func TestValidateRejectsAmbiguousKeys(t *testing.T) {
	base := func() TranslationEvent {
		return TranslationEvent{
			Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 1000, time.UTC),
			ModelName:  "qwen/qwen2.5:7b",
			SourceLang: "zh-Hans",
			TargetLang: "en",
			LatencyMs:  1,
		}
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("合法记录不应报错：%v", err)
	}

	cases := map[string]struct {
		field  string
		mutate func(*TranslationEvent)
	}{
		"pipe in model":   {"model_name", func(e *TranslationEvent) { e.ModelName = "a|b" }},
		"pipe in source":  {"source_lang", func(e *TranslationEvent) { e.SourceLang = "b|c" }},
		"arrow in target": {"target_lang", func(e *TranslationEvent) { e.TargetLang = "x->y" }},
		"sub-microsecond": {"timestamp", func(e *TranslationEvent) {
			e.Timestamp = time.Date(2024, 5, 1, 12, 0, 0, 1500, time.UTC)
		}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			e := base()
			c.mutate(&e)
			err := e.Validate()
			if !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("期望 ValidationError，实际 %v", err)
			}
			if ee, _ := errs.As(err); ee.Field != c.field {
				t.Fatalf("期望字段 %s，实际 %s", c.field, ee.Field)
			}
		})
	}
}
