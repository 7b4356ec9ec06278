package types

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/MeowSalty/transtat/errs"
)

// TimestampPrecision 时间戳持久化精度，PostgreSQL 与 MySQL datetime(6) 的最小公共精度
const TimestampPrecision = time.Microsecond

// KeySeparator 聚合分组键各部分之间的分隔符
//
// 模型名称与语言代码都不允许包含它，语言代码也不允许包含 '>'，
// 因此 "src->tgt" 形式的语言对与拼接后的分组键都不会产生歧义。
const KeySeparator = "|"

// PairSeparator 语言对中源语言与目标语言之间的分隔符
const PairSeparator = "->"

// maxLangLength 语言代码最大长度
const maxLangLength = 16

// maxModelNameLength 模型名称最大长度
const maxModelNameLength = 128

// TranslationEvent 表示一次已完成翻译的遥测记录 (translation_events)
//
// 记录只追加不修改：ID 由存储层分配且严格递增，没有更新操作。
type TranslationEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // 唯一标识符，按插入顺序递增

	Timestamp  time.Time `gorm:"not null;precision:6;index:idx_translation_events_timestamp" json:"timestamp"` // 翻译完成时间
	ModelName  string    `gorm:"size:128;not null;index:idx_translation_events_model_name" json:"model_name"`  // 模型名称
	SourceLang string    `gorm:"size:16;not null" json:"source_lang"`                                          // 源语言
	TargetLang string    `gorm:"size:16;not null" json:"target_lang"`                                          // 目标语言

	// 规模与耗时
	InputLength  int64    `gorm:"not null" json:"input_length"`                              // 输入长度（Token 或字符数）
	OutputLength int64    `gorm:"not null" json:"output_length"`                             // 输出长度
	LatencyMs    float64  `gorm:"not null" json:"latency_ms"`                                // 总耗时（毫秒）
	TokensPerSec *float64 `json:"tokens_per_sec,omitempty"`                                  // 吞吐（Token/秒）
	Similarity   *float64 `gorm:"column:similarity_score" json:"similarity_score,omitempty"` // 质量分，通常在 [0,1]

	// 文本载荷
	InputText       *string `gorm:"type:text" json:"input_text,omitempty"`
	OutputText      *string `gorm:"type:text" json:"output_text,omitempty"`
	InputTruncated  bool    `gorm:"not null;default:false" json:"input_truncated"`  // 输入文本是否按策略截断
	OutputTruncated bool    `gorm:"not null;default:false" json:"output_truncated"` // 输出文本是否按策略截断
}

// TableName 指定表名
func (TranslationEvent) TableName() string {
	return "translation_events"
}

// LanguagePair 返回 "源语言->目标语言" 形式的语言对
func (e *TranslationEvent) LanguagePair() string {
	return e.SourceLang + PairSeparator + e.TargetLang
}

// Validate 校验写入前的必填字段与数值范围
//
// 返回 *errs.Error（CodeValidation），指出第一个不合法的字段。
func (e *TranslationEvent) Validate() error {
	if e.ID != 0 {
		return errs.Validation("id", "由存储层分配，不能由调用方提供")
	}
	if !e.Timestamp.IsZero() && !e.Timestamp.Equal(e.Timestamp.Truncate(TimestampPrecision)) {
		return errs.Validation("timestamp", "精度不能超过微秒")
	}
	if strings.TrimSpace(e.ModelName) == "" {
		return errs.Validation("model_name", "不能为空")
	}
	if len(e.ModelName) > maxModelNameLength {
		return errs.Validation("model_name", "长度超出限制")
	}
	if strings.Contains(e.ModelName, KeySeparator) {
		return errs.Validation("model_name", "不能包含分组分隔符 "+KeySeparator)
	}
	if err := validateLang("source_lang", e.SourceLang); err != nil {
		return err
	}
	if err := validateLang("target_lang", e.TargetLang); err != nil {
		return err
	}
	if e.InputLength < 0 {
		return errs.Validation("input_length", "不能为负数")
	}
	if e.OutputLength < 0 {
		return errs.Validation("output_length", "不能为负数")
	}
	if err := validateNonNegative("latency_ms", e.LatencyMs); err != nil {
		return err
	}
	if e.TokensPerSec != nil {
		if err := validateNonNegative("tokens_per_sec", *e.TokensPerSec); err != nil {
			return err
		}
	}
	if e.Similarity != nil && !isFinite(*e.Similarity) {
		return errs.Validation("similarity_score", "必须是有限数值")
	}
	return nil
}

func validateLang(field, lang string) error {
	if lang == "" {
		return errs.Validation(field, "不能为空")
	}
	if len(lang) > maxLangLength {
		return errs.Validation(field, "长度超出限制")
	}
	for _, r := range lang {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errs.Validation(field, "不能包含空白字符")
		}
	}
	if strings.ContainsAny(lang, KeySeparator+">") {
		return errs.Validation(field, "不能包含分组分隔符")
	}
	return nil
}

func validateNonNegative(field string, v float64) error {
	if !isFinite(v) {
		return errs.Validation(field, "必须是有限数值")
	}
	if v < 0 {
		return errs.Validation(field, "不能为负数")
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
