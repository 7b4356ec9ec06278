package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MeowSalty/transtat/database/types"
	"gorm.io/gorm"
)

// legacyTable 旧版监控脚本写入的表
const legacyTable = "translation_logs"

// legacyBatchSize 旧数据导入批大小
const legacyBatchSize = 500

// legacyLog 旧表的行结构，数值列在旧表中允许为空
type legacyLog struct {
	ID              int64
	ModelName       *string
	SourceLang      *string
	TargetLang      *string
	InputLength     *int64
	OutputLength    *int64
	LatencyMs       *float64
	TokensPerSec    *float64
	SimilarityScore *float64
	InputText       *string
	OutputText      *string
	Timestamp       *time.Time
}

// migrateLegacyTranslationLogs 将旧版 translation_logs 表导入 translation_events
//
// 仅当旧表存在且新表为空时执行，保证只导入一次。旧表按 id 顺序导入，
// 新记录的 ID 因此保持原有插入顺序。不满足写入校验的旧行会被跳过并计数。
// 文本载荷按 text 处理：截断策略下截断并标记，拒绝策略下跳过并单独计数。
// 旧表本身保持不动，由运维决定何时删除。
func migrateLegacyTranslationLogs(db *gorm.DB, text types.TextPolicy, logger *slog.Logger) error {
	if !db.Migrator().HasTable(legacyTable) {
		return nil
	}

	var existing int64
	if err := db.Model(&types.TranslationEvent{}).Count(&existing).Error; err != nil {
		return fmt.Errorf("统计 translation_events 失败：%w", err)
	}
	if existing > 0 {
		return nil
	}

	// 旧表的时间列可能叫 timestamp 或 created_at
	timeColumn := ""
	for _, col := range []string{"timestamp", "created_at"} {
		if db.Migrator().HasColumn(legacyTable, col) {
			timeColumn = col
			break
		}
	}

	selectCols := "id, model_name, source_lang, target_lang, input_length, output_length, latency_ms, tokens_per_sec, similarity_score, input_text, output_text"
	if timeColumn != "" {
		selectCols += ", " + timeColumn + " AS timestamp"
	}

	logger.Info("检测到旧版 translation_logs 表，开始导入", "time_column", timeColumn)

	var (
		lastID   int64
		imported int
		skipped  int
		oversize int
	)
	importedAt := time.Now().UTC().Truncate(types.TimestampPrecision)

	for {
		var rows []legacyLog
		err := db.Table(legacyTable).
			Select(selectCols).
			Where("id > ?", lastID).
			Order("id").
			Limit(legacyBatchSize).
			Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("读取 translation_logs 失败：%w", err)
		}
		if len(rows) == 0 {
			break
		}

		events := make([]types.TranslationEvent, 0, len(rows))
		for _, row := range rows {
			lastID = row.ID
			event, ok := row.toEvent(importedAt)
			if !ok {
				skipped++
				continue
			}
			if err := text.Apply(&event); err != nil {
				oversize++
				continue
			}
			events = append(events, event)
		}

		if len(events) > 0 {
			if err := db.Create(&events).Error; err != nil {
				return fmt.Errorf("写入 translation_events 失败：%w", err)
			}
			imported += len(events)
		}
	}

	logger.Info("translation_logs 导入完成", "imported", imported, "skipped", skipped, "oversize", oversize)
	return nil
}

// toEvent 转换为新记录，缺失必填字段或校验失败时返回 false
func (l legacyLog) toEvent(fallback time.Time) (types.TranslationEvent, bool) {
	if l.ModelName == nil || l.SourceLang == nil || l.TargetLang == nil ||
		l.InputLength == nil || l.OutputLength == nil || l.LatencyMs == nil {
		return types.TranslationEvent{}, false
	}

	ts := fallback
	if l.Timestamp != nil && !l.Timestamp.IsZero() {
		ts = l.Timestamp.UTC().Truncate(types.TimestampPrecision)
	}

	event := types.TranslationEvent{
		Timestamp:    ts,
		ModelName:    *l.ModelName,
		SourceLang:   *l.SourceLang,
		TargetLang:   *l.TargetLang,
		InputLength:  *l.InputLength,
		OutputLength: *l.OutputLength,
		LatencyMs:    *l.LatencyMs,
		TokensPerSec: l.TokensPerSec,
		Similarity:   l.SimilarityScore,
		InputText:    l.InputText,
		OutputText:   l.OutputText,
	}
	if event.Validate() != nil {
		return types.TranslationEvent{}, false
	}
	return event, true
}
