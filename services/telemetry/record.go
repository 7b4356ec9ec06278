package telemetry

import (
	"context"

	"github.com/MeowSalty/transtat/database/types"
	"github.com/MeowSalty/transtat/errs"
)

// RecordTranslation 记录一次已完成的翻译
//
// 写入是原子的：校验失败或存储失败时不会留下任何记录。
func (s *service) RecordTranslation(ctx context.Context, in RecordInput) (uint64, error) {
	event, err := s.buildEvent(in)
	if err != nil {
		s.logger.WarnContext(ctx, "遥测记录校验失败", "model", in.ModelName, "error", err)
		return 0, err
	}

	id, err := storageCall(s, ctx, "写入遥测记录", func(ctx context.Context) (uint64, error) {
		return s.store.Insert(ctx, event)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "写入遥测记录失败", "model", event.ModelName, "error", err)
		return 0, err
	}

	s.collector.RecordEvent()
	s.logger.InfoContext(ctx, "已记录翻译遥测",
		"id", id,
		"model", event.ModelName,
		"latency_ms", event.LatencyMs,
		"tokens_per_sec", event.TokensPerSec,
	)
	return id, nil
}

// buildEvent 校验必填字段并应用文本策略
func (s *service) buildEvent(in RecordInput) (*types.TranslationEvent, error) {
	switch {
	case in.InputLength == nil:
		return nil, errs.Validation("input_length", "缺少必填字段")
	case in.OutputLength == nil:
		return nil, errs.Validation("output_length", "缺少必填字段")
	case in.LatencyMs == nil:
		return nil, errs.Validation("latency_ms", "缺少必填字段")
	}

	event := &types.TranslationEvent{
		ModelName:    in.ModelName,
		SourceLang:   in.SourceLang,
		TargetLang:   in.TargetLang,
		InputLength:  *in.InputLength,
		OutputLength: *in.OutputLength,
		LatencyMs:    *in.LatencyMs,
		TokensPerSec: in.TokensPerSec,
		Similarity:   in.SimilarityScore,
		InputText:    in.InputText,
		OutputText:   in.OutputText,
	}
	switch {
	case in.Timestamp == nil:
		event.Timestamp = s.now().UTC().Truncate(types.TimestampPrecision)
	case in.Timestamp.IsZero():
		return nil, errs.Validation("timestamp", "不能为零值，缺省时请省略该字段")
	default:
		event.Timestamp = in.Timestamp.UTC()
	}

	if err := s.textPolicy().Apply(event); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// textPolicy 返回配置对应的文本策略
func (s *service) textPolicy() types.TextPolicy {
	return types.TextPolicy{
		Limit:    s.opts.TextLimit,
		Truncate: s.opts.TextPolicy == PolicyTruncate,
	}
}
