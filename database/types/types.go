package types

// 全局注册切片，供 AutoMigrate 使用
var Types = []interface{}{
	// Telemetry
	TranslationEvent{},
}
