package database

import (
	"log/slog"

	"github.com/MeowSalty/transtat/database/types"
	"gorm.io/gorm"
)

// autoMigrate 自动迁移数据库表结构
//
// 该函数负责创建或更新表结构及 model_name、timestamp 两个二级索引，
// 随后导入旧版监控脚本留下的 translation_logs 数据。
//
// 参数：
//   - db: GORM 数据库连接对象
//   - text: 导入旧数据时的文本策略
//   - logger: 迁移日志记录器
//
// 返回值：
//   - error: 迁移过程中可能发生的错误
func autoMigrate(db *gorm.DB, text types.TextPolicy, logger *slog.Logger) error {
	if err := db.AutoMigrate(types.Types...); err != nil {
		return err
	}
	return migrateLegacyTranslationLogs(db, text, logger)
}
