package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeowSalty/transtat/database/types"
	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// 支持的数据库类型
const (
	TypeSQLite   = "sqlite"
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
)

// slowQueryThreshold 慢查询日志阈值
const slowQueryThreshold = 500 * time.Millisecond

// Options 数据库连接参数
type Options struct {
	Type      string // 数据库类型 (sqlite, mysql, postgres)
	Host      string
	Port      string
	User      string
	Password  string
	Name      string
	SSLMode   string // PostgreSQL SSL 模式
	TLSConfig string // MySQL TLS 配置
	Path      string // SQLite 文件路径

	// Replicas 只读副本 DSN，与主库同类型；聚合查询优先路由到副本
	Replicas []string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Text 导入旧表数据时使用的文本策略，与写入路径保持一致
	Text types.TextPolicy
}

// Store 遥测存储句柄
//
// 由 Connect 显式创建，由 Close 释放；不依赖任何全局状态。
type Store struct {
	db          *gorm.DB
	sqlDB       *sql.DB
	dialect     string
	hasReplicas bool
	logger      *slog.Logger
}

// Connect 连接到数据库
//
// 该函数根据提供的数据库类型和连接信息连接到数据库，配置 slog-gorm 日志记录器，
// 注册只读副本并自动迁移表结构。
//
// 参数：
//   - opts: 数据库连接参数
//   - logger: 用于数据库操作的日志记录器
//
// 返回值：
//   - *Store: 遥测存储句柄
//   - error: 连接过程中可能发生的错误
func Connect(opts Options, logger *slog.Logger) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: slogGorm.New(
			slogGorm.WithHandler(logger.Handler()),
			slogGorm.WithSlowThreshold(slowQueryThreshold),
		),
		// 单行追加无需默认事务
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	dialector, err := openDialector(opts.Type, opts)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, errors.New("无法打开数据库：" + err.Error())
	}

	if len(opts.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(opts.Replicas))
		for _, dsn := range opts.Replicas {
			replicas = append(replicas, dialectorForDSN(opts.Type, dsn))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		})
		if opts.MaxOpenConns > 0 {
			resolver = resolver.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if err := db.Use(resolver); err != nil {
			return nil, errors.New("无法注册只读副本：" + err.Error())
		}
		logger.Info("已注册只读副本", "replicas", len(replicas))
	}

	if err := autoMigrate(db, opts.Text, logger); err != nil {
		return nil, errors.New("无法自动迁移数据库：" + err.Error())
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.New("无法获取数据库连接：" + err.Error())
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	logger.Info("数据库连接成功", "type", db.Dialector.Name())

	return &Store{
		db:          db,
		sqlDB:       sqlDB,
		dialect:     db.Dialector.Name(),
		hasReplicas: len(opts.Replicas) > 0,
		logger:      logger,
	}, nil
}

// openDialector 根据连接参数构造主库 Dialector
func openDialector(dbType string, opts Options) (gorm.Dialector, error) {
	switch dbType {
	case TypeMySQL:
		if opts.Host == "" || opts.Port == "" || opts.User == "" || opts.Password == "" || opts.Name == "" {
			return nil, errors.New("使用 MySQL 数据库需要提供主机、端口、用户名、密码和数据库名")
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC", opts.User, opts.Password, opts.Host, opts.Port, opts.Name)
		if opts.TLSConfig != "" {
			dsn += "&tls=" + opts.TLSConfig
		}
		return mysql.Open(dsn), nil
	case TypePostgres:
		if opts.Host == "" || opts.Port == "" || opts.User == "" || opts.Password == "" || opts.Name == "" {
			return nil, errors.New("使用 PostgreSQL 数据库需要提供主机、端口、用户名、密码和数据库名")
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s TimeZone=UTC", opts.Host, opts.User, opts.Password, opts.Name, opts.Port)
		if opts.SSLMode != "" {
			dsn += " sslmode=" + opts.SSLMode
		}
		return postgres.Open(dsn), nil
	case TypeSQLite, "":
		path := opts.Path
		if path == "" {
			path = "transtat.db"
		}
		return sqlite.Open(sqliteDSN(path)), nil
	default:
		return nil, fmt.Errorf("不支持的数据库类型：%s", dbType)
	}
}

// dialectorForDSN 使用完整 DSN 构造副本 Dialector
func dialectorForDSN(dbType, dsn string) gorm.Dialector {
	switch dbType {
	case TypeMySQL:
		return mysql.Open(dsn)
	case TypePostgres:
		return postgres.Open(dsn)
	default:
		return sqlite.Open(sqliteDSN(dsn))
	}
}

// sqliteDSN 为 SQLite 打开 WAL 与忙等待，允许读写并发
func sqliteDSN(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// Dialect 返回底层数据库方言名称
func (s *Store) Dialect() string {
	return s.dialect
}

// Ping 检查主库连接
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.sqlDB.PingContext(ctx))
}

// Close 关闭数据库连接池
func (s *Store) Close() error {
	s.logger.Info("正在关闭数据库连接")
	return s.sqlDB.Close()
}
