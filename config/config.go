package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MeowSalty/transtat/database"
	"github.com/MeowSalty/transtat/database/types"
)

// mysqlTextLimit MySQL TEXT 列的最大字节数
const mysqlTextLimit = 65535

// Config 应用配置
type Config struct {
	// 服务器配置
	Port string
	Prod bool

	// 数据库配置
	DBType         string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPass         string
	DBName         string
	DBSSLMode      string
	DBTLSConfig    string
	DBPath         string
	DBReplicas     []string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnLifetime time.Duration

	// API Token 配置
	APIToken   string
	AdminToken string

	// 日志配置
	LogLevel string
	LogDir   string

	// 遥测写入配置
	TextLimit      int
	TextPolicy     string
	StorageTimeout time.Duration

	// 查询配置
	QueryTimeout   time.Duration
	QueryBatchSize int
}

// LoadConfig 加载配置，命令行参数优先于环境变量
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load 从环境变量和给定的命令行参数加载配置
func Load(args []string) (*Config, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	cfg := FromEnv(env)
	if err := cfg.loadFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv 由环境变量配置构造应用配置
func FromEnv(env *Env) *Config {
	return &Config{
		Port:           env.Port,
		Prod:           env.Prod,
		DBType:         env.DBType,
		DBHost:         env.DBHost,
		DBPort:         env.DBPort,
		DBUser:         env.DBUser,
		DBPass:         env.DBPass,
		DBName:         env.DBName,
		DBSSLMode:      env.DBSSLMode,
		DBTLSConfig:    env.DBTLSConfig,
		DBPath:         env.DBPath,
		DBReplicas:     env.DBReplicas,
		DBMaxOpenConns: env.DBMaxOpenConns,
		DBMaxIdleConns: env.DBMaxIdleConns,
		DBConnLifetime: env.DBConnLifetime,
		APIToken:       env.APIToken,
		AdminToken:     env.AdminToken,
		LogLevel:       env.LogLevel,
		LogDir:         env.LogDir,
		TextLimit:      env.TextLimit,
		TextPolicy:     env.TextPolicy,
		StorageTimeout: env.StorageTimeout,
		QueryTimeout:   env.QueryTimeout,
		QueryBatchSize: env.QueryBatchSize,
	}
}

// loadFlags 从命令行参数加载配置
func (c *Config) loadFlags(args []string) error {
	fs := flag.NewFlagSet("transtat", flag.ContinueOnError)

	fs.StringVar(&c.Port, "port", c.Port, "监听端口")
	fs.BoolVar(&c.Prod, "prod", c.Prod, "在生产环境中启用 prefork")

	// 数据库相关参数
	fs.StringVar(&c.DBType, "db-type", c.DBType, "数据库类型 (sqlite, mysql, postgres)")
	fs.StringVar(&c.DBHost, "db-host", c.DBHost, "数据库主机地址")
	fs.StringVar(&c.DBPort, "db-port", c.DBPort, "数据库端口")
	fs.StringVar(&c.DBUser, "db-user", c.DBUser, "数据库用户名")
	fs.StringVar(&c.DBPass, "db-pass", c.DBPass, "数据库密码")
	fs.StringVar(&c.DBName, "db-name", c.DBName, "数据库名称")
	fs.StringVar(&c.DBSSLMode, "db-ssl-mode", c.DBSSLMode, "PostgreSQL SSL 模式 (disable, require, verify-ca, verify-full)")
	fs.StringVar(&c.DBTLSConfig, "db-tls-config", c.DBTLSConfig, "MySQL TLS 配置 (true, false, skip-verify, preferred)")
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "SQLite 数据库文件路径")

	// API Token 参数
	fs.StringVar(&c.APIToken, "api-token", c.APIToken, "写入 API Token，如果为空则不启用身份验证")
	fs.StringVar(&c.AdminToken, "admin-token", c.AdminToken, "查询 API Token，如果为空则使用 API Token")

	// 日志参数
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "日志输出等级 (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "日志文件目录，为空则只输出到控制台")

	// 遥测参数
	fs.IntVar(&c.TextLimit, "text-limit", c.TextLimit, "文本载荷字节上限，0 表示不限")
	fs.StringVar(&c.TextPolicy, "text-policy", c.TextPolicy, "文本超限策略 (reject, truncate)")
	fs.DurationVar(&c.StorageTimeout, "storage-timeout", c.StorageTimeout, "单次存储调用超时")
	fs.DurationVar(&c.QueryTimeout, "query-timeout", c.QueryTimeout, "查询请求超时")
	fs.IntVar(&c.QueryBatchSize, "query-batch-size", c.QueryBatchSize, "查询每批读取的记录数")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("解析命令行参数失败：%w", err)
	}
	return nil
}

// Validate 校验配置并规范化取值
func (c *Config) Validate() error {
	c.DBType = strings.ToLower(c.DBType)
	switch c.DBType {
	case database.TypeSQLite, database.TypeMySQL, database.TypePostgres:
	default:
		return fmt.Errorf("不支持的数据库类型：%s", c.DBType)
	}

	c.TextPolicy = strings.ToLower(c.TextPolicy)
	switch c.TextPolicy {
	case "reject", "truncate":
	default:
		return fmt.Errorf("不支持的文本超限策略：%s", c.TextPolicy)
	}

	if c.TextLimit < 0 {
		return fmt.Errorf("TEXT_LIMIT 不能为负数：%d", c.TextLimit)
	}
	if c.DBType == database.TypeMySQL && (c.TextLimit == 0 || c.TextLimit > mysqlTextLimit) {
		c.TextLimit = mysqlTextLimit
	}

	if c.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT 必须大于 0：%s", c.StorageTimeout)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT 必须大于 0：%s", c.QueryTimeout)
	}
	if c.QueryBatchSize <= 0 {
		return fmt.Errorf("QUERY_BATCH_SIZE 必须大于 0：%d", c.QueryBatchSize)
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 || c.DBConnLifetime < 0 {
		return fmt.Errorf("数据库连接池参数不能为负数")
	}

	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level 解析日志等级
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("无效的日志等级：%s", c.LogLevel)
	}
	return level, nil
}

// ReadToken 返回查询接口使用的 Token，未配置管理 Token 时回退到写入 Token
func (c *Config) ReadToken() string {
	if c.AdminToken != "" {
		return c.AdminToken
	}
	return c.APIToken
}

// DatabaseOptions 返回数据库连接参数
func (c *Config) DatabaseOptions() database.Options {
	return database.Options{
		Type:            c.DBType,
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPass,
		Name:            c.DBName,
		SSLMode:         c.DBSSLMode,
		TLSConfig:       c.DBTLSConfig,
		Path:            c.DBPath,
		Replicas:        c.DBReplicas,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnLifetime,
		Text: types.TextPolicy{
			Limit:    c.TextLimit,
			Truncate: c.TextPolicy == "truncate",
		},
	}
}
