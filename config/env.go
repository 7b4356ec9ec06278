package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env 环境变量配置
type Env struct {
	Port string `env:"PORT" envDefault:":3000"`
	Prod bool   `env:"PROD"`

	DBType         string        `env:"DB_TYPE" envDefault:"sqlite"`
	DBHost         string        `env:"DB_HOST"`
	DBPort         string        `env:"DB_PORT"`
	DBUser         string        `env:"DB_USER"`
	DBPass         string        `env:"DB_PASS"`
	DBName         string        `env:"DB_NAME"`
	DBSSLMode      string        `env:"DB_SSL_MODE"`   // PostgreSQL SSL 模式
	DBTLSConfig    string        `env:"DB_TLS_CONFIG"` // MySQL TLS 配置
	DBPath         string        `env:"DB_PATH" envDefault:"transtat.db"`
	DBReplicas     []string      `env:"DB_REPLICAS" envSeparator:","` // 只读副本 DSN，逗号分隔
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"0"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"0"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"0s"`
	APIToken       string        `env:"API_TOKEN"`
	AdminToken     string        `env:"ADMIN_TOKEN"` // 管理 API Token
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"INFO"`
	LogDir         string        `env:"LOG_DIR" envDefault:"logs"`
	TextLimit      int           `env:"TEXT_LIMIT" envDefault:"0"` // 文本载荷字节上限，0 表示不限
	TextPolicy     string        `env:"TEXT_POLICY" envDefault:"reject"`
	StorageTimeout time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`
	QueryTimeout   time.Duration `env:"QUERY_TIMEOUT" envDefault:"30s"`
	QueryBatchSize int           `env:"QUERY_BATCH_SIZE" envDefault:"200"`
}

// LoadEnv 从 .env 文件和环境变量加载配置
//
// .env 文件是可选的，已存在的环境变量优先于 .env 中的值。
func LoadEnv() (*Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 文件失败：%w", err)
	}

	e := &Env{}
	if err := env.Parse(e); err != nil {
		return nil, fmt.Errorf("解析环境变量失败：%w", err)
	}
	return e, nil
}
