package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("加载配置失败：%v", err)
	}
	if cfg.Port != ":3000" || cfg.DBType != "sqlite" || cfg.DBPath != "transtat.db" {
		t.Fatalf("默认值错误：%+v", cfg)
	}
	if cfg.TextPolicy != "reject" || cfg.TextLimit != 0 {
		t.Fatalf("文本策略默认值错误：%s %d", cfg.TextPolicy, cfg.TextLimit)
	}
	if cfg.StorageTimeout != 5*time.Second || cfg.QueryTimeout != 30*time.Second || cfg.QueryBatchSize != 200 {
		t.Fatalf("超时默认值错误：%+v", cfg)
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("DB_TYPE", "POSTGRES")
	t.Setenv("DB_REPLICAS", "host=r1,host=r2")
	t.Setenv("STORAGE_TIMEOUT", "2s")
	t.Setenv("TEXT_POLICY", "truncate")
	t.Setenv("PORT", ":8080")

	cfg, err := Load([]string{"-port", ":9090", "-text-limit", "1024"})
	if err != nil {
		t.Fatalf("加载配置失败：%v", err)
	}
	if cfg.DBType != "postgres" {
		t.Fatalf("数据库类型应规范化为小写，实际 %s", cfg.DBType)
	}
	if len(cfg.DBReplicas) != 2 || cfg.DBReplicas[1] != "host=r2" {
		t.Fatalf("副本解析错误：%v", cfg.DBReplicas)
	}
	if cfg.StorageTimeout != 2*time.Second || cfg.TextPolicy != "truncate" {
		t.Fatalf("环境变量未生效：%+v", cfg)
	}
	if cfg.Port != ":9090" || cfg.TextLimit != 1024 {
		t.Fatalf("命令行参数应覆盖环境变量：%s %d", cfg.Port, cfg.TextLimit)
	}
}

func TestLoadEnvParseError(t *testing.T) {
	t.Setenv("QUERY_TIMEOUT", "soon")
	_, err := Load(nil)
	if err == nil || !strings.Contains(err.Error(), "解析环境变量失败") {
		t.Fatalf("期望解析错误，实际 %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DBType:         "sqlite",
			TextPolicy:     "reject",
			StorageTimeout: time.Second,
			QueryTimeout:   time.Second,
			QueryBatchSize: 10,
			LogLevel:       "INFO",
		}
	}

	cases := map[string]func(*Config){
		"db type":       func(c *Config) { c.DBType = "oracle" },
		"text policy":   func(c *Config) { c.TextPolicy = "drop" },
		"text limit":    func(c *Config) { c.TextLimit = -1 },
		"storage":       func(c *Config) { c.StorageTimeout = 0 },
		"query timeout": func(c *Config) { c.QueryTimeout = -time.Second },
		"batch size":    func(c *Config) { c.QueryBatchSize = 0 },
		"pool":          func(c *Config) { c.DBMaxOpenConns = -1 },
		"log level":     func(c *Config) { c.LogLevel = "LOUD" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("期望校验失败")
			}
		})
	}

	c := base()
	if err := c.Validate(); err != nil {
		t.Fatalf("合法配置校验失败：%v", err)
	}
}

func TestValidateClampsMySQLTextLimit(t *testing.T) {
	for _, limit := range []int{0, 1 << 20} {
		c := &Config{
			DBType:         "mysql",
			TextPolicy:     "reject",
			TextLimit:      limit,
			StorageTimeout: time.Second,
			QueryTimeout:   time.Second,
			QueryBatchSize: 1,
			LogLevel:       "WARN",
		}
		if err := c.Validate(); err != nil {
			t.Fatalf("校验失败：%v", err)
		}
		if c.TextLimit != mysqlTextLimit {
			t.Fatalf("期望上限为 %d，实际 %d", mysqlTextLimit, c.TextLimit)
		}
	}
}

func TestLevelAndReadToken(t *testing.T) {
	c := &Config{LogLevel: "debug", APIToken: "ingest"}
	level, err := c.Level()
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("期望 DEBUG，实际 %v %v", level, err)
	}
	if c.ReadToken() != "ingest" {
		t.Fatalf("未配置管理 Token 时应回退到 API Token")
	}
	c.AdminToken = "admin"
	if c.ReadToken() != "admin" {
		t.Fatalf("应优先使用管理 Token")
	}
}

func TestDatabaseOptions(t *testing.T) {
	c := &Config{DBType: "postgres", DBHost: "db", DBPass: "secret", DBReplicas: []string{"host=r1"}, DBMaxOpenConns: 8}
	opts := c.DatabaseOptions()
	if opts.Type != "postgres" || opts.Host != "db" || opts.Password != "secret" || opts.MaxOpenConns != 8 || len(opts.Replicas) != 1 {
		t.Fatalf("数据库连接参数错误：%+v", opts)
	}
}
