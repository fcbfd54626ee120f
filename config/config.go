// Package config 加载 repokit 配置：YAML 文件 + REPOKIT_* 环境变量覆盖。
package config

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"repokit/data/db"
	"repokit/errors"
	"repokit/logging"
)

// EnvPrefix 环境变量前缀，例如 REPOKIT_DATABASE_DSN 覆盖 database.dsn
const EnvPrefix = "REPOKIT"

// Config 根配置
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	ChangeFeed ChangeFeedConfig `mapstructure:"changefeed"`
	Log        LogConfig        `mapstructure:"log"`
	Query      QueryConfig      `mapstructure:"query"`
}

// DatabaseConfig 数据库连接与连接池
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// DBConfig 转换为 data/db 的配置
func (c DatabaseConfig) DBConfig() db.DBConfig {
	return db.DBConfig{
		Driver:          c.Driver,
		Database:        c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// 变更通知传输类型
const (
	TransportNone  = "none"
	TransportSync  = "sync"
	TransportNATS  = "nats"
	TransportRedis = "redis"
)

// ChangeFeedConfig 变更通知传输
type ChangeFeedConfig struct {
	Transport     string `mapstructure:"transport"`
	NatsURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Stream        string `mapstructure:"stream"`
	MaxLen        int64  `mapstructure:"max_len"`
}

// LogConfig 日志
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ParsedLevel 返回解析后的日志级别
func (c LogConfig) ParsedLevel() logging.Level {
	return logging.ParseLevel(c.Level)
}

// QueryConfig 查询默认值
type QueryConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// ClampPageSize 把请求的页大小限制在 (0, MaxPageSize]，非正数取默认值
func (c QueryConfig) ClampPageSize(size int) int {
	if size <= 0 {
		size = c.DefaultPageSize
	}
	if c.MaxPageSize > 0 && size > c.MaxPageSize {
		size = c.MaxPageSize
	}
	return size
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "repokit.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.conn_max_idle_time", 0)

	v.SetDefault("changefeed.transport", TransportNone)
	v.SetDefault("changefeed.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("changefeed.subject_prefix", "repokit.")
	v.SetDefault("changefeed.redis_addr", "127.0.0.1:6379")
	v.SetDefault("changefeed.redis_password", "")
	v.SetDefault("changefeed.redis_db", 0)
	v.SetDefault("changefeed.stream", "")
	v.SetDefault("changefeed.max_len", 0)

	v.SetDefault("log.level", "info")

	v.SetDefault("query.default_page_size", 20)
	v.SetDefault("query.max_page_size", 500)
}

// Load 读取配置。path 为空时只使用默认值与环境变量；文件不存在视为错误。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfig, fmt.Sprintf("read config %s failed", path))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfig, "unmarshal config failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Driver) == "" {
		errs = append(errs, fmt.Errorf("database.driver is required"))
	}
	switch c.ChangeFeed.Transport {
	case TransportNone, TransportSync, TransportNATS, TransportRedis:
	default:
		errs = append(errs, fmt.Errorf("changefeed.transport %q is not one of none|sync|nats|redis", c.ChangeFeed.Transport))
	}
	if c.Query.DefaultPageSize <= 0 {
		errs = append(errs, fmt.Errorf("query.default_page_size must be positive"))
	}
	if c.Query.MaxPageSize > 0 && c.Query.DefaultPageSize > c.Query.MaxPageSize {
		errs = append(errs, fmt.Errorf("query.default_page_size exceeds query.max_page_size"))
	}
	if len(errs) > 0 {
		return errors.WrapError(stdErrors.Join(errs...), errors.ErrCodeConfig, "invalid config")
	}
	return nil
}
