package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Media     MediaConfig     `mapstructure:"media"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"` // debug, release, test
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig Addr 为空时不启用缓存与跨实例推送
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SummaryTTL  time.Duration `mapstructure:"summary_ttl"`
	PushChannel string        `mapstructure:"push_channel"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// MessagingConfig 私信推送与限流参数
type MessagingConfig struct {
	PushQueueSize     int      `mapstructure:"push_queue_size"`
	PushWorkers       int      `mapstructure:"push_workers"`
	SendRatePerSecond float64  `mapstructure:"send_rate_per_second"`
	SendBurst         int      `mapstructure:"send_burst"`
	ProhibitedWords   []string `mapstructure:"prohibited_words"`
}

type MediaConfig struct {
	FilesRoutePrefix string `mapstructure:"files_route_prefix"`
	DefaultAvatar    string `mapstructure:"default_avatar"`
}

// Load 读取配置：.env -> config.yaml（可选）-> APP_ 前缀环境变量
func Load() (*Config, error) {
	// .env 不存在时直接使用默认值
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("APP_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必须项
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "community.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.summary_ttl", 5*time.Minute)
	v.SetDefault("redis.push_channel", "community:push")

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "community-messaging")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("messaging.push_queue_size", 10000)
	v.SetDefault("messaging.push_workers", 4)
	v.SetDefault("messaging.send_rate_per_second", 5.0)
	v.SetDefault("messaging.send_burst", 10)
	v.SetDefault("messaging.prohibited_words", []string{})

	v.SetDefault("media.files_route_prefix", "/api/files/")
	v.SetDefault("media.default_avatar", "/images/default-avatar.jpg")
}
