// Package config loads the datalayer CLI configuration from defaults, an
// optional YAML file and DATALAYER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/pkg/persist"
)

// EnvPrefix prefixes every environment override, e.g. DATALAYER_STORAGE_DRIVER.
const EnvPrefix = "DATALAYER"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	TTL      TTLConfig      `mapstructure:"ttl"`
	Triggers TriggersConfig `mapstructure:"triggers"`
	Page     PageConfig     `mapstructure:"page"`
	Log      LogConfig      `mapstructure:"log"`
}

type StorageConfig struct {
	Driver     string              `mapstructure:"driver"`
	SQLitePath string              `mapstructure:"sqlite_path"`
	Redis      persist.RedisConfig `mapstructure:"redis"`
}

type TTLConfig struct {
	State    time.Duration `mapstructure:"state"`
	Checkout time.Duration `mapstructure:"checkout"`
	Triggers time.Duration `mapstructure:"triggers"`
}

type TriggersConfig struct {
	URL          string        `mapstructure:"url"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

type PageConfig struct {
	Title string `mapstructure:"title"`
	Path  string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	redis := persist.DefaultRedisConfig()
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite_path", "datalayer.db")
	v.SetDefault("storage.redis.addr", redis.Addr)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", redis.DB)
	v.SetDefault("storage.redis.key_prefix", redis.KeyPrefix)
	v.SetDefault("storage.redis.dial_timeout", redis.DialTimeout)
	v.SetDefault("storage.redis.read_timeout", redis.ReadTimeout)
	v.SetDefault("storage.redis.write_timeout", redis.WriteTimeout)
	v.SetDefault("ttl.state", persist.StateTTL)
	v.SetDefault("ttl.checkout", persist.CheckoutTTL)
	v.SetDefault("ttl.triggers", persist.TriggersTTL)
	v.SetDefault("triggers.url", "")
	v.SetDefault("triggers.ready_timeout", 10*time.Second)
	v.SetDefault("page.title", "")
	v.SetDefault("page.path", "/")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path, or datalayer.yaml in the working directory when path is
// empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("datalayer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", describe(path), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func describe(path string) string {
	if path == "" {
		return "datalayer.yaml"
	}
	return path
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("%w: storage.sqlite_path is required for the sqlite driver", ErrInvalidConfig)
		}
	case DriverRedis:
		if err := c.Storage.Redis.Validate(); err != nil {
			return fmt.Errorf("%w: storage.redis: %v", ErrInvalidConfig, err)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.TTL.State < 0 || c.TTL.Checkout < 0 || c.TTL.Triggers < 0 {
		return fmt.Errorf("%w: ttl values must not be negative", ErrInvalidConfig)
	}
	if c.Triggers.ReadyTimeout < 0 {
		return fmt.Errorf("%w: triggers.ready_timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Logger builds a zap logger for the configured level.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
