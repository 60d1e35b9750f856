package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jask/dashlego/core/cache"
)

// Config holds application configuration.
type Config struct {
	Cache    CacheConfig
	Log      LogConfig
	UI       UIConfig
	Pipeline PipelineConfig
}

// CacheConfig selects the stage cache backend.
type CacheConfig struct {
	Backend string
	Dir     string
	TTL     time.Duration
	Redis   RedisConfig
}

// RedisConfig holds distributed cache settings. The signing key is read from
// the environment variable named by SigningKeyEnv, never from the file.
type RedisConfig struct {
	Host          string
	Port          int
	DB            int
	Password      string
	SigningKeyEnv string `mapstructure:"signing_key_env"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
	Dir   string
}

// UIConfig holds presentation settings.
type UIConfig struct {
	Title   string
	Refresh time.Duration
}

// PipelineConfig bounds the async worker pool.
type PipelineConfig struct {
	Workers int
}

func defaultDir(parts ...string) string {
	return filepath.Join(append([]string{os.Getenv("HOME")}, parts...)...)
}

// Load reads configuration from file and env. Env var overrides use prefix DASHLEGO_.
func Load() (Config, error) {
	return LoadFile(os.Getenv("DASHLEGO_CONFIG"))
}

// LoadFile is Load with an explicit config path; empty means the default location.
func LoadFile(cfgPath string) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.dir", defaultDir(".cache", "dashlego"))
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.signing_key_env", "DASHLEGO_SIGNING_KEY")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", defaultDir(".local", "state", "dashlego"))
	v.SetDefault("ui.title", "dashlego")
	v.SetDefault("ui.refresh", 30*time.Second)
	v.SetDefault("pipeline.workers", 4)

	v.SetConfigType("toml")

	explicit := cfgPath != ""
	if explicit {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(defaultDir(".config", "dashlego"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DASHLEGO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// a missing default file is fine, a missing explicit one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Pipeline.Workers <= 0 {
		return Config{}, fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	return c, nil
}

// Descriptor maps the cache section onto a cache descriptor.
func (c Config) Descriptor() (cache.Descriptor, error) {
	kind, err := cache.ParseKind(c.Cache.Backend)
	if err != nil {
		return cache.Descriptor{}, err
	}
	d := cache.Descriptor{Kind: kind, TTL: c.Cache.TTL}
	switch kind {
	case cache.KindDisk:
		d.Dir = c.Cache.Dir
	case cache.KindRedis:
		r := c.Cache.Redis
		d.Redis = cache.RedisOptions{
			Host:     r.Host,
			Port:     r.Port,
			DB:       r.DB,
			Password: r.Password,
			TTL:      c.Cache.TTL,
		}
		if r.SigningKeyEnv != "" {
			if key := os.Getenv(r.SigningKeyEnv); key != "" {
				d.Redis.SigningKey = []byte(key)
			}
		}
	}
	return d, nil
}
