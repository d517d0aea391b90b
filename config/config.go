/*
Package config loads service configuration with viper.

SOURCES (later wins):
  1. Defaults below
  2. Optional YAML file
  3. Environment: INCENTIVE_<SECTION>_<KEY>, e.g. INCENTIVE_CACHE_BACKEND=redis

Durations accept Go syntax ("30s", "5m").
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "INCENTIVE"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Report   ReportConfig   `mapstructure:"report"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// EnableScenarios exposes the demo data loader.
	EnableScenarios bool     `mapstructure:"enable_scenarios"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type CacheConfig struct {
	Backend     string        `mapstructure:"backend"` // memory | redis | none
	ScheduleTTL time.Duration `mapstructure:"schedule_ttl"`
	RulesTTL    time.Duration `mapstructure:"rules_ttl"`
	ContractTTL time.Duration `mapstructure:"contract_ttl"`
	AliasTTL    time.Duration `mapstructure:"alias_ttl"`
	WarmCron    string        `mapstructure:"warm_cron"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type ReportConfig struct {
	AliasBatchSize    int           `mapstructure:"alias_batch_size"`
	AliasConcurrency  int           `mapstructure:"alias_concurrency"`
	FallbackPrefixLen int           `mapstructure:"fallback_prefix_len"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
	Output string `mapstructure:"output"` // stdout | stderr | file path
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.enable_scenarios", false)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.path", "./data/incentives.db")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.schedule_ttl", 5*time.Minute)
	v.SetDefault("cache.rules_ttl", 5*time.Minute)
	v.SetDefault("cache.contract_ttl", 5*time.Minute)
	v.SetDefault("cache.alias_ttl", 30*time.Minute)
	v.SetDefault("cache.warm_cron", "0 */5 * * * *")
	v.SetDefault("cache.key_prefix", "incentive:")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("report.alias_batch_size", 400)
	v.SetDefault("report.alias_concurrency", 4)
	v.SetDefault("report.fallback_prefix_len", 8)
	v.SetDefault("report.fetch_timeout", 20*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from configPath (may be empty) and the
// environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache.backend %q (want memory, redis or none)", c.Cache.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Report.AliasBatchSize <= 0 {
		return fmt.Errorf("report.alias_batch_size must be positive")
	}
	if c.Report.AliasConcurrency <= 0 {
		return fmt.Errorf("report.alias_concurrency must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
