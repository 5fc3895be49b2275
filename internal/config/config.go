package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// Poll intervals outside this range either hammer the API or leave the fleet
// stale for longer than the day quota math assumes.
const (
	MinPollInterval = 60 * time.Second
	MaxPollInterval = 3600 * time.Second
)

// ---- Root ----

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Poll    PollConfig    `mapstructure:"poll"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Sensors SensorsConfig `mapstructure:"sensors"`
	Log     LogConfig     `mapstructure:"log"`
}

// ---- Leaf structs ----

type APIConfig struct {
	Key      string        `mapstructure:"key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
	MaxPages int           `mapstructure:"max_pages"`
	Rate     RateConfig    `mapstructure:"rate"`
	Retry    RetryConfig   `mapstructure:"retry"`
}

type RateConfig struct {
	PerSecond int `mapstructure:"per_second"`
	PerDay    int `mapstructure:"per_day"`
}

type RetryConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type HTTPConfig struct {
	Addr         string `mapstructure:"addr"`
	AuthToken    string `mapstructure:"auth_token"`
	RateLimitRPS int    `mapstructure:"rate_limit_rps"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type SensorsConfig struct {
	Enabled                []string `mapstructure:"enabled"`
	EnabledBinary          []string `mapstructure:"enabled_binary"`
	EnableActivationSwitch bool     `mapstructure:"enable_activation_switch"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (SIMHUB_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("merge config %s: %w", path, err)
		}
	}

	// env override (SIMHUB_*), nested keys use underscores: SIMHUB_API_KEY
	v.SetEnvPrefix("SIMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the poller cannot run with.
func (c Config) Validate() error {
	if c.API.Key == "" {
		return fmt.Errorf("api.key is required (set SIMHUB_API_KEY)")
	}
	if c.Poll.Interval < MinPollInterval || c.Poll.Interval > MaxPollInterval {
		return fmt.Errorf("poll.interval %s out of range [%s, %s]", c.Poll.Interval, MinPollInterval, MaxPollInterval)
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be positive, got %d", c.API.PageSize)
	}
	if c.API.MaxPages <= 0 {
		return fmt.Errorf("api.max_pages must be positive, got %d", c.API.MaxPages)
	}
	if c.API.Retry.Attempts < 1 {
		return fmt.Errorf("api.retry.attempts must be at least 1, got %d", c.API.Retry.Attempts)
	}
	if c.API.Rate.PerSecond <= 0 || c.API.Rate.PerDay <= 0 {
		return fmt.Errorf("api.rate budgets must be positive, got %d/s and %d/day", c.API.Rate.PerSecond, c.API.Rate.PerDay)
	}
	return nil
}
