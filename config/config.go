package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// Job API
	APIURL         string        `mapstructure:"api_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Sync
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LogLines     int           `mapstructure:"log_lines"`
	Stream       bool          `mapstructure:"stream"`

	// Control panel server
	ListenAddr string `mapstructure:"listen_addr"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from defaults, an optional YAML file at path,
// and LORA_* environment variables, in increasing precedence
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("poll_interval", 4*time.Second)
	v.SetDefault("log_lines", 120)
	v.SetDefault("stream", true)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("lora")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the controller cannot run with
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.LogLines < 1 {
		return fmt.Errorf("log_lines must be at least 1, got %d", c.LogLines)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	return nil
}
