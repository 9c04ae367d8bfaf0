package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

var ErrNotConfigured = errors.New("customer code or api key not set")

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	CustomerCode string `mapstructure:"customer_code"`
	APIKey       string `mapstructure:"api_key"`
	APIHost      string `mapstructure:"api_host"`
	ChatEndpoint string `mapstructure:"chat_endpoint"`

	MaxBitrateKbps int `mapstructure:"max_bitrate_kbps"`

	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ChatTokenTimeout time.Duration `mapstructure:"chat_token_timeout"`
	ErrorTTL         time.Duration `mapstructure:"error_ttl"`
	ScrollCooldown   time.Duration `mapstructure:"scroll_cooldown"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("api_host", "cloudfront.net")
	v.SetDefault("chat_endpoint", "wss://edge.ivschat.us-east-1.amazonaws.com")
	v.SetDefault("max_bitrate_kbps", 400)
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("chat_token_timeout", "10s")
	v.SetDefault("error_ttl", "10s")
	v.SetDefault("scroll_cooldown", "1s")

	v.SetEnvPrefix("stagecast")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Verify reports the configuration-error class of failures: missing
// tenant credentials abort an operation before any request is made.
func (c *Config) Verify() error {
	if c.CustomerCode == "" || c.APIKey == "" {
		return ErrNotConfigured
	}
	return nil
}
