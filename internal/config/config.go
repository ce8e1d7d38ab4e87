package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application. The values are read
// by viper from a config file or MEDISYN_* environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	AI       AIConfig       `mapstructure:"ai"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Session  SessionConfig  `mapstructure:"session"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ServerConfig stores HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig stores the Postgres connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// AIConfig stores the model gateway configuration. Provider selects the
// backend: "gemini" (default) or "openai".
type AIConfig struct {
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	BaseURL     string `mapstructure:"base_url"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// AuthConfig stores JWT signing settings.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// SessionConfig stores interview session registry settings.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ReportConfig stores report output settings.
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from an optional config file and the
// environment. Environment variables use the MEDISYN_ prefix with
// underscores, e.g. MEDISYN_DATABASE_URL.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("medisyn")
		v.SetConfigType("yaml")
	}

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.url", "")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.max_attempts", 5)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "30m")
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("report.dir", "reports")

	v.SetEnvPrefix("MEDISYN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
