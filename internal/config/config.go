package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	Env         string `mapstructure:"APP_ENV"`
	DatabaseDSN string `mapstructure:"DB_DSN"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// InternalToken guards the service-to-service hooks; empty disables them.
	InternalToken string `mapstructure:"INTERNAL_TOKEN"`

	NotifyWorkers       int `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueue         int `mapstructure:"NOTIFY_QUEUE"`
	NotifyRetentionDays int `mapstructure:"NOTIFY_RETENTION_DAYS"`

	WSSendBuffer int           `mapstructure:"WS_SEND_BUFFER"`
	WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
}

var defaults = map[string]any{
	"HTTP_ADDR":             ":8080",
	"APP_ENV":               "production",
	"DB_DSN":                "",
	"REDIS_ADDR":            "",
	"JWT_SECRET":            "",
	"CORS_ORIGINS":          "*",
	"INTERNAL_TOKEN":        "",
	"NOTIFY_WORKERS":        4,
	"NOTIFY_QUEUE":          1024,
	"NOTIFY_RETENTION_DAYS": 30,
	"WS_SEND_BUFFER":        256,
	"WRITE_TIMEOUT":         "5s",
}

// Load reads envFile when it exists and lets environment variables override it.
// An empty envFile means environment only.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	if cfg.NotifyWorkers < 1 {
		cfg.NotifyWorkers = 1
	}
	if cfg.WSSendBuffer < 1 {
		cfg.WSSendBuffer = 1
	}
	return cfg, nil
}

func (c *Config) Development() bool { return c.Env == "development" }

func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) NotificationRetention() time.Duration {
	return time.Duration(c.NotifyRetentionDays) * 24 * time.Hour
}
